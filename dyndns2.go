package gddns

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Auth is the credential sent to an update endpoint: BasicAuth or TokenAuth.
type Auth interface {
	apply(*http.Request)
}

// BasicAuth authenticates with a username and password (or access key).
type BasicAuth struct {
	Username string
	Password string
}

// TokenAuth authenticates with a bearer token.
type TokenAuth struct {
	Token string
}

func (a BasicAuth) apply(req *http.Request) { req.SetBasicAuth(a.Username, a.Password) }
func (a TokenAuth) apply(req *http.Request) { req.Header.Set("Authorization", "Bearer "+a.Token) }

// DynDNS2Client updates hosts through the dyndns2 protocol used by Google Domains, No-IP, DynDNS and others.
type DynDNS2Client struct {
	endpoint   *url.URL
	auth       Auth
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDynDNS2Client creates a client for the update URL endpoint,
// e.g. https://domains.google.com/nic/update.
func NewDynDNS2Client(endpoint string, auth Auth, httpClient *http.Client, logger *zap.Logger) (*DynDNS2Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("error parsing update URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("update URL %q must be http or https", endpoint)
	}
	if auth == nil {
		return nil, errors.New("no credentials for update URL")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &DynDNS2Client{endpoint: u, auth: auth, httpClient: httpClient, logger: orNop(logger)}, nil
}

// Update implements Client.
func (c *DynDNS2Client) Update(ctx context.Context, hostname string, ip netip.Addr) Outcome {
	u := *c.endpoint
	q := u.Query()
	q.Set("hostname", hostname)
	q.Set("myip", ip.String())
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return FatalError{Code: CodeRequestError, Text: err.Error()}
	}
	req.Header.Set("User-Agent", UserAgent())
	c.auth.apply(req)

	c.logger.Debug("sending update request", zap.String("hostname", hostname), zap.String("url", c.endpoint.Redacted()))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return FatalError{Code: CodeRequestError, Text: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return RetryableError{Code: CodeRetryable, Text: resp.Status}
	case resp.StatusCode >= 400:
		return FatalError{Code: CodeClientError, Text: resp.Status}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return FatalError{Code: CodeRequestError, Text: "unexpected status " + resp.Status}
	}

	line, err := bufio.NewReader(io.LimitReader(resp.Body, 4096)).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return FatalError{Code: CodeRequestError, Text: err.Error()}
	}
	o, err := ParseOutcome(strings.TrimSpace(line))
	if err != nil {
		return FatalError{Code: CodeParseError, Text: err.Error()}
	}
	return o
}
