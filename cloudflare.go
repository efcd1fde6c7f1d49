package gddns

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"

	"github.com/cloudflare/cloudflare-go"
	"go.uber.org/zap"
)

// CloudflareClient implements Client by managing A and AAAA records through the Cloudflare API.
//
// It should be constructed using NewCloudflareClient.
type CloudflareClient struct {
	api     *cloudflare.API
	logger  *zap.Logger
	comment string // optional comment to attach to each new DNS entry
}

// NewCloudflareClient creates a client authenticated with an API token
// that has DNS edit permission for the zones of the configured hostnames.
func NewCloudflareClient(token string, httpClient *http.Client, logger *zap.Logger) (*CloudflareClient, error) {
	var opts []cloudflare.Option
	if httpClient != nil {
		opts = append(opts, cloudflare.HTTPClient(httpClient))
	}
	api, err := cloudflare.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating cloudflare api client: %w", err)
	}
	return &CloudflareClient{api: api, logger: orNop(logger), comment: "managed by gddns"}, nil
}

// Update implements Client.
//
// An existing record of the right type with the same address yields NoChg.
// Otherwise records of that type for hostname are replaced by one pointing at ip and the result is Good.
func (cf *CloudflareClient) Update(ctx context.Context, hostname string, ip netip.Addr) Outcome {
	if cf.api == nil {
		return FatalError{Code: CodeRequestError, Text: "CloudflareClient should be constructed with NewCloudflareClient"}
	}
	log := cf.logger.With(zap.String("hostname", hostname))
	addr := ip.Unmap()

	zid, err := cf.getZoneIDFromDomain(ctx, hostname)
	if err != nil {
		return classifyCloudflareError(err)
	}
	log.Debug("got zone ID", zap.String("zone", zid))

	rtype := recordType(ip)
	records, _, err := cf.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.ListDNSRecordsParams{
		Type: rtype,
		Name: hostname,
	})
	if err != nil {
		return classifyCloudflareError(err)
	}
	log.Debug("found existing records", zap.Int("count", len(records)))

	var stale []cloudflare.DNSRecord
	for _, r := range records {
		if a, err := netip.ParseAddr(r.Content); err == nil && a == addr {
			log.Debug("record already exists", zap.String("record", r.ID))
			return NoChg{Addr: ip}
		}
		stale = append(stale, r)
	}

	for _, r := range stale {
		log.Debug("deleting DNS record", zap.String("record", r.ID), zap.String("content", r.Content))
		if err := cf.api.DeleteDNSRecord(ctx, cloudflare.ZoneIdentifier(zid), r.ID); err != nil {
			return classifyCloudflareError(fmt.Errorf("unable to delete DNS record %s: %w", r.ID, err))
		}
	}

	_, err = cf.api.CreateDNSRecord(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.CreateDNSRecordParams{
		Type:    rtype,
		Name:    hostname,
		Content: addr.String(),
		ZoneID:  zid,
		TTL:     60,
		Comment: cf.comment,
	})
	if err != nil {
		return classifyCloudflareError(fmt.Errorf("error creating DNS record: %w", err))
	}
	log.Debug("successfully added record", zap.Stringer("ip", ip))
	return Good{Addr: ip}
}

var errNoZone = errors.New("no zone matches hostname")

func (cf *CloudflareClient) getZoneIDFromDomain(ctx context.Context, domain string) (zid string, err error) {
	zones, err := cf.api.ListZones(ctx)
	if err != nil {
		return "", fmt.Errorf("error listing zones: %w", err)
	}
	zid, ok := longestZoneMatch(zones, domain)
	if !ok {
		return "", fmt.Errorf("unable to find a zone matching %q: %w", domain, errNoZone)
	}
	return zid, nil
}

// longestZoneMatch returns the zone with the longest name that domain equals or is a subdomain of.
func longestZoneMatch(zones []cloudflare.Zone, domain string) (zid string, ok bool) {
	domain = strings.TrimSuffix(domain, ".")
	max := 0
	for _, z := range zones {
		if (domain == z.Name || strings.HasSuffix(domain, "."+z.Name)) && len(z.Name) > max {
			max, zid = len(z.Name), z.ID
		}
	}
	return zid, max > 0
}

// classifyCloudflareError maps an API failure onto the outcome taxonomy.
func classifyCloudflareError(err error) Outcome {
	if errors.Is(err, errNoZone) {
		return FatalError{Code: CodeNoHost, Text: err.Error()}
	}
	var typed interface{ Type() cloudflare.ErrorType }
	if errors.As(err, &typed) {
		switch typed.Type() {
		case cloudflare.ErrorTypeAuthentication, cloudflare.ErrorTypeAuthorization:
			return FatalError{Code: CodeBadAuth, Text: err.Error()}
		case cloudflare.ErrorTypeNotFound:
			return FatalError{Code: CodeNoHost, Text: err.Error()}
		case cloudflare.ErrorTypeRateLimit, cloudflare.ErrorTypeService:
			return RetryableError{Code: CodeRetryable, Text: err.Error()}
		case cloudflare.ErrorTypeRequest:
			return FatalError{Code: CodeClientError, Text: err.Error()}
		}
	}
	return FatalError{Code: CodeRequestError, Text: err.Error()}
}

func recordType(a netip.Addr) string {
	if a.Is4() || a.Is4In6() {
		return "A"
	}
	return "AAAA"
}
