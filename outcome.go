package gddns

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// Outcome is the classified result of one update attempt.
//
// The set of implementations is closed: [Good], [NoChg], [FatalError] and [RetryableError].
// Consumers switch over the concrete type and treat anything else as a programming error.
//
// String returns the canonical text encoding, "<code> <text>",
// which is used both on the wire and in the response cache.
type Outcome interface {
	fmt.Stringer
	outcome()
}

// Good means the update was applied and the endpoint now reports Addr.
type Good struct{ Addr netip.Addr }

// NoChg means the endpoint already had Addr.
type NoChg struct{ Addr netip.Addr }

// FatalError is a failure caused by the user or the configuration.
// It is never retried automatically.
type FatalError struct {
	Code string
	Text string
}

// RetryableError is a transient server-side failure.
// It may be retried once the configured backoff has elapsed.
type RetryableError struct {
	Code string
	Text string
}

func (Good) outcome()           {}
func (NoChg) outcome()          {}
func (FatalError) outcome()     {}
func (RetryableError) outcome() {}

func (o Good) String() string           { return encode(codeGood, o.Addr.String()) }
func (o NoChg) String() string          { return encode(codeNoChg, o.Addr.String()) }
func (o FatalError) String() string     { return encode(o.Code, o.Text) }
func (o RetryableError) String() string { return encode(o.Code, o.Text) }

func (o FatalError) Error() string     { return describe(o.Code, o.Text) }
func (o RetryableError) Error() string { return describe(o.Code, o.Text) }

// Response codes understood by the codec.
const (
	codeGood  = "good"
	codeNoChg = "nochg"

	CodeNoHost       = "nohost"
	CodeBadAuth      = "badauth"
	CodeNotFQDN      = "notfqdn"
	CodeBadAgent     = "badagent"
	CodeNotDonator   = "!donator"
	CodeNotYours     = "!yours"
	CodeNumHost      = "numhost"
	CodeConflict     = "conflict"
	CodeAbuse        = "abuse"
	CodeClientError  = "clienterror"
	CodeRequestError = "requesterror"
	CodeParseError   = "parseerror"

	CodeDNSErr    = "dnserr"
	CodeServer911 = "911"
	CodeRetryable = "retryable"
)

var fatalCodes = map[string]string{
	CodeNoHost:       "hostname not registered with account",
	CodeBadAuth:      "authentication failed",
	CodeNotFQDN:      "invalid hostname",
	CodeBadAgent:     "user agent rejected",
	CodeNotDonator:   "feature not available for this account",
	CodeNotYours:     "hostname belongs to another account",
	CodeNumHost:      "too many hosts in request",
	CodeConflict:     "conflict with custom resource record",
	CodeAbuse:        "request blocked by abuse policy",
	CodeClientError:  "request rejected by server",
	CodeRequestError: "request failed",
	CodeParseError:   "unreadable response",
}

var retryableCodes = map[string]string{
	CodeDNSErr:    "server DNS error",
	CodeServer911: "server error",
	CodeRetryable: "server unavailable",
}

// ErrUnknownCode is returned by ParseOutcome when the response code is not recognized.
var ErrUnknownCode = errors.New("unknown response code")

// ParseError reports text that is not a canonical Outcome encoding.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unable to parse response %q: %s", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseOutcome decodes the canonical "<code> <text>" encoding.
//
// The code is everything before the first space.
// For good and nochg the remainder must be an IP address.
// A trailing line break is ignored; all other text is kept verbatim.
func ParseOutcome(s string) (Outcome, error) {
	line := strings.TrimRight(s, "\r\n")
	code, text, _ := strings.Cut(line, " ")

	switch code {
	case codeGood, codeNoChg:
		addr, err := netip.ParseAddr(text)
		if err != nil {
			return nil, &ParseError{Input: s, Err: err}
		}
		if code == codeGood {
			return Good{Addr: addr}, nil
		}
		return NoChg{Addr: addr}, nil
	}
	if _, ok := fatalCodes[code]; ok {
		return FatalError{Code: code, Text: text}, nil
	}
	if _, ok := retryableCodes[code]; ok {
		return RetryableError{Code: code, Text: text}, nil
	}
	return nil, &ParseError{Input: s, Err: ErrUnknownCode}
}

// FormatOutcome is the inverse of ParseOutcome.
func FormatOutcome(o Outcome) string {
	switch o := o.(type) {
	case Good:
		return o.String()
	case NoChg:
		return o.String()
	case FatalError:
		return o.String()
	case RetryableError:
		return o.String()
	default:
		panic(fmt.Sprintf("gddns: unknown outcome type %T", o))
	}
}

// Describe returns a human readable summary of o for log lines and CLI output.
func Describe(o Outcome) string {
	switch o := o.(type) {
	case Good:
		return fmt.Sprintf("IP updated (%s)", o.Addr)
	case NoChg:
		return fmt.Sprintf("IP unchanged (%s)", o.Addr)
	case FatalError:
		return o.Error()
	case RetryableError:
		return o.Error()
	default:
		panic(fmt.Sprintf("gddns: unknown outcome type %T", o))
	}
}

func encode(code, text string) string {
	if text == "" {
		return code
	}
	return code + " " + text
}

func describe(code, text string) string {
	meaning, ok := fatalCodes[code]
	if !ok {
		meaning = retryableCodes[code]
	}
	switch {
	case meaning == "" && text == "":
		return code
	case meaning == "":
		return fmt.Sprintf("%s: %s", code, text)
	case text == "":
		return fmt.Sprintf("%s (%s)", code, meaning)
	default:
		return fmt.Sprintf("%s (%s): %s", code, meaning, text)
	}
}
