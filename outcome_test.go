package gddns_test

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Travis-Britz/gddns"
)

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		in   string
		want gddns.Outcome
	}{
		{"good 1.2.3.4", gddns.Good{Addr: netip.MustParseAddr("1.2.3.4")}},
		{"good 1.2.3.4\r\n", gddns.Good{Addr: netip.MustParseAddr("1.2.3.4")}},
		{"nochg 2001:db8::1\n", gddns.NoChg{Addr: netip.MustParseAddr("2001:db8::1")}},
		{"badauth", gddns.FatalError{Code: gddns.CodeBadAuth}},
		{"!yours", gddns.FatalError{Code: gddns.CodeNotYours}},
		{"clienterror 403 Forbidden", gddns.FatalError{Code: gddns.CodeClientError, Text: "403 Forbidden"}},
		{"911 maintenance  in progress", gddns.RetryableError{Code: gddns.CodeServer911, Text: "maintenance  in progress"}},
		{"dnserr", gddns.RetryableError{Code: gddns.CodeDNSErr}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := gddns.ParseOutcome(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseOutcome_Errors(t *testing.T) {
	for _, in := range []string{"", "hello world", "good", "good not-an-ip", "nochg 1.2.3"} {
		t.Run(in, func(t *testing.T) {
			o, err := gddns.ParseOutcome(in)
			assert.Nil(t, o)
			var pe *gddns.ParseError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, in, pe.Input)
		})
	}

	_, err := gddns.ParseOutcome("hello world")
	assert.ErrorIs(t, err, gddns.ErrUnknownCode)
}

func TestFormatOutcome_RoundTrip(t *testing.T) {
	outcomes := []gddns.Outcome{
		gddns.Good{Addr: netip.MustParseAddr("203.0.113.7")},
		gddns.NoChg{Addr: netip.MustParseAddr("2001:db8::7")},
		gddns.FatalError{Code: gddns.CodeNoHost},
		gddns.FatalError{Code: gddns.CodeRequestError, Text: `Get "https://x": dial tcp: connection refused`},
		gddns.RetryableError{Code: gddns.CodeRetryable, Text: "503 Service Unavailable"},
	}
	for _, o := range outcomes {
		s := gddns.FormatOutcome(o)
		got, err := gddns.ParseOutcome(s)
		require.NoError(t, err, s)
		assert.Equal(t, o, got)
	}

	assert.Equal(t, "good 203.0.113.7", gddns.FormatOutcome(outcomes[0]))
	assert.Equal(t, "nohost", gddns.FormatOutcome(outcomes[2]))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "IP updated (1.2.3.4)", gddns.Describe(gddns.Good{Addr: netip.MustParseAddr("1.2.3.4")}))
	assert.Equal(t, "IP unchanged (1.2.3.4)", gddns.Describe(gddns.NoChg{Addr: netip.MustParseAddr("1.2.3.4")}))
	assert.Equal(t, "badauth (authentication failed)", gddns.Describe(gddns.FatalError{Code: gddns.CodeBadAuth}))
	assert.Equal(t, "911 (server error): down", gddns.Describe(gddns.RetryableError{Code: gddns.CodeServer911, Text: "down"}))
}
