package gddns

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

const (
	openDNSServer  = "resolver1.opendns.com:53"
	openDNSMyIP    = "myip.opendns.com."
	openDNSTimeout = 5 * time.Second
)

// OpenDNSResolver asks a DNS server for the name myip.opendns.com,
// which OpenDNS answers with the address the query came from.
//
// The zero value queries resolver1.opendns.com for an A record.
type OpenDNSResolver struct {
	// Server is host:port of the DNS server. Defaults to resolver1.opendns.com:53.
	Server string
	// IPv6 asks for an AAAA record instead of an A record.
	IPv6 bool
}

func (r OpenDNSResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	server := r.Server
	if server == "" {
		server = openDNSServer
	}
	qtype := dns.TypeA
	if r.IPv6 {
		qtype = dns.TypeAAAA
	}

	m := new(dns.Msg)
	m.SetQuestion(openDNSMyIP, qtype)
	c := &dns.Client{Timeout: openDNSTimeout}
	resp, _, err := c.ExchangeContext(ctx, m, server)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("querying %s: %w", server, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("querying %s: %s", server, dns.RcodeToString[resp.Rcode])
	}

	for _, rr := range resp.Answer {
		var raw []byte
		switch rr := rr.(type) {
		case *dns.A:
			raw = rr.A
		case *dns.AAAA:
			raw = rr.AAAA
		default:
			continue
		}
		if ip, ok := netip.AddrFromSlice(raw); ok {
			return ip.Unmap(), nil
		}
	}
	return netip.Addr{}, errors.New("no address in response for " + openDNSMyIP)
}
