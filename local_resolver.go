package gddns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// InterfaceResolver constructs a resolver that returns the first global unicast address
// reported by the given interfaces, in order.
// If no interfaces are provided then all interfaces will be used.
// Loopback and link-local addresses are always skipped.
func InterfaceResolver(iface ...string) Resolver {
	return interfaceResolver{ifaces: iface}
}

type interfaceResolver struct {
	ifaces []string
}

func (r interfaceResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	if len(r.ifaces) == 0 {
		addrs, err := net.InterfaceAddrs()
		if err != nil {
			return netip.Addr{}, fmt.Errorf("error getting addresses for interfaces: %w", err)
		}
		return firstGlobal(addrs)
	}

	var errs []error
	for _, ifs := range r.ifaces {
		iface, err := net.InterfaceByName(ifs)
		if err != nil {
			errs = append(errs, fmt.Errorf("error getting interface %s by name: %w", ifs, err))
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			errs = append(errs, fmt.Errorf("error looking up addresses for interface %s: %w", ifs, err))
			continue
		}
		ip, err := firstGlobal(addrs)
		if err != nil {
			errs = append(errs, fmt.Errorf("interface %s: %w", ifs, err))
			continue
		}
		return ip, nil
	}
	return netip.Addr{}, errors.Join(errs...)
}

// firstGlobal picks the first usable address.
// addr: ip+net:192.168.86.253/24
// addr: ip+net:fd64:9f44:fc30:0:b951:8b16:2812:a227/64
// addr: ip+net:fe80::2cc9:801b:3551:9a43/64
func firstGlobal(addrs []net.Addr) (netip.Addr, error) {
	var parseErrors []error
	for _, addr := range addrs {
		prefix, err := netip.ParsePrefix(addr.String())
		if err != nil {
			parseErrors = append(parseErrors, fmt.Errorf("error parsing local ip %s: %w", addr.String(), err))
			continue
		}
		if ip := prefix.Addr(); ip.IsGlobalUnicast() {
			return ip.Unmap(), nil
		}
	}
	if len(parseErrors) > 0 {
		return netip.Addr{}, errors.Join(parseErrors...)
	}
	return netip.Addr{}, errors.New("no global unicast address found")
}
