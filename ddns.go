package gddns

import (
	"context"
	"net/netip"
	"time"

	"go.uber.org/zap"
)

// Version is reported in the User-Agent of outgoing update requests.
var Version = "dev"

// UserAgent identifies this program to update endpoints.
func UserAgent() string { return "gddns/" + Version }

// DefaultServices are public "what is my IP" endpoints used by DefaultResolver.
// I'm not vouching for these services, but they do return the IP of the client connection.
var DefaultServices = []string{
	"https://checkip.amazonaws.com/",
	"https://icanhazip.com/", // operated by Cloudflare since ~2021
	"https://ipinfo.io/ip",
}

var DefaultResolver Resolver = mustWebResolver(DefaultServices...)

var nopLogger = zap.NewNop()

// Resolver looks up the public address of this host.
type Resolver interface {
	Resolve(context.Context) (netip.Addr, error)
}

// ResolverFunc adapts an ordinary function to a Resolver.
type ResolverFunc func(context.Context) (netip.Addr, error)

func (f ResolverFunc) Resolve(ctx context.Context) (netip.Addr, error) { return f(ctx) }

// Client sends one update request for hostname.
//
// Implementations make a single attempt and never return a Go error:
// transport and decoding failures are reported as a FatalError or RetryableError outcome.
type Client interface {
	Update(ctx context.Context, hostname string, ip netip.Addr) Outcome
}

// Cache remembers the last outcome per hostname.
// ResponseCache is the implementation used outside of tests.
type Cache interface {
	Get(hostname string) (entry CacheEntry, found bool, err error)
	Put(hostname string, o Outcome) error
	// Forget drops any in-memory copy of the hostname's entry
	// so that the next Put writes through even when the outcome is unchanged.
	Forget(hostname string)
}

// Host is one configured hostname together with the client used to update it.
type Host struct {
	Name          string
	Client        Client
	ServerBackoff time.Duration
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return nopLogger
	}
	return logger
}
