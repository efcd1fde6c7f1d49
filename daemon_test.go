package gddns

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDaemon_RunsFirstCycleImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hosts []string
	client := clientFunc(func(_ context.Context, hostname string, ip netip.Addr) Outcome {
		hosts = append(hosts, hostname)
		return Good{Addr: ip}
	})
	d := &Daemon{
		Updater: &Updater{Cache: NewResponseCache(t.TempDir())},
		Resolver: ResolverFunc(func(context.Context) (netip.Addr, error) {
			return netip.MustParseAddr("1.2.3.4"), nil
		}),
		Hosts: []Host{
			{Name: "a.example.com", Client: client},
			{Name: "b.example.com", Client: client},
		},
		// Raised to MinPollInterval, so only the first cycle runs before cancel.
		Interval: time.Millisecond,
	}

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, hosts)
}

func TestDaemon_ResolveFailureSkipsCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	core, logs := observer.New(zapcore.ErrorLevel)

	called := false
	d := &Daemon{
		Updater: &Updater{Cache: NewResponseCache(t.TempDir())},
		Resolver: ResolverFunc(func(context.Context) (netip.Addr, error) {
			cancel()
			return netip.Addr{}, errors.New("no network")
		}),
		Hosts: []Host{{Name: "a.example.com", Client: clientFunc(func(context.Context, string, netip.Addr) Outcome {
			called = true
			return Good{}
		})}},
		Logger: zap.New(core),
	}
	require.NoError(t, d.Run(ctx))
	assert.False(t, called)
	assert.Equal(t, 1, logs.FilterMessage("failed to get public IP").Len())
}

func TestDaemon_InvalidatesChangedCache(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	cache := NewResponseCache(t.TempDir())
	ip := netip.MustParseAddr("1.2.3.4")
	require.NoError(t, cache.Put("a.example.com", Good{Addr: ip}))
	cache.lostEvents.Store(true)

	core, logs := observer.New(zapcore.ErrorLevel)
	d := &Daemon{
		Updater: &Updater{Cache: cache, Metrics: m},
		Resolver: ResolverFunc(func(context.Context) (netip.Addr, error) {
			cancel()
			return ip, nil
		}),
		Hosts: []Host{{Name: "a.example.com", Client: clientFunc(func(context.Context, string, netip.Addr) Outcome {
			return FatalError{Code: CodeBadAuth}
		})}},
		Logger: zap.New(core),
	}
	require.NoError(t, d.Run(ctx))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.invalidations))
	// The entry was reloaded from disk and still matches, so the client was not called.
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skips.WithLabelValues(skipUpToDate)))
	assert.Zero(t, logs.Len())
}

func TestDaemon_LogsBatchFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	core, logs := observer.New(zapcore.ErrorLevel)
	d := &Daemon{
		Updater: &Updater{Cache: NewResponseCache(t.TempDir())},
		Resolver: ResolverFunc(func(context.Context) (netip.Addr, error) {
			cancel()
			return netip.MustParseAddr("1.2.3.4"), nil
		}),
		Hosts: []Host{{Name: "a.example.com", Client: clientFunc(func(context.Context, string, netip.Addr) Outcome {
			return RetryableError{Code: CodeRetryable, Text: "503 Service Unavailable"}
		})}},
		Logger: zap.New(core),
	}
	require.NoError(t, d.Run(ctx))

	entries := logs.FilterMessage("update pass finished with failures").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []any{"a.example.com"}, entries[0].ContextMap()["failed"])
}
