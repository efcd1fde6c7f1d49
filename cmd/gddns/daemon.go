package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kardianos/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Travis-Britz/gddns"
)

type daemonFlags struct {
	asService bool
}

func newDaemonCmd() *cobra.Command {
	df := new(daemonFlags)
	c := &cobra.Command{
		Use:   "daemon",
		Short: "Update all hosts every poll_interval until stopped.",
		Long: `Update all hosts every poll_interval until stopped.

Changes made to the cache directory by other processes, such as "gddns clear-cache",
are picked up at the start of the next update pass.
If metrics_addr is set, Prometheus metrics are served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if df.asService {
				svcConfig, err := newSvcConfig()
				if err != nil {
					return err
				}
				svc, err := service.New(new(daemonService), svcConfig)
				if err != nil {
					return fmt.Errorf("failed to init service, %w", err)
				}
				return svc.Run()
			}
			return runDaemon(cmd.Context())
		},
	}
	c.Flags().BoolVar(&df.asService, "as-service", false, "run under the system service manager")
	c.Flags().MarkHidden("as-service")
	return c
}

func runDaemon(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	resolver, err := cfg.PublicIP.Resolver(nil)
	if err != nil {
		return err
	}
	hosts, err := cfg.NewHosts(nil, logger)
	if err != nil {
		return err
	}

	reg := newMetricsReg()
	metrics, err := gddns.NewMetrics(reg)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	cache := gddns.NewResponseCache(cacheDir(cfg), gddns.CacheWithLogger(logger))
	if err := cache.Watch(ctx); err != nil {
		return fmt.Errorf("failed to watch cache dir: %w", err)
	}
	defer cache.Close()

	d := &gddns.Daemon{
		Updater: &gddns.Updater{
			Cache:   cache,
			Logger:  logger,
			Metrics: metrics,
		},
		Resolver: resolver,
		Hosts:    hosts,
		Interval: cfg.PollInterval,
		Logger:   logger,
	}
	g.Go(func() error { return d.Run(ctx) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(ctx, cfg.MetricsAddr, reg, logger) })
	}
	return g.Wait()
}

func newMetricsReg() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// serveMetrics serves reg on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting metrics server", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("metrics server exited: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		return nil
	}
}
