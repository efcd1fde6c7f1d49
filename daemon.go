package gddns

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// MinPollInterval is the shortest interval Daemon.Run accepts.
const MinPollInterval = time.Minute

// Daemon repeats the update batch on a fixed interval.
type Daemon struct {
	Updater  *Updater
	Resolver Resolver
	Hosts    []Host
	Interval time.Duration
	Logger   *zap.Logger
}

// Run performs one cycle immediately and then one cycle per interval until ctx is done.
// Intervals below MinPollInterval are raised to it.
//
// Each cycle first drops in-memory cache entries if the cache directory changed on disk,
// then resolves the public IP and updates all hosts.
// Errors are logged and never end the loop.
func (d *Daemon) Run(ctx context.Context) error {
	interval := d.Interval
	if interval < MinPollInterval {
		interval = MinPollInterval
	}
	log := orNop(d.Logger)
	log.Info("starting update loop", zap.Duration("interval", interval), zap.Int("hosts", len(d.Hosts)))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.cycle(ctx)
		select {
		case <-ctx.Done():
			log.Info("update loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (d *Daemon) cycle(ctx context.Context) {
	log := orNop(d.Logger)

	type diskWatcher interface {
		CheckDiskChanges() bool
	}
	if w, ok := d.Updater.Cache.(diskWatcher); ok && w.CheckDiskChanges() {
		log.Info("cache directory changed, dropping in-memory entries")
		d.Updater.Metrics.invalidated()
	}

	ip, err := d.Resolver.Resolve(ctx)
	if err != nil {
		log.Error("failed to get public IP", zap.Error(err))
		return
	}
	log.Debug("got public IP", zap.Stringer("ip", ip))

	err = d.Updater.UpdateAll(ctx, d.Hosts, ip)
	var batch *UpdateErrors
	switch {
	case errors.As(err, &batch):
		log.Error("update pass finished with failures",
			zap.Strings("failed", batch.Hostnames()),
			zap.Int("hosts", len(d.Hosts)))
	case err != nil:
		log.Error("update pass failed", zap.Error(err))
	default:
		log.Debug("update pass finished", zap.Int("hosts", len(d.Hosts)))
	}
}
