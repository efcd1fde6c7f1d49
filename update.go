package gddns

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultServerBackoff is the wait after a retryable server error when the config does not set one.
const DefaultServerBackoff = 5 * time.Minute

// PreviousFatalError is returned when the cache holds a fatal outcome from an earlier run.
// The host is not updated again until its cache entry is cleared.
type PreviousFatalError struct {
	Outcome FatalError
	Time    time.Time
}

func (e *PreviousFatalError) Error() string {
	return fmt.Sprintf("fatal error on previous run: %q. Fix the error and clear the cache before running again", e.Outcome.String())
}

func (e *PreviousFatalError) Unwrap() error { return e.Outcome }

// BackoffError is returned while a retryable outcome is younger than the host's server backoff.
type BackoffError struct {
	Outcome RetryableError
	Age     time.Duration
	Backoff time.Duration
}

// RetryIn is how long until another attempt is allowed.
func (e *BackoffError) RetryIn() time.Duration { return e.Backoff - e.Age }

func (e *BackoffError) Error() string {
	return fmt.Sprintf("server error %s ago: %q. Waiting %s before retry",
		e.Age.Round(time.Second), e.Outcome.String(), e.RetryIn().Round(time.Second))
}

func (e *BackoffError) Unwrap() error { return e.Outcome }

// HostError is the failure of one host in a batch.
type HostError struct {
	Hostname string
	Err      error
}

func (e *HostError) Error() string { return fmt.Sprintf("failed to update %s: %s", e.Hostname, e.Err) }

func (e *HostError) Unwrap() error { return e.Err }

// UpdateErrors is returned by UpdateAll when at least one host failed.
type UpdateErrors struct {
	Errors []*HostError
}

func (e *UpdateErrors) Error() string {
	lines := make([]string, len(e.Errors))
	for i, he := range e.Errors {
		lines[i] = he.Error()
	}
	return strings.Join(lines, "\n")
}

func (e *UpdateErrors) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, he := range e.Errors {
		errs[i] = he
	}
	return errs
}

// Hostnames returns the failed hostnames in batch order.
func (e *UpdateErrors) Hostnames() []string {
	names := make([]string, len(e.Errors))
	for i, he := range e.Errors {
		names[i] = he.Hostname
	}
	return names
}

// Updater decides per host whether an update request is needed and records every outcome.
type Updater struct {
	Cache   Cache
	Logger  *zap.Logger
	Metrics *Metrics

	// Now is the clock used for backoff decisions. Defaults to time.Now.
	Now func() time.Time
}

// UpdateHost brings the DNS record for host up to date with ip.
//
// The cached outcome decides what happens:
// a matching Good or NoChg address means there is nothing to do,
// a FatalError is returned as a *PreviousFatalError without contacting the server,
// and a RetryableError younger than host.ServerBackoff is returned as a *BackoffError.
// Otherwise the client is called and its outcome is cached whether it succeeded or not.
// A corrupt cache entry is logged and treated as missing.
func (u *Updater) UpdateHost(ctx context.Context, host Host, ip netip.Addr) error {
	log := orNop(u.Logger).With(zap.String("hostname", host.Name))

	entry, found, err := u.Cache.Get(host.Name)
	var corrupt *CorruptEntryError
	if errors.As(err, &corrupt) {
		log.Warn("ignoring bad cache entry", zap.Error(err))
		found, err = false, nil
	}
	if err != nil {
		return fmt.Errorf("failed to load cache: %w", err)
	}

	var oldIP netip.Addr
	if found {
		switch o := entry.Outcome.(type) {
		case Good:
			oldIP = o.Addr
		case NoChg:
			oldIP = o.Addr
		case FatalError:
			u.Metrics.skipped(skipFatalCached)
			return &PreviousFatalError{Outcome: o, Time: entry.Time}
		case RetryableError:
			backoff := host.ServerBackoff
			if age := u.now().Sub(entry.Time); age < backoff {
				u.Metrics.skipped(skipBackoff)
				return &BackoffError{Outcome: o, Age: age, Backoff: backoff}
			}
			// The next Put must restart the backoff window even if the server repeats itself.
			u.Cache.Forget(host.Name)
		default:
			panic(fmt.Sprintf("gddns: unknown outcome type %T", o))
		}
	}

	switch {
	case oldIP.IsValid() && oldIP == ip:
		log.Debug("IP already up to date", zap.Stringer("ip", ip))
		u.Metrics.skipped(skipUpToDate)
		return nil
	case oldIP.IsValid():
		log.Info("updating IP", zap.Stringer("old_ip", oldIP), zap.Stringer("ip", ip))
	default:
		log.Info("no cached value, setting IP", zap.Stringer("ip", ip))
	}

	o := host.Client.Update(ctx, host.Name, ip)
	u.Metrics.outcome(o)
	if err := u.Cache.Put(host.Name, o); err != nil {
		return fmt.Errorf("failed to update cache: %w", err)
	}

	switch o := o.(type) {
	case Good:
		log.Info("IP updated", zap.Stringer("ip", o.Addr))
		return nil
	case NoChg:
		log.Warn("IP unchanged", zap.Stringer("ip", o.Addr))
		return nil
	case FatalError:
		return fmt.Errorf("failed to update DNS: %w", o)
	case RetryableError:
		return fmt.Errorf("failed to update DNS: %w", o)
	default:
		panic(fmt.Sprintf("gddns: unknown outcome type %T", o))
	}
}

// UpdateAll runs UpdateHost for every host in order.
// A failing host never stops the batch; all failures are returned together as *UpdateErrors.
func (u *Updater) UpdateAll(ctx context.Context, hosts []Host, ip netip.Addr) error {
	var errs []*HostError
	for _, host := range hosts {
		if err := u.UpdateHost(ctx, host, ip); err != nil {
			orNop(u.Logger).Error("host update failed", zap.String("hostname", host.Name), zap.Error(err))
			errs = append(errs, &HostError{Hostname: host.Name, Err: err})
		}
	}
	if len(errs) > 0 {
		return &UpdateErrors{Errors: errs}
	}
	return nil
}

func (u *Updater) now() time.Time {
	if u.Now == nil {
		return time.Now()
	}
	return u.Now()
}
