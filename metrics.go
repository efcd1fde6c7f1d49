package gddns

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	skipUpToDate    = "up_to_date"
	skipFatalCached = "fatal_cached"
	skipBackoff     = "backoff"
)

// Metrics counts update decisions. A nil *Metrics records nothing.
type Metrics struct {
	outcomes      *prometheus.CounterVec
	skips         *prometheus.CounterVec
	invalidations prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gddns_update_outcomes_total",
			Help: "Outcomes reported by the update endpoint, by response code.",
		}, []string{"code"}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gddns_update_skipped_total",
			Help: "Host updates decided without contacting the update endpoint.",
		}, []string{"reason"}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gddns_cache_invalidations_total",
			Help: "Times the in-memory response cache was dropped after a change on disk.",
		}),
	}
	for _, c := range []prometheus.Collector{m.outcomes, m.skips, m.invalidations} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) outcome(o Outcome) {
	if m == nil {
		return
	}
	var code string
	switch o := o.(type) {
	case Good:
		code = codeGood
	case NoChg:
		code = codeNoChg
	case FatalError:
		code = o.Code
	case RetryableError:
		code = o.Code
	default:
		panic(fmt.Sprintf("gddns: unknown outcome type %T", o))
	}
	m.outcomes.WithLabelValues(code).Inc()
}

func (m *Metrics) skipped(reason string) {
	if m == nil {
		return
	}
	m.skips.WithLabelValues(reason).Inc()
}

func (m *Metrics) invalidated() {
	if m == nil {
		return
	}
	m.invalidations.Inc()
}
