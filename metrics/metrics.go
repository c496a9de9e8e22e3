package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/viant/triage/progress"
	"github.com/viant/triage/service/pool"
	"github.com/viant/triage/telemetry"
)

const namespace = "triage"

// Metrics is a telemetry listener maintaining Prometheus collectors.
type Metrics struct {
	registry      prometheus.Registerer
	events        *prometheus.CounterVec
	resolved      *prometheus.CounterVec
	unavailable   *prometheus.CounterVec
	loanImbalance prometheus.Counter
	surgeActive   prometheus.Gauge
	surges        prometheus.Counter
}

var _ telemetry.Listener = (*Metrics)(nil)

// New creates and registers the collectors; a nil registry uses a fresh one.
func New(registry prometheus.Registerer) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: registry,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_total", Help: "Engine events by kind.",
		}, []string{"kind"}),
		resolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cases_resolved_total", Help: "Resolved cases by outcome and origin.",
		}, []string{"outcome", "origin"}),
		unavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "resource_unavailable_total", Help: "Acquire timeouts by pool.",
		}, []string{"pool"}),
		loanImbalance: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "loan_imbalance_total", Help: "Loans that could not be reconciled.",
		}),
		surgeActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "surge_active", Help: "1 while a surge episode runs.",
		}),
		surges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "surge_episodes_total", Help: "Surge episodes started.",
		}),
	}
	for _, c := range []prometheus.Collector{m.events, m.resolved, m.unavailable, m.loanImbalance, m.surgeActive, m.surges} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return m, nil
}

// OnEvent updates the collectors.
func (m *Metrics) OnEvent(event *telemetry.Event) {
	m.events.WithLabelValues(string(event.Kind)).Inc()
	ctx := event.Context
	if ctx == nil {
		ctx = &telemetry.Context{}
	}
	switch event.Kind {
	case telemetry.KindResolved:
		m.resolved.WithLabelValues(ctx.Outcome, ctx.Origin).Inc()
	case telemetry.KindUnavailable:
		m.unavailable.WithLabelValues(ctx.Pool).Inc()
	case telemetry.KindLoanImbalance:
		m.loanImbalance.Inc()
	case telemetry.KindSurgeBegin:
		m.surges.Inc()
		m.surgeActive.Set(1)
	case telemetry.KindSurgeEnd:
		m.surgeActive.Set(0)
	}
}

// WatchPools exports the occupancy of every pool.
func (m *Metrics) WatchPools(pools ...*pool.Pool) error {
	for _, p := range pools {
		labels := prometheus.Labels{"pool": p.Name()}
		collectors := []prometheus.Collector{
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Name: "pool_available", Help: "Free units.", ConstLabels: labels,
			}, func() float64 { return float64(p.Stats().Available) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Name: "pool_held", Help: "Units held by workers.", ConstLabels: labels,
			}, func() float64 { return float64(p.Stats().Held) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Name: "pool_lent", Help: "Units lent to a surge.", ConstLabels: labels,
			}, func() float64 { return float64(p.Stats().Lent) }),
		}
		for _, c := range collectors {
			if err := m.registry.Register(c); err != nil {
				return fmt.Errorf("failed to register pool %s: %w", p.Name(), err)
			}
		}
	}
	return nil
}

// WatchLedger exports the case counters.
func (m *Metrics) WatchLedger(ledger *progress.Ledger) error {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cases_created", Help: "Cases created so far.",
		}, func() float64 { return float64(ledger.Snapshot().Created) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cases_in_flight", Help: "Cases without an outcome.",
		}, func() float64 { return float64(ledger.Snapshot().InFlight()) }),
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return fmt.Errorf("failed to register ledger: %w", err)
		}
	}
	return nil
}
