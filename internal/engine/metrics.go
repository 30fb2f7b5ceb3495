package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/txsched/internal/ir"
)

// Metrics holds the simulator's Prometheus collectors.
//
// Collectors are registered on the registerer passed to NewMetrics, so
// tests and concurrent harness runs each use their own registry.
type Metrics struct {
	// cycles counts simulated cycles.
	cycles prometheus.Counter

	// fires counts firings per transaction.
	fires *prometheus.CounterVec

	// blocked counts cycles a transaction was ready but lost arbitration.
	blocked *prometheus.CounterVec

	// firingSetSize tracks how many transactions fire per cycle.
	firingSetSize prometheus.Histogram

	// methodCalls counts multiplexed calls per method.
	methodCalls *prometheus.CounterVec
}

// NewMetrics creates and registers the simulator collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		cycles: f.NewCounter(prometheus.CounterOpts{
			Name: "txsched_cycles_total",
			Help: "Total simulated clock cycles",
		}),
		fires: f.NewCounterVec(prometheus.CounterOpts{
			Name: "txsched_transaction_fires_total",
			Help: "Total firings by transaction",
		}, []string{"transaction"}),
		blocked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "txsched_transaction_blocked_total",
			Help: "Total cycles a transaction was ready but not admitted",
		}, []string{"transaction"}),
		firingSetSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "txsched_firing_set_size",
			Help:    "Number of transactions firing per cycle",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
		methodCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "txsched_method_calls_total",
			Help: "Total multiplexed calls by method",
		}, []string{"method"}),
	}
}

func (m *Metrics) observeCycle(rec ir.CycleRecord, blocked []string) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.firingSetSize.Observe(float64(len(rec.Fired)))
	for _, name := range rec.Fired {
		m.fires.WithLabelValues(name).Inc()
	}
	for _, name := range blocked {
		m.blocked.WithLabelValues(name).Inc()
	}
	for _, call := range rec.Calls {
		m.methodCalls.WithLabelValues(call.Method).Inc()
	}
}
