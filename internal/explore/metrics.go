package explore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report exploration activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	explorations       *prometheus.CounterVec
	nodes              *prometheus.CounterVec
	proposalFailures   prometheus.Counter
	evaluationDuration prometheus.Histogram
	cacheHits          prometheus.Counter
	running            prometheus.Gauge
}

// MustNewMetrics constructs a Metrics instance registered with reg.
// Collectors already registered with reg are reused; any other
// registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		explorations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adoptsim",
			Subsystem: "explore",
			Name:      "explorations_total",
			Help:      "Explorations finished, by terminal status.",
		}, []string{"status"}),
		nodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adoptsim",
			Subsystem: "explore",
			Name:      "nodes_total",
			Help:      "Scenario nodes created, by outcome.",
		}, []string{"outcome"}),
		proposalFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adoptsim",
			Subsystem: "explore",
			Name:      "proposal_failures_total",
			Help:      "Proposer calls that failed, timed out or returned nothing.",
		}),
		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "adoptsim",
			Subsystem: "explore",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent simulating one scenario node.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adoptsim",
			Subsystem: "explore",
			Name:      "evaluation_cache_hits_total",
			Help:      "Evaluations answered from the per-run cache.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "adoptsim",
			Subsystem: "explore",
			Name:      "explorations_running",
			Help:      "Explorations currently being driven.",
		}),
	}

	m.explorations = register(reg, m.explorations)
	m.nodes = register(reg, m.nodes)
	m.proposalFailures = register(reg, m.proposalFailures)
	m.evaluationDuration = register(reg, m.evaluationDuration)
	m.cacheHits = register(reg, m.cacheHits)
	m.running = register(reg, m.running)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) exploration(status string) {
	if m == nil {
		return
	}
	m.explorations.WithLabelValues(status).Inc()
}

func (m *Metrics) node(outcome string) {
	if m == nil {
		return
	}
	m.nodes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) proposalFailed() {
	if m == nil {
		return
	}
	m.proposalFailures.Inc()
}

func (m *Metrics) observeEvaluation(d time.Duration) {
	if m == nil {
		return
	}
	m.evaluationDuration.Observe(d.Seconds())
}

func (m *Metrics) cacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.running.Inc()
}

func (m *Metrics) runFinished() {
	if m == nil {
		return
	}
	m.running.Dec()
}
