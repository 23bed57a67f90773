package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful operations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed operations (strategy, dependency or storage issues).
	OutcomeError = "error"
	// OutcomeTimeout labels strategies cut off by their deadline.
	OutcomeTimeout = "timeout"
)

var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_correlator",
			Name:      "decisions_total",
			Help:      "Total number of correlation decisions, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	decisionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_correlator",
			Name:      "decision_seconds",
			Help:      "Correlation decision latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	strategyRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_correlator",
			Name:      "strategy_runs_total",
			Help:      "Strategy executions partitioned by engine, strategy and outcome.",
		},
		[]string{"engine", "strategy", "outcome"},
	)

	strategyDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mirador_correlator",
			Name:      "strategy_seconds",
			Help:      "Strategy execution latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"engine", "strategy"},
	)

	inferredEdgesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_correlator",
			Name:      "inferred_edges_total",
			Help:      "Dependency edges proposed by each inference strategy.",
		},
		[]string{"strategy"},
	)

	discoveryRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_correlator",
			Name:      "discovery_runs_total",
			Help:      "Discovery runs partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	discoveryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_correlator",
			Name:      "discovery_seconds",
			Help:      "Discovery run latency in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	graphWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_correlator",
			Name:      "graph_writes_total",
			Help:      "Rows upserted into the graph store, partitioned by kind.",
		},
		[]string{"kind"},
	)
)

// Register attaches mirador-correlator collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		decisionsTotal,
		decisionDurationSeconds,
		strategyRunsTotal,
		strategyDurationSeconds,
		inferredEdgesTotal,
		discoveryRunsTotal,
		discoveryDurationSeconds,
		graphWritesTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveDecision records a correlation decision duration and outcome label.
func ObserveDecision(duration time.Duration, outcome string) {
	decisionsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	decisionDurationSeconds.Observe(duration.Seconds())
}

// ObserveStrategy records a single strategy execution.
func ObserveStrategy(engine, strategy, outcome string, duration time.Duration) {
	switch outcome {
	case OutcomeSuccess, OutcomeTimeout:
	default:
		outcome = OutcomeError
	}
	strategyRunsTotal.WithLabelValues(engine, strategy, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	strategyDurationSeconds.WithLabelValues(engine, strategy).Observe(duration.Seconds())
}

// AddInferredEdges counts edges proposed by an inference strategy.
func AddInferredEdges(strategy string, count int) {
	if count <= 0 {
		return
	}
	inferredEdgesTotal.WithLabelValues(strategy).Add(float64(count))
}

// ObserveDiscovery records a discovery run duration and outcome label.
func ObserveDiscovery(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	discoveryRunsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	discoveryDurationSeconds.Observe(duration.Seconds())
}

// AddGraphWrites counts rows upserted into the graph store.
func AddGraphWrites(kind string, count int) {
	if count <= 0 {
		return
	}
	graphWritesTotal.WithLabelValues(kind).Add(float64(count))
}
