package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Request metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensusnet_requests_total",
			Help: "Total number of verification requests",
		},
		[]string{"mode", "outcome"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consensusnet_request_duration_seconds",
			Help:    "Verification request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// Bus metrics
	BusPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensusnet_bus_published_total",
			Help: "Total number of messages published on the bus",
		},
		[]string{"kind"},
	)

	BusDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensusnet_bus_delivered_total",
			Help: "Total number of messages delivered to subscribers",
		},
		[]string{"kind"},
	)

	BusExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "consensusnet_bus_expired_total",
			Help: "Total number of messages dropped because their TTL expired",
		},
	)

	BusSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "consensusnet_bus_skipped_total",
			Help: "Total number of deliveries skipped due to closed subscribers",
		},
	)

	// Model metrics
	ModelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensusnet_model_calls_total",
			Help: "Total number of model backend calls",
		},
		[]string{"tier", "status"},
	)

	ModelCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consensusnet_model_call_duration_seconds",
			Help:    "Model backend call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tier"},
	)

	// Evidence metrics
	EvidenceQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensusnet_evidence_queries_total",
			Help: "Total number of evidence source queries",
		},
		[]string{"source", "status"},
	)

	// Debate metrics
	DebatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensusnet_debates_total",
			Help: "Total number of adversarial debates run",
		},
		[]string{"outcome"},
	)

	DebateRounds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "consensusnet_debate_rounds",
			Help:    "Number of rounds per debate",
			Buckets: []float64{1, 2, 3},
		},
	)

	// Registry metrics
	RegisteredAgents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "consensusnet_registered_agents",
			Help: "Number of currently registered agents",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers all collectors with the default registry.
// Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			RequestDuration,
			BusPublishedTotal,
			BusDeliveredTotal,
			BusExpiredTotal,
			BusSkippedTotal,
			ModelCallsTotal,
			ModelCallDuration,
			EvidenceQueriesTotal,
			DebatesTotal,
			DebateRounds,
			RegisteredAgents,
		)
	})
}
