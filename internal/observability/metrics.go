package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "citeguard"

// Metrics holds the Prometheus instruments for the pipeline.
type Metrics struct {
	QueriesTotal      *prometheus.CounterVec
	RefusalsTotal     *prometheus.CounterVec
	QueryDuration     prometheus.Histogram
	TokensTotal       *prometheus.CounterVec
	CostUSDTotal      *prometheus.CounterVec
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	GroundingScore    prometheus.Histogram
	HallucinationRate prometheus.Histogram
}

// NewMetrics registers the pipeline instruments with reg. Pass
// prometheus.DefaultRegisterer in production, a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries processed, by outcome (answered, refused, cached, error).",
		}, []string{"outcome"}),
		RefusalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refusals_total",
			Help:      "Refused queries, by reason (injection, grounding).",
		}, []string{"reason"}),
		QueryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end query latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		TokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens consumed, by model and direction.",
		}, []string{"model", "direction"}),
		CostUSDTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_usd_total",
			Help:      "Estimated provider spend in USD, by model.",
		}, []string{"model"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Response cache hits.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Response cache misses.",
		}),
		GroundingScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grounding_score",
			Help:      "Aggregated grounding score per query.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		HallucinationRate: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hallucination_rate",
			Help:      "Fraction of unsupported sentences per answer.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
}

// RecordUsage updates token and cost counters for one provider call.
func (m *Metrics) RecordUsage(model, _ string, inputTokens, outputTokens int, costUSD float64) {
	m.TokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	m.TokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
	m.CostUSDTotal.WithLabelValues(model).Add(costUSD)
}
