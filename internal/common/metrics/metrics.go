// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuestionsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_questions_routed_total",
			Help: "Total number of questions routed per agent",
		},
		[]string{"agent", "category"},
	)

	QuestionsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_questions_failed_total",
			Help: "Total number of questions that ended in the apology path",
		},
		[]string{"error_code"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_cache_lookups_total",
			Help: "Response cache lookups by outcome",
		},
		[]string{"outcome"}, // hit, miss, expired
	)

	ReorientationOverrides = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_reorientation_overrides_total",
			Help: "Routing overrides applied by the reorientation pass",
		},
		[]string{"from_agent", "to_agent"},
	)

	LLMRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "router_llm_retries_total",
			Help: "Model gateway retry attempts",
		},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "router_dispatch_duration_seconds",
			Help: "Duration of agent dispatch in seconds",
		},
		[]string{"agent"},
	)
)
