package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	planRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cycleroute_plan_requests_total",
		Help: "Plan requests by terminal outcome",
	}, []string{"outcome"})

	planDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cycleroute_plan_duration_seconds",
		Help:    "Wall time from request receipt to the terminal event",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cycleroute_plan_stage_duration_seconds",
		Help:    "Duration of individual planning stages",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"stage"})

	degradedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cycleroute_plan_degraded_total",
		Help: "Plans completed with a degraded enrichment source",
	}, []string{"source"})

	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cycleroute_upstream_requests_total",
		Help: "Calls to external providers by result",
	}, []string{"upstream", "result"})

	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cycleroute_cache_lookups_total",
		Help: "Upstream cache lookups by result",
	}, []string{"cache", "result"})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cycleroute_llm_tokens_total",
		Help: "Estimated LLM tokens consumed by narration",
	}, []string{"kind"})

	rateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cycleroute_http_rate_limited_total",
		Help: "Requests rejected by the per-client limiter",
	}, []string{"route"})

	sinkFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cycleroute_plan_sink_failures_total",
		Help: "Finished plans a sink failed to record",
	}, []string{"sink"})
)

// ObservePlan records a finished plan request.
func ObservePlan(outcome string, elapsed time.Duration) {
	planRequestsTotal.WithLabelValues(outcome).Inc()
	planDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveStage records how long one pipeline stage took.
func ObserveStage(stage string, elapsed time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RecordDegraded counts a plan that fell back for the given source.
func RecordDegraded(source string) {
	degradedTotal.WithLabelValues(source).Inc()
}

// RecordUpstream counts an upstream call outcome.
func RecordUpstream(upstream string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	upstreamRequestsTotal.WithLabelValues(upstream, result).Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// RecordTokenUsage adds narration usage to the token counters.
func RecordTokenUsage(u TokenUsage) {
	if u.IsZero() {
		return
	}
	tokensTotal.WithLabelValues("prompt").Add(float64(u.PromptTokens))
	tokensTotal.WithLabelValues("completion").Add(float64(u.CompletionTokens))
}

// RecordSinkFailure counts a plan a sink could not record.
func RecordSinkFailure(sink string) {
	sinkFailuresTotal.WithLabelValues(sink).Inc()
}

// RecordRateLimited counts a request rejected on the given route pattern.
func RecordRateLimited(route string) {
	rateLimitedTotal.WithLabelValues(route).Inc()
}
