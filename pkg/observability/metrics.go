// Package observability provides Prometheus metrics for monitoring the
// dirigent adapter.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dirigent-llm/dirigent/pkg/api"
)

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// CallsTotal counts completion calls by provider, model, and outcome.
	// The outcome is "ok" or the error kind that terminated the call.
	CallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirigent_calls_total",
			Help: "Completion calls",
		},
		[]string{"provider", "model", "outcome"},
	)

	// CallLatency records completion call latency in seconds.
	CallLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dirigent_call_latency_seconds",
			Help:    "Completion call latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// TokensTotal counts tokens processed by direction (input/output).
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirigent_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// StreamsActive tracks the number of in-flight streaming calls.
	StreamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirigent_streams_active",
			Help: "Active streaming calls",
		},
	)

	// StreamEventsTotal counts emitted stream events by type.
	StreamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirigent_stream_events_total",
			Help: "Emitted stream events",
		},
		[]string{"type"},
	)

	// ErrorsTotal counts classified errors by kind and retryability.
	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirigent_errors_total",
			Help: "Classified errors",
		},
		[]string{"kind", "retryable"},
	)

	// HTTPRequestsTotal counts raw outbound HTTP requests by provider,
	// model, and outcome. Unlike CallsTotal it counts wire-level attempts,
	// so a legacy-envelope retry shows up as two requests for one call.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirigent_http_requests_total",
			Help: "Outbound HTTP requests",
		},
		[]string{"provider", "model", "outcome"},
	)

	// HTTPRequestDuration records wire-level request latency. Kept apart
	// from CallLatency so a legacy-envelope retry (two requests, one call)
	// does not skew call latency.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dirigent_http_request_duration_seconds",
			Help:    "Outbound HTTP request latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// TokenRefreshTotal counts upstream auth token refreshes by outcome.
	TokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirigent_token_refresh_total",
			Help: "Auth token refreshes",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		CallsTotal,
		CallLatency,
		TokensTotal,
		StreamsActive,
		StreamEventsTotal,
		ErrorsTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TokenRefreshTotal,
	)
}

// RecordCall records one completed (or failed) completion call.
func RecordCall(provider, model, outcome string, elapsed time.Duration) {
	CallsTotal.WithLabelValues(provider, model, outcome).Inc()
	CallLatency.WithLabelValues(provider, model).Observe(elapsed.Seconds())
}

// RecordUsage records token usage for a completed call. Nil counters are
// skipped; the upstream does not always report usage.
func RecordUsage(provider, model string, usage api.Usage) {
	if usage.InputTokens != nil {
		TokensTotal.WithLabelValues(provider, model, "input").Add(float64(*usage.InputTokens))
	}
	if usage.OutputTokens != nil {
		TokensTotal.WithLabelValues(provider, model, "output").Add(float64(*usage.OutputTokens))
	}
}

// RecordError records one classified error.
func RecordError(be *api.BridgeError) {
	retryable := "false"
	if be.Retryable {
		retryable = "true"
	}
	ErrorsTotal.WithLabelValues(string(be.Kind), retryable).Inc()
}
