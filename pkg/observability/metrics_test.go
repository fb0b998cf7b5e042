package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/dirigent-llm/dirigent/pkg/api"
)

// TestMetricsRegistered verifies that all metrics are registered in the
// default registry without panicking.
func TestMetricsRegistered(t *testing.T) {
	// Gather all metrics from the default registry. If registration failed
	// in init(), this test would never run (MustRegister panics), but we
	// verify gathering works cleanly.
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}

	expected := map[string]bool{
		"dirigent_calls_total":                   false,
		"dirigent_call_latency_seconds":          false,
		"dirigent_tokens_total":                  false,
		"dirigent_streams_active":                false,
		"dirigent_stream_events_total":           false,
		"dirigent_errors_total":                  false,
		"dirigent_http_requests_total":           false,
		"dirigent_http_request_duration_seconds": false,
		"dirigent_token_refresh_total":           false,
	}

	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}

	// Counters and histograms only appear after first observation, so seed
	// each one. The gauge (streams_active) always appears.
	CallsTotal.WithLabelValues("orchestration", "test", "ok").Inc()
	CallLatency.WithLabelValues("orchestration", "test").Observe(0.1)
	TokensTotal.WithLabelValues("orchestration", "test", "input").Add(10)
	StreamEventsTotal.WithLabelValues("text-delta").Inc()
	ErrorsTotal.WithLabelValues("network", "true").Inc()
	HTTPRequestsTotal.WithLabelValues("orchestration", "test", "ok").Inc()
	HTTPRequestDuration.WithLabelValues("orchestration", "test").Observe(0.1)
	TokenRefreshTotal.WithLabelValues("ok").Inc()

	families, err = prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error after seeding: %v", err)
	}

	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}

	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in default registry", name)
		}
	}
}

// TestRecordCall verifies that RecordCall increments the call counter and
// records one latency observation.
func TestRecordCall(t *testing.T) {
	beforeCount := counterValue(t, CallsTotal, "orchestration", "phi-4", "ok")
	beforeHist := histogramCount(t, CallLatency, "orchestration", "phi-4")

	RecordCall("orchestration", "phi-4", "ok", 25*time.Millisecond)

	afterCount := counterValue(t, CallsTotal, "orchestration", "phi-4", "ok")
	afterHist := histogramCount(t, CallLatency, "orchestration", "phi-4")

	if afterCount-beforeCount != 1 {
		t.Errorf("expected call count to increase by 1, got delta=%f", afterCount-beforeCount)
	}
	if afterHist-beforeHist != 1 {
		t.Errorf("expected latency sample count to increase by 1, got delta=%d", afterHist-beforeHist)
	}
}

// TestRecordUsage verifies token counting, including nil counters from an
// upstream that reported no usage.
func TestRecordUsage(t *testing.T) {
	in, out := 12, 34
	beforeIn := counterValue(t, TokensTotal, "orchestration", "phi-4", "input")
	beforeOut := counterValue(t, TokensTotal, "orchestration", "phi-4", "output")

	RecordUsage("orchestration", "phi-4", api.Usage{InputTokens: &in, OutputTokens: &out})

	if d := counterValue(t, TokensTotal, "orchestration", "phi-4", "input") - beforeIn; d != 12 {
		t.Errorf("input tokens delta = %f, want 12", d)
	}
	if d := counterValue(t, TokensTotal, "orchestration", "phi-4", "output") - beforeOut; d != 34 {
		t.Errorf("output tokens delta = %f, want 34", d)
	}

	// Nil counters must not panic or record anything.
	afterIn := counterValue(t, TokensTotal, "orchestration", "phi-4", "input")
	RecordUsage("orchestration", "phi-4", api.Usage{})
	if got := counterValue(t, TokensTotal, "orchestration", "phi-4", "input"); got != afterIn {
		t.Errorf("nil usage changed input counter: %f -> %f", afterIn, got)
	}
}

// TestRecordError verifies that errors are labeled by kind and retryability.
func TestRecordError(t *testing.T) {
	before := counterValue(t, ErrorsTotal, "rate_limited", "true")

	RecordError(api.NewRateLimitError("slow down"))

	after := counterValue(t, ErrorsTotal, "rate_limited", "true")
	if after-before != 1 {
		t.Errorf("expected error count to increase by 1, got delta=%f", after-before)
	}
}

// TestInstrumentedTransport verifies that the transport records requests,
// resolves the model label, and strips the internal header before sending.
func TestInstrumentedTransport(t *testing.T) {
	var seenModelHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenModelHeader = r.Header.Get(ModelHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	before := counterValue(t, HTTPRequestsTotal, "orchestration", "phi-4", "ok")

	client := &http.Client{Transport: &InstrumentedTransport{Provider: "orchestration"}}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set(ModelHeader, "phi-4")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if seenModelHeader != "" {
		t.Errorf("model header leaked to the wire: %q", seenModelHeader)
	}
	if got := req.Header.Get(ModelHeader); got != "phi-4" {
		t.Errorf("caller's request was mutated: model header = %q", got)
	}

	after := counterValue(t, HTTPRequestsTotal, "orchestration", "phi-4", "ok")
	if after-before != 1 {
		t.Errorf("expected request count to increase by 1, got delta=%f", after-before)
	}
}

// TestInstrumentedTransportLatencySeparation verifies the transport records
// wire-level latency only; call latency belongs to RecordCall, so one call
// must yield exactly one sample in each histogram.
func TestInstrumentedTransportLatencySeparation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	beforeWire := histogramCount(t, HTTPRequestDuration, "orchestration", "phi-4")
	beforeCall := histogramCount(t, CallLatency, "orchestration", "phi-4")

	client := &http.Client{Transport: &InstrumentedTransport{Provider: "orchestration"}}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set(ModelHeader, "phi-4")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if d := histogramCount(t, HTTPRequestDuration, "orchestration", "phi-4") - beforeWire; d != 1 {
		t.Errorf("wire latency samples delta = %d, want 1", d)
	}
	if d := histogramCount(t, CallLatency, "orchestration", "phi-4") - beforeCall; d != 0 {
		t.Errorf("call latency samples delta = %d, want 0", d)
	}
}

// TestInstrumentedTransportStatusClasses verifies outcome labeling for
// upstream error statuses.
func TestInstrumentedTransportStatusClasses(t *testing.T) {
	status := http.StatusInternalServerError
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &InstrumentedTransport{Provider: "orchestration"}}

	before5xx := counterValue(t, HTTPRequestsTotal, "orchestration", "unknown", "5xx")
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if d := counterValue(t, HTTPRequestsTotal, "orchestration", "unknown", "5xx") - before5xx; d != 1 {
		t.Errorf("5xx delta = %f, want 1", d)
	}

	status = http.StatusTooManyRequests
	before4xx := counterValue(t, HTTPRequestsTotal, "orchestration", "unknown", "4xx")
	resp, err = client.Get(srv.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if d := counterValue(t, HTTPRequestsTotal, "orchestration", "unknown", "4xx") - before4xx; d != 1 {
		t.Errorf("4xx delta = %f, want 1", d)
	}
}

// counterValue reads the current value of a CounterVec for the given labels.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting counter metric: %v", err)
	}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

// histogramCount reads the observation count from a HistogramVec.
func histogramCount(t *testing.T, hv *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	obs, err := hv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting histogram metric: %v", err)
	}
	if err := obs.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing histogram metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}
