package observability

import (
	"net/http"
	"time"
)

// InstrumentedTransport wraps an http.RoundTripper to record per-request
// metrics for outbound upstream calls.
//
// It captures:
//   - dirigent_http_requests_total (counter): incremented per wire-level request
//   - dirigent_http_request_duration_seconds (histogram): wire-level latency
//
// The model label is resolved per request from the X-Dirigent-Model header,
// which the wrapping client sets and the transport strips before sending.
type InstrumentedTransport struct {
	// Base is the underlying transport. Nil uses http.DefaultTransport.
	Base http.RoundTripper

	// Provider labels all recorded metrics.
	Provider string
}

// ModelHeader carries the model label from the client to the transport.
// It is internal plumbing and never reaches the wire.
const ModelHeader = "X-Dirigent-Model"

// RoundTrip implements http.RoundTripper.
func (t *InstrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	model := "unknown"
	if v := req.Header.Get(ModelHeader); v != "" {
		model = v
		// RoundTrippers must not mutate the caller's request; strip the
		// internal header on a clone.
		req = req.Clone(req.Context())
		req.Header.Del(ModelHeader)
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	elapsed := time.Since(start)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "transport_error"
	case resp.StatusCode >= 500:
		outcome = "5xx"
	case resp.StatusCode >= 400:
		outcome = "4xx"
	}

	HTTPRequestsTotal.WithLabelValues(t.Provider, model, outcome).Inc()
	HTTPRequestDuration.WithLabelValues(t.Provider, model).Observe(elapsed.Seconds())

	return resp, err
}
