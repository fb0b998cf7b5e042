package orchestration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dirigent-llm/dirigent/pkg/api"
	"github.com/dirigent-llm/dirigent/pkg/debug"
	"github.com/dirigent-llm/dirigent/pkg/observability"
	"github.com/dirigent-llm/dirigent/pkg/provider"
)

const completionPath = "/v2/completion"

// TokenProvider supplies bearer tokens for upstream requests. Token
// acquisition mechanics live in pkg/auth; the adapter only asks for a
// usable token per request.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Config holds the adapter configuration.
type Config struct {
	// BaseURL is the orchestration service endpoint (required).
	BaseURL string

	// Tokens supplies bearer tokens. Nil means unauthenticated calls,
	// which only makes sense against a local mock.
	Tokens TokenProvider

	// Timeout bounds non-streaming requests. Streaming requests rely on
	// context cancellation instead. Default: 120s.
	Timeout time.Duration

	// HTTPClient allows injecting a custom client (useful for testing).
	HTTPClient *http.Client

	// Defaults is the model-default settings layer.
	Defaults Settings
}

// Provider adapts the orchestration service to the canonical provider
// surface. Safe for concurrent use; per-call state lives on the stack of
// each call.
type Provider struct {
	cfg        Config
	httpClient *http.Client
}

var _ provider.Provider = (*Provider)(nil)

// New creates an orchestration provider.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, api.NewValidationError("orchestration base URL is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	// Wrap whatever transport we got so wire-level metrics are always
	// recorded and the internal model header never leaves the process.
	if _, ok := httpClient.Transport.(*observability.InstrumentedTransport); !ok {
		wrapped := *httpClient
		wrapped.Transport = &observability.InstrumentedTransport{
			Base:     httpClient.Transport,
			Provider: "orchestration",
		}
		httpClient = &wrapped
	}

	return &Provider{cfg: cfg, httpClient: httpClient}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "orchestration"
}

// Capabilities returns what the orchestration service supports.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Streaming:           true,
		ToolCalling:         true,
		Vision:              true,
		MultipleCompletions: true,
	}
}

// Complete performs non-streaming inference.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	start := time.Now()

	if be := provider.ValidateCapabilities(p.Capabilities(), req); be != nil {
		observability.RecordCall(p.Name(), req.Model, string(be.Kind), time.Since(start))
		return nil, be
	}

	built, err := buildRequest(req, p.cfg.Defaults, false)
	if err != nil {
		classified := withRequestContext(Classify(err), req)
		observability.RecordCall(p.Name(), req.Model, "error", time.Since(start))
		return nil, classified
	}

	httpResp, err := p.dispatch(ctx, built, req.Model)
	if err != nil {
		classified := withRequestContext(Classify(err), req)
		observability.RecordCall(p.Name(), req.Model, string(classified.Kind), time.Since(start))
		observability.RecordError(classified)
		return nil, classified
	}
	defer httpResp.Body.Close()

	var wireResp wireResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wireResp); err != nil {
		observability.RecordCall(p.Name(), req.Model, "error", time.Since(start))
		return nil, api.NewStreamProtocolError("decoding upstream response", err)
	}

	result, err := parseResult(&wireResp, built.warnings)
	if err != nil {
		observability.RecordCall(p.Name(), req.Model, "error", time.Since(start))
		return nil, Classify(err)
	}

	observability.RecordCall(p.Name(), req.Model, "ok", time.Since(start))
	observability.RecordUsage(p.Name(), req.Model, result.Usage)
	return result, nil
}

// Stream performs streaming inference. The returned channel first carries
// stream-start with the build warnings, then the transformed upstream
// events, and is closed after the terminal finish or error event.
func (p *Provider) Stream(ctx context.Context, req *provider.Request) (<-chan api.StreamEvent, error) {
	if be := provider.ValidateCapabilities(p.Capabilities(), req); be != nil {
		return nil, be
	}

	built, err := buildRequest(req, p.cfg.Defaults, true)
	if err != nil {
		return nil, withRequestContext(Classify(err), req)
	}

	httpResp, err := p.dispatch(ctx, built, req.Model)
	if err != nil {
		classified := withRequestContext(Classify(err), req)
		observability.RecordError(classified)
		return nil, classified
	}

	ch := make(chan api.StreamEvent, 16)

	// The stream-start warning list is fixed here; warnings discovered
	// during the stream ride on the finish event instead.
	ch <- api.StreamEvent{Type: api.EventStreamStart, Warnings: built.warnings}

	observability.StreamsActive.Inc()

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		defer observability.StreamsActive.Dec()

		transformer := newStreamTransformer(req.Model, func(ev api.StreamEvent) {
			observability.StreamEventsTotal.WithLabelValues(string(ev.Type)).Inc()
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		})
		parseSSEStream(ctx, httpResp.Body, transformer)
	}()

	return ch, nil
}

// dispatch sends the built request. The unified envelope goes first; when
// the failure classification says the service rejected the envelope shape,
// the legacy envelope is sent once. This is an explicit two-candidate
// decision, not exception-driven control flow.
func (p *Provider) dispatch(ctx context.Context, built *builtRequest, model string) (*http.Response, error) {
	if built.legacyOnly {
		body, err := built.legacy()
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		return p.post(ctx, body, built.stream, model)
	}

	body, err := built.unified()
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	resp, err := p.post(ctx, body, built.stream, model)
	if err == nil {
		return resp, nil
	}

	classified := Classify(err)
	if !shouldRetryLegacy(classified) {
		return nil, classified
	}

	debug.Log("provider", "unified envelope rejected, retrying with legacy shape",
		"status", classified.Status)

	legacyBody, err := built.legacy()
	if err != nil {
		return nil, fmt.Errorf("encoding legacy request: %w", err)
	}
	return p.post(ctx, legacyBody, built.stream, model)
}

// shouldRetryLegacy decides whether a failure indicates the service does
// not understand the unified envelope. Only a validation rejection that
// names the envelope qualifies; anything else propagates unchanged.
func shouldRetryLegacy(classified *api.BridgeError) bool {
	if classified.Kind != api.ErrorKindValidation {
		return false
	}
	lower := strings.ToLower(classified.Message)
	return containsAny(lower, "unknown field", "config", "unrecognized", "unexpected property")
}

// post performs one HTTP POST against the completion endpoint. Streaming
// requests bypass the client timeout; their lifetime is bound to ctx.
func (p *Provider) post(ctx context.Context, body []byte, stream bool, model string) (*http.Response, error) {
	url := p.cfg.BaseURL + completionPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(observability.ModelHeader, model)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	if p.cfg.Tokens != nil {
		token, err := p.cfg.Tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquiring upstream token: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	debug.Trace("provider", "dispatching completion request",
		"url", url, "stream", stream, "bytes", len(body))
	if debug.TraceIsEnabled("provider") {
		debug.Raw("provider", debug.Truncate(string(body), 16384))
	}

	client := p.httpClient
	if stream {
		client = &http.Client{Transport: p.httpClient.Transport}
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, api.NewNetworkError(fmt.Sprintf("upstream connection failed: %s", err), err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, classifyHTTP(httpResp)
	}

	return httpResp, nil
}

// Close releases provider resources.
func (p *Provider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
