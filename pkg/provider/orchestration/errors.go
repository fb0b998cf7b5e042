package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/dirigent-llm/dirigent/pkg/api"
	"github.com/dirigent-llm/dirigent/pkg/provider"
)

// Classify maps an arbitrary failure into the closed, retry-annotated
// error taxonomy. The error chain is unwrapped to its deepest identifiable
// root cause first; a structured upstream error envelope wins over message
// heuristics, which win over the generic fallback.
func Classify(err error) *api.BridgeError {
	if err == nil {
		return nil
	}

	// Already classified errors pass through untouched.
	var be *api.BridgeError
	if errors.As(err, &be) {
		return be
	}

	root := rootCause(err)

	// Structured envelope, possibly embedded in plain text.
	if envelope, ok := extractEnvelope(root.Error()); ok {
		return classifyEnvelope(envelope, root)
	}

	if classified := classifyPattern(root); classified != nil {
		return classified
	}

	return api.NewUnknownError(root.Error(), root)
}

// rootCause walks the "caused by" chain to the deepest wrapped error.
func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// extractEnvelope tries to parse a structured upstream error envelope from
// the message text. Stream failures often embed the original JSON error
// body inside a prose message, so the scan starts at the first brace.
func extractEnvelope(message string) (*wireErrorEnvelope, bool) {
	start := strings.IndexByte(message, '{')
	if start < 0 {
		return nil, false
	}

	// Decode the first JSON value only; stream error messages may append
	// prose after the embedded body.
	var envelope wireErrorEnvelope
	dec := json.NewDecoder(strings.NewReader(message[start:]))
	if err := dec.Decode(&envelope); err != nil {
		return nil, false
	}
	if envelope.Error.Code == 0 && envelope.Error.Message == "" {
		return nil, false
	}
	return &envelope, true
}

// classifyEnvelope maps the envelope's numeric code to an HTTP-style
// status and the matching taxonomy entry, enriched with request-id and
// location diagnostics when available.
func classifyEnvelope(envelope *wireErrorEnvelope, cause error) *api.BridgeError {
	body := envelope.Error
	message := body.Message
	if message == "" {
		message = fmt.Sprintf("upstream error code %d", body.Code)
	}

	var classified *api.BridgeError
	switch body.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		classified = api.NewAuthenticationError(body.Code, message)
	case http.StatusNotFound:
		classified = api.NewNotFoundError(message)
	case http.StatusTooManyRequests:
		classified = api.NewRateLimitError(message)
	default:
		classified = &api.BridgeError{
			Kind:      api.ErrorKindUnknown,
			Status:    body.Code,
			Message:   message,
			Retryable: api.RetryableStatus(body.Code),
		}
	}

	classified.RequestID = body.RequestID
	classified.Location = body.Location
	classified.Cause = cause
	return classified
}

// classifyPattern applies message heuristics to the root cause. Returns
// nil when nothing matches.
func classifyPattern(root error) *api.BridgeError {
	// Transport-level timeouts are retryable regardless of message text.
	var netErr net.Error
	if errors.As(root, &netErr) && netErr.Timeout() {
		return api.NewNetworkError("upstream request timed out", root)
	}
	if errors.Is(root, context.DeadlineExceeded) {
		return api.NewNetworkError("upstream request timed out", root)
	}

	message := root.Error()
	lower := strings.ToLower(message)

	switch {
	case containsAny(lower, "unauthorized", "invalid credentials", "authentication failed",
		"invalid client", "token expired", "jwt"):
		return api.NewAuthenticationError(http.StatusUnauthorized, message)

	case containsAny(lower, "connection refused", "connection reset", "no such host",
		"timeout", "timed out", "unexpected eof", "broken pipe"):
		return api.NewNetworkError(message, root)

	case containsAny(lower, "destination", "service binding"):
		// Destination or binding resolution is a configuration problem;
		// retrying cannot fix it.
		return api.NewValidationError(message)

	case containsAny(lower, "deployment", "could not resolve model", "model not found",
		"no model with name"):
		return api.NewNotFoundError(message)

	case containsAny(lower, "content filter", "filtered by", "prompt filtered",
		"content management policy"):
		return api.NewContentFilterError(message)

	case containsAny(lower, "stream already consumed", "stream consumed twice",
		"malformed sse", "unexpected sse"):
		return api.NewStreamProtocolError(message, root)

	case containsAny(lower, "environment variable", "missing env"):
		return api.NewValidationError(message)
	}

	return nil
}

// classifyHTTP converts a non-2xx HTTP response into a classified error,
// reading a bounded amount of the body for the structured envelope.
func classifyHTTP(resp *http.Response) *api.BridgeError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))

	if envelope, ok := extractEnvelope(string(body)); ok {
		// An envelope without a numeric code cannot drive the taxonomy;
		// classify from the transport status and keep the diagnostics.
		if envelope.Error.Code == 0 {
			classified := classifyStatus(resp.StatusCode, envelope.Error.Message)
			classified.RequestID = envelope.Error.RequestID
			classified.Location = envelope.Error.Location
			return classified
		}
		return classifyEnvelope(envelope, nil)
	}

	message := strings.TrimSpace(string(body))
	if message == "" {
		message = resp.Status
	}
	return classifyStatus(resp.StatusCode, message)
}

// classifyStatus maps an HTTP status to the matching taxonomy entry.
func classifyStatus(status int, message string) *api.BridgeError {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return api.NewAuthenticationError(status, message)
	case http.StatusNotFound:
		return api.NewNotFoundError(message)
	case http.StatusTooManyRequests:
		return api.NewRateLimitError(message)
	case http.StatusBadRequest:
		return api.NewValidationError(message)
	default:
		return &api.BridgeError{
			Kind:      api.ErrorKindUnknown,
			Status:    status,
			Message:   message,
			Retryable: api.RetryableStatus(status),
		}
	}
}

// withRequestContext attaches a summarized, non-sensitive view of the
// offending request to configuration and content-filter failures: message
// count and whether image parts were present, never payload bytes.
func withRequestContext(classified *api.BridgeError, req *provider.Request) *api.BridgeError {
	if classified == nil {
		return nil
	}
	if classified.Kind != api.ErrorKindValidation && classified.Kind != api.ErrorKindContentFilter {
		return classified
	}

	images := false
	for _, msg := range req.Messages {
		for _, part := range msg.Content {
			if part.Type == api.PartFile {
				images = true
			}
		}
	}

	enriched := *classified
	enriched.Message = fmt.Sprintf("%s [messages=%d images=%t tools=%d]",
		classified.Message, len(req.Messages), images, len(req.Tools))
	return &enriched
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
