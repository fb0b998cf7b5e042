package provider

import (
	"context"

	"github.com/dirigent-llm/dirigent/pkg/api"
)

// Provider abstracts an inference backend. The interface is
// protocol-agnostic: each adapter handles its own upstream wire format
// internally and exposes only the canonical vocabulary from pkg/api.
//
// Implementations must be safe for concurrent use by multiple goroutines;
// no state is shared across calls.
type Provider interface {
	// Name returns the provider identifier (e.g., "orchestration").
	Name() string

	// Capabilities returns what this provider supports.
	Capabilities() Capabilities

	// Complete performs non-streaming inference.
	Complete(ctx context.Context, req *Request) (*Result, error)

	// Stream performs streaming inference. The returned channel receives
	// canonical StreamEvent values and is closed by the provider after
	// the terminal finish or error event. The consumer never observes a
	// panic or raw upstream failure from channel consumption.
	Stream(ctx context.Context, req *Request) (<-chan api.StreamEvent, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}
