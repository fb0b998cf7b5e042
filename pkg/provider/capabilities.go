package provider

import (
	"github.com/dirigent-llm/dirigent/pkg/api"
)

// Capabilities declares what features an adapter supports. Used for early
// request validation before any upstream dispatch.
type Capabilities struct {
	// Streaming indicates whether the adapter supports streaming calls.
	Streaming bool

	// ToolCalling indicates whether the adapter supports function tools.
	ToolCalling bool

	// Vision indicates whether the adapter supports image inputs.
	Vision bool

	// MultipleCompletions indicates whether the adapter can forward a
	// completion count greater than one.
	MultipleCompletions bool
}

// ValidateCapabilities checks whether the given request is compatible with
// the adapter's declared capabilities. Returns a BridgeError identifying
// the first unsupported feature, or nil if the request is compatible.
func ValidateCapabilities(caps Capabilities, req *Request) *api.BridgeError {
	if len(req.Tools) > 0 && !caps.ToolCalling {
		return api.NewValidationError("the configured provider does not support tool calling")
	}

	if !caps.Vision {
		for _, msg := range req.Messages {
			for _, part := range msg.Content {
				if part.Type == api.PartFile {
					return api.NewValidationError("the configured provider does not support file inputs")
				}
			}
		}
	}

	return nil
}
