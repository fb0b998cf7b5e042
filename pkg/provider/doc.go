// Package provider defines the caller-facing inference surface of the
// bridge: the canonical request, the result object, and the Provider
// interface adapters implement.
//
// Adapters live in subpackages (currently pkg/provider/orchestration) and
// handle their own upstream protocol internally. Callers build a Request
// from canonical api.Message values and receive either a Result or a
// channel of canonical api.StreamEvent values.
package provider
