// Package orchestration adapts the canonical provider surface to an
// orchestration-based inference service. It handles request translation,
// the three-layer settings merge, synchronous response parsing, SSE chunk
// streaming with tool call accumulation, and error classification.
//
// The adapter embeds no retry policy: classified errors carry a Retryable
// flag and retry execution is a caller concern. The only in-adapter retry
// is the explicit one-shot fallback from the unified to the legacy wire
// envelope, decided by inspecting the failure classification.
package orchestration
