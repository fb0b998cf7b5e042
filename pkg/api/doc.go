// Package api defines the canonical protocol vocabulary for the dirigent
// bridge.
//
// This package provides the provider-agnostic data types that appear on
// both sides of the orchestration adapter: role-tagged messages with typed
// content parts, tool definitions, the canonical stream event vocabulary,
// finish reasons, token usage, advisory warnings, and the classified error
// taxonomy.
//
// The package has zero external dependencies (Go standard library only) and
// performs no I/O. Upstream wire types live with the adapter that speaks
// them; nothing here depends on any particular inference service.
//
// Core types:
//   - [Message]: role-tagged unit of conversation with [ContentPart] content
//   - [StreamEvent]: one canonical event emitted while consuming a stream
//   - [FinishReason]: canonical stop classification plus the raw upstream value
//   - [Warning]: non-fatal advisory diagnostic attached to a result
//   - [BridgeError]: classified, retry-annotated failure
package api
