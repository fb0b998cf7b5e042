// Package auth acquires bearer tokens for upstream calls.
//
// Two token sources are provided: a static token for local development
// and mocks, and an OAuth2 client-credentials source that refreshes
// tokens before they expire. Expiry comes from the token endpoint's
// expires_in when present, otherwise from the JWT exp claim.
package auth
