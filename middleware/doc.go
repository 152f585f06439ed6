// Package middleware exposes net/http adapters for bearer-token
// authorization and per-IP rate limiting built on kimlik.Engine.
//
// # Guards
//
//   - [RequireAuth] — validates the Authorization bearer token, including
//     the revocation check, and injects claims into the request context.
//   - [RateLimit] — enforces the engine's sliding-window budget for one
//     action and emits the X-RateLimit-* response headers.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Token parsing,
// revocation checks and rate accounting all happen inside the engine; the
// middleware only shapes requests and responses.
package middleware
