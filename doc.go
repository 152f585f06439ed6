// Package kimlik provides an embeddable authentication and session-security
// engine with Argon2id credential hashing, Ed25519-signed JWT access and
// refresh tokens, Redis-backed rate limiting and token blacklisting, and
// email-driven verification and password reset flows.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// kimlik is the public surface. It exposes [Engine], [Builder], [Config], the
// storage contracts ([UserStore], [SessionStore], [ResetTokenStore]), the
// [Notifier] mail contract, and value types (LoginResult, MetricsSnapshot,
// AuditEvent). Volatile coordination (sliding-window rate counters, token
// blacklist indexes) lives under internal/ and is never exported.
//
// Durable records stay behind the store interfaces so callers own their
// schema; a reference SQLite implementation ships in store/sqlite and a
// Resend-backed Notifier in notify. Volatile security state requires a Redis
// client supplied to the Builder.
//
// All Engine methods take a context.Context. Attach the caller's IP with
// [WithClientIP] so rate limiting and audit events can observe it.
package kimlik
