// Package rate provides the Redis-backed sliding-window limiter behind the
// per-action request budgets of security-sensitive authentication workflows.
//
// # Window semantics
//
// Sliding windows over sorted sets: each hit is a ZSET member scored by its
// arrival time. One Lua script prunes members older than the window, counts
// the survivors, and admits or rejects the hit atomically, so concurrent
// callers can never overshoot the budget. Keys combine the action name and
// the client IP.
//
// # What this package must NOT do
//
//   - Decide which actions get which budgets (policies live in Config at the
//     engine root).
//   - Be imported outside the kimlik module.
package rate
