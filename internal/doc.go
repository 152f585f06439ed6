// Package internal contains helper utilities that are intentionally private
// to kimlik, currently secure random token generation and digest helpers.
//
// # Sub-packages
//
//   - blacklist — Redis-backed revoked-token index with per-user sweeps
//   - rate — Redis-backed sliding-window rate limit primitives
//
// # What this package must NOT do
//
//   - Export types that appear in the public kimlik API.
//   - Be imported by any package outside the kimlik module.
package internal
