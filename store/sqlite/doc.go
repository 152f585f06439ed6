// Package sqlite is the reference implementation of the kimlik storage
// contracts on database/sql with the pure-Go modernc.org/sqlite driver.
// It owns its schema: Open applies the embedded DDL, which is idempotent,
// so the package is self-contained for single-node deployments and tests.
//
// Every mutation is a single statement, so the atomicity the engine relies
// on (failure-counter increments, token consumption) comes from SQLite
// itself rather than from transactions spanning round-trips.
package sqlite
