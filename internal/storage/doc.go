// Package storage persists destination mappings, monitored subscribers, the
// message log, poll votes and the transport roster.
//
// Drivers:
//   - "memory": process-local, for tests and dry runs
//   - "file": JSON snapshot plus an append-only message journal
//   - "sqlite": modernc.org/sqlite through sqlx
//   - "postgres": pgx stdlib through sqlx
package storage
