// Package store is the SQLite-backed audit log of guard evaluations.
//
// Every evaluated query, accepted or rejected, is appended as one row
// keyed by a random UUID. Readers order by the insertion sequence, never
// by wall-clock time.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// Accepted rows carry the canonical JSON resolution report produced by
// the orchestrator; rejected rows carry the error code and message.
package store
