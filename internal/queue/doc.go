// Package queue persists pipeline items and the link manifest in SQLite and
// exposes helpers for driving their lifecycle.
//
// The Store manages database connections, schema migrations, stats queries,
// heartbeat tracking, stuck-item recovery, and status transitions. Queue
// items capture parse candidates, resolved metadata, progress, and review
// state so stages can coordinate without additional shared structures. Link
// records persist indefinitely; they are the organizer's memory of work
// already done and back the idempotence and collision checks.
//
// Treat this package as the single source of truth for queue semantics; when
// you add statuses or columns, add a numbered migration and update scanItem.
package queue
