// Package daemon runs the watch-mode runtime: it owns the workflow manager
// and filesystem watcher lifecycles, enforces single-instance execution
// through a file lock, and runs the preflight checks before accepting work.
//
// Only one daemon may process a given data directory at a time. The lock
// lives next to the queue database, so pointing two daemons at different
// data directories remains valid.
package daemon
