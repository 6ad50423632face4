// Package preflight provides readiness checks for the paths and services the
// pipeline depends on.
//
// The daemon runs RunAll once at startup and refuses to start on failures:
// an unreadable source tree, an unwritable library, or a bad TMDB key would
// otherwise surface as a stream of per-item failures. The CLI status command
// reuses the same checks for display.
package preflight
