// Package mapping loads user-authored resolution rules.
//
// Rules pin a filename or a parsed title to a TMDB show, with optional season
// and episode corrections, and are consulted before the cache and any network
// search. They exist for the files automated resolution gets wrong: titles
// TMDB knows under a different name, sequels indexed as separate shows, and
// releases using absolute episode numbering. The backing JSON file is
// reloaded when its modification time changes, so hand edits take effect
// without a restart, and the review CLI appends rules through the same
// catalog.
package mapping
