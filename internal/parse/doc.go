// Package parse turns release filenames into structured episode candidates.
//
// Parsing runs a fixed sequence of named strategies and the first pattern
// that matches wins, stamping the candidate with that strategy's confidence
// grade. Parsing is total: names no strategy understands still produce a
// candidate, graded unparseable, whose title falls back to a cleaned form of
// the filename so queue listings stay recognizable.
package parse
