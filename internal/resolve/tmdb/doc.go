// Package tmdb provides the minimal TMDB API client used during metadata
// resolution.
//
// It authenticates requests and exposes TV search with an optional
// first-air-year filter, show detail lookups including season summaries, and
// season detail retrieval with per-episode entries. Responses are strongly
// typed so the resolving stage can score them. Non-200 responses surface as
// StatusError values so callers can tell retryable upstream trouble from
// definitive misses, and options let tests supply custom HTTP clients without
// modifying production code.
package tmdb
