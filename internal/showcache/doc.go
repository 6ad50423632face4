// Package showcache persists resolved TMDB show lookups across runs.
//
// Entries are keyed by TMDB show ID with a secondary index from normalized
// search queries, so repeated files from the same series skip both the search
// and the detail fetch. Entries expire after a configurable TTL and a prune
// pass drops expired records on the workflow's cache maintenance interval.
// The cache is an injected collaborator of the resolving stage rather than
// process-global state, which keeps tests hermetic.
//
// The backing store is a single JSON file written atomically. An empty path
// disables the cache: lookups miss and stores become no-ops.
package showcache
