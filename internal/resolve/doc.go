// Package resolve implements the resolving stage: it turns a parsed filename
// candidate into the canonical show and episode record stored on the queue
// item for the linking stage.
//
// Resolution consults, in order, the operator mapping catalog, the on-disk
// show cache, and the TMDB API. Search results are scored by title
// similarity; close calls are disambiguated by whether each show actually has
// the parsed season and by how near its air dates sit to the file's
// modification time. When no signal separates the contenders the item is
// routed to manual review rather than guessed at. Transient API failures are
// retried with exponential backoff before the item is marked failed.
package resolve
