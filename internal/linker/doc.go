// Package linker materializes archive plans: it hard-links resolved episodes
// into the library layout, writes NFO sidecars, downloads artwork, and
// records the result in the link manifest.
//
// Materialization is idempotent and resumable. Every step checks before it
// acts: directories are created with MkdirAll, an existing manifest entry for
// the same source short-circuits, an existing link with the source's inode
// counts as done, and sidecars are written atomically. A target already
// claimed by a different source is a collision and is never overwritten.
// Hard links cannot cross filesystems; on EXDEV the configured fallback
// policy applies (verified copy, symlink, or fail).
//
// A per-target-path lock serializes the manifest check and filesystem
// mutation so two workers can never race on the same target. Artwork is
// fetched before the lock is taken; network I/O never runs under it.
package linker
