// Package notifications delivers pipeline events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Enumerated event
// types cover the pipeline milestones worth a push: an episode archived, an
// item parked for review, an item failed, and a scan cycle that queued new
// files. Per-category config toggles and a dedup window keep watch mode from
// repeating itself.
//
// Workflow code depends only on the Service interface, so tests substitute a
// recording stub.
package notifications
