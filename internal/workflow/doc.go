// Package workflow orchestrates queue processing across the pipeline stages.
//
// The Manager runs a fixed pool of workers. Each worker claims the oldest
// runnable queue item with an atomic status transition and carries it through
// every remaining stage: parse, resolve, link. Claims are store-side
// compare-and-swap updates, so two workers never share an item even when
// several processes poll the same database.
//
// While a stage executes, a heartbeat loop stamps the item so a crashed
// worker's items can be detected and rolled back to the start of their stage.
// Stage errors never stop the pool; they are classified and routed to the
// review or failed buckets, and the worker moves on to the next item.
package workflow
