// Package engine coordinates local state, the sync backend, and live query
// views.
//
// ARCHITECTURE:
//
// Single-Writer Core:
// One mutex serializes Subscribe, Write, and transport event application,
// so view state only ever changes under one goroutine at a time. This
// ensures:
// - A total order over local writes and server batches per view
// - Snapshots published to listeners in the order they were produced
// - Simple reasoning about what each listener observed
//
// Event Processing Flow:
//  1. Run consumes transport events (change batches, mutation outcomes,
//     connection state) and hands each to Process
//  2. Change batches persist to the cache, then re-read through the
//     pending-write overlay before reaching views
//  3. The tagged view takes the batch as authoritative server state;
//     sibling views over the same collection fold it in as cache data
//  4. Snapshots fan out through per-listener queues drained by a worker
//     pool, so a slow callback never blocks the core
//
// Local writes apply optimistically: the overlay recomputes the effective
// document before Write returns, and the backend's verdict later resolves
// the returned PendingWrite exactly once.
//
// Ordering of local writes uses the monotonic sequence counter from
// Clock.Next(), never wall-clock timestamps; after a restart the counter
// resumes past the highest persisted sequence.
package engine
