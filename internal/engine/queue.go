package engine

import (
	"sync"

	"github.com/PCreations/syncview/internal/view"
)

// snapshotQueue is a thread-safe FIFO of snapshots awaiting delivery to one
// registration.
//
// The queue is unbounded so a slow callback cannot block the engine's
// single-writer loop; ordering is preserved because each registration
// drains its own queue serially.
type snapshotQueue struct {
	mu     sync.Mutex
	snaps  []view.Snapshot
	closed bool
}

func newSnapshotQueue() *snapshotQueue {
	return &snapshotQueue{snaps: make([]view.Snapshot, 0, 8)}
}

// Enqueue appends a snapshot. Returns false if the queue is closed.
func (q *snapshotQueue) Enqueue(s view.Snapshot) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.snaps = append(q.snaps, s)
	return true
}

// TryDequeue removes and returns the front snapshot without blocking.
func (q *snapshotQueue) TryDequeue() (view.Snapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.snaps) == 0 {
		return view.Snapshot{}, false
	}
	s := q.snaps[0]
	// nil out the slot so the snapshot's documents can be collected once
	// delivered
	q.snaps[0] = view.Snapshot{}
	if len(q.snaps) == 1 {
		q.snaps = q.snaps[:0]
	} else {
		q.snaps = q.snaps[1:]
	}
	return s, true
}

// Close drops queued snapshots and rejects further enqueues. Called on
// unsubscribe so a removed listener never observes trailing events.
func (q *snapshotQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.snaps = nil
}

func (q *snapshotQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.snaps)
}
