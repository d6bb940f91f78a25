package engine

import (
	"github.com/google/uuid"

	"github.com/PCreations/syncview/internal/view"
)

// SnapshotHandler receives query snapshots. Handlers for one registration
// run serially and in order; handlers for different registrations may run
// concurrently.
type SnapshotHandler func(view.Snapshot)

// Options selects which metadata-only transitions a registration observes.
// Data changes and pending-write transitions are always delivered.
type Options struct {
	// IncludeDocumentMetadataChanges delivers snapshots whose only changes
	// are per-document metadata transitions.
	IncludeDocumentMetadataChanges bool

	// IncludeQueryMetadataChanges delivers snapshots that only flip the
	// query-level fromCache bit.
	IncludeQueryMetadataChanges bool
}

// registration is one listener attached to a view.
type registration struct {
	id      string
	opts    Options
	handler SnapshotHandler
	queue   *snapshotQueue

	// delivered flips after the first snapshot; the initial snapshot is
	// always delivered regardless of Options.
	delivered bool
}

func newRegistration(opts Options, handler SnapshotHandler) *registration {
	return &registration{
		id:      uuid.NewString(),
		opts:    opts,
		handler: handler,
		queue:   newSnapshotQueue(),
	}
}

// wants reports whether the snapshot should reach this registration.
func (r *registration) wants(snap view.Snapshot) bool {
	if !r.delivered {
		return true
	}
	if snap.HasDataChanges() {
		return true
	}
	if snap.PendingWritesChanged {
		return true
	}
	if r.opts.IncludeQueryMetadataChanges && snap.FromCacheChanged {
		return true
	}
	if r.opts.IncludeDocumentMetadataChanges && snap.HasDocumentMetadataChanges() {
		return true
	}
	return false
}
