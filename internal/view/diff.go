package view

import (
	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/query"
)

// ChangeType classifies one entry of a result diff.
type ChangeType int

const (
	// Added: the document entered the result sequence.
	Added ChangeType = iota + 1
	// Modified: the document stayed but its contents changed.
	Modified
	// Removed: the document left the result sequence.
	Removed
	// Moved: contents unchanged, position in the sequence changed.
	Moved
	// Metadata: contents and position unchanged, only the document's
	// pending-write state flipped.
	Metadata
)

func (t ChangeType) String() string {
	switch t {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	case Moved:
		return "moved"
	case Metadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// DocChange is one entry of a result diff. OldIndex is -1 for additions,
// NewIndex is -1 for removals.
type DocChange struct {
	Type     ChangeType
	Doc      *model.Document
	OldIndex int
	NewIndex int
}

// Snapshot is what a view hands downstream after applying a batch: the full
// ordered result, the minimal diff against the previous result, and the
// view-level metadata with change markers the dispatcher filters on.
type Snapshot struct {
	Query   query.Descriptor
	Docs    []*model.Document
	Changes []DocChange

	FromCache        bool
	HasPendingWrites bool

	// FromCacheChanged and PendingWritesChanged record whether the
	// corresponding flag differs from the previous snapshot of the same
	// view.
	FromCacheChanged     bool
	PendingWritesChanged bool
}

// HasDataChanges reports whether the diff carries anything beyond
// document-metadata entries: additions, removals, modifications, or moves.
func (s Snapshot) HasDataChanges() bool {
	for _, c := range s.Changes {
		if c.Type != Metadata {
			return true
		}
	}
	return false
}

// HasDocumentMetadataChanges reports whether the diff carries
// document-metadata-only entries.
func (s Snapshot) HasDocumentMetadataChanges() bool {
	for _, c := range s.Changes {
		if c.Type == Metadata {
			return true
		}
	}
	return false
}
