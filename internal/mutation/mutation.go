package mutation

import (
	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/value"
)

// State tracks a local write's acknowledgment lifecycle.
type State int

const (
	// StatePending means the backend has not answered yet.
	StatePending State = iota + 1
	// StateAcknowledged means the backend accepted the write. The mutation
	// keeps overlaying until the confirming server snapshot is observed, so
	// the local view never flickers back to the pre-write value.
	StateAcknowledged
	// StateRejected means the backend declined the write.
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAcknowledged:
		return "acknowledged"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// FieldMutation sets or deletes one dotted field path.
// A nil Value deletes the path.
type FieldMutation struct {
	Path  string
	Value value.Value
}

// Mutation is one outstanding local write against a single document.
// Seq is the local sequence number; mutations for a document apply in Seq
// order, oldest first, so later writes supersede earlier ones per field.
type Mutation struct {
	ID     string
	Key    model.DocumentKey
	Fields []FieldMutation
	Seq    int64
	State  State

	// CommitVersion is the document version the backend assigned when it
	// committed this mutation. Zero until acknowledged. Retirement compares
	// it against observed snapshot versions, so a stale batch that
	// re-delivers pre-commit state cannot strip the overlay early.
	CommitVersion int64
}

// applyTo overlays the mutation onto a field map in place.
func (m *Mutation) applyTo(fields value.Map) {
	for _, fm := range m.Fields {
		if fm.Value == nil {
			model.DeleteFieldAt(fields, fm.Path)
		} else {
			model.SetFieldAt(fields, fm.Path, value.Clone(fm.Value))
		}
	}
}
