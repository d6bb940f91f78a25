package engine

import (
	"fmt"

	"github.com/PCreations/syncview/internal/mutation"
	"github.com/PCreations/syncview/internal/remote"
	"github.com/PCreations/syncview/internal/value"
)

// PendingWrite is the handle for one queued local write. Done resolves
// exactly once: nil when the backend commits the write, a *WriteError when
// it rejects it.
type PendingWrite struct {
	id   string
	done chan error
}

// ID returns the mutation identifier.
func (w *PendingWrite) ID() string {
	return w.id
}

// Done returns a channel that receives the backend's verdict once.
func (w *PendingWrite) Done() <-chan error {
	return w.done
}

func (w *PendingWrite) fulfill(err error) {
	select {
	case w.done <- err:
	default:
	}
}

// buildCommit encodes a mutation into its transport request.
func buildCommit(m *mutation.Mutation) (remote.MutationRequest, error) {
	fields := make(map[string]remote.RawField, len(m.Fields))
	for _, edit := range m.Fields {
		raw := remote.RawField{Path: edit.Path}
		if edit.Value != nil {
			encoded, err := value.MarshalJSONValue(edit.Value)
			if err != nil {
				return remote.MutationRequest{}, fmt.Errorf("encode field %s: %w", edit.Path, err)
			}
			raw.Value = encoded
		}
		fields[edit.Path] = raw
	}
	return remote.MutationRequest{
		MutationID: m.ID,
		Key:        m.Key,
		Fields:     fields,
	}, nil
}
