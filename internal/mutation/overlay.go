package mutation

import (
	"fmt"
	"sort"

	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/value"
)

// Overlay tracks outstanding local writes and projects their effect onto
// cached documents, so the local view reflects a write in the same pass that
// records it.
//
// Overlay is not safe for concurrent use; the engine serializes access.
type Overlay struct {
	byKey map[model.DocumentKey][]*Mutation // in Seq order
	byID  map[string]*Mutation
}

// NewOverlay creates an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{
		byKey: make(map[model.DocumentKey][]*Mutation),
		byID:  make(map[string]*Mutation),
	}
}

// Record registers a mutation. Mutations must arrive in Seq order per
// document; Record keeps the per-key list sorted as insurance against
// recovery loading in a different order.
func (o *Overlay) Record(m *Mutation) error {
	if m.ID == "" {
		return fmt.Errorf("mutation has no id")
	}
	if _, exists := o.byID[m.ID]; exists {
		return fmt.Errorf("duplicate mutation id %s", m.ID)
	}
	o.byID[m.ID] = m
	list := append(o.byKey[m.Key], m)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
	o.byKey[m.Key] = list
	return nil
}

// Resolve marks a mutation acknowledged or rejected. version is the
// document version the backend committed at; it is recorded on
// acknowledgment and ignored for rejections.
// Resolution is idempotent: resolving an already-resolved or already-retired
// mutation is a no-op returning nil, which is what makes reconnection
// retries safe.
//
// Rejected mutations are removed immediately; the caller recomputes the
// affected document to produce the corrective diff.
func (o *Overlay) Resolve(id string, outcome State, version int64) (*Mutation, error) {
	if outcome != StateAcknowledged && outcome != StateRejected {
		return nil, fmt.Errorf("invalid resolution state %v", outcome)
	}
	m, ok := o.byID[id]
	if !ok {
		return nil, nil
	}
	if m.State != StatePending {
		return nil, nil
	}
	m.State = outcome
	if outcome == StateAcknowledged {
		m.CommitVersion = version
	}
	if outcome == StateRejected {
		o.remove(m)
	}
	return m, nil
}

// Discard drops a recorded mutation that never reached the backend. Used
// when persisting the mutation fails after recording: the write errors out
// to the caller and must leave no local trace.
func (o *Overlay) Discard(id string) {
	if m, ok := o.byID[id]; ok {
		o.remove(m)
	}
}

// RetireAcknowledged drops acknowledged mutations for a document whose
// commit the observed server snapshot covers: the mutation's commit version
// is at or below observedVersion. Later-committed mutations stay overlaid,
// so a stale batch cannot surface the pre-write value. Pending mutations
// always stay. Returns the number retired.
func (o *Overlay) RetireAcknowledged(key model.DocumentKey, observedVersion int64) int {
	retired := 0
	kept := o.byKey[key][:0]
	for _, m := range o.byKey[key] {
		if m.State == StateAcknowledged && m.CommitVersion <= observedVersion {
			delete(o.byID, m.ID)
			retired++
		} else {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		delete(o.byKey, key)
	} else {
		o.byKey[key] = kept
	}
	return retired
}

// HasPending reports whether the document has at least one unacknowledged
// mutation. This is the per-document hasPendingWrites bit.
func (o *Overlay) HasPending(key model.DocumentKey) bool {
	for _, m := range o.byKey[key] {
		if m.State == StatePending {
			return true
		}
	}
	return false
}

// Apply projects the document's outstanding mutations onto base, oldest
// first, and returns the effective document. base may be nil (a local write
// to a document not in the cache creates it). Returns base unchanged when
// the document has no overlay.
func (o *Overlay) Apply(key model.DocumentKey, base *model.Document) *model.Document {
	mutations := o.byKey[key]
	if len(mutations) == 0 {
		if base != nil && base.HasLocalMutations {
			clean := *base
			clean.HasLocalMutations = false
			return &clean
		}
		return base
	}

	var fields value.Map
	var version int64
	if base != nil {
		fields = value.Clone(base.Fields).(value.Map)
		version = base.Version
	} else {
		fields = value.Map{}
	}

	for _, m := range mutations {
		m.applyTo(fields)
	}

	effective := model.NewDocument(key, fields, version)
	effective.HasLocalMutations = o.HasPending(key)
	return effective
}

// Pending returns every pending mutation across all documents in Seq order.
// Used to replay the queue to the backend after reconnection.
func (o *Overlay) Pending() []*Mutation {
	var out []*Mutation
	for _, m := range o.byID {
		if m.State == StatePending {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// KeysForCollection returns the keys in the collection that currently have
// overlay state. The multiplexer re-tests these against views when building
// a local result.
func (o *Overlay) KeysForCollection(collection string) []model.DocumentKey {
	var out []model.DocumentKey
	for key := range o.byKey {
		if key.Collection == collection {
			out = append(out, key)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}

// Len returns the number of tracked mutations.
func (o *Overlay) Len() int {
	return len(o.byID)
}

func (o *Overlay) remove(m *Mutation) {
	delete(o.byID, m.ID)
	kept := o.byKey[m.Key][:0]
	for _, existing := range o.byKey[m.Key] {
		if existing.ID != m.ID {
			kept = append(kept, existing)
		}
	}
	if len(kept) == 0 {
		delete(o.byKey, m.Key)
	} else {
		o.byKey[m.Key] = kept
	}
}
