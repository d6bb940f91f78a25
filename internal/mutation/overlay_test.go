package mutation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/value"
)

var aliceKey = model.DocumentKey{Collection: "users", ID: "alice"}

func pendingMutation(id string, seq int64, path string, v value.Value) *Mutation {
	return &Mutation{
		ID:     id,
		Key:    aliceKey,
		Fields: []FieldMutation{{Path: path, Value: v}},
		Seq:    seq,
		State:  StatePending,
	}
}

func TestOverlay_ApplyInSequenceOrder(t *testing.T) {
	o := NewOverlay()

	// Later writes supersede earlier ones on the same field.
	require.NoError(t, o.Record(pendingMutation("m1", 1, "score", value.Integer(1))))
	require.NoError(t, o.Record(pendingMutation("m2", 2, "score", value.Integer(2))))

	base := model.NewDocument(aliceKey, value.Map{"score": value.Integer(0)}, 7)
	got := o.Apply(aliceKey, base)

	assert.Equal(t, value.Integer(2), got.Fields["score"])
	assert.True(t, got.HasLocalMutations)
	assert.Equal(t, int64(7), got.Version)

	// The base document is untouched.
	assert.Equal(t, value.Integer(0), base.Fields["score"])
}

func TestOverlay_ApplyOrderIndependentOfRecordOrder(t *testing.T) {
	o := NewOverlay()

	// Recovery may load mutations out of order; Seq still wins.
	require.NoError(t, o.Record(pendingMutation("m2", 2, "score", value.Integer(2))))
	require.NoError(t, o.Record(pendingMutation("m1", 1, "score", value.Integer(1))))

	got := o.Apply(aliceKey, nil)
	assert.Equal(t, value.Integer(2), got.Fields["score"])
}

func TestOverlay_ApplyCreatesMissingDocument(t *testing.T) {
	o := NewOverlay()
	require.NoError(t, o.Record(pendingMutation("m1", 1, "name", value.String("Alice"))))

	got := o.Apply(aliceKey, nil)
	require.NotNil(t, got)
	assert.Equal(t, value.String("Alice"), got.Fields["name"])
	assert.True(t, got.HasLocalMutations)
}

func TestOverlay_DeleteFieldMutation(t *testing.T) {
	o := NewOverlay()
	require.NoError(t, o.Record(pendingMutation("m1", 1, "stale", nil)))

	base := model.NewDocument(aliceKey, value.Map{"stale": value.Integer(1), "keep": value.Integer(2)}, 1)
	got := o.Apply(aliceKey, base)

	_, ok := model.FieldAt(got.Fields, "stale")
	assert.False(t, ok)
	assert.Equal(t, value.Integer(2), got.Fields["keep"])
}

func TestOverlay_AcknowledgedStillAppliesUntilRetired(t *testing.T) {
	o := NewOverlay()
	require.NoError(t, o.Record(pendingMutation("m1", 1, "score", value.Integer(9))))

	m, err := o.Resolve("m1", StateAcknowledged, 2)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, int64(2), m.CommitVersion)

	// Acknowledged: still overlaid so the view does not flicker, but the
	// pending bit is down.
	got := o.Apply(aliceKey, model.NewDocument(aliceKey, value.Map{"score": value.Integer(0)}, 1))
	assert.Equal(t, value.Integer(9), got.Fields["score"])
	assert.False(t, got.HasLocalMutations)
	assert.False(t, o.HasPending(aliceKey))

	// Confirming server snapshot observed: the mutation retires.
	assert.Equal(t, 1, o.RetireAcknowledged(aliceKey, 2))
	assert.Equal(t, 0, o.Len())
}

func TestOverlay_RetirementWaitsForCommitVersion(t *testing.T) {
	o := NewOverlay()
	require.NoError(t, o.Record(pendingMutation("m1", 1, "score", value.Integer(9))))

	_, err := o.Resolve("m1", StateAcknowledged, 3)
	require.NoError(t, err)

	// A stale snapshot below the commit version must not strip the overlay;
	// the pre-write value would surface otherwise.
	assert.Equal(t, 0, o.RetireAcknowledged(aliceKey, 1))
	got := o.Apply(aliceKey, model.NewDocument(aliceKey, value.Map{"score": value.Integer(0)}, 1))
	assert.Equal(t, value.Integer(9), got.Fields["score"])

	assert.Equal(t, 1, o.RetireAcknowledged(aliceKey, 3))
	assert.Equal(t, 0, o.Len())
}

func TestOverlay_DiscardDropsRecordedMutation(t *testing.T) {
	o := NewOverlay()
	require.NoError(t, o.Record(pendingMutation("m1", 1, "score", value.Integer(9))))

	o.Discard("m1")

	assert.Equal(t, 0, o.Len())
	assert.Empty(t, o.Pending())
	base := model.NewDocument(aliceKey, value.Map{"score": value.Integer(0)}, 1)
	assert.Equal(t, value.Integer(0), o.Apply(aliceKey, base).Fields["score"])

	// unknown ids are a no-op
	o.Discard("never-recorded")
}

func TestOverlay_ResolveIsIdempotent(t *testing.T) {
	o := NewOverlay()
	require.NoError(t, o.Record(pendingMutation("m1", 1, "score", value.Integer(9))))

	first, err := o.Resolve("m1", StateAcknowledged, 2)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Reconnection retries re-deliver acknowledgments; they must be no-ops.
	second, err := o.Resolve("m1", StateAcknowledged, 2)
	require.NoError(t, err)
	assert.Nil(t, second)

	missing, err := o.Resolve("never-recorded", StateAcknowledged, 2)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestOverlay_RejectedRemovedImmediately(t *testing.T) {
	o := NewOverlay()
	require.NoError(t, o.Record(pendingMutation("m1", 1, "score", value.Integer(9))))

	m, err := o.Resolve("m1", StateRejected, 0)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, StateRejected, m.State)

	// Rollback: overlay no longer affects the document.
	base := model.NewDocument(aliceKey, value.Map{"score": value.Integer(0)}, 1)
	got := o.Apply(aliceKey, base)
	assert.Equal(t, value.Integer(0), got.Fields["score"])
	assert.Equal(t, 0, o.Len())
}

func TestOverlay_RetireKeepsPending(t *testing.T) {
	o := NewOverlay()
	require.NoError(t, o.Record(pendingMutation("m1", 1, "a", value.Integer(1))))
	require.NoError(t, o.Record(pendingMutation("m2", 2, "b", value.Integer(2))))

	_, err := o.Resolve("m1", StateAcknowledged, 2)
	require.NoError(t, err)

	assert.Equal(t, 1, o.RetireAcknowledged(aliceKey, 2))
	assert.True(t, o.HasPending(aliceKey))

	got := o.Apply(aliceKey, nil)
	_, hasA := got.Fields["a"]
	assert.False(t, hasA, "retired mutation must not apply")
	assert.Equal(t, value.Integer(2), got.Fields["b"])
}

func TestOverlay_PendingInSequenceOrder(t *testing.T) {
	o := NewOverlay()
	other := &Mutation{
		ID:  "m3",
		Key: model.DocumentKey{Collection: "users", ID: "bob"},
		Fields: []FieldMutation{
			{Path: "x", Value: value.Integer(1)},
		},
		Seq:   3,
		State: StatePending,
	}
	require.NoError(t, o.Record(pendingMutation("m2", 2, "a", value.Integer(1))))
	require.NoError(t, o.Record(other))
	require.NoError(t, o.Record(pendingMutation("m1", 1, "a", value.Integer(1))))

	pending := o.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{pending[0].ID, pending[1].ID, pending[2].ID})
}

func TestOverlay_RecordRejectsDuplicates(t *testing.T) {
	o := NewOverlay()
	require.NoError(t, o.Record(pendingMutation("m1", 1, "a", value.Integer(1))))
	assert.Error(t, o.Record(pendingMutation("m1", 2, "a", value.Integer(2))))
	assert.Error(t, o.Record(&Mutation{Key: aliceKey, Seq: 3, State: StatePending}))
}

func TestOverlay_KeysForCollection(t *testing.T) {
	o := NewOverlay()
	require.NoError(t, o.Record(pendingMutation("m1", 1, "a", value.Integer(1))))
	require.NoError(t, o.Record(&Mutation{
		ID: "m2", Key: model.DocumentKey{Collection: "rooms", ID: "r1"},
		Fields: []FieldMutation{{Path: "x", Value: value.Integer(1)}},
		Seq:    2, State: StatePending,
	}))

	keys := o.KeysForCollection("users")
	require.Len(t, keys, 1)
	assert.Equal(t, aliceKey, keys[0])
}
