package local

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/mutation"
	"github.com/PCreations/syncview/internal/value"
)

var (
	_ Persistence = (*SQLiteStore)(nil)
	_ Persistence = (*MemoryStore)(nil)
)

// each Persistence implementation runs the same behavioral suite
func forEachStore(t *testing.T, fn func(t *testing.T, store Persistence)) {
	t.Run("sqlite", func(t *testing.T) {
		store, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
		require.NoError(t, err)
		defer store.Close()
		fn(t, store)
	})
	t.Run("memory", func(t *testing.T) {
		store := NewMemoryStore()
		defer store.Close()
		fn(t, store)
	})
}

func TestStore_DocumentRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Persistence) {
		ctx := context.Background()
		doc := &model.Document{
			Key:     model.DocumentKey{Collection: "rooms", ID: "a"},
			Version: 3,
			Fields: value.Map{
				"score": value.Double(math.NaN()),
				"count": value.Integer(1 << 60),
				"tags":  value.Array{value.String("x")},
			},
		}
		require.NoError(t, store.SetDocument(ctx, doc))

		got, err := store.GetDocument(ctx, doc.Key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(3), got.Version)
		assert.True(t, value.IsNaN(got.Fields["score"]))
		assert.Equal(t, value.Integer(1<<60), got.Fields["count"])
	})
}

func TestStore_GetMissingReturnsNil(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Persistence) {
		got, err := store.GetDocument(context.Background(),
			model.DocumentKey{Collection: "rooms", ID: "nope"})
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestStore_StaleVersionIgnored(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Persistence) {
		ctx := context.Background()
		key := model.DocumentKey{Collection: "rooms", ID: "a"}

		require.NoError(t, store.SetDocument(ctx, &model.Document{
			Key: key, Version: 5, Fields: value.Map{"x": value.Integer(5)},
		}))
		require.NoError(t, store.SetDocument(ctx, &model.Document{
			Key: key, Version: 2, Fields: value.Map{"x": value.Integer(2)},
		}))

		got, err := store.GetDocument(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(5), got.Version)
		assert.Equal(t, value.Integer(5), got.Fields["x"])
	})
}

func TestStore_RemoveDocument(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Persistence) {
		ctx := context.Background()
		key := model.DocumentKey{Collection: "rooms", ID: "a"}
		require.NoError(t, store.SetDocument(ctx, &model.Document{
			Key: key, Version: 1, Fields: value.Map{},
		}))
		require.NoError(t, store.RemoveDocument(ctx, key, 2))

		got, err := store.GetDocument(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestStore_StaleRemovalIgnored(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Persistence) {
		ctx := context.Background()
		key := model.DocumentKey{Collection: "rooms", ID: "a"}
		require.NoError(t, store.SetDocument(ctx, &model.Document{
			Key: key, Version: 3, Fields: value.Map{"x": value.Integer(3)},
		}))

		// a removal older than the stored document is discarded, same as a
		// stale SetDocument
		require.NoError(t, store.RemoveDocument(ctx, key, 2))
		got, err := store.GetDocument(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(3), got.Version)

		// equal version deletes
		require.NoError(t, store.RemoveDocument(ctx, key, 3))
		got, err = store.GetDocument(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestStore_DocumentsInCollection(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Persistence) {
		ctx := context.Background()
		for _, id := range []string{"a", "b"} {
			require.NoError(t, store.SetDocument(ctx, &model.Document{
				Key:     model.DocumentKey{Collection: "rooms", ID: id},
				Version: 1,
				Fields:  value.Map{"id": value.String(id)},
			}))
		}
		require.NoError(t, store.SetDocument(ctx, &model.Document{
			Key:     model.DocumentKey{Collection: "users", ID: "u"},
			Version: 1,
			Fields:  value.Map{},
		}))

		docs, err := store.DocumentsInCollection(ctx, "rooms")
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})
}

func TestStore_MutationQueueOrderAndLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Persistence) {
		ctx := context.Background()
		key := model.DocumentKey{Collection: "rooms", ID: "a"}

		second := &mutation.Mutation{
			ID: "m2", Key: key, Seq: 2,
			Fields: []mutation.FieldMutation{{Path: "x", Value: value.Integer(2)}},
		}
		first := &mutation.Mutation{
			ID: "m1", Key: key, Seq: 1,
			Fields: []mutation.FieldMutation{
				{Path: "x", Value: value.Integer(1)},
				{Path: "old"}, // delete
			},
		}
		require.NoError(t, store.SaveMutation(ctx, second))
		require.NoError(t, store.SaveMutation(ctx, first))

		pending, err := store.PendingMutations(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "m1", pending[0].ID)
		assert.Equal(t, "m2", pending[1].ID)
		assert.Equal(t, mutation.StatePending, pending[0].State)
		require.Len(t, pending[0].Fields, 2)
		assert.Nil(t, pending[0].Fields[1].Value)

		require.NoError(t, store.DeleteMutation(ctx, "m1"))
		pending, err = store.PendingMutations(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "m2", pending[0].ID)
	})
}

func TestStore_SaveMutationIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Persistence) {
		ctx := context.Background()
		m := &mutation.Mutation{
			ID:  "m1",
			Key: model.DocumentKey{Collection: "rooms", ID: "a"},
			Seq: 1,
			Fields: []mutation.FieldMutation{
				{Path: "x", Value: value.Integer(1)},
			},
		}
		require.NoError(t, store.SaveMutation(ctx, m))
		require.NoError(t, store.SaveMutation(ctx, m))

		pending, err := store.PendingMutations(ctx)
		require.NoError(t, err)
		assert.Len(t, pending, 1)
	})
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	store, err := OpenSQLite(path)
	require.NoError(t, err)
	key := model.DocumentKey{Collection: "rooms", ID: "a"}
	require.NoError(t, store.SetDocument(ctx, &model.Document{
		Key: key, Version: 1, Fields: value.Map{"x": value.Integer(1)},
	}))
	require.NoError(t, store.SaveMutation(ctx, &mutation.Mutation{
		ID: "m1", Key: key, Seq: 1,
		Fields: []mutation.FieldMutation{{Path: "x", Value: value.Integer(2)}},
	}))
	require.NoError(t, store.Close())

	store, err = OpenSQLite(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetDocument(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, value.Integer(1), got.Fields["x"])

	pending, err := store.PendingMutations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "m1", pending[0].ID)
}
