package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/view"
)

func snapWithDocs(n int) view.Snapshot {
	docs := make([]*model.Document, n)
	for i := range docs {
		docs[i] = &model.Document{Key: model.DocumentKey{Collection: "c", ID: string(rune('a' + i))}}
	}
	return view.Snapshot{Docs: docs}
}

func TestSnapshotQueue_FIFO(t *testing.T) {
	q := newSnapshotQueue()
	require.True(t, q.Enqueue(snapWithDocs(1)))
	require.True(t, q.Enqueue(snapWithDocs(2)))
	require.True(t, q.Enqueue(snapWithDocs(3)))
	assert.Equal(t, 3, q.Len())

	for want := 1; want <= 3; want++ {
		s, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Len(t, s.Docs, want)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestSnapshotQueue_CloseDropsAndRejects(t *testing.T) {
	q := newSnapshotQueue()
	q.Enqueue(snapWithDocs(1))
	q.Close()

	assert.False(t, q.Enqueue(snapWithDocs(2)))
	_, ok := q.TryDequeue()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}
