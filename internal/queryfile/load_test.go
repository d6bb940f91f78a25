package queryfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PCreations/syncview/internal/query"
	"github.com/PCreations/syncview/internal/value"
)

func TestLoad_FullQuery(t *testing.T) {
	src := []byte(`
queries: liveRooms: {
	collection: "rooms"
	filters: [
		{field: "live", op: "==", value: true},
		{field: "score", op: ">=", value: 10},
	]
	orderBy: [{field: "score", direction: "desc"}]
	limit: 5
}
`)
	queries, err := Load(src, "queries.cue")
	require.NoError(t, err)
	require.Len(t, queries, 1)

	q := queries[0]
	assert.Equal(t, "liveRooms", q.Name)
	assert.Equal(t, "rooms", q.Descriptor.Collection)
	assert.Equal(t, 5, q.Descriptor.Limit)
	require.Len(t, q.Descriptor.Filters, 2)
	assert.Equal(t, query.OpEqual, q.Descriptor.Filters[0].Op)
	assert.Equal(t, value.Boolean(true), q.Descriptor.Filters[0].Value)
	assert.Equal(t, query.OpGreaterThanOrEqual, q.Descriptor.Filters[1].Op)
	require.Len(t, q.Descriptor.OrderBy, 1)
	assert.Equal(t, query.Descending, q.Descriptor.OrderBy[0].Direction)
}

func TestLoad_DefaultsApply(t *testing.T) {
	src := []byte(`
queries: everything: collection: "rooms"
`)
	queries, err := Load(src, "queries.cue")
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, 0, queries[0].Descriptor.Limit)
	assert.Empty(t, queries[0].Descriptor.Filters)
}

func TestLoad_SortedByName(t *testing.T) {
	src := []byte(`
queries: {
	zeta: collection: "rooms"
	alpha: collection: "rooms"
}
`)
	queries, err := Load(src, "queries.cue")
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, "alpha", queries[0].Name)
	assert.Equal(t, "zeta", queries[1].Name)
}

func TestLoad_RejectsUnknownOperator(t *testing.T) {
	src := []byte(`
queries: bad: {
	collection: "rooms"
	filters: [{field: "x", op: "~=", value: 1}]
}
`)
	_, err := Load(src, "queries.cue")
	assert.Error(t, err)
}

func TestLoad_RejectsEmptyCollection(t *testing.T) {
	src := []byte(`
queries: bad: collection: ""
`)
	_, err := Load(src, "queries.cue")
	assert.Error(t, err)
}

func TestLoad_RejectsNonArrayInOperand(t *testing.T) {
	src := []byte(`
queries: bad: {
	collection: "rooms"
	filters: [{field: "x", op: "in", value: 3}]
}
`)
	_, err := Load(src, "queries.cue")
	assert.Error(t, err)
}
