package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/value"
)

func TestCanonicalKey_Stable(t *testing.T) {
	d := Descriptor{
		Collection: "rooms",
		Filters:    []Filter{{Field: "open", Op: OpEqual, Value: value.Boolean(true)}},
		OrderBy:    []Order{{Field: "sort", Direction: Descending}},
		Limit:      10,
	}

	k1, err := d.CanonicalKey()
	require.NoError(t, err)
	k2, err := d.CanonicalKey()
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Len(t, string(k1), 64, "hex sha256")
}

func TestCanonicalKey_ImpliedTieBreakIsSameQuery(t *testing.T) {
	implicit := Descriptor{
		Collection: "rooms",
		OrderBy:    []Order{{Field: "sort", Direction: Ascending}},
	}
	explicit := Descriptor{
		Collection: "rooms",
		OrderBy: []Order{
			{Field: "sort", Direction: Ascending},
			{Field: model.KeyFieldPath, Direction: Ascending},
		},
	}

	k1, err := implicit.CanonicalKey()
	require.NoError(t, err)
	k2, err := explicit.CanonicalKey()
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestCanonicalKey_DistinguishesQueries(t *testing.T) {
	base := Descriptor{Collection: "rooms"}
	variants := []Descriptor{
		{Collection: "users"},
		{Collection: "rooms", Limit: 5},
		{Collection: "rooms", Filters: []Filter{{Field: "open", Op: OpEqual, Value: value.Boolean(true)}}},
		{Collection: "rooms", OrderBy: []Order{{Field: "sort", Direction: Descending}}},
	}

	baseKey, err := base.CanonicalKey()
	require.NoError(t, err)
	seen := map[Key]bool{baseKey: true}
	for _, v := range variants {
		k, err := v.CanonicalKey()
		require.NoError(t, err)
		assert.False(t, seen[k], "descriptor %+v collides", v)
		seen[k] = true
	}
}
