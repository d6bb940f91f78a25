package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PCreations/syncview/internal/value"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    DocumentKey
		wantErr bool
	}{
		{"simple", "rooms/a", DocumentKey{Collection: "rooms", ID: "a"}, false},
		{"nested collection", "rooms/a/messages/m1", DocumentKey{Collection: "rooms/a/messages", ID: "m1"}, false},
		{"no slash", "rooms", DocumentKey{}, true},
		{"trailing slash", "rooms/", DocumentKey{}, true},
		{"leading slash only", "/a", DocumentKey{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKey(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.path, got.Path())
		})
	}
}

func TestDocument_Field(t *testing.T) {
	doc := NewDocument(
		DocumentKey{Collection: "users", ID: "alice"},
		value.Map{
			"name": value.String("Alice"),
			"address": value.Map{
				"city": value.String("Paris"),
			},
		},
		1,
	)

	city, ok := doc.Field("address.city")
	require.True(t, ok)
	assert.Equal(t, value.String("Paris"), city)

	_, ok = doc.Field("address.zip")
	assert.False(t, ok)

	// Descending into a non-map fails rather than erroring.
	_, ok = doc.Field("name.first")
	assert.False(t, ok)

	// The reserved key path resolves to the document reference.
	ref, ok := doc.Field(KeyFieldPath)
	require.True(t, ok)
	assert.Equal(t, value.Reference("users/alice"), ref)
}

func TestSetFieldAt_CreatesIntermediates(t *testing.T) {
	fields := value.Map{}
	SetFieldAt(fields, "a.b.c", value.Integer(1))

	got, ok := FieldAt(fields, "a.b.c")
	require.True(t, ok)
	assert.Equal(t, value.Integer(1), got)
}

func TestDeleteFieldAt(t *testing.T) {
	fields := value.Map{"a": value.Map{"b": value.Integer(1)}}
	DeleteFieldAt(fields, "a.b")

	_, ok := FieldAt(fields, "a.b")
	assert.False(t, ok)

	// Deleting a missing path is a no-op.
	DeleteFieldAt(fields, "x.y")
}

func TestContentsEqual_IgnoresMetadata(t *testing.T) {
	key := DocumentKey{Collection: "users", ID: "alice"}
	a := NewDocument(key, value.Map{"n": value.Integer(1)}, 1)
	b := NewDocument(key, value.Map{"n": value.Integer(1)}, 2)
	b.HasLocalMutations = true

	// Same fields: equal even though version and pending state differ.
	assert.True(t, ContentsEqual(a, b))

	c := NewDocument(key, value.Map{"n": value.Integer(2)}, 1)
	assert.False(t, ContentsEqual(a, c))
}
