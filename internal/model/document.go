package model

import (
	"fmt"
	"strings"

	"github.com/PCreations/syncview/internal/value"
)

// KeyFieldPath is the reserved field path that addresses a document's
// identifier in ordering clauses.
const KeyFieldPath = "__name__"

// DocumentKey identifies a document within a collection.
type DocumentKey struct {
	Collection string
	ID         string
}

// ParseKey parses a "collection/id" path into a DocumentKey.
func ParseKey(path string) (DocumentKey, error) {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 || idx == len(path)-1 {
		return DocumentKey{}, fmt.Errorf("invalid document path %q: want collection/id", path)
	}
	return DocumentKey{Collection: path[:idx], ID: path[idx+1:]}, nil
}

// Path returns the "collection/id" form of the key.
func (k DocumentKey) Path() string {
	return k.Collection + "/" + k.ID
}

// Compare orders keys by collection, then identifier, lexicographically.
func (k DocumentKey) Compare(other DocumentKey) int {
	if c := strings.Compare(k.Collection, other.Collection); c != 0 {
		return c
	}
	return strings.Compare(k.ID, other.ID)
}

// Document is a snapshot of one document's contents at a version.
//
// Documents are immutable once constructed: overlay application and cache
// updates produce new Document values rather than mutating in place, so a
// result sequence handed to a listener callback stays stable while the view
// moves on.
type Document struct {
	Key    DocumentKey
	Fields value.Map

	// Version is the server's monotonic update version for this document.
	// Stale change batches (version lower than the cached document) are
	// discarded on arrival.
	Version int64

	// HasLocalMutations marks a document whose contents include the effect
	// of at least one unacknowledged local write. Set by the mutation
	// overlay, never by the cache.
	HasLocalMutations bool
}

// NewDocument creates a document snapshot. The field map is used as-is;
// callers hand over ownership.
func NewDocument(key DocumentKey, fields value.Map, version int64) *Document {
	return &Document{Key: key, Fields: fields, Version: version}
}

// Field resolves a dotted field path ("address.city") against the document,
// descending through nested maps. The reserved path __name__ resolves to the
// document's identifier as a reference value.
func (d *Document) Field(path string) (value.Value, bool) {
	if path == KeyFieldPath {
		return value.Reference(d.Key.Path()), true
	}
	return FieldAt(d.Fields, path)
}

// FieldAt resolves a dotted field path against a field map.
func FieldAt(fields value.Map, path string) (value.Value, bool) {
	if fields == nil {
		return nil, false
	}
	segments := strings.Split(path, ".")
	current := value.Value(fields)
	for _, seg := range segments {
		m, ok := current.(value.Map)
		if !ok {
			return nil, false
		}
		next, ok := m[seg]
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// SetFieldAt sets a dotted field path in a field map, creating intermediate
// maps as needed. Existing non-map intermediates are replaced.
func SetFieldAt(fields value.Map, path string, v value.Value) {
	segments := strings.Split(path, ".")
	current := fields
	for _, seg := range segments[:len(segments)-1] {
		next, ok := current[seg].(value.Map)
		if !ok {
			next = value.Map{}
			current[seg] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = v
}

// DeleteFieldAt removes a dotted field path from a field map.
// Missing paths are a no-op.
func DeleteFieldAt(fields value.Map, path string) {
	segments := strings.Split(path, ".")
	current := fields
	for _, seg := range segments[:len(segments)-1] {
		next, ok := current[seg].(value.Map)
		if !ok {
			return
		}
		current = next
	}
	delete(current, segments[len(segments)-1])
}

// ContentsEqual reports whether two documents hold the same fields.
// Per-document metadata (HasLocalMutations) is deliberately excluded: a
// document whose contents are unchanged but whose pending-write state
// flipped is a metadata-only change, not a modification.
func ContentsEqual(a, b *Document) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Key != b.Key {
		return false
	}
	return value.Equal(a.Fields, b.Fields)
}
