package view

import (
	"sort"

	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/query"
)

// View maintains the materialized result of one logical query and produces
// minimal diffs as change batches apply.
//
// The view tracks every known matching document, not just the limited
// prefix, so a document pushed out by a limit can re-enter when a better
// ranked one leaves. The exposed result is the ordered prefix after the
// limit.
//
// A View is not safe for concurrent use; the engine serializes all access.
type View struct {
	query   query.Descriptor
	compare func(a, b *model.Document) int

	all    []*model.Document // every known matching document, ordered
	result []*model.Document // prefix after limit

	fromCache  bool
	hasPending bool
}

// New creates an empty view for the query. A fresh view is from cache by
// definition: nothing has been confirmed by the server yet.
func New(q query.Descriptor) *View {
	return &View{
		query:     q,
		compare:   q.Comparator(),
		fromCache: true,
	}
}

// Query returns the descriptor this view materializes.
func (v *View) Query() query.Descriptor {
	return v.query
}

// Docs returns the current ordered result sequence. The returned slice is
// shared; callers must not mutate it.
func (v *View) Docs() []*model.Document {
	return v.result
}

// FromCache reports whether the current result may lag the server.
func (v *View) FromCache() bool {
	return v.fromCache
}

// HasPendingWrites reports whether any result document carries an
// unacknowledged local mutation.
func (v *View) HasPendingWrites() bool {
	return v.hasPending
}

// ApplyChanges folds a batch of document changes into the view and returns
// the snapshot diff versus the previous result.
//
// Membership is recomputed per changed document: a document that no longer
// matches is treated as removed even if present, and vice versa. The whole
// surviving set is re-ordered by the query comparator and the limit applied
// after ordering. reset discards prior membership first: the batch then
// states the result exactly (watch stream resets after reconnection).
//
// A server batch - even an empty one - marks the view current, clearing
// fromCache. A cache batch never clears it.
func (v *View) ApplyChanges(changes []model.DocumentChange, prov model.Provenance, reset bool) Snapshot {
	next := make(map[model.DocumentKey]*model.Document, len(v.all)+len(changes))
	if !reset {
		for _, d := range v.all {
			next[d.Key] = d
		}
	}

	for _, change := range changes {
		if change.Doc == nil {
			continue
		}
		key := change.Doc.Key
		if change.Kind == model.ChangeRemoved || !v.query.Matches(change.Doc) {
			delete(next, key)
			continue
		}
		next[key] = change.Doc
	}

	all := make([]*model.Document, 0, len(next))
	for _, d := range next {
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool { return v.compare(all[i], all[j]) < 0 })

	result := all
	if v.query.Limit > 0 && len(result) > v.query.Limit {
		result = result[:v.query.Limit]
	}

	diff := computeDiff(v.result, result)

	fromCache := v.fromCache
	if prov == model.FromServer {
		fromCache = false
	}
	hasPending := false
	for _, d := range result {
		if d.HasLocalMutations {
			hasPending = true
			break
		}
	}

	snap := Snapshot{
		Query:                v.query,
		Docs:                 result,
		Changes:              diff,
		FromCache:            fromCache,
		HasPendingWrites:     hasPending,
		FromCacheChanged:     fromCache != v.fromCache,
		PendingWritesChanged: hasPending != v.hasPending,
	}

	v.all = all
	v.result = result
	v.fromCache = fromCache
	v.hasPending = hasPending
	return snap
}

// MarkFromCache flags the result as potentially stale again, returning a
// metadata-only snapshot and whether anything changed. Called when the
// connection is lost.
func (v *View) MarkFromCache() (Snapshot, bool) {
	if v.fromCache {
		return Snapshot{}, false
	}
	v.fromCache = true
	return Snapshot{
		Query:            v.query,
		Docs:             v.result,
		FromCache:        true,
		HasPendingWrites: v.hasPending,
		FromCacheChanged: true,
	}, true
}

// InitialSnapshot builds the synthetic added-all snapshot delivered to a
// registration that joins an existing view mid-stream.
func (v *View) InitialSnapshot() Snapshot {
	changes := make([]DocChange, len(v.result))
	for i, d := range v.result {
		changes[i] = DocChange{Type: Added, Doc: d, OldIndex: -1, NewIndex: i}
	}
	return Snapshot{
		Query:            v.query,
		Docs:             v.result,
		Changes:          changes,
		FromCache:        v.fromCache,
		HasPendingWrites: v.hasPending,
	}
}

// computeDiff derives the minimal change list between two ordered result
// sequences. Entries are ordered removals first (by old position), then
// additions (by new position), then in-place changes (by new position).
func computeDiff(old, new []*model.Document) []DocChange {
	oldIndex := make(map[model.DocumentKey]int, len(old))
	for i, d := range old {
		oldIndex[d.Key] = i
	}
	newIndex := make(map[model.DocumentKey]int, len(new))
	for i, d := range new {
		newIndex[d.Key] = i
	}

	var removals, additions, inPlace []DocChange

	for i, d := range old {
		if _, ok := newIndex[d.Key]; !ok {
			removals = append(removals, DocChange{Type: Removed, Doc: d, OldIndex: i, NewIndex: -1})
		}
	}

	for i, d := range new {
		oldI, existed := oldIndex[d.Key]
		if !existed {
			additions = append(additions, DocChange{Type: Added, Doc: d, OldIndex: -1, NewIndex: i})
			continue
		}
		prev := old[oldI]
		switch {
		case !model.ContentsEqual(prev, d):
			inPlace = append(inPlace, DocChange{Type: Modified, Doc: d, OldIndex: oldI, NewIndex: i})
		case oldI != i:
			inPlace = append(inPlace, DocChange{Type: Moved, Doc: d, OldIndex: oldI, NewIndex: i})
		case prev.HasLocalMutations != d.HasLocalMutations:
			inPlace = append(inPlace, DocChange{Type: Metadata, Doc: d, OldIndex: oldI, NewIndex: i})
		}
	}

	out := make([]DocChange, 0, len(removals)+len(additions)+len(inPlace))
	out = append(out, removals...)
	out = append(out, additions...)
	out = append(out, inPlace...)
	return out
}
