package local

import (
	"context"
	"sort"

	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/mutation"
	"github.com/PCreations/syncview/internal/value"
)

// MemoryStore is an ephemeral Persistence for tests and the scenario
// harness. Same semantics as SQLiteStore, nothing survives Close.
type MemoryStore struct {
	docs      map[model.DocumentKey]*model.Document
	mutations map[string]*mutation.Mutation
}

// NewMemoryStore creates an empty in-memory persistence.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:      make(map[model.DocumentKey]*model.Document),
		mutations: make(map[string]*mutation.Mutation),
	}
}

func (s *MemoryStore) SetDocument(_ context.Context, doc *model.Document) error {
	if existing, ok := s.docs[doc.Key]; ok && existing.Version > doc.Version {
		return nil
	}
	s.docs[doc.Key] = cloneDoc(doc)
	return nil
}

func (s *MemoryStore) RemoveDocument(_ context.Context, key model.DocumentKey, version int64) error {
	if existing, ok := s.docs[key]; ok && existing.Version > version {
		return nil
	}
	delete(s.docs, key)
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, key model.DocumentKey) (*model.Document, error) {
	doc, ok := s.docs[key]
	if !ok {
		return nil, nil
	}
	return cloneDoc(doc), nil
}

func (s *MemoryStore) DocumentsInCollection(_ context.Context, collection string) ([]*model.Document, error) {
	var out []*model.Document
	for key, doc := range s.docs {
		if key.Collection == collection {
			out = append(out, cloneDoc(doc))
		}
	}
	// map iteration order leaks into tests otherwise
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Compare(out[j].Key) < 0 })
	return out, nil
}

func (s *MemoryStore) SaveMutation(_ context.Context, m *mutation.Mutation) error {
	if _, ok := s.mutations[m.ID]; ok {
		return nil
	}
	cp := *m
	cp.Fields = make([]mutation.FieldMutation, len(m.Fields))
	for i, f := range m.Fields {
		cp.Fields[i] = f
		if f.Value != nil {
			cp.Fields[i].Value = value.Clone(f.Value)
		}
	}
	cp.State = mutation.StatePending
	s.mutations[m.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteMutation(_ context.Context, id string) error {
	delete(s.mutations, id)
	return nil
}

func (s *MemoryStore) PendingMutations(_ context.Context) ([]*mutation.Mutation, error) {
	out := make([]*mutation.Mutation, 0, len(s.mutations))
	for _, m := range s.mutations {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
