package local

import (
	"context"
	"database/sql"
	"encoding/json"
	_ "embed"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/mutation"
	"github.com/PCreations/syncview/internal/value"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema (documents + mutations)
const currentSchemaVersion = 1

// documentCacheSize bounds the in-process read cache in front of SQLite.
const documentCacheSize = 1024

// SQLiteStore is the durable Persistence implementation.
// Uses SQLite with WAL mode; a small LRU in front absorbs the repeated
// per-key reads the engine issues while overlaying mutations.
type SQLiteStore struct {
	db    *sql.DB
	cache *lru.Cache[model.DocumentKey, *model.Document]
}

// OpenSQLite creates or opens a cache database at the given path.
// Applies required pragmas and migrations automatically; idempotent.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under the engine's serialized access pattern.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	cache, err := lru.New[model.DocumentKey, *model.Document](documentCacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create document cache: %w", err)
	}

	return &SQLiteStore{db: db, cache: cache}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	// No incremental migrations yet; version 1 is the base schema.
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetDocument upserts a document unless the stored version is newer.
func (s *SQLiteStore) SetDocument(ctx context.Context, doc *model.Document) error {
	raw, err := encodeFields(doc.Fields)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.Key.Path(), err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, doc_id, version, fields)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, doc_id) DO UPDATE SET
			version = excluded.version,
			fields  = excluded.fields
		WHERE excluded.version >= documents.version
	`, doc.Key.Collection, doc.Key.ID, doc.Version, raw)
	if err != nil {
		return fmt.Errorf("store document %s: %w", doc.Key.Path(), err)
	}

	s.cache.Remove(doc.Key)
	return nil
}

// RemoveDocument deletes a document from the cache unless the stored
// version is newer than the removal's.
func (s *SQLiteStore) RemoveDocument(ctx context.Context, key model.DocumentKey, version int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND doc_id = ? AND version <= ?`,
		key.Collection, key.ID, version)
	if err != nil {
		return fmt.Errorf("remove document %s: %w", key.Path(), err)
	}
	s.cache.Remove(key)
	return nil
}

// GetDocument returns the cached document, or (nil, nil) when absent.
func (s *SQLiteStore) GetDocument(ctx context.Context, key model.DocumentKey) (*model.Document, error) {
	if doc, ok := s.cache.Get(key); ok {
		return cloneDoc(doc), nil
	}

	var version int64
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT version, fields FROM documents WHERE collection = ? AND doc_id = ?`,
		key.Collection, key.ID).Scan(&version, &raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", key.Path(), err)
	}

	fields, err := decodeFields(raw)
	if err != nil {
		return nil, fmt.Errorf("decode document %s: %w", key.Path(), err)
	}

	doc := &model.Document{Key: key, Version: version, Fields: fields}
	s.cache.Add(key, doc)
	return cloneDoc(doc), nil
}

// DocumentsInCollection returns every cached document of a collection.
//
// Filtering happens in Go: the query value semantics (NaN equality,
// cross-type ordering, numeric equivalence of 42 and 42.0) have no SQL
// expression over the tagged JSON encoding.
func (s *SQLiteStore) DocumentsInCollection(ctx context.Context, collection string) ([]*model.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, version, fields FROM documents WHERE collection = ?`,
		collection)
	if err != nil {
		return nil, fmt.Errorf("scan collection %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		var id, raw string
		var version int64
		if err := rows.Scan(&id, &version, &raw); err != nil {
			return nil, fmt.Errorf("scan collection %s: %w", collection, err)
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, fmt.Errorf("decode document %s/%s: %w", collection, id, err)
		}
		docs = append(docs, &model.Document{
			Key:     model.DocumentKey{Collection: collection, ID: id},
			Version: version,
			Fields:  fields,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan collection %s: %w", collection, err)
	}
	return docs, nil
}

// SaveMutation persists a queued local write.
func (s *SQLiteStore) SaveMutation(ctx context.Context, m *mutation.Mutation) error {
	raw, err := encodeFieldEdits(m.Fields)
	if err != nil {
		return fmt.Errorf("encode mutation %s: %w", m.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mutations (id, collection, doc_id, seq, fields)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, m.ID, m.Key.Collection, m.Key.ID, m.Seq, raw)
	if err != nil {
		return fmt.Errorf("store mutation %s: %w", m.ID, err)
	}
	return nil
}

// DeleteMutation removes a resolved mutation.
func (s *SQLiteStore) DeleteMutation(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mutations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete mutation %s: %w", id, err)
	}
	return nil
}

// PendingMutations returns all persisted mutations in Seq order.
func (s *SQLiteStore) PendingMutations(ctx context.Context) ([]*mutation.Mutation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, collection, doc_id, seq, fields FROM mutations ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load mutations: %w", err)
	}
	defer rows.Close()

	var out []*mutation.Mutation
	for rows.Next() {
		var id, collection, docID, raw string
		var seq int64
		if err := rows.Scan(&id, &collection, &docID, &seq, &raw); err != nil {
			return nil, fmt.Errorf("load mutations: %w", err)
		}
		edits, err := decodeFieldEdits(raw)
		if err != nil {
			return nil, fmt.Errorf("decode mutation %s: %w", id, err)
		}
		out = append(out, &mutation.Mutation{
			ID:     id,
			Key:    model.DocumentKey{Collection: collection, ID: docID},
			Fields: edits,
			Seq:    seq,
			State:  mutation.StatePending,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load mutations: %w", err)
	}
	return out, nil
}

func cloneDoc(doc *model.Document) *model.Document {
	out := *doc
	out.Fields = value.Clone(doc.Fields).(value.Map)
	return &out
}

func encodeFields(fields value.Map) (string, error) {
	if fields == nil {
		fields = value.Map{}
	}
	raw, err := value.MarshalJSONValue(fields)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeFields(raw string) (value.Map, error) {
	v, err := value.UnmarshalJSONValue([]byte(raw))
	if err != nil {
		return nil, err
	}
	m, ok := v.(value.Map)
	if !ok {
		return nil, fmt.Errorf("fields are %T, want map", v)
	}
	return m, nil
}

type fieldEditRecord struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
	Unset bool            `json:"unset,omitempty"`
}

func encodeFieldEdits(edits []mutation.FieldMutation) (string, error) {
	records := make([]fieldEditRecord, len(edits))
	for i, e := range edits {
		rec := fieldEditRecord{Path: e.Path}
		if e.Value == nil {
			rec.Unset = true
		} else {
			raw, err := value.MarshalJSONValue(e.Value)
			if err != nil {
				return "", fmt.Errorf("field %s: %w", e.Path, err)
			}
			rec.Value = raw
		}
		records[i] = rec
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeFieldEdits(raw string) ([]mutation.FieldMutation, error) {
	var records []fieldEditRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, err
	}
	out := make([]mutation.FieldMutation, len(records))
	for i, rec := range records {
		fm := mutation.FieldMutation{Path: rec.Path}
		if !rec.Unset {
			v, err := value.UnmarshalJSONValue(rec.Value)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", rec.Path, err)
			}
			fm.Value = v
		}
		out[i] = fm
	}
	return out, nil
}
