package local

import (
	"context"

	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/mutation"
)

// Persistence is the durable cache behind the engine: remote documents
// keyed by path, plus the queue of local mutations awaiting
// acknowledgment. The engine reads through it on first subscribe (cached
// results before the server answers) and replays the queue after restart.
//
// Implementations need not be safe for concurrent use; the engine
// serializes all access.
type Persistence interface {
	// SetDocument upserts a remote document. A write with a version older
	// than the stored one is ignored; equal or newer versions replace.
	SetDocument(ctx context.Context, doc *model.Document) error

	// RemoveDocument deletes a document from the cache. Like SetDocument,
	// a stale removal is ignored: the delete only applies when version is
	// at or above the stored document's version.
	RemoveDocument(ctx context.Context, key model.DocumentKey, version int64) error

	// GetDocument returns the cached document, or (nil, nil) when absent.
	GetDocument(ctx context.Context, key model.DocumentKey) (*model.Document, error)

	// DocumentsInCollection returns every cached document of a collection,
	// in unspecified order. Query predicates are applied by the caller.
	DocumentsInCollection(ctx context.Context, collection string) ([]*model.Document, error)

	// SaveMutation persists a queued local write.
	SaveMutation(ctx context.Context, m *mutation.Mutation) error

	// DeleteMutation removes a mutation once resolved and retired.
	DeleteMutation(ctx context.Context, id string) error

	// PendingMutations returns all persisted mutations in Seq order.
	// Acknowledgment state is not persisted: after a restart every
	// recovered mutation is pending again and will be resubmitted.
	PendingMutations(ctx context.Context) ([]*mutation.Mutation, error)

	// Close releases underlying resources.
	Close() error
}
