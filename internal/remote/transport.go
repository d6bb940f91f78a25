package remote

import (
	"context"

	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/query"
)

// ConnectionState describes the transport's view of the backend link.
type ConnectionState int

const (
	// Offline means the transport is not trying to connect.
	Offline ConnectionState = iota + 1
	// Connecting means a connection attempt (or retry backoff) is underway.
	Connecting
	// Online means the stream is established and batches flow.
	Online
)

// String returns a human-readable connection state name.
func (s ConnectionState) String() string {
	switch s {
	case Offline:
		return "offline"
	case Connecting:
		return "connecting"
	case Online:
		return "online"
	default:
		return "unknown"
	}
}

// EventType distinguishes transport event kinds.
type EventType int

const (
	// EventChangeBatch carries document changes for a watched query.
	EventChangeBatch EventType = iota + 1
	// EventMutationOutcome reports acknowledgement or rejection of a
	// submitted mutation.
	EventMutationOutcome
	// EventConnectionState reports a connection state transition.
	EventConnectionState
)

// ChangeBatch is one consistent slice of server state for a watched query.
//
// Reset means prior membership for the query must be discarded before the
// batch applies: the server restates the full result after a stream is
// re-established.
type ChangeBatch struct {
	QueryKey query.Key
	Changes  []model.DocumentChange
	Reset    bool
}

// MutationOutcome is the server's verdict on a submitted mutation.
type MutationOutcome struct {
	MutationID string
	Committed  bool
	Version    int64  // server version assigned on commit
	Err        string // rejection reason, empty on commit
}

// Event is the tagged union flowing out of a Transport.
type Event struct {
	Type    EventType
	Batch   *ChangeBatch
	Outcome *MutationOutcome
	State   ConnectionState
}

// MutationRequest is one mutation submitted for commit. Nil values delete
// the named field.
type MutationRequest struct {
	MutationID string
	Key        model.DocumentKey
	Fields     map[string]RawField
}

// RawField pairs a dotted field path with its encoded value. Value is nil
// for deletes.
type RawField struct {
	Path  string
	Value []byte // canonical tagged JSON, nil = delete
}

// Transport is the backend link. Implementations deliver events on the
// channel returned by Events until Close; the engine consumes them from a
// single goroutine.
//
// Watch, Unwatch and Commit are best-effort while offline: implementations
// queue or drop requests and replay interest on reconnect as documented per
// implementation.
type Transport interface {
	// Watch registers interest in a query. Matching batches arrive as
	// EventChangeBatch events tagged with the query key.
	Watch(ctx context.Context, key query.Key, desc query.Descriptor) error

	// Unwatch removes interest in a query.
	Unwatch(ctx context.Context, key query.Key) error

	// Commit submits a mutation. The outcome arrives asynchronously as an
	// EventMutationOutcome event.
	Commit(ctx context.Context, req MutationRequest) error

	// Events returns the stream of transport events. Closed by Close.
	Events() <-chan Event

	// EnableNetwork starts (or resumes) connection attempts.
	EnableNetwork()

	// DisableNetwork tears down the connection and stops retrying. Watched
	// queries are remembered and re-established on EnableNetwork.
	DisableNetwork()

	// Close releases all resources and closes the event channel.
	Close() error
}
