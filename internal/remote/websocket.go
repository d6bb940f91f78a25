package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/PCreations/syncview/internal/query"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 25 * time.Second
	eventBuffer  = 64
)

// wire message kinds exchanged with the backend.
const (
	msgWatch   = "watch"
	msgUnwatch = "unwatch"
	msgCommit  = "commit"
	msgBatch   = "batch"
	msgOutcome = "outcome"
)

// wireMessage is the JSON envelope on the socket. Exactly one payload field
// is set, selected by Kind.
type wireMessage struct {
	Kind    string           `json:"kind"`
	Watch   *wireWatch       `json:"watch,omitempty"`
	Unwatch *wireUnwatch     `json:"unwatch,omitempty"`
	Commit  *wireCommit      `json:"commit,omitempty"`
	Batch   *wireBatch       `json:"batch,omitempty"`
	Outcome *MutationOutcome `json:"outcome,omitempty"`
}

type wireWatch struct {
	QueryKey   string          `json:"queryKey"`
	Descriptor json.RawMessage `json:"descriptor"`
}

type wireUnwatch struct {
	QueryKey string `json:"queryKey"`
}

type wireCommit struct {
	MutationID string          `json:"mutationId"`
	Document   string          `json:"document"`
	Fields     []wireFieldEdit `json:"fields"`
}

type wireFieldEdit struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
	Unset bool            `json:"unset,omitempty"`
}

type wireBatch struct {
	QueryKey string          `json:"queryKey"`
	Reset    bool            `json:"reset,omitempty"`
	Changes  json.RawMessage `json:"changes"`
}

// WebsocketTransport maintains a websocket to the sync backend with
// automatic reconnection.
//
// Outbound requests (Watch, Unwatch, Commit) are serialized through an
// internal send queue. Watched queries are remembered so interest can be
// replayed after every reconnect; the backend answers each replayed watch
// with a reset batch.
type WebsocketTransport struct {
	url    string
	logger *slog.Logger

	events chan Event
	send   chan wireMessage

	mu       sync.Mutex
	watches  map[query.Key]json.RawMessage // replayed on reconnect
	enabled  bool
	closed   bool
	dropConn context.CancelFunc // tears down the live connection, nil when disconnected

	wake   chan struct{} // nudges the run loop after EnableNetwork
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWebsocketTransport creates a transport for the given backend URL. The
// transport starts offline; call EnableNetwork to connect.
func NewWebsocketTransport(url string, logger *slog.Logger) *WebsocketTransport {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &WebsocketTransport{
		url:     url,
		logger:  logger.With("component", "transport"),
		events:  make(chan Event, eventBuffer),
		send:    make(chan wireMessage, eventBuffer),
		watches: make(map[query.Key]json.RawMessage),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go t.run()
	return t
}

// Events returns the stream of transport events.
func (t *WebsocketTransport) Events() <-chan Event {
	return t.events
}

// Watch registers interest in a query and replays it after reconnects.
func (t *WebsocketTransport) Watch(ctx context.Context, key query.Key, desc query.Descriptor) error {
	raw, err := json.Marshal(descriptorWire(desc))
	if err != nil {
		return fmt.Errorf("encode query descriptor: %w", err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport closed")
	}
	t.watches[key] = raw
	t.mu.Unlock()

	return t.enqueue(ctx, wireMessage{
		Kind:  msgWatch,
		Watch: &wireWatch{QueryKey: string(key), Descriptor: raw},
	})
}

// Unwatch removes interest in a query.
func (t *WebsocketTransport) Unwatch(ctx context.Context, key query.Key) error {
	t.mu.Lock()
	delete(t.watches, key)
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return fmt.Errorf("transport closed")
	}

	return t.enqueue(ctx, wireMessage{
		Kind:    msgUnwatch,
		Unwatch: &wireUnwatch{QueryKey: string(key)},
	})
}

// Commit submits a mutation for the server to apply.
func (t *WebsocketTransport) Commit(ctx context.Context, req MutationRequest) error {
	edits := make([]wireFieldEdit, len(req.Fields))
	i := 0
	for _, f := range req.Fields {
		edit := wireFieldEdit{Path: f.Path}
		if f.Value == nil {
			edit.Unset = true
		} else {
			edit.Value = json.RawMessage(f.Value)
		}
		edits[i] = edit
		i++
	}

	return t.enqueue(ctx, wireMessage{
		Kind: msgCommit,
		Commit: &wireCommit{
			MutationID: req.MutationID,
			Document:   req.Key.Path(),
			Fields:     edits,
		},
	})
}

// EnableNetwork starts connection attempts.
func (t *WebsocketTransport) EnableNetwork() {
	t.mu.Lock()
	if t.closed || t.enabled {
		t.mu.Unlock()
		return
	}
	t.enabled = true
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// DisableNetwork tears down the connection and stops retrying.
func (t *WebsocketTransport) DisableNetwork() {
	t.mu.Lock()
	t.enabled = false
	drop := t.dropConn
	t.mu.Unlock()

	if drop != nil {
		drop()
	}
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Close releases the transport. The event channel closes after the run
// loop exits.
func (t *WebsocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.enabled = false
	t.mu.Unlock()

	t.cancel()
	<-t.done
	return nil
}

func (t *WebsocketTransport) enqueue(ctx context.Context, msg wireMessage) error {
	select {
	case t.send <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.ctx.Done():
		return fmt.Errorf("transport closed")
	}
}

func (t *WebsocketTransport) isEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// run owns the connection lifecycle: dial with exponential backoff while
// enabled, pump messages while connected, and emit connection state events
// on every transition.
func (t *WebsocketTransport) run() {
	defer close(t.done)
	defer close(t.events)

	t.emitState(Offline)

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-t.wake:
		}

		if !t.isEnabled() {
			t.emitState(Offline)
			continue
		}

		t.emitState(Connecting)
		retry := backoff.NewExponentialBackOff()
		retry.MaxElapsedTime = 0 // retry until disabled or closed

		for t.isEnabled() {
			conn, _, err := websocket.DefaultDialer.DialContext(t.ctx, t.url, nil)
			if err != nil {
				wait := retry.NextBackOff()
				t.logger.Warn("dial failed", "url", t.url, "retry_in", wait, "error", err)
				select {
				case <-t.ctx.Done():
					return
				case <-time.After(wait):
				}
				continue
			}

			t.logger.Info("connected", "url", t.url)
			t.emitState(Online)
			t.replayWatches(conn)
			t.pump(conn)
			conn.Close()

			if !t.isEnabled() {
				break
			}
			select {
			case <-t.ctx.Done():
				return
			default:
			}
			t.emitState(Connecting)
			retry.Reset()
		}

		t.emitState(Offline)
	}
}

// replayWatches re-registers every remembered query on a fresh connection.
func (t *WebsocketTransport) replayWatches(conn *websocket.Conn) {
	t.mu.Lock()
	msgs := make([]wireMessage, 0, len(t.watches))
	for key, raw := range t.watches {
		msgs = append(msgs, wireMessage{
			Kind:  msgWatch,
			Watch: &wireWatch{QueryKey: string(key), Descriptor: raw},
		})
	}
	t.mu.Unlock()

	for _, msg := range msgs {
		if err := t.writeMessage(conn, msg); err != nil {
			t.logger.Warn("watch replay failed", "error", err)
			return
		}
	}
}

// pump runs the reader inline and the writer in a goroutine until either
// side fails or the transport is disabled.
func (t *WebsocketTransport) pump(conn *websocket.Conn) {
	connCtx, connCancel := context.WithCancel(t.ctx)
	defer connCancel()

	t.mu.Lock()
	t.dropConn = connCancel
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.dropConn = nil
		t.mu.Unlock()
	}()

	go func() {
		defer connCancel()
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-connCtx.Done():
				return
			case msg := <-t.send:
				if err := t.writeMessage(conn, msg); err != nil {
					t.logger.Warn("write failed", "error", err)
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		// tears down the connection when the network is disabled
		<-connCtx.Done()
		conn.SetReadDeadline(time.Now())
	}()

	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if t.ctx.Err() == nil && t.isEnabled() {
				t.logger.Warn("read failed", "error", err)
			}
			return
		}
		t.dispatch(msg)
	}
}

func (t *WebsocketTransport) writeMessage(conn *websocket.Conn, msg wireMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

func (t *WebsocketTransport) dispatch(msg wireMessage) {
	switch msg.Kind {
	case msgBatch:
		if msg.Batch == nil {
			return
		}
		changes, err := decodeWireChanges(msg.Batch.Changes)
		if err != nil {
			t.logger.Error("malformed change batch", "queryKey", msg.Batch.QueryKey, "error", err)
			return
		}
		t.emit(Event{
			Type: EventChangeBatch,
			Batch: &ChangeBatch{
				QueryKey: query.Key(msg.Batch.QueryKey),
				Changes:  changes,
				Reset:    msg.Batch.Reset,
			},
		})
	case msgOutcome:
		if msg.Outcome == nil {
			return
		}
		t.emit(Event{Type: EventMutationOutcome, Outcome: msg.Outcome})
	default:
		t.logger.Warn("unknown message kind", "kind", msg.Kind)
	}
}

func (t *WebsocketTransport) emitState(s ConnectionState) {
	t.emit(Event{Type: EventConnectionState, State: s})
}

func (t *WebsocketTransport) emit(e Event) {
	select {
	case t.events <- e:
	case <-t.ctx.Done():
	}
}
