package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/PCreations/syncview/internal/local"
	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/mutation"
	"github.com/PCreations/syncview/internal/query"
	"github.com/PCreations/syncview/internal/remote"
	"github.com/PCreations/syncview/internal/view"
)

// Engine coordinates the persisted cache, the pending-write overlay, the
// materialized query views and the backend transport.
//
// All state mutations happen under one mutex: Subscribe, Write and the
// Run loop's event handling serialize against each other. Snapshot
// callbacks run outside the lock on the dispatcher pool, in per-listener
// order.
//
// Local writes surface immediately through the overlay (optimistic, marked
// from cache with pending writes); the backend's verdict arrives later as
// a mutation outcome and server snapshots eventually retire acknowledged
// mutations without the intermediate value ever flickering back.
type Engine struct {
	logger      *slog.Logger
	persistence local.Persistence
	transport   remote.Transport
	clock       *Clock
	overlay     *mutation.Overlay
	dispatcher  *dispatcher
	ids         WriteIDGenerator

	dispatchWorkers int

	mu     sync.Mutex
	views  map[query.Key]*viewEntry
	writes map[string]*PendingWrite
	online bool
	closed bool
}

// viewEntry pairs one materialized view with its attached listeners.
type viewEntry struct {
	desc query.Descriptor
	view *view.View
	regs map[string]*registration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithWriteIDGenerator overrides mutation id generation. Tests use
// FixedGenerator for deterministic ids.
func WithWriteIDGenerator(g WriteIDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithDispatchWorkers bounds concurrent snapshot callbacks.
func WithDispatchWorkers(n int) Option {
	return func(e *Engine) { e.dispatchWorkers = n }
}

// New creates an engine over the given persistence and transport.
//
// The mutation queue is recovered from persistence: every surviving
// mutation re-enters the overlay as pending and will be resubmitted when
// the network comes up. The sequence clock resumes past the highest
// recovered sequence number.
func New(ctx context.Context, persistence local.Persistence, transport remote.Transport, opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:      slog.Default(),
		persistence: persistence,
		transport:   transport,
		overlay:     mutation.NewOverlay(),
		ids:         UUIDv7Generator{},
		views:       make(map[query.Key]*viewEntry),
		writes:      make(map[string]*PendingWrite),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "engine")

	recovered, err := persistence.PendingMutations(ctx)
	if err != nil {
		return nil, fmt.Errorf("recover mutation queue: %w", err)
	}
	var maxSeq int64
	for _, m := range recovered {
		if err := e.overlay.Record(m); err != nil {
			return nil, fmt.Errorf("recover mutation %s: %w", m.ID, err)
		}
		if m.Seq > maxSeq {
			maxSeq = m.Seq
		}
	}
	e.clock = NewClockAt(maxSeq)
	if len(recovered) > 0 {
		e.logger.Info("recovered mutation queue", "count", len(recovered), "seq", maxSeq)
	}

	d, err := newDispatcher(e.dispatchWorkers, e.logger)
	if err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}
	e.dispatcher = d
	return e, nil
}

// Subscription is a handle to one registered listener.
type Subscription struct {
	engine *Engine
	key    query.Key
	regID  string
}

// Unsubscribe detaches the listener. Queued undelivered snapshots are
// dropped and no new deliveries are scheduled; a delivery already in
// flight on the dispatcher may still complete after Unsubscribe returns.
// The view itself is torn down once its last listener detaches.
func (s *Subscription) Unsubscribe() {
	s.engine.unsubscribe(s.key, s.regID)
}

// Subscribe attaches a snapshot listener to a query.
//
// The first listener on a query materializes its view: the persisted cache
// is read through the pending-write overlay to produce an immediate
// from-cache snapshot, and the query is registered on the transport so
// server state follows. Additional listeners share the view and receive a
// synthetic snapshot of its current result.
func (e *Engine) Subscribe(ctx context.Context, desc query.Descriptor, opts Options, handler SnapshotHandler) (*Subscription, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	key, err := desc.CanonicalKey()
	if err != nil {
		return nil, fmt.Errorf("derive query key: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}

	entry, ok := e.views[key]
	if !ok {
		entry = &viewEntry{
			desc: desc,
			view: view.New(desc),
			regs: make(map[string]*registration),
		}
		if err := e.seedView(ctx, entry); err != nil {
			return nil, err
		}
		e.views[key] = entry

		if err := e.transport.Watch(ctx, key, desc); err != nil {
			e.logger.Warn("watch registration failed", "queryKey", key, "error", err)
		}
	}

	reg := newRegistration(opts, handler)
	entry.regs[reg.id] = reg
	e.dispatcher.publish(reg, entry.view.InitialSnapshot())

	e.logger.Debug("listener attached", "queryKey", key, "listeners", len(entry.regs))
	return &Subscription{engine: e, key: key, regID: reg.id}, nil
}

// seedView populates a fresh view from the persisted cache overlaid with
// pending local writes.
func (e *Engine) seedView(ctx context.Context, entry *viewEntry) error {
	docs, err := e.persistence.DocumentsInCollection(ctx, entry.desc.Collection)
	if err != nil {
		return fmt.Errorf("seed query from cache: %w", err)
	}

	seen := make(map[model.DocumentKey]bool, len(docs))
	changes := make([]model.DocumentChange, 0, len(docs))
	for _, doc := range docs {
		seen[doc.Key] = true
		effective := e.overlay.Apply(doc.Key, doc)
		changes = append(changes, model.DocumentChange{Kind: model.ChangeAdded, Doc: effective})
	}
	// local writes may create documents the cache has never seen
	for _, key := range e.overlay.KeysForCollection(entry.desc.Collection) {
		if seen[key] {
			continue
		}
		if effective := e.overlay.Apply(key, nil); effective != nil {
			changes = append(changes, model.DocumentChange{Kind: model.ChangeAdded, Doc: effective})
		}
	}

	entry.view.ApplyChanges(changes, model.FromCache, false)
	return nil
}

func (e *Engine) unsubscribe(key query.Key, regID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.views[key]
	if !ok {
		return
	}
	reg, ok := entry.regs[regID]
	if !ok {
		return
	}
	reg.queue.Close()
	delete(entry.regs, regID)

	if len(entry.regs) == 0 {
		delete(e.views, key)
		if err := e.transport.Unwatch(context.Background(), key); err != nil {
			e.logger.Warn("unwatch failed", "queryKey", key, "error", err)
		}
		e.logger.Debug("view released", "queryKey", key)
	}
}

// Write queues an optimistic local write against one document.
//
// The effective document is recomputed immediately and every view over the
// document's collection emits a from-cache snapshot with pending writes
// before Write returns a handle. The handle's Done channel resolves
// exactly once with the backend's verdict.
func (e *Engine) Write(ctx context.Context, key model.DocumentKey, edits []mutation.FieldMutation) (*PendingWrite, error) {
	if len(edits) == 0 {
		return nil, fmt.Errorf("write %s: no field edits", key.Path())
	}
	for _, edit := range edits {
		if edit.Path == "" {
			return nil, fmt.Errorf("write %s: empty field path", key.Path())
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}

	m := &mutation.Mutation{
		ID:     e.ids.Generate(),
		Key:    key,
		Fields: edits,
		Seq:    e.clock.Next(),
		State:  mutation.StatePending,
	}
	if err := e.overlay.Record(m); err != nil {
		return nil, fmt.Errorf("record write: %w", err)
	}
	if err := e.persistence.SaveMutation(ctx, m); err != nil {
		// the write failed before it ever existed durably; it must not
		// stay overlaid or be replayed to the backend
		e.overlay.Discard(m.ID)
		return nil, fmt.Errorf("persist write: %w", err)
	}

	pw := &PendingWrite{id: m.ID, done: make(chan error, 1)}
	e.writes[m.ID] = pw

	e.refreshDocument(ctx, key, model.FromCache)

	if e.online {
		e.submit(m)
	}
	e.logger.Debug("write queued", "document", key.Path(), "mutation", m.ID, "seq", m.Seq)
	return pw, nil
}

// submit sends one mutation to the backend off the engine goroutine.
func (e *Engine) submit(m *mutation.Mutation) {
	req, err := buildCommit(m)
	if err != nil {
		e.logger.Error("encode mutation", "mutation", m.ID, "error", err)
		return
	}
	go func() {
		if err := e.transport.Commit(context.Background(), req); err != nil {
			e.logger.Warn("commit submit failed", "mutation", m.ID, "error", err)
		}
	}()
}

// refreshDocument recomputes one document's effective state and folds it
// into every view over its collection. Caller holds e.mu.
func (e *Engine) refreshDocument(ctx context.Context, key model.DocumentKey, prov model.Provenance) {
	base, err := e.persistence.GetDocument(ctx, key)
	if err != nil {
		e.logger.Error("load document", "document", key.Path(), "error", err)
		return
	}
	effective := e.overlay.Apply(key, base)

	var change model.DocumentChange
	if effective == nil {
		change = model.DocumentChange{Kind: model.ChangeRemoved, Doc: &model.Document{Key: key}}
	} else {
		change = model.DocumentChange{Kind: model.ChangeModified, Doc: effective}
	}

	for _, entry := range e.views {
		if entry.desc.Collection != key.Collection {
			continue
		}
		snap := entry.view.ApplyChanges([]model.DocumentChange{change}, prov, false)
		e.deliver(entry, snap)
	}
}

// deliver fans a snapshot out to the entry's listeners, honoring each
// registration's metadata options. Caller holds e.mu.
func (e *Engine) deliver(entry *viewEntry, snap view.Snapshot) {
	for _, reg := range entry.regs {
		if reg.wants(snap) {
			e.dispatcher.publish(reg, snap)
		}
	}
}

// EnableNetwork starts backend connection attempts.
func (e *Engine) EnableNetwork() {
	e.transport.EnableNetwork()
}

// DisableNetwork tears down the backend connection. Views keep answering
// from cache and local writes keep queueing.
func (e *Engine) DisableNetwork() {
	e.transport.DisableNetwork()
}

// Run consumes transport events until the context is canceled or the
// transport closes. It must be called from exactly one goroutine.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-e.transport.Events():
			if !ok {
				return nil
			}
			e.Process(ctx, ev)
		}
	}
}

// Process applies one transport event synchronously. Run calls it for
// every event it consumes; the scenario harness calls it directly so that
// event application stays deterministic.
func (e *Engine) Process(ctx context.Context, ev remote.Event) {
	switch ev.Type {
	case remote.EventChangeBatch:
		if ev.Batch != nil {
			e.handleBatch(ctx, ev.Batch)
		}
	case remote.EventMutationOutcome:
		if ev.Outcome != nil {
			e.handleOutcome(ctx, ev.Outcome)
		}
	case remote.EventConnectionState:
		e.handleConnectionState(ev.State)
	default:
		e.logger.Warn("unknown transport event", "type", ev.Type)
	}
}

// handleBatch applies one server change batch: persist the documents,
// retire acknowledged mutations they confirm, and fold the effective
// documents into the tagged view (authoritative, clears fromCache) and
// into sibling views over the same collections (data only).
func (e *Engine) handleBatch(ctx context.Context, batch *remote.ChangeBatch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	effective := make([]model.DocumentChange, 0, len(batch.Changes))
	collections := make(map[string]bool)
	for _, change := range batch.Changes {
		if change.Doc == nil {
			continue
		}
		key := change.Doc.Key
		collections[key.Collection] = true

		if change.Kind == model.ChangeRemoved {
			if err := e.persistence.RemoveDocument(ctx, key, change.Doc.Version); err != nil {
				e.logger.Error("remove cached document", "document", key.Path(), "error", err)
			}
		} else {
			if err := e.persistence.SetDocument(ctx, change.Doc); err != nil {
				e.logger.Error("cache document", "document", key.Path(), "error", err)
			}
		}

		// the snapshot confirms this document up to its version;
		// acknowledged mutations committed at or below it are now visible
		// in base data, later commits stay overlaid
		e.overlay.RetireAcknowledged(key, change.Doc.Version)

		base, err := e.persistence.GetDocument(ctx, key)
		if err != nil {
			e.logger.Error("load cached document", "document", key.Path(), "error", err)
			continue
		}
		eff := e.overlay.Apply(key, base)
		if eff == nil {
			effective = append(effective, model.DocumentChange{
				Kind: model.ChangeRemoved, Doc: &model.Document{Key: key},
			})
		} else {
			kind := change.Kind
			if kind == model.ChangeRemoved {
				kind = model.ChangeModified // deleted on the server, alive under local writes
			}
			effective = append(effective, model.DocumentChange{Kind: kind, Doc: eff})
		}
	}

	tagged := e.views[batch.QueryKey]
	if tagged != nil {
		snap := tagged.view.ApplyChanges(effective, model.FromServer, batch.Reset)
		e.deliver(tagged, snap)
	}

	// the same documents may appear in other views over these collections;
	// propagate data without claiming server currency for those queries
	for key, entry := range e.views {
		if key == batch.QueryKey || !collections[entry.desc.Collection] {
			continue
		}
		snap := entry.view.ApplyChanges(effective, model.FromCache, false)
		e.deliver(entry, snap)
	}
}

// handleOutcome resolves one mutation against the backend's verdict.
// Duplicate outcomes are ignored, so the write handle resolves exactly
// once.
func (e *Engine) handleOutcome(ctx context.Context, outcome *remote.MutationOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	state := mutation.StateAcknowledged
	if !outcome.Committed {
		state = mutation.StateRejected
	}

	m, err := e.overlay.Resolve(outcome.MutationID, state, outcome.Version)
	if err != nil {
		e.logger.Error("resolve mutation", "mutation", outcome.MutationID, "error", err)
		return
	}
	if m == nil {
		e.logger.Debug("duplicate mutation outcome", "mutation", outcome.MutationID)
		return
	}

	if err := e.persistence.DeleteMutation(ctx, m.ID); err != nil {
		e.logger.Error("delete persisted mutation", "mutation", m.ID, "error", err)
	}

	pw := e.writes[m.ID]
	delete(e.writes, m.ID)

	if outcome.Committed {
		// value stays overlaid until a server snapshot confirms it; only
		// the pending-writes metadata flips now
		e.refreshDocument(ctx, m.Key, model.FromCache)
		e.logger.Debug("write acknowledged", "mutation", m.ID, "document", m.Key.Path())
		if pw != nil {
			pw.fulfill(nil)
		}
		return
	}

	// rejected: the overlay already dropped the mutation, recompute the
	// corrective diff
	e.refreshDocument(ctx, m.Key, model.FromCache)
	e.logger.Warn("write rejected", "mutation", m.ID, "document", m.Key.Path(), "reason", outcome.Err)
	if pw != nil {
		pw.fulfill(&WriteError{MutationID: m.ID, Reason: outcome.Err})
	}
}

// handleConnectionState reacts to transport state transitions: going
// online replays the pending mutation queue; losing the connection marks
// every view from cache.
func (e *Engine) handleConnectionState(state remote.ConnectionState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	wasOnline := e.online
	e.online = state == remote.Online
	e.logger.Info("connection state", "state", state.String())

	if e.online && !wasOnline {
		for _, m := range e.overlay.Pending() {
			e.submit(m)
		}
		return
	}

	if !e.online && wasOnline {
		for _, entry := range e.views {
			if snap, changed := entry.view.MarkFromCache(); changed {
				e.deliver(entry, snap)
			}
		}
	}
}

// Close releases the engine: the transport shuts down (which ends Run),
// in-flight snapshot deliveries drain, and persistence closes.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	err := e.transport.Close()
	e.dispatcher.close()
	if perr := e.persistence.Close(); perr != nil && err == nil {
		err = perr
	}
	return err
}
