// Package harness runs conformance scenarios against the engine.
//
// A scenario attaches named listeners, scripts server batches, local
// writes, outcomes and network transitions, and captures every snapshot
// each listener receives. Event application is synchronous (the harness
// drives Engine.Process directly) and mutation ids come from a fixed
// generator, so a scenario's trace is fully deterministic and can be
// compared against a golden file.
package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/PCreations/syncview/internal/engine"
	"github.com/PCreations/syncview/internal/local"
	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/mutation"
	"github.com/PCreations/syncview/internal/query"
	"github.com/PCreations/syncview/internal/remote"
	"github.com/PCreations/syncview/internal/value"
	"github.com/PCreations/syncview/internal/view"
)

// TraceEvent is one delivered snapshot, rendered to stable strings.
type TraceEvent struct {
	Docs             []string `json:"docs"`
	Changes          []string `json:"changes"`
	FromCache        bool     `json:"fromCache"`
	HasPendingWrites bool     `json:"hasPendingWrites"`
}

// ListenerTrace is the ordered snapshot sequence one listener observed.
type ListenerTrace struct {
	Listener string       `json:"listener"`
	Events   []TraceEvent `json:"events"`
}

// Result is a completed scenario run.
type Result struct {
	Scenario string          `json:"scenario"`
	Traces   []ListenerTrace `json:"traces"`
}

// scriptTransport satisfies the transport interface for scripted runs: the
// harness injects events through Engine.Process, so the event channel only
// matters for shutdown.
type scriptTransport struct {
	mu      sync.Mutex
	events  chan remote.Event
	commits []remote.MutationRequest
	closed  bool
}

func newScriptTransport() *scriptTransport {
	return &scriptTransport{events: make(chan remote.Event)}
}

func (s *scriptTransport) Watch(context.Context, query.Key, query.Descriptor) error { return nil }
func (s *scriptTransport) Unwatch(context.Context, query.Key) error                 { return nil }

func (s *scriptTransport) Commit(_ context.Context, req remote.MutationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits = append(s.commits, req)
	return nil
}

func (s *scriptTransport) Events() <-chan remote.Event { return s.events }
func (s *scriptTransport) EnableNetwork()              {}
func (s *scriptTransport) DisableNetwork()             {}

func (s *scriptTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// recorder collects one listener's snapshots.
type recorder struct {
	mu     sync.Mutex
	events []TraceEvent
}

func (r *recorder) handle(snap view.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, renderSnapshot(snap))
}

// Run executes a scenario against a fresh engine over in-memory
// persistence and returns the per-listener traces.
func Run(s *Scenario) (*Result, error) {
	ctx := context.Background()

	writeIDs := make([]string, 0, len(s.Steps))
	for i, step := range s.Steps {
		if step.LocalWrite != nil {
			writeIDs = append(writeIDs, fmt.Sprintf("write-%d", i+1))
		}
	}

	transport := newScriptTransport()
	eng, err := engine.New(ctx, local.NewMemoryStore(), transport,
		engine.WithWriteIDGenerator(engine.NewFixedGenerator(writeIDs...)),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	recorders := make([]*recorder, len(s.Listeners))
	keys := make(map[string]query.Key, len(s.Listeners))
	for i, l := range s.Listeners {
		desc, err := l.Query.descriptor()
		if err != nil {
			return nil, fmt.Errorf("listener %q: %w", l.Name, err)
		}
		key, err := desc.CanonicalKey()
		if err != nil {
			return nil, fmt.Errorf("listener %q: %w", l.Name, err)
		}
		keys[l.Name] = key

		rec := &recorder{}
		recorders[i] = rec
		_, err = eng.Subscribe(ctx, desc, engine.Options{
			IncludeDocumentMetadataChanges: l.IncludeDocumentMetadataChanges,
			IncludeQueryMetadataChanges:    l.IncludeQueryMetadataChanges,
		}, rec.handle)
		if err != nil {
			return nil, fmt.Errorf("listener %q: %w", l.Name, err)
		}
	}

	writeOrdinal := 0
	for i, step := range s.Steps {
		switch {
		case step.Network != "":
			state := remote.Offline
			if step.Network == "online" {
				state = remote.Online
			}
			eng.Process(ctx, remote.Event{Type: remote.EventConnectionState, State: state})

		case step.ServerBatch != nil:
			changes, err := buildChanges(step.ServerBatch.Changes)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}
			eng.Process(ctx, remote.Event{
				Type: remote.EventChangeBatch,
				Batch: &remote.ChangeBatch{
					QueryKey: keys[step.ServerBatch.Listener],
					Changes:  changes,
					Reset:    step.ServerBatch.Reset,
				},
			})

		case step.LocalWrite != nil:
			writeOrdinal++
			key, err := model.ParseKey(step.LocalWrite.Document)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}
			edits, err := buildEdits(step.LocalWrite)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}
			if _, err := eng.Write(ctx, key, edits); err != nil {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}

		case step.Outcome != nil:
			eng.Process(ctx, remote.Event{
				Type: remote.EventMutationOutcome,
				Outcome: &remote.MutationOutcome{
					MutationID: writeID(s, step.Outcome.Write),
					Committed:  step.Outcome.Committed,
					Version:    step.Outcome.Version,
					Err:        step.Outcome.Error,
				},
			})
		}
	}

	// Close drains the dispatcher, so every published snapshot has reached
	// its recorder before traces are read.
	if err := eng.Close(); err != nil {
		return nil, fmt.Errorf("close engine: %w", err)
	}

	result := &Result{Scenario: s.Name, Traces: make([]ListenerTrace, len(s.Listeners))}
	for i, l := range s.Listeners {
		recorders[i].mu.Lock()
		events := recorders[i].events
		recorders[i].mu.Unlock()
		if events == nil {
			events = []TraceEvent{}
		}
		result.Traces[i] = ListenerTrace{Listener: l.Name, Events: events}
	}
	return result, nil
}

// writeID maps the Nth local write step back to its fixed mutation id.
func writeID(s *Scenario, ordinal int) string {
	n := 0
	for i, step := range s.Steps {
		if step.LocalWrite != nil {
			n++
			if n == ordinal {
				return fmt.Sprintf("write-%d", i+1)
			}
		}
	}
	return ""
}

func buildChanges(defs []ChangeDef) ([]model.DocumentChange, error) {
	out := make([]model.DocumentChange, 0, len(defs))
	for _, def := range defs {
		key, err := model.ParseKey(def.Document)
		if err != nil {
			return nil, err
		}
		var kind model.ChangeKind
		switch def.Kind {
		case "added":
			kind = model.ChangeAdded
		case "modified":
			kind = model.ChangeModified
		case "removed":
			kind = model.ChangeRemoved
		default:
			return nil, fmt.Errorf("change %s: unknown kind %q", def.Document, def.Kind)
		}

		doc := &model.Document{Key: key, Version: def.Version}
		if kind != model.ChangeRemoved {
			fields := make(value.Map, len(def.Fields))
			for name, raw := range def.Fields {
				v, err := value.FromGo(raw)
				if err != nil {
					return nil, fmt.Errorf("change %s field %s: %w", def.Document, name, err)
				}
				fields[name] = v
			}
			doc.Fields = fields
		}
		out = append(out, model.DocumentChange{Kind: kind, Doc: doc})
	}
	return out, nil
}

// buildEdits lowers a write step: sets in path order, then deletes in path
// order, so identical YAML always yields identical mutations.
func buildEdits(w *LocalWriteStep) ([]mutation.FieldMutation, error) {
	paths := make([]string, 0, len(w.Set))
	for path := range w.Set {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	edits := make([]mutation.FieldMutation, 0, len(paths)+len(w.Delete))
	for _, path := range paths {
		v, err := value.FromGo(w.Set[path])
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", path, err)
		}
		edits = append(edits, mutation.FieldMutation{Path: path, Value: v})
	}
	deletes := append([]string(nil), w.Delete...)
	sort.Strings(deletes)
	for _, path := range deletes {
		edits = append(edits, mutation.FieldMutation{Path: path})
	}
	return edits, nil
}

func renderSnapshot(snap view.Snapshot) TraceEvent {
	ev := TraceEvent{
		Docs:             make([]string, len(snap.Docs)),
		Changes:          make([]string, len(snap.Changes)),
		FromCache:        snap.FromCache,
		HasPendingWrites: snap.HasPendingWrites,
	}
	for i, doc := range snap.Docs {
		ev.Docs[i] = renderDoc(doc)
	}
	for i, c := range snap.Changes {
		ev.Changes[i] = fmt.Sprintf("%s %s [%d -> %d]",
			c.Type.String(), c.Doc.Key.Path(), c.OldIndex, c.NewIndex)
	}
	return ev
}

func renderDoc(doc *model.Document) string {
	fields := doc.Fields
	if fields == nil {
		fields = value.Map{}
	}
	canonical, err := value.MarshalCanonical(fields)
	if err != nil {
		canonical = []byte(fmt.Sprintf("<unencodable: %v>", err))
	}
	return fmt.Sprintf("%s %s", doc.Key.Path(), canonical)
}
