package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/value"
	"github.com/PCreations/syncview/internal/view"
)

// snapshotJSON is the JSON rendering of one snapshot.
type snapshotJSON struct {
	Docs             []docJSON    `json:"docs"`
	Changes          []changeJSON `json:"changes,omitempty"`
	FromCache        bool         `json:"fromCache"`
	HasPendingWrites bool         `json:"hasPendingWrites"`
}

type docJSON struct {
	Path    string          `json:"path"`
	Fields  json.RawMessage `json:"fields"`
	Pending bool            `json:"pending,omitempty"`
}

type changeJSON struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	OldIndex int    `json:"oldIndex"`
	NewIndex int    `json:"newIndex"`
}

// writeSnapshot renders a snapshot in the selected format.
func writeSnapshot(w io.Writer, snap view.Snapshot, format string) error {
	if format == "json" {
		return writeSnapshotJSON(w, snap)
	}
	return writeSnapshotText(w, snap)
}

func writeSnapshotJSON(w io.Writer, snap view.Snapshot) error {
	out := snapshotJSON{
		Docs:             make([]docJSON, len(snap.Docs)),
		FromCache:        snap.FromCache,
		HasPendingWrites: snap.HasPendingWrites,
	}
	for i, doc := range snap.Docs {
		fields := doc.Fields
		if fields == nil {
			fields = value.Map{}
		}
		// Tagged encoding rather than canonical: canonical output carries
		// bare NaN tokens that a JSON consumer would choke on.
		raw, err := value.MarshalJSONValue(fields)
		if err != nil {
			return fmt.Errorf("render %s: %w", doc.Key.Path(), err)
		}
		out.Docs[i] = docJSON{Path: doc.Key.Path(), Fields: raw, Pending: doc.HasLocalMutations}
	}
	for _, c := range snap.Changes {
		out.Changes = append(out.Changes, changeJSON{
			Type:     c.Type.String(),
			Path:     c.Doc.Key.Path(),
			OldIndex: c.OldIndex,
			NewIndex: c.NewIndex,
		})
	}
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func writeSnapshotText(w io.Writer, snap view.Snapshot) error {
	source := "server"
	if snap.FromCache {
		source = "cache"
	}
	fmt.Fprintf(w, "--- %d document(s), source=%s", len(snap.Docs), source)
	if snap.HasPendingWrites {
		fmt.Fprint(w, ", pending writes")
	}
	fmt.Fprintln(w)

	for _, c := range snap.Changes {
		fmt.Fprintf(w, "  %-8s %s\n", c.Type.String(), c.Doc.Key.Path())
	}
	for _, doc := range snap.Docs {
		fields, err := renderFields(doc)
		if err != nil {
			return err
		}
		marker := " "
		if doc.HasLocalMutations {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s %s\n", marker, doc.Key.Path(), fields)
	}
	return nil
}

// renderFields produces the compact human-readable field rendering used by
// the text format. Timestamps and references keep their prefixed form.
func renderFields(doc *model.Document) (string, error) {
	fields := doc.Fields
	if fields == nil {
		fields = value.Map{}
	}
	raw, err := value.MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", doc.Key.Path(), err)
	}
	return string(raw), nil
}
