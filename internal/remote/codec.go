package remote

import (
	"encoding/json"
	"fmt"

	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/query"
	"github.com/PCreations/syncview/internal/value"
)

// Wire forms for query descriptors and document changes. Field values ride
// inside the tagged value envelope so NaN, infinities and int64 precision
// survive the trip.

type wireDescriptor struct {
	Collection string       `json:"collection"`
	Filters    []wireFilter `json:"filters,omitempty"`
	OrderBy    []wireOrder  `json:"orderBy,omitempty"`
	Limit      int          `json:"limit,omitempty"`
}

type wireFilter struct {
	Field string          `json:"field"`
	Op    string          `json:"op"`
	Value json.RawMessage `json:"value"`
}

type wireOrder struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

type wireChange struct {
	Kind     string                     `json:"kind"` // "added" | "modified" | "removed"
	Document string                     `json:"document"`
	Version  int64                      `json:"version"`
	Fields   map[string]json.RawMessage `json:"fields,omitempty"`
}

func descriptorWire(d query.Descriptor) wireDescriptor {
	out := wireDescriptor{Collection: d.Collection, Limit: d.Limit}
	for _, f := range d.Filters {
		raw, err := value.MarshalJSONValue(f.Value)
		if err != nil {
			// descriptors are validated before watch; values always encode
			raw = json.RawMessage(`{"type":"null"}`)
		}
		out.Filters = append(out.Filters, wireFilter{Field: f.Field, Op: string(f.Op), Value: raw})
	}
	for _, o := range d.OrderBy {
		out.OrderBy = append(out.OrderBy, wireOrder{Field: o.Field, Direction: o.Direction.String()})
	}
	return out
}

func decodeWireChanges(raw json.RawMessage) ([]model.DocumentChange, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var wire []wireChange
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode changes: %w", err)
	}

	out := make([]model.DocumentChange, 0, len(wire))
	for _, wc := range wire {
		key, err := model.ParseKey(wc.Document)
		if err != nil {
			return nil, fmt.Errorf("change %q: %w", wc.Document, err)
		}

		var kind model.ChangeKind
		switch wc.Kind {
		case "added":
			kind = model.ChangeAdded
		case "modified":
			kind = model.ChangeModified
		case "removed":
			kind = model.ChangeRemoved
		default:
			return nil, fmt.Errorf("change %q: unknown kind %q", wc.Document, wc.Kind)
		}

		doc := &model.Document{Key: key, Version: wc.Version}
		if kind != model.ChangeRemoved {
			fields := make(value.Map, len(wc.Fields))
			for name, rawVal := range wc.Fields {
				v, err := value.UnmarshalJSONValue(rawVal)
				if err != nil {
					return nil, fmt.Errorf("change %q field %q: %w", wc.Document, name, err)
				}
				fields[name] = v
			}
			doc.Fields = fields
		}

		out = append(out, model.DocumentChange{Kind: kind, Doc: doc})
	}
	return out, nil
}

// EncodeWireChanges is the inverse of the batch decoder. It exists for the
// scenario harness and tests, which fabricate server batches.
func EncodeWireChanges(changes []model.DocumentChange) (json.RawMessage, error) {
	wire := make([]wireChange, 0, len(changes))
	for _, c := range changes {
		wc := wireChange{Document: c.Doc.Key.Path(), Version: c.Doc.Version}
		switch c.Kind {
		case model.ChangeAdded:
			wc.Kind = "added"
		case model.ChangeModified:
			wc.Kind = "modified"
		case model.ChangeRemoved:
			wc.Kind = "removed"
		default:
			return nil, fmt.Errorf("change %q: unknown kind %d", c.Doc.Key.Path(), c.Kind)
		}
		if c.Kind != model.ChangeRemoved {
			wc.Fields = make(map[string]json.RawMessage, len(c.Doc.Fields))
			for name, v := range c.Doc.Fields {
				raw, err := value.MarshalJSONValue(v)
				if err != nil {
					return nil, fmt.Errorf("change %q field %q: %w", c.Doc.Key.Path(), name, err)
				}
				wc.Fields[name] = raw
			}
		}
		wire = append(wire, wc)
	}
	return json.Marshal(wire)
}
