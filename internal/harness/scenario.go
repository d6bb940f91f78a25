package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/PCreations/syncview/internal/query"
	"github.com/PCreations/syncview/internal/value"
)

// Scenario defines a conformance scenario: listeners attached to queries
// and a scripted sequence of local writes, server batches and network
// transitions. Running a scenario yields a per-listener trace of delivered
// snapshots for golden comparison.
type Scenario struct {
	// Name uniquely identifies this scenario; the golden file shares it.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description,omitempty"`

	// Listeners are attached before any step runs, in declaration order.
	Listeners []ListenerDef `yaml:"listeners"`

	// Steps execute in order.
	Steps []Step `yaml:"steps"`
}

// ListenerDef attaches one named listener to a query.
type ListenerDef struct {
	Name  string   `yaml:"name"`
	Query QueryDef `yaml:"query"`

	IncludeDocumentMetadataChanges bool `yaml:"includeDocumentMetadataChanges,omitempty"`
	IncludeQueryMetadataChanges    bool `yaml:"includeQueryMetadataChanges,omitempty"`
}

// QueryDef mirrors a query descriptor in YAML form.
type QueryDef struct {
	Collection string      `yaml:"collection"`
	Filters    []FilterDef `yaml:"filters,omitempty"`
	OrderBy    []OrderDef  `yaml:"orderBy,omitempty"`
	Limit      int         `yaml:"limit,omitempty"`
}

type FilterDef struct {
	Field string `yaml:"field"`
	Op    string `yaml:"op"`
	Value any    `yaml:"value"`
}

type OrderDef struct {
	Field     string `yaml:"field"`
	Direction string `yaml:"direction,omitempty"`
}

// Step is a tagged union: exactly one member is set.
type Step struct {
	ServerBatch *ServerBatchStep `yaml:"serverBatch,omitempty"`
	LocalWrite  *LocalWriteStep  `yaml:"localWrite,omitempty"`
	Outcome     *OutcomeStep     `yaml:"outcome,omitempty"`
	Network     string           `yaml:"network,omitempty"` // "online" | "offline"
}

// ServerBatchStep injects one server change batch tagged with a listener's
// query.
type ServerBatchStep struct {
	Listener string      `yaml:"listener"`
	Reset    bool        `yaml:"reset,omitempty"`
	Changes  []ChangeDef `yaml:"changes"`
}

type ChangeDef struct {
	Kind     string         `yaml:"kind"` // "added" | "modified" | "removed"
	Document string         `yaml:"document"`
	Version  int64          `yaml:"version"`
	Fields   map[string]any `yaml:"fields,omitempty"`
}

// LocalWriteStep queues an optimistic write. Writes are numbered in step
// order starting at 1; OutcomeStep refers to them by that number.
type LocalWriteStep struct {
	Document string         `yaml:"document"`
	Set      map[string]any `yaml:"set,omitempty"`
	Delete   []string       `yaml:"delete,omitempty"`
}

// OutcomeStep resolves a previously queued write.
type OutcomeStep struct {
	Write     int    `yaml:"write"` // 1-based local write ordinal
	Committed bool   `yaml:"committed"`
	Version   int64  `yaml:"version,omitempty"`
	Error     string `yaml:"error,omitempty"`
}

// LoadScenario reads one YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("missing name")
	}
	if len(s.Listeners) == 0 {
		return fmt.Errorf("no listeners")
	}
	names := make(map[string]bool, len(s.Listeners))
	for _, l := range s.Listeners {
		if l.Name == "" {
			return fmt.Errorf("listener with no name")
		}
		if names[l.Name] {
			return fmt.Errorf("duplicate listener %q", l.Name)
		}
		names[l.Name] = true
	}

	writes := 0
	for i, step := range s.Steps {
		set := 0
		if step.ServerBatch != nil {
			set++
			if !names[step.ServerBatch.Listener] {
				return fmt.Errorf("step %d: unknown listener %q", i+1, step.ServerBatch.Listener)
			}
		}
		if step.LocalWrite != nil {
			set++
			writes++
		}
		if step.Outcome != nil {
			set++
			if step.Outcome.Write < 1 || step.Outcome.Write > writes {
				return fmt.Errorf("step %d: outcome refers to write %d, %d queued so far",
					i+1, step.Outcome.Write, writes)
			}
		}
		if step.Network != "" {
			set++
			if step.Network != "online" && step.Network != "offline" {
				return fmt.Errorf("step %d: network must be online or offline", i+1)
			}
		}
		if set != 1 {
			return fmt.Errorf("step %d: exactly one action per step, got %d", i+1, set)
		}
	}
	return nil
}

// descriptor lowers a QueryDef.
func (q QueryDef) descriptor() (query.Descriptor, error) {
	desc := query.Descriptor{Collection: q.Collection, Limit: q.Limit}
	for _, f := range q.Filters {
		v, err := value.FromGo(f.Value)
		if err != nil {
			return query.Descriptor{}, fmt.Errorf("filter %s: %w", f.Field, err)
		}
		desc.Filters = append(desc.Filters, query.Filter{
			Field: f.Field,
			Op:    query.Operator(f.Op),
			Value: v,
		})
	}
	for _, o := range q.OrderBy {
		dir := query.Ascending
		if o.Direction == "desc" {
			dir = query.Descending
		}
		desc.OrderBy = append(desc.OrderBy, query.Order{Field: o.Field, Direction: dir})
	}
	if err := desc.Validate(); err != nil {
		return query.Descriptor{}, err
	}
	return desc, nil
}
