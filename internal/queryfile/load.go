// Package queryfile loads named query definitions from CUE files.
//
// A query file declares queries under a top-level "queries" struct; the
// embedded schema constrains field names, operators and directions before
// anything is decoded, so malformed files fail with CUE's positioned
// errors rather than downstream validation ones.
package queryfile

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/PCreations/syncview/internal/query"
	"github.com/PCreations/syncview/internal/value"
)

//go:embed schema.cue
var schemaCUE []byte

// NamedQuery pairs a query's declared name with its descriptor.
type NamedQuery struct {
	Name       string
	Descriptor query.Descriptor
}

type rawQuery struct {
	Collection string      `json:"collection"`
	Filters    []rawFilter `json:"filters"`
	OrderBy    []rawOrder  `json:"orderBy"`
	Limit      int         `json:"limit"`
}

type rawFilter struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

type rawOrder struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// LoadFile reads one CUE query file and returns its queries sorted by name.
func LoadFile(path string) ([]NamedQuery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read query file: %w", err)
	}
	return Load(data, path)
}

// Load parses CUE source against the query schema. filename is used in
// error positions only.
func Load(src []byte, filename string) ([]NamedQuery, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile query schema: %w", err)
	}

	file := ctx.CompileBytes(src, cue.Filename(filename))
	if err := file.Err(); err != nil {
		return nil, fmt.Errorf("compile query file: %w", err)
	}

	unified := schema.Unify(file)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate query file: %w", err)
	}

	queriesVal := unified.LookupPath(cue.ParsePath("queries"))
	if !queriesVal.Exists() {
		return nil, fmt.Errorf("query file %s: no queries declared", filename)
	}

	var raw map[string]rawQuery
	if err := queriesVal.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode queries: %w", err)
	}

	out := make([]NamedQuery, 0, len(raw))
	for name, rq := range raw {
		desc, err := toDescriptor(rq)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", name, err)
		}
		out = append(out, NamedQuery{Name: name, Descriptor: desc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func toDescriptor(rq rawQuery) (query.Descriptor, error) {
	desc := query.Descriptor{Collection: rq.Collection, Limit: rq.Limit}

	for _, f := range rq.Filters {
		v, err := value.FromGo(f.Value)
		if err != nil {
			return query.Descriptor{}, fmt.Errorf("filter %s %s: %w", f.Field, f.Op, err)
		}
		desc.Filters = append(desc.Filters, query.Filter{
			Field: f.Field,
			Op:    query.Operator(f.Op),
			Value: v,
		})
	}

	for _, o := range rq.OrderBy {
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
