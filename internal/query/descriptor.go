package query

import (
	"fmt"

	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/value"
)

// Operator is a filter clause operator.
type Operator string

const (
	OpEqual              Operator = "=="
	OpNotEqual           Operator = "!="
	OpLessThan           Operator = "<"
	OpLessThanOrEqual    Operator = "<="
	OpGreaterThan        Operator = ">"
	OpGreaterThanOrEqual Operator = ">="
	OpArrayContains      Operator = "array-contains"
	OpIn                 Operator = "in"
)

// Direction is an ordering clause direction.
type Direction int

const (
	Ascending Direction = iota + 1
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// Filter is one (field, operator, value) clause. All clauses on a
// descriptor are conjoined.
type Filter struct {
	Field string
	Op    Operator
	Value value.Value
}

// Order is one ordering clause.
type Order struct {
	Field     string
	Direction Direction
}

// Descriptor is an already-parsed query over one collection: conjoined
// filter clauses, ordering clauses, and an optional limit. Descriptors are
// immutable once constructed; the engine shares them freely across views
// and registrations.
//
// The descriptor never carries user-facing query syntax - the builder
// surface that produces it lives outside this module.
type Descriptor struct {
	Collection string
	Filters    []Filter
	OrderBy    []Order
	Limit      int // 0 means no limit
}

// Validate checks structural soundness: known operators, known directions,
// non-empty collection and field names, array operand for "in".
func (d Descriptor) Validate() error {
	if d.Collection == "" {
		return fmt.Errorf("query has no collection")
	}
	if d.Limit < 0 {
		return fmt.Errorf("negative limit %d", d.Limit)
	}
	for _, f := range d.Filters {
		if f.Field == "" {
			return fmt.Errorf("filter has empty field")
		}
		switch f.Op {
		case OpEqual, OpNotEqual, OpLessThan, OpLessThanOrEqual,
			OpGreaterThan, OpGreaterThanOrEqual, OpArrayContains:
		case OpIn:
			if _, ok := f.Value.(value.Array); !ok {
				return fmt.Errorf("filter %s %s: operand must be an array", f.Field, f.Op)
			}
		default:
			return fmt.Errorf("unknown operator %q", f.Op)
		}
		if f.Value == nil {
			return fmt.Errorf("filter %s %s has no value", f.Field, f.Op)
		}
	}
	for _, o := range d.OrderBy {
		if o.Field == "" {
			return fmt.Errorf("order clause has empty field")
		}
		if o.Direction != Ascending && o.Direction != Descending {
			return fmt.Errorf("order clause %s has invalid direction", o.Field)
		}
	}
	return nil
}

// isInequality reports whether the operator constrains a range.
func (o Operator) isInequality() bool {
	switch o {
	case OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual, OpNotEqual:
		return true
	}
	return false
}

// inequalityField returns the field of the first range filter, if any.
func (d Descriptor) inequalityField() (string, bool) {
	for _, f := range d.Filters {
		if f.Op.isInequality() {
			return f.Field, true
		}
	}
	return "", false
}

// NormalizedOrderBy returns the effective ordering clauses:
//
//  1. the explicit orderBy clauses;
//  2. if there are none and the query has a range filter, an implicit
//     ascending order on that field;
//  3. a trailing order on the document identifier, inheriting the direction
//     of the last preceding clause, so that descending queries invert the
//     identifier tie-break too.
func (d Descriptor) NormalizedOrderBy() []Order {
	out := make([]Order, 0, len(d.OrderBy)+2)
	hasKeyOrder := false
	for _, o := range d.OrderBy {
		out = append(out, o)
		if o.Field == model.KeyFieldPath {
			hasKeyOrder = true
		}
	}
	if len(out) == 0 {
		if field, ok := d.inequalityField(); ok {
			out = append(out, Order{Field: field, Direction: Ascending})
		}
	}
	if !hasKeyOrder {
		dir := Ascending
		if len(out) > 0 {
			dir = out[len(out)-1].Direction
		}
		out = append(out, Order{Field: model.KeyFieldPath, Direction: dir})
	}
	return out
}
