package query

import (
	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/value"
)

// Matches evaluates the query predicate against a document.
//
// A document matches when it belongs to the query's collection, satisfies
// every filter clause, and carries every explicitly ordered field. Predicate
// evaluation never errors: a comparison between incompatible types simply
// does not match, so one odd document cannot abort a query.
func (d Descriptor) Matches(doc *model.Document) bool {
	if doc == nil || doc.Fields == nil {
		return false
	}
	if doc.Key.Collection != d.Collection {
		return false
	}
	for _, f := range d.Filters {
		if !f.matches(doc) {
			return false
		}
	}
	// Documents missing an explicitly ordered field are excluded: their
	// position in the result sequence would be undefined.
	for _, o := range d.OrderBy {
		if o.Field == model.KeyFieldPath {
			continue
		}
		if _, ok := doc.Field(o.Field); !ok {
			return false
		}
	}
	return true
}

func (f Filter) matches(doc *model.Document) bool {
	fieldValue, ok := doc.Field(f.Field)
	if !ok {
		return false
	}

	switch f.Op {
	case OpEqual:
		// Equality is total-order equality, so an equality filter on NaN
		// matches exactly the NaN documents. Composed with further filters
		// it behaves as an ordinary conjunct.
		return value.Equal(fieldValue, f.Value)

	case OpNotEqual:
		// NaN never matches a not-equal clause, on either side.
		if value.IsNaN(fieldValue) || value.IsNaN(f.Value) {
			return false
		}
		return sameTypeRank(fieldValue, f.Value) && !value.Equal(fieldValue, f.Value)

	case OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual:
		// Range clauses only relate values of the same type; NaN is outside
		// every range.
		if value.IsNaN(fieldValue) || value.IsNaN(f.Value) {
			return false
		}
		if !sameTypeRank(fieldValue, f.Value) {
			return false
		}
		c := value.Compare(fieldValue, f.Value)
		switch f.Op {
		case OpLessThan:
			return c < 0
		case OpLessThanOrEqual:
			return c <= 0
		case OpGreaterThan:
			return c > 0
		default:
			return c >= 0
		}

	case OpArrayContains:
		arr, ok := fieldValue.(value.Array)
		if !ok {
			return false
		}
		for _, elem := range arr {
			if value.Equal(elem, f.Value) {
				return true
			}
		}
		return false

	case OpIn:
		candidates, ok := f.Value.(value.Array)
		if !ok {
			return false
		}
		for _, candidate := range candidates {
			if value.Equal(fieldValue, candidate) {
				return true
			}
		}
		return false

	default:
		return false
	}
}

// sameTypeRank reports whether two values share a position in the cross-type
// order (numbers count as one type regardless of representation).
func sameTypeRank(a, b value.Value) bool {
	return value.TypeRank(a) == value.TypeRank(b)
}
