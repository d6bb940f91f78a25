package query

import (
	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/value"
)

// Comparator builds the total ordering function for this query's result
// sequence. Ordering clauses apply left to right; the normalized clause list
// always ends with the document identifier, so the order is total: two
// distinct documents never compare equal, which keeps result order stable
// across reapplications even when ordered field values tie.
func (d Descriptor) Comparator() func(a, b *model.Document) int {
	clauses := d.NormalizedOrderBy()
	return func(a, b *model.Document) int {
		for _, clause := range clauses {
			c := compareOn(clause, a, b)
			if c != 0 {
				return c
			}
		}
		return 0
	}
}

func compareOn(clause Order, a, b *model.Document) int {
	var c int
	if clause.Field == model.KeyFieldPath {
		c = a.Key.Compare(b.Key)
	} else {
		av, aok := a.Field(clause.Field)
		bv, bok := b.Field(clause.Field)
		switch {
		case !aok && !bok:
			c = 0
		case !aok:
			// Missing fields sort before every present value. Matched
			// documents always carry the ordered fields; this branch only
			// arises for the implicit range-filter ordering.
			c = -1
		case !bok:
			c = 1
		default:
			c = value.Compare(av, bv)
		}
	}
	if clause.Direction == Descending {
		return -c
	}
	return c
}
