package query

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/PCreations/syncview/internal/value"
)

// Domain prefix for query identity hashing. The version suffix leaves room
// for changing the canonical form without colliding with old keys.
const keyDomain = "syncview/query/v1"

// Key is the canonical identity of a logical query. Two descriptors that
// normalize to the same clauses share a Key, and therefore share one view
// and one server watch.
type Key string

// CanonicalKey computes the query's canonical identity.
//
// The descriptor is lowered to a value tree over its NORMALIZED form -
// explicit plus implied ordering clauses - then canonically encoded and
// hashed with domain separation (SHA-256 over domain + 0x00 + encoding).
// Using the normalized ordering means a descriptor that spells out the
// implied identifier tie-break is the same query as one that leaves it
// implicit.
func (d Descriptor) CanonicalKey() (Key, error) {
	filters := make(value.Array, len(d.Filters))
	for i, f := range d.Filters {
		filters[i] = value.Map{
			"field": value.String(f.Field),
			"op":    value.String(string(f.Op)),
			"value": f.Value,
		}
	}

	normalized := d.NormalizedOrderBy()
	orderBy := make(value.Array, len(normalized))
	for i, o := range normalized {
		orderBy[i] = value.Map{
			"field": value.String(o.Field),
			"dir":   value.String(o.Direction.String()),
		}
	}

	tree := value.Map{
		"collection": value.String(d.Collection),
		"filters":    filters,
		"orderBy":    orderBy,
		"limit":      value.Integer(d.Limit),
	}

	canonical, err := value.MarshalCanonical(tree)
	if err != nil {
		return "", fmt.Errorf("canonical query encoding: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(keyDomain))
	h.Write([]byte{0x00}) // domain/data separator
	h.Write(canonical)
	return Key(hex.EncodeToString(h.Sum(nil))), nil
}
