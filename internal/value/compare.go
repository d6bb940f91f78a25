package value

import (
	"math"
	"strings"
)

// TypeRank assigns each value type its position in the cross-type total
// order: null < boolean < number < timestamp < string < reference < array < map.
// Integer and Double share a rank; they compare by numeric value.
func TypeRank(v Value) int {
	switch v.(type) {
	case Null:
		return 0
	case Boolean:
		return 1
	case Integer, Double:
		return 2
	case Timestamp:
		return 3
	case String:
		return 4
	case Reference:
		return 5
	case Array:
		return 6
	case Map:
		return 7
	default:
		panic("value: unknown type in total order")
	}
}

// Compare imposes a total order over all field values.
// Returns -1, 0, or 1.
//
// Values of different types order by type rank. Within a type:
//   - numbers compare by value regardless of representation (42 == 42.0);
//     NaN orders before every other number and is equal only to NaN
//   - strings and references compare lexicographically by bytes
//   - arrays compare element-wise, shorter prefix first
//   - maps compare by sorted key sequence, then values per key
func Compare(a, b Value) int {
	ra, rb := TypeRank(a), TypeRank(b)
	if ra != rb {
		return ordered(ra, rb)
	}

	switch av := a.(type) {
	case Null:
		return 0
	case Boolean:
		return compareBooleans(av, b.(Boolean))
	case Integer, Double:
		return compareNumbers(a, b)
	case Timestamp:
		return compareTimestamps(av, b.(Timestamp))
	case String:
		return strings.Compare(string(av), string(b.(String)))
	case Reference:
		return strings.Compare(string(av), string(b.(Reference)))
	case Array:
		return compareArrays(av, b.(Array))
	case Map:
		return compareMaps(av, b.(Map))
	default:
		panic("value: unknown type in Compare")
	}
}

// Equal reports whether a and b are the same value under the total order.
// NaN is equal to NaN here; equality filters rely on that.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

// IsNaN reports whether v is the Double NaN value.
func IsNaN(v Value) bool {
	d, ok := v.(Double)
	return ok && math.IsNaN(float64(d))
}

func ordered[T int | int64 | float64](a, b T) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func compareBooleans(a, b Boolean) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

// compareNumbers orders Integer and Double values numerically.
// NaN sorts before all other numbers; two NaNs are equal. Mixed
// integer/double pairs compare through float64, which is exact for every
// int64 a double can also represent and close enough for ordering elsewhere:
// ties at the precision boundary are broken deterministically downstream by
// document identifier.
func compareNumbers(a, b Value) int {
	an, aNaN := numberValue(a)
	bn, bNaN := numberValue(b)

	if aNaN || bNaN {
		if aNaN && bNaN {
			return 0
		}
		if aNaN {
			return -1
		}
		return 1
	}

	ai, aIsInt := a.(Integer)
	bi, bIsInt := b.(Integer)
	if aIsInt && bIsInt {
		return ordered(int64(ai), int64(bi))
	}

	return ordered(an, bn)
}

func numberValue(v Value) (f float64, nan bool) {
	switch n := v.(type) {
	case Integer:
		return float64(n), false
	case Double:
		return float64(n), math.IsNaN(float64(n))
	default:
		panic("value: non-number in compareNumbers")
	}
}

func compareTimestamps(a, b Timestamp) int {
	if a.Time.Before(b.Time) {
		return -1
	}
	if a.Time.After(b.Time) {
		return 1
	}
	return 0
}

func compareArrays(a, b Array) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return ordered(len(a), len(b))
}

// compareMaps orders maps by interleaved (key, value) comparison over the
// sorted key sequences, then by size.
func compareMaps(a, b Map) int {
	ak := a.SortedKeys()
	bk := b.SortedKeys()

	n := len(ak)
	if len(bk) < n {
		n = len(bk)
	}
	for i := 0; i < n; i++ {
		if c := strings.Compare(ak[i], bk[i]); c != 0 {
			return c
		}
		if c := Compare(a[ak[i]], b[bk[i]]); c != 0 {
			return c
		}
	}
	return ordered(len(ak), len(bk))
}
