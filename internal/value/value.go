package value

import (
	"fmt"
	"time"
)

// Value is a sealed interface over the closed set of field value types a
// document can hold. Only Null, Boolean, Integer, Double, Timestamp, String,
// Reference, Array, and Map implement it.
//
// The set is closed on purpose: ordering, predicate evaluation, and the wire
// codec all exhaustively switch over these types, and an open set would make
// the total order in Compare unsound.
type Value interface {
	value() // Sealed - only the types in this package implement it
}

// Null represents an explicit null field value.
// Null is a real value with a position in the total order (before everything
// else), not the absence of a field.
type Null struct{}

func (Null) value() {}

// Boolean represents a boolean field value.
type Boolean bool

func (Boolean) value() {}

// Integer represents a 64-bit integer field value.
// Integers and Doubles occupy the same position in the type order and
// compare by numeric value: Integer(42) orders equal to Double(42.0).
type Integer int64

func (Integer) value() {}

// Double represents an IEEE-754 double field value.
// NaN and the infinities are legal values. NaN orders before every other
// number and is equal only to itself.
type Double float64

func (Double) value() {}

// String represents a UTF-8 string field value.
type String string

func (String) value() {}

// Timestamp represents a point-in-time field value with nanosecond precision.
type Timestamp struct {
	Time time.Time
}

func (Timestamp) value() {}

// Reference represents a pointer to another document, stored as the target's
// path ("collection/id"). References are opaque identifiers resolved through
// the cache, never embedded documents, so the ownership graph stays acyclic.
type Reference string

func (Reference) value() {}

// Array represents an ordered list of values.
type Array []Value

func (Array) value() {}

// Map represents a nested mapping of field name to value.
type Map map[string]Value

func (Map) value() {}

// NewTimestamp creates a Timestamp truncated to nanosecond precision in UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// FromGo converts a native Go value into a Value.
// Supported inputs: nil, bool, string, all integer widths, float32/64,
// time.Time, []any, and map[string]any. Used at tooling boundaries
// (scenario files, query definition files); the core only ever sees Values.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Boolean(val), nil
	case string:
		return String(val), nil
	case int:
		return Integer(val), nil
	case int32:
		return Integer(val), nil
	case int64:
		return Integer(val), nil
	case uint:
		return Integer(val), nil
	case uint32:
		return Integer(val), nil
	case float32:
		return Double(val), nil
	case float64:
		return Double(val), nil
	case time.Time:
		return NewTimestamp(val), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			converted, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = converted
		}
		return arr, nil
	case map[string]any:
		m := make(Map, len(val))
		for k, elem := range val {
			converted, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("map[%q]: %w", k, err)
			}
			m[k] = converted
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported field value type: %T", v)
	}
}

// Clone returns a deep copy of v. Scalar values are returned as-is; arrays
// and maps are copied recursively so callers can mutate the copy freely.
func Clone(v Value) Value {
	switch val := v.(type) {
	case Array:
		out := make(Array, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case Map:
		out := make(Map, len(val))
		for k, elem := range val {
			out[k] = Clone(elem)
		}
		return out
	default:
		return v
	}
}
