package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// SortedKeys returns the map's keys in byte order. Map comparison and
// canonical encoding both iterate keys in this order so the two agree.
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// MarshalCanonical produces a deterministic byte encoding of a value.
// It is the ONLY serialization that should feed identity computation
// (query keys): map keys are sorted, strings are NFC normalized, floats are
// formatted with the shortest round-trippable representation, and the
// non-finite doubles get explicit tokens.
//
// The output is JSON-shaped but not interchange JSON: NaN and the infinities
// are encoded as bare tokens. It never leaves the process.
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshalCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case Null:
		buf.WriteString("null")
		return nil
	case Boolean:
		buf.WriteString(strconv.FormatBool(bool(val)))
		return nil
	case Integer:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
		return nil
	case Double:
		buf.WriteString(canonicalDouble(float64(val)))
		return nil
	case Timestamp:
		buf.WriteString("ts:")
		buf.WriteString(strconv.FormatInt(val.Time.UnixNano(), 10))
		return nil
	case String:
		return writeCanonicalString(buf, string(val))
	case Reference:
		buf.WriteString("ref:")
		return writeCanonicalString(buf, string(val))
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
		return nil
	case Map:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.WriteByte(':')
			if err := marshalCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("unsupported type for canonical encoding: %T", v)
	}
}

// canonicalDouble formats a double deterministically.
// Finite values use the shortest representation that round-trips; the
// non-finite values get fixed tokens so NaN has exactly one encoding.
func canonicalDouble(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

// writeCanonicalString writes a string NFC normalized and JSON quoted with
// HTML escaping disabled. NFC normalization at the encoding boundary keeps
// visually identical strings from producing distinct query keys.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return err
	}

	// json.Encoder adds a trailing newline, drop it
	out := tmp.Bytes()
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	buf.Write(out)
	return nil
}
