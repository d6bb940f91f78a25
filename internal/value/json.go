package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Tagged JSON codec for field values.
//
// Interchange JSON cannot carry NaN, infinities, int64 precision, timestamps,
// or references, so every value is wrapped in a {"type": ..., "value": ...}
// envelope. This encoding is used by the local cache and the websocket
// transport; it is NOT canonical (map key order is unspecified) - use
// MarshalCanonical for identity.

type envelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// MarshalJSONValue encodes a value into its tagged JSON form.
func MarshalJSONValue(v Value) ([]byte, error) {
	env, err := toEnvelope(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// UnmarshalJSONValue decodes a tagged JSON form back into a value.
func UnmarshalJSONValue(data []byte) (Value, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode value envelope: %w", err)
	}
	return fromEnvelope(env)
}

func toEnvelope(v Value) (envelope, error) {
	switch val := v.(type) {
	case Null:
		return envelope{Type: "null"}, nil
	case Boolean:
		return envelope{Type: "bool", Value: rawJSON(bool(val))}, nil
	case Integer:
		// int64 as a string: JSON numbers lose precision past 2^53
		return envelope{Type: "int", Value: rawJSON(strconv.FormatInt(int64(val), 10))}, nil
	case Double:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return envelope{Type: "double", Value: rawJSON(canonicalDouble(f))}, nil
		}
		return envelope{Type: "double", Value: rawJSON(f)}, nil
	case Timestamp:
		return envelope{Type: "timestamp", Value: rawJSON(val.Time.Format(time.RFC3339Nano))}, nil
	case String:
		return envelope{Type: "string", Value: rawJSON(string(val))}, nil
	case Reference:
		return envelope{Type: "reference", Value: rawJSON(string(val))}, nil
	case Array:
		elems := make([]json.RawMessage, len(val))
		for i, elem := range val {
			data, err := MarshalJSONValue(elem)
			if err != nil {
				return envelope{}, fmt.Errorf("array[%d]: %w", i, err)
			}
			elems[i] = data
		}
		return envelope{Type: "array", Value: rawJSON(elems)}, nil
	case Map:
		fields := make(map[string]json.RawMessage, len(val))
		for k, elem := range val {
			data, err := MarshalJSONValue(elem)
			if err != nil {
				return envelope{}, fmt.Errorf("map[%q]: %w", k, err)
			}
			fields[k] = data
		}
		return envelope{Type: "map", Value: rawJSON(fields)}, nil
	default:
		return envelope{}, fmt.Errorf("unsupported value type: %T", v)
	}
}

func fromEnvelope(env envelope) (Value, error) {
	switch env.Type {
	case "null":
		return Null{}, nil
	case "bool":
		var b bool
		if err := json.Unmarshal(env.Value, &b); err != nil {
			return nil, fmt.Errorf("decode bool: %w", err)
		}
		return Boolean(b), nil
	case "int":
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return nil, fmt.Errorf("decode int: %w", err)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode int %q: %w", s, err)
		}
		return Integer(n), nil
	case "double":
		return decodeDouble(env.Value)
	case "timestamp":
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return nil, fmt.Errorf("decode timestamp: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("decode timestamp %q: %w", s, err)
		}
		return NewTimestamp(t), nil
	case "string":
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return nil, fmt.Errorf("decode string: %w", err)
		}
		return String(s), nil
	case "reference":
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return nil, fmt.Errorf("decode reference: %w", err)
		}
		return Reference(s), nil
	case "array":
		var elems []json.RawMessage
		if err := json.Unmarshal(env.Value, &elems); err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
		arr := make(Array, len(elems))
		for i, data := range elems {
			elem, err := UnmarshalJSONValue(data)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = elem
		}
		return arr, nil
	case "map":
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(env.Value, &fields); err != nil {
			return nil, fmt.Errorf("decode map: %w", err)
		}
		m := make(Map, len(fields))
		for k, data := range fields {
			elem, err := UnmarshalJSONValue(data)
			if err != nil {
				return nil, fmt.Errorf("map[%q]: %w", k, err)
			}
			m[k] = elem
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown value type tag %q", env.Type)
	}
}

// decodeDouble accepts either a JSON number or one of the non-finite tokens
// ("NaN", "Infinity", "-Infinity") encoded as a string.
func decodeDouble(data json.RawMessage) (Value, error) {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("decode double: %w", err)
		}
		switch s {
		case "NaN":
			return Double(math.NaN()), nil
		case "Infinity":
			return Double(math.Inf(1)), nil
		case "-Infinity":
			return Double(math.Inf(-1)), nil
		default:
			return nil, fmt.Errorf("unknown double token %q", s)
		}
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode double: %w", err)
	}
	return Double(f), nil
}

// rawJSON marshals v, panicking on failure. Only used for inputs that cannot
// fail to marshal (bools, strings, finite floats, already-encoded messages).
func rawJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("value: marshal of trusted input failed: %v", err))
	}
	return data
}
