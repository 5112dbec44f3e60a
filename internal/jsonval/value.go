// Package jsonval holds the duck-typed JSON value helpers shared by the
// response parser pipeline and the outbound request shaping code. The wire
// shape of a chat-completion or message payload varies by dialect and by
// upstream variant, so the pipeline works against a dynamic value instead of
// a fixed struct, validating structure at each access site.
package jsonval

import "encoding/json"

// Value is a decoded JSON object. Most payloads this proxy touches are
// objects at the top level; arrays and scalars are represented with the
// matching Go types ([]any, string, float64, bool, nil) when they show up
// nested inside a Value.
type Value = map[string]any

// Decode parses raw JSON bytes into a Value. It returns ok=false (not an
// error) when the document does not decode to a JSON object, since callers
// routinely need to fall back to forwarding the original bytes unchanged.
func Decode(raw []byte) (Value, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	obj, ok := v.(Value)
	return obj, ok
}

// Encode serializes a Value back to JSON bytes.
func Encode(v Value) ([]byte, error) {
	return json.Marshal(v)
}

// String reads a string field, returning "" if absent or of another type.
func String(v Value, key string) string {
	s, _ := v[key].(string)
	return s
}

// Bool reads a bool field.
func Bool(v Value, key string) bool {
	b, _ := v[key].(bool)
	return b
}

// Object reads a nested object field.
func Object(v Value, key string) (Value, bool) {
	obj, ok := v[key].(Value)
	return obj, ok
}

// Array reads an array field.
func Array(v Value, key string) ([]any, bool) {
	arr, ok := v[key].([]any)
	return arr, ok
}

// Has reports whether key is present in v at all (including an explicit
// null), which matters for "absent vs. explicit" override semantics.
func Has(v Value, key string) bool {
	_, ok := v[key]
	return ok
}

// Clone makes a shallow copy of v suitable for building a rewritten payload
// without mutating the caller's decoded value.
func Clone(v Value) Value {
	out := make(Value, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
