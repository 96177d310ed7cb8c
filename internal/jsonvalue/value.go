// Package jsonvalue provides a dynamic JSON tree type used by config, tool
// parameters, and transport payloads throughout convoy. It stays weakly
// typed at these public surfaces and is converted to concrete Go types only
// at the boundary of whichever component consumes it, per the "keep JSON
// weakly typed at the public surface" design note.
package jsonvalue

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Value wraps a raw JSON document and offers dotted-path navigation without
// requiring the caller to unmarshal into a concrete struct.
type Value struct {
	raw string
}

// Null is the empty Value; all accessors against it behave as "not present".
var Null = Value{}

// Parse wraps a raw JSON document. An invalid document is still stored
// verbatim; accessors simply report "not present" for any path against it.
func Parse(raw string) Value {
	return Value{raw: raw}
}

// ParseBytes is the []byte-accepting form of Parse.
func ParseBytes(raw []byte) Value {
	return Value{raw: string(raw)}
}

// String returns the underlying raw JSON text ("{}" for the zero Value).
func (v Value) String() string {
	if v.raw == "" {
		return "{}"
	}
	return v.raw
}

// Raw returns the raw JSON text exactly as stored, including "" for the
// zero Value (unlike String, which substitutes "{}").
func (v Value) Raw() string {
	return v.raw
}

// IsZero reports whether this Value has never been assigned a document.
func (v Value) IsZero() bool {
	return v.raw == ""
}

// Exists reports whether v itself holds a parsed value (including null).
func (v Value) Exists() bool {
	return v.raw != "" && gjson.Parse(v.raw).Exists()
}

// Valid reports whether raw is syntactically valid JSON. Unlike Parse,
// which stores any text verbatim and defers to per-accessor defaults, Valid
// gives callers (e.g. the agent loop's tool-call extractor) a way to reject
// malformed payloads up front.
func Valid(raw string) bool {
	return gjson.Valid(raw)
}

// Get navigates to the dotted/indexed path (gjson syntax, e.g.
// "bot.app_name" or "plugins.0") and returns the sub-tree as a Value. A
// missing path yields the zero Value, for which every typed accessor
// returns its default.
func (v Value) Get(path string) Value {
	r := gjson.Get(v.raw, path)
	if !r.Exists() {
		return Value{}
	}
	return Value{raw: r.Raw}
}

// Has reports whether path resolves to a present (possibly null) value.
func (v Value) Has(path string) bool {
	return gjson.Get(v.raw, path).Exists()
}

// AsString returns the string form of the value at the root of v (the raw
// JSON text for an object or array), or def if absent.
func (v Value) AsString(def string) string {
	if v.raw == "" {
		return def
	}
	r := gjson.Parse(v.raw)
	if !r.Exists() {
		return def
	}
	return r.String()
}

// AsInt returns the integer value at the root of v, or def if absent.
func (v Value) AsInt(def int64) int64 {
	if v.raw == "" {
		return def
	}
	r := gjson.Parse(v.raw)
	if !r.Exists() {
		return def
	}
	return r.Int()
}

// AsFloat returns the float value at the root of v, or def if absent.
func (v Value) AsFloat(def float64) float64 {
	if v.raw == "" {
		return def
	}
	r := gjson.Parse(v.raw)
	if !r.Exists() {
		return def
	}
	return r.Float()
}

// AsBool returns the boolean value at the root of v, or def if absent.
func (v Value) AsBool(def bool) bool {
	if v.raw == "" {
		return def
	}
	r := gjson.Parse(v.raw)
	if !r.Exists() {
		return def
	}
	return r.Bool()
}

// IsArray reports whether the root of v is a JSON array.
func (v Value) IsArray() bool {
	return v.raw != "" && gjson.Parse(v.raw).IsArray()
}

// IsObject reports whether the root of v is a JSON object.
func (v Value) IsObject() bool {
	return v.raw != "" && gjson.Parse(v.raw).IsObject()
}

// Array returns each element of a JSON array as a Value. Non-arrays yield
// an empty slice.
func (v Value) Array() []Value {
	if !v.IsArray() {
		return nil
	}
	items := gjson.Parse(v.raw).Array()
	out := make([]Value, 0, len(items))
	for _, item := range items {
		out = append(out, Value{raw: item.Raw})
	}
	return out
}

// Keys returns the keys of a JSON object in iteration order. Non-objects
// yield an empty slice.
func (v Value) Keys() []string {
	if !v.IsObject() {
		return nil
	}
	var keys []string
	gjson.Parse(v.raw).ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	return keys
}

// Set returns a new Value with path set to value (an arbitrary Go value
// accepted by sjson: string, number, bool, map, slice, or another Value via
// its Raw form).
func (v Value) Set(path string, value any) (Value, error) {
	base := v.raw
	if base == "" {
		base = "{}"
	}
	if nested, ok := value.(Value); ok {
		out, err := sjson.SetRaw(base, path, nested.String())
		if err != nil {
			return v, err
		}
		return Value{raw: out}, nil
	}
	out, err := sjson.Set(base, path, value)
	if err != nil {
		return v, err
	}
	return Value{raw: out}, nil
}

// Delete returns a new Value with path removed.
func (v Value) Delete(path string) (Value, error) {
	if v.raw == "" {
		return v, nil
	}
	out, err := sjson.Delete(v.raw, path)
	if err != nil {
		return v, err
	}
	return Value{raw: out}, nil
}

// MarshalJSON implements json.Marshaler so Value nests cleanly inside typed
// structs at component boundaries.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.raw == "" {
		return []byte("null"), nil
	}
	return []byte(v.raw), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	v.raw = string(data)
	return nil
}
