// Type-preserving JSON encoding for key values.
//
// Every index stores keys as `any` holding one of the schema's three
// scalar types (record.go). goccy/go-json, like encoding/json, decodes a
// bare JSON number back into float64 regardless of whether it started
// life as an int32 or a float32 — which would silently turn every int32
// key into a float64 on snapshot load and make compareKeys panic the next
// time it compares against a freshly-read int32 heap key. wireKey tags
// each value with its type on the way out and restores the exact Go type
// on the way in, so a saved snapshot round-trips through persistence.go
// without corrupting key types.
package strata

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// wireKey is the JSON-safe form of a key value.
type wireKey struct {
	V any
}

type wireKeyWire struct {
	T string  `json:"t"`
	I int32   `json:"i,omitempty"`
	F float32 `json:"f,omitempty"`
	S string  `json:"s,omitempty"`
}

func (k wireKey) MarshalJSON() ([]byte, error) {
	switch v := k.V.(type) {
	case int32:
		return json.Marshal(wireKeyWire{T: "i32", I: v})
	case float32:
		return json.Marshal(wireKeyWire{T: "f32", F: v})
	case string:
		return json.Marshal(wireKeyWire{T: "str", S: v})
	default:
		return nil, fmt.Errorf("strata: unsupported key type %T", k.V)
	}
}

func (k *wireKey) UnmarshalJSON(data []byte) error {
	var w wireKeyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.T {
	case "i32":
		k.V = w.I
	case "f32":
		k.V = w.F
	case "str":
		k.V = w.S
	default:
		return ErrCorruptSnapshot
	}
	return nil
}

func toWireKey(v any) wireKey { return wireKey{V: v} }

func fromWireKey(w wireKey) any { return w.V }

func toWireKeys(xs []any) []wireKey {
	out := make([]wireKey, len(xs))
	for i, x := range xs {
		out[i] = toWireKey(x)
	}
	return out
}

func fromWireKeys(xs []wireKey) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = fromWireKey(x)
	}
	return out
}
