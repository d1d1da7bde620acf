// Fixed-binary record pack/unpack.
//
// Every record is encoded as each field's value in schema order, little-
// endian, followed by the 4-byte signed `next` link (spec.md §3, §4.1).
// Strings are UTF-8, zero-padded to the field's declared width; encoding a
// string longer than that width is a schema mismatch, not a silent
// truncation — callers must catch oversized values before they corrupt a
// neighboring field's bytes.
package strata

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Tombstone/free-list sentinels for Record.Next, per spec.md §3.
const (
	nextLive      int32 = 0  // live record
	nextTombstone int32 = -1 // logically deleted (Sequential File only)
	// next >= 1: this slot is on the heap free list; Next is the next
	// free slot (or the free-list's own end-of-list sentinel, -1).
)

// Record is an ordered sequence of values matching a Schema, plus the
// tombstone/free-list link and the in-memory slot it was read from.
type Record struct {
	Values []any
	Next   int32
	Pos    int64 // heap slot; assigned on read, not persisted
}

// Key returns the value of the schema's key field.
func (r *Record) Key(s *Schema) any {
	return r.Values[s.KeyIndex]
}

// NewRecord validates values against the schema and returns a live record
// (Next == 0). Strings shorter than their field's size are accepted and
// zero-padded on pack; longer strings are rejected here, per spec.md §3.
func NewRecord(s *Schema, values []any) (*Record, error) {
	if len(values) != len(s.Fields) {
		return nil, fmt.Errorf("%w: got %d values, schema has %d fields", ErrSchemaMismatch, len(values), len(s.Fields))
	}
	for i, f := range s.Fields {
		if err := checkValue(f, values[i]); err != nil {
			return nil, err
		}
	}
	return &Record{Values: values, Next: nextLive, Pos: -1}, nil
}

func checkValue(f Field, v any) error {
	switch f.Type {
	case TypeInt32:
		if _, ok := v.(int32); !ok {
			return fmt.Errorf("%w: field %q wants int32, got %T", ErrSchemaMismatch, f.Name, v)
		}
	case TypeFloat32:
		if _, ok := v.(float32); !ok {
			return fmt.Errorf("%w: field %q wants float32, got %T", ErrSchemaMismatch, f.Name, v)
		}
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: field %q wants string, got %T", ErrSchemaMismatch, f.Name, v)
		}
		if len(s) > f.Size {
			return fmt.Errorf("%w: field %q value %d bytes exceeds size %d", ErrSchemaMismatch, f.Name, len(s), f.Size)
		}
	}
	return nil
}

// pack encodes a record to exactly schema.RecordSize bytes: each field in
// declared order, little-endian, then the 4-byte next link.
func pack(s *Schema, r *Record) ([]byte, error) {
	if len(r.Values) != len(s.Fields) {
		return nil, fmt.Errorf("%w: got %d values, schema has %d fields", ErrSchemaMismatch, len(r.Values), len(s.Fields))
	}

	buf := make([]byte, s.RecordSize)
	off := 0
	for i, f := range s.Fields {
		if err := checkValue(f, r.Values[i]); err != nil {
			return nil, err
		}
		switch f.Type {
		case TypeInt32:
			binary.LittleEndian.PutUint32(buf[off:], uint32(r.Values[i].(int32)))
			off += 4
		case TypeFloat32:
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(r.Values[i].(float32)))
			off += 4
		case TypeString:
			str := r.Values[i].(string)
			copy(buf[off:off+f.Size], str) // remainder stays zero (padding)
			off += f.Size
		}
	}
	binary.LittleEndian.PutUint32(buf[off:], uint32(r.Next))
	return buf, nil
}

// unpack decodes schema.RecordSize bytes into a Record. Trailing zero
// bytes are stripped from string fields.
func unpack(s *Schema, data []byte) (*Record, error) {
	if len(data) != s.RecordSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrSchemaMismatch, len(data), s.RecordSize)
	}

	values := make([]any, len(s.Fields))
	off := 0
	for i, f := range s.Fields {
		switch f.Type {
		case TypeInt32:
			values[i] = int32(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		case TypeFloat32:
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		case TypeString:
			raw := data[off : off+f.Size]
			end := len(raw)
			for end > 0 && raw[end-1] == 0 {
				end--
			}
			values[i] = string(raw[:end])
			off += f.Size
		}
	}
	next := int32(binary.LittleEndian.Uint32(data[off:]))
	return &Record{Values: values, Next: next, Pos: -1}, nil
}

// keyBytes produces a canonical byte encoding of a key value, used as the
// input to hashKey (extendible hash) and to the existence filter. Index
// snapshots encode keys with keycodec.go's wireKey instead.
func keyBytes(v any) []byte {
	switch x := v.(type) {
	case int32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(x))
		return b[:]
	case float32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(x))
		return b[:]
	case string:
		return []byte(x)
	default:
		return nil
	}
}

// compareKeys total-orders two key values of the same underlying type.
// Returns -1, 0, or 1. Panics on mismatched types — a schema invariant
// the caller (every index) is responsible for upholding.
func compareKeys(a, b any) int {
	switch x := a.(type) {
	case int32:
		y := b.(int32)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case float32:
		y := b.(float32)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case string:
		y := b.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	default:
		panic(fmt.Sprintf("strata: unsupported key type %T", a))
	}
}
