// Table schemas and the fixed-width record layout derived from them.
//
// A schema is an ordered list of scalar Fields plus the index of the key
// field. The on-disk record layout is computed once, deterministically, from
// that field list — the same discipline folio's header.go applies to its
// fixed 128-byte header: the layout must never drift across opens of the
// same file, or every existing offset in the data file becomes garbage.
package strata

import "fmt"

// FieldType enumerates the scalar types a Field may hold.
type FieldType int

const (
	// TypeInt32 is a signed 32-bit integer field.
	TypeInt32 FieldType = iota
	// TypeFloat32 is a 32-bit IEEE-754 float field.
	TypeFloat32
	// TypeString is a fixed-length UTF-8 string field, zero-padded to Size.
	TypeString
)

func (t FieldType) String() string {
	switch t {
	case TypeInt32:
		return "int32"
	case TypeFloat32:
		return "float32"
	case TypeString:
		return "string"
	default:
		return "unknown"
	}
}

// Field describes one column: its name, scalar type, and — for strings —
// the fixed byte width every value of that field occupies on disk.
type Field struct {
	Name string
	Type FieldType
	Size int // byte width; only meaningful for TypeString
}

// width returns the field's fixed on-disk byte width.
func (f Field) width() int {
	switch f.Type {
	case TypeInt32, TypeFloat32:
		return 4
	case TypeString:
		return f.Size
	default:
		return 0
	}
}

// Schema is an ordered field list plus the key field, and the derived
// fixed-width record layout used by pack/unpack and every index and the
// heap file.
type Schema struct {
	Name       string
	Fields     []Field
	KeyIndex   int // index into Fields of the key column
	RecordSize int // sum of field widths + 4 bytes for the next link
}

// NewSchema builds a Schema from an ordered field list and a key field
// name, computing RecordSize exactly once so the on-disk layout is
// reproducible across opens (spec.md §4.1: "record_size(schema) is stable
// across invocations").
func NewSchema(tableName string, fields []Field, keyField string) (*Schema, error) {
	keyIdx := -1
	for i, f := range fields {
		if f.Name == keyField {
			keyIdx = i
			break
		}
	}
	if keyIdx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrFieldNotFound, keyField)
	}

	size := 4 // next link
	for _, f := range fields {
		w := f.width()
		if w <= 0 {
			return nil, fmt.Errorf("strata: field %q has invalid width", f.Name)
		}
		size += w
	}

	return &Schema{
		Name:       tableName,
		Fields:     fields,
		KeyIndex:   keyIdx,
		RecordSize: size,
	}, nil
}

// KeyField returns the Field describing the schema's key column.
func (s *Schema) KeyField() Field {
	return s.Fields[s.KeyIndex]
}
