// Package strata implements a small relational storage engine: a single
// table abstraction backed by a pluggable primary index (B+ tree, ISAM,
// extendible hashing, sequential file, or R-tree) over a fixed-record heap
// file.
//
// Query parsing, plan execution, transport, and CLI framing are out of
// scope — callers hand strata schema-conformant records and keys, and get
// back records. Strata never sees SQL.
package strata

import "errors"

// Sentinel errors returned by heap, index, and manager operations.
var (
	// ErrNotFound is returned when a key or slot has no live record.
	// Callers treat this as an absence, not a failure.
	ErrNotFound = errors.New("strata: not found")

	// ErrSchemaMismatch is returned when a record's values don't match
	// the table's field count, types, or string lengths.
	ErrSchemaMismatch = errors.New("strata: record does not match schema")

	// ErrCorruptSnapshot is returned when an index snapshot file fails
	// checksum or decode. The Database Manager catches this once and
	// rebuilds the index from the heap.
	ErrCorruptSnapshot = errors.New("strata: corrupt index snapshot")

	// ErrUnsupportedOperation is returned by range or spatial queries on
	// an index kind that doesn't support them.
	ErrUnsupportedOperation = errors.New("strata: operation not supported by this index")

	// ErrClosed names the closed-table condition. Manager methods called
	// after Close do not return it; they fail with the underlying file
	// error instead.
	ErrClosed = errors.New("strata: table is closed")

	// ErrAlreadyDeleted names the condition of a slot that is already on
	// the free list. Heap.RemoveRecord reports that case as (false, nil)
	// and does not return this error.
	ErrAlreadyDeleted = errors.New("strata: slot already on free list")

	// ErrFieldNotFound is returned when a key field name doesn't match
	// any field in the schema.
	ErrFieldNotFound = errors.New("strata: key field not in schema")
)
