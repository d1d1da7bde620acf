// Optional existence filter consulted ahead of point lookups.
//
// Grounded on folio's bloom.go (a hand-rolled bit array it checks for key
// existence before a file scan), with the bit array replaced here by the
// bits-and-blooms/bloom library.
//
// A negative test here is authoritative (the key is definitely absent);
// a positive test means "maybe" and the caller still does the real
// lookup. This only ever saves work — it never changes an operation's
// result — so a index whose filter hasn't been rebuilt after a crash is
// merely slower, never wrong.
package strata

import (
	"github.com/bits-and-blooms/bloom/v3"
)

const bloomFalsePositiveRate = 0.01

// existenceFilter wraps a bloom.BloomFilter sized for an expected key count.
type existenceFilter struct {
	filter *bloom.BloomFilter
	n      uint
}

// newExistenceFilter sizes a filter for expectedKeys entries at the
// package's fixed false-positive rate.
func newExistenceFilter(expectedKeys uint) *existenceFilter {
	if expectedKeys == 0 {
		expectedKeys = 1
	}
	return &existenceFilter{
		filter: bloom.NewWithEstimates(expectedKeys, bloomFalsePositiveRate),
		n:      expectedKeys,
	}
}

// Add records a key as present.
func (f *existenceFilter) Add(key any) {
	f.filter.Add(keyBytes(key))
}

// MaybeContains reports whether key might be present. false is
// authoritative; true requires a real lookup to confirm.
func (f *existenceFilter) MaybeContains(key any) bool {
	return f.filter.Test(keyBytes(key))
}

// RebuildFrom replaces the filter's contents with exactly the given keys,
// used by the Database Manager after a heap scan (index rebuild or
// initial load) so the filter never reports a false "definitely absent"
// for a key that's actually on disk.
func (f *existenceFilter) RebuildFrom(keys []any) {
	nf := bloom.NewWithEstimates(uint(len(keys))+1, bloomFalsePositiveRate)
	for _, k := range keys {
		nf.Add(keyBytes(k))
	}
	f.filter = nf
	f.n = uint(len(keys))
}
