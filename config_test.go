package strata

import "testing"

// TestNormalizeFillsZeroValueDefaults verifies every tunable left at
// its zero value resolves to the documented default, matching folio's
// own Options convention of "missing means default," never "missing
// means error."
func TestNormalizeFillsZeroValueDefaults(t *testing.T) {
	c := Config{}.Normalize()

	if c.HashAlgorithm != defaultHashAlgo {
		t.Errorf("HashAlgorithm = %d, want %d", c.HashAlgorithm, defaultHashAlgo)
	}
	if c.Order != defaultOrder {
		t.Errorf("Order = %d, want %d", c.Order, defaultOrder)
	}
	if c.BucketSize != defaultBucketSize {
		t.Errorf("BucketSize = %d, want %d", c.BucketSize, defaultBucketSize)
	}
	if c.MaxChildren != defaultMaxChildren {
		t.Errorf("MaxChildren = %d, want %d", c.MaxChildren, defaultMaxChildren)
	}
	if c.AuxThreshold != defaultAuxThreshold {
		t.Errorf("AuxThreshold = %d, want %d", c.AuxThreshold, defaultAuxThreshold)
	}
	if c.ExpectedKeys != 1024 {
		t.Errorf("ExpectedKeys = %d, want 1024", c.ExpectedKeys)
	}
}

// TestNormalizePreservesExplicitValues verifies Normalize never
// overwrites a caller-supplied non-zero tunable.
func TestNormalizePreservesExplicitValues(t *testing.T) {
	c := Config{Order: 9, BucketSize: 7}.Normalize()
	if c.Order != 9 {
		t.Errorf("Order = %d, want 9", c.Order)
	}
	if c.BucketSize != 7 {
		t.Errorf("BucketSize = %d, want 7", c.BucketSize)
	}
}

// TestIndexKindString verifies every IndexKind has a distinct, stable
// string form, useful in log lines and error messages.
func TestIndexKindString(t *testing.T) {
	cases := map[IndexKind]string{
		IndexBPlusTree:      "bplustree",
		IndexISAM:           "isam",
		IndexExtendibleHash: "extendible_hash",
		IndexSequentialFile: "sequential_file",
		IndexRTree:          "rtree",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}
