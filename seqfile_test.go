package strata

import (
	"path/filepath"
	"testing"
)

func openTestSeqFile(t *testing.T, kThreshold int) (*SequentialFile, *Schema) {
	t.Helper()
	s := personSchema(t)
	dir := t.TempDir()
	sf, err := OpenSequentialFile(filepath.Join(dir, "t.dat"), filepath.Join(dir, "t.aux"), s, kThreshold)
	if err != nil {
		t.Fatalf("OpenSequentialFile: %v", err)
	}
	t.Cleanup(func() { sf.Close() })
	return sf, s
}

// TestSequentialFileAddBelowThresholdStaysInAux verifies records added
// below the rebuild threshold are still found via the aux linear scan,
// without having triggered a merge into the main file yet.
func TestSequentialFileAddBelowThresholdStaysInAux(t *testing.T) {
	sf, s := openTestSeqFile(t, 10)
	rec, _ := NewRecord(s, []any{int32(1), "a", float32(0)})
	if err := sf.Add(rec); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := sf.Search(int32(1))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got.Values[1] != "a" {
		t.Errorf("name = %q, want %q", got.Values[1], "a")
	}
}

// TestSequentialFileRebuildTriggersAtThreshold verifies reaching
// kThreshold aux records triggers a merge into the sorted main file and
// every record remains searchable afterward.
func TestSequentialFileRebuildTriggersAtThreshold(t *testing.T) {
	sf, s := openTestSeqFile(t, 3)
	for i := int32(5); i >= 1; i-- { // insert out of order
		rec, _ := NewRecord(s, []any{i, "x", float32(0)})
		if err := sf.Add(rec); err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
	}
	for i := int32(1); i <= 5; i++ {
		if _, err := sf.Search(i); err != nil {
			t.Fatalf("Search(%d) after rebuild: %v", i, err)
		}
	}
}

// TestSequentialFileRangeSearchSpansMainAndAux verifies RangeSearch
// returns records whether they've been merged into main or are still
// sitting in the unmerged aux file.
func TestSequentialFileRangeSearchSpansMainAndAux(t *testing.T) {
	sf, s := openTestSeqFile(t, 3)
	for i := int32(1); i <= 3; i++ {
		rec, _ := NewRecord(s, []any{i, "x", float32(0)})
		sf.Add(rec) // triggers rebuild at i == 3
	}
	rec, _ := NewRecord(s, []any{int32(4), "y", float32(0)})
	sf.Add(rec) // stays in aux

	got, err := sf.RangeSearch(int32(1), int32(4))
	if err != nil {
		t.Fatalf("RangeSearch: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len(got) = %d, want 4", len(got))
	}
}

// TestSequentialFileRemoveTombstonesInMain verifies Remove marks a
// merged record as deleted in place and Search no longer finds it.
func TestSequentialFileRemoveTombstonesInMain(t *testing.T) {
	sf, s := openTestSeqFile(t, 1)
	rec, _ := NewRecord(s, []any{int32(1), "a", float32(0)})
	sf.Add(rec) // kThreshold=1, rebuilds immediately into main

	ok, err := sf.Remove(int32(1))
	if err != nil || !ok {
		t.Fatalf("Remove = %v, %v; want true, nil", ok, err)
	}
	if _, err := sf.Search(int32(1)); err != ErrNotFound {
		t.Errorf("Search after remove = %v, want ErrNotFound", err)
	}
}

// TestSequentialFileRemoveIsIdempotent verifies removing a never-present
// key returns false, not an error.
func TestSequentialFileRemoveIsIdempotent(t *testing.T) {
	sf, _ := openTestSeqFile(t, 5)
	ok, err := sf.Remove(int32(99))
	if err != nil || ok {
		t.Errorf("Remove(missing) = %v, %v; want false, nil", ok, err)
	}
}

// TestSequentialFileRebuildMainWinsTies verifies that when a main-file
// record and an aux record share a key, the merge keeps the main
// record first (the "main wins ties" rule the rebuild pass depends on
// to avoid reordering equal keys across repeated rebuilds).
func TestSequentialFileRebuildMainWinsTies(t *testing.T) {
	sf, s := openTestSeqFile(t, 1)
	first, _ := NewRecord(s, []any{int32(1), "first", float32(0)})
	sf.Add(first) // merges into main immediately (kThreshold=1)

	second, _ := NewRecord(s, []any{int32(1), "second", float32(0)})
	sf.aux.Truncate(0)
	sf.auxCount = 0
	// manually append so kThreshold isn't re-triggered before we inspect
	buf, _ := pack(s, second)
	sf.aux.WriteAt(buf, 0)
	sf.auxCount = 1

	got, err := sf.RangeSearch(int32(1), int32(1))
	if err != nil {
		t.Fatalf("RangeSearch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2 (one live in main, one live in aux)", len(got))
	}

	if err := sf.rebuild(); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	merged, err := sf.RangeSearch(int32(1), int32(1))
	if err != nil {
		t.Fatalf("RangeSearch after rebuild: %v", err)
	}
	if len(merged) != 2 || merged[0].Values[1] != "first" || merged[1].Values[1] != "second" {
		t.Errorf("merged = %+v, want main record \"first\" before aux record \"second\"", merged)
	}
}

// TestSequentialFileRemoveWithSyncWritesSyncs verifies enabling
// SyncWrites on a tombstone write to a record merged into main succeeds
// without error.
func TestSequentialFileRemoveWithSyncWritesSyncs(t *testing.T) {
	sf, s := openTestSeqFile(t, 1)
	sf.SetSyncWrites(true)

	rec, _ := NewRecord(s, []any{int32(1), "a", float32(0)})
	if err := sf.Add(rec); err != nil { // kThreshold=1, merges into main
		t.Fatalf("Add: %v", err)
	}
	if ok, err := sf.Remove(int32(1)); err != nil || !ok {
		t.Fatalf("Remove(main) with SyncWrites = %v, %v; want true, nil", ok, err)
	}
}

// TestSequentialFileLoadFromFileReportsExistence verifies LoadFromFile
// reflects whether the main data file exists on disk.
func TestSequentialFileLoadFromFileReportsExistence(t *testing.T) {
	sf, _ := openTestSeqFile(t, 5)
	if !sf.LoadFromFile() {
		t.Error("LoadFromFile() = false for a freshly created data file")
	}
}
