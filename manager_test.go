package strata

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	s := personSchema(t)
	m, err := Open(t.TempDir(), s, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

// TestManagerAddGetRoundTripsAcrossIndexKinds verifies the full
// add/get path works identically no matter which index backs the
// table — callers shouldn't need to special-case any index kind.
func TestManagerAddGetRoundTripsAcrossIndexKinds(t *testing.T) {
	kinds := []IndexKind{IndexBPlusTree, IndexISAM, IndexExtendibleHash, IndexSequentialFile}
	for _, kind := range kinds {
		m := openTestManager(t, Config{Kind: kind})
		if _, err := m.AddRecord([]any{int32(1), "alice", float32(9.5)}); err != nil {
			t.Fatalf("[%v] AddRecord: %v", kind, err)
		}
		rec, err := m.GetRecord(int32(1))
		if err != nil {
			t.Fatalf("[%v] GetRecord: %v", kind, err)
		}
		if rec.Values[1] != "alice" {
			t.Errorf("[%v] name = %q, want %q", kind, rec.Values[1], "alice")
		}
	}
}

// TestManagerGetRecordMissingReturnsErrNotFound verifies looking up an
// absent key fails cleanly rather than returning a zero-value record.
func TestManagerGetRecordMissingReturnsErrNotFound(t *testing.T) {
	m := openTestManager(t, Config{Kind: IndexBPlusTree})
	if _, err := m.GetRecord(int32(99)); err != ErrNotFound {
		t.Errorf("GetRecord(missing) = %v, want ErrNotFound", err)
	}
}

// TestManagerUpdateRecordRejectsKeyMismatch verifies UpdateRecord
// refuses to let the new values silently change the record's key,
// since that would desync the index entry from the heap slot it
// points at.
func TestManagerUpdateRecordRejectsKeyMismatch(t *testing.T) {
	m := openTestManager(t, Config{Kind: IndexBPlusTree})
	m.AddRecord([]any{int32(1), "alice", float32(1)})
	if _, err := m.UpdateRecord(int32(1), []any{int32(2), "bob", float32(2)}); err != ErrSchemaMismatch {
		t.Errorf("UpdateRecord with changed key = %v, want ErrSchemaMismatch", err)
	}
}

// TestManagerUpdateRecordOverwritesValues verifies UpdateRecord
// persists new field values under the same key and position.
func TestManagerUpdateRecordOverwritesValues(t *testing.T) {
	m := openTestManager(t, Config{Kind: IndexBPlusTree})
	m.AddRecord([]any{int32(1), "alice", float32(1)})
	if _, err := m.UpdateRecord(int32(1), []any{int32(1), "alicia", float32(2)}); err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	rec, err := m.GetRecord(int32(1))
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.Values[1] != "alicia" {
		t.Errorf("name = %q, want %q", rec.Values[1], "alicia")
	}
}

// TestManagerRemoveRecordDeletesFromIndexAndHeap verifies a removed
// record is gone from both the heap and the index, so neither a
// direct lookup nor a range scan surfaces it again.
func TestManagerRemoveRecordDeletesFromIndexAndHeap(t *testing.T) {
	m := openTestManager(t, Config{Kind: IndexBPlusTree})
	m.AddRecord([]any{int32(1), "alice", float32(1)})

	ok, err := m.RemoveRecord(int32(1))
	if err != nil || !ok {
		t.Fatalf("RemoveRecord = %v, %v; want true, nil", ok, err)
	}
	if _, err := m.GetRecord(int32(1)); err != ErrNotFound {
		t.Errorf("GetRecord after remove = %v, want ErrNotFound", err)
	}
	ok, err = m.RemoveRecord(int32(1))
	if err != nil || ok {
		t.Errorf("second RemoveRecord = %v, %v; want false, nil", ok, err)
	}
}

// TestManagerRangeSearchReturnsOrderedSubset verifies RangeSearch
// returns exactly the records whose key falls within bounds.
func TestManagerRangeSearchReturnsOrderedSubset(t *testing.T) {
	m := openTestManager(t, Config{Kind: IndexBPlusTree})
	for i := int32(0); i < 10; i++ {
		m.AddRecord([]any{i, "x", float32(i)})
	}
	got, err := m.RangeSearch(int32(3), int32(6))
	if err != nil {
		t.Fatalf("RangeSearch: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len(got) = %d, want 4", len(got))
	}
}

// TestManagerGetAllSkipsRemovedRecords verifies GetAll only reports
// live records, matching the heap's tombstone convention.
func TestManagerGetAllSkipsRemovedRecords(t *testing.T) {
	m := openTestManager(t, Config{Kind: IndexBPlusTree})
	m.AddRecord([]any{int32(1), "a", float32(0)})
	m.AddRecord([]any{int32(2), "b", float32(0)})
	m.RemoveRecord(int32(1))

	all, err := m.GetAll()
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 1 || all[0].Values[0] != int32(2) {
		t.Errorf("GetAll = %+v, want only id 2", all)
	}
}

// TestManagerRebuildsIndexWhenIndexFileMissing verifies the
// rebuild-on-missing-index guarantee: deleting the .idx file and
// reopening the table still finds every previously added record,
// because Open walks the heap and reindexes it from scratch.
func TestManagerRebuildsIndexWhenIndexFileMissing(t *testing.T) {
	dir := t.TempDir()
	s := personSchema(t)
	m, err := Open(dir, s, Config{Kind: IndexBPlusTree})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := int32(0); i < 5; i++ {
		m.AddRecord([]any{i, "x", float32(i)})
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, "people.idx")); err != nil {
		t.Fatalf("Remove index file: %v", err)
	}

	reopened, err := Open(dir, s, Config{Kind: IndexBPlusTree})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	for i := int32(0); i < 5; i++ {
		if _, err := reopened.GetRecord(i); err != nil {
			t.Errorf("GetRecord(%d) after index rebuild: %v", i, err)
		}
	}
}

// TestManagerRebuildsIndexWhenIndexFileCorrupt verifies a corrupt (not
// just missing) index file is also tolerated: Open falls back to the
// same heap-walk rebuild rather than surfacing the checksum error.
func TestManagerRebuildsIndexWhenIndexFileCorrupt(t *testing.T) {
	dir := t.TempDir()
	s := personSchema(t)
	m, err := Open(dir, s, Config{Kind: IndexBPlusTree})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	m.AddRecord([]any{int32(1), "a", float32(0)})
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idxPath := filepath.Join(dir, "people.idx")
	if err := os.WriteFile(idxPath, []byte("not a valid snapshot"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reopened, err := Open(dir, s, Config{Kind: IndexBPlusTree})
	if err != nil {
		t.Fatalf("reopen with corrupt index: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	if _, err := reopened.GetRecord(int32(1)); err != nil {
		t.Errorf("GetRecord after corrupt-index rebuild: %v", err)
	}
}

// TestManagerBloomFilterRejectsAbsentKeysWithoutTouchingIndex verifies
// that with UseBloomFilter set, a key the filter is sure was never
// added short-circuits to ErrNotFound before any index lookup.
func TestManagerBloomFilterRejectsAbsentKeysWithoutTouchingIndex(t *testing.T) {
	m := openTestManager(t, Config{Kind: IndexBPlusTree, UseBloomFilter: true, ExpectedKeys: 100})
	m.AddRecord([]any{int32(1), "a", float32(0)})

	if _, err := m.GetRecord(int32(1)); err != nil {
		t.Errorf("GetRecord(present) = %v, want nil", err)
	}
	if _, err := m.GetRecord(int32(12345)); err != ErrNotFound {
		t.Errorf("GetRecord(absent) = %v, want ErrNotFound", err)
	}
}

// TestManagerSyncWritesIsPropagatedToHeap verifies Config.SyncWrites
// reaches the heap a Manager opens, exercising the full add/update/remove
// path with fsync enabled on every mutating write.
func TestManagerSyncWritesIsPropagatedToHeap(t *testing.T) {
	m := openTestManager(t, Config{Kind: IndexBPlusTree, SyncWrites: true})

	if _, err := m.AddRecord([]any{int32(1), "a", float32(0)}); err != nil {
		t.Fatalf("AddRecord with SyncWrites: %v", err)
	}
	if _, err := m.UpdateRecord(int32(1), []any{int32(1), "b", float32(1)}); err != nil {
		t.Fatalf("UpdateRecord with SyncWrites: %v", err)
	}
	if ok, err := m.RemoveRecord(int32(1)); err != nil || !ok {
		t.Fatalf("RemoveRecord with SyncWrites = %v, %v; want true, nil", ok, err)
	}
}

func personBoxOf(values []any) BBox {
	id := float64(values[0].(int32))
	return NewBBox(id, id, id, id)
}

// TestManagerRTreeSpatialQueries verifies an R-tree-configured Manager
// supports the point/box/radius/k-nearest spatial methods the scalar
// PositionIndex-backed kinds don't expose, and that ordinary
// AddRecord/GetRecord/RemoveRecord still work through it.
func TestManagerRTreeSpatialQueries(t *testing.T) {
	m := openTestManager(t, Config{Kind: IndexRTree, BoxOf: personBoxOf})
	for i := int32(0); i < 10; i++ {
		if _, err := m.AddRecord([]any{i, "x", float32(i)}); err != nil {
			t.Fatalf("AddRecord(%d): %v", i, err)
		}
	}

	rec, err := m.GetRecord(int32(5))
	if err != nil || rec.Values[0] != int32(5) {
		t.Fatalf("GetRecord(5) = %+v, %v", rec, err)
	}

	inBox, err := m.RecordsInBox(NewBBox(2, 2, 4, 4))
	if err != nil {
		t.Fatalf("RecordsInBox: %v", err)
	}
	if len(inBox) != 3 {
		t.Errorf("len(inBox) = %d, want 3 (ids 2,3,4)", len(inBox))
	}

	inRadius, err := m.RecordsInRadius(0, 0, 2.5)
	if err != nil {
		t.Fatalf("RecordsInRadius: %v", err)
	}
	if len(inRadius) != 2 {
		t.Errorf("len(inRadius) = %d, want 2 (ids 0,1; id 2 is 2.83 away)", len(inRadius))
	}

	nearest, err := m.KNearestRecords(0, 0, 2)
	if err != nil {
		t.Fatalf("KNearestRecords: %v", err)
	}
	if len(nearest) != 2 {
		t.Fatalf("len(nearest) = %d, want 2", len(nearest))
	}

	ok, err := m.RemoveRecord(int32(5))
	if err != nil || !ok {
		t.Fatalf("RemoveRecord = %v, %v; want true, nil", ok, err)
	}
	if _, err := m.GetRecord(int32(5)); err != ErrNotFound {
		t.Errorf("GetRecord after remove = %v, want ErrNotFound", err)
	}
}

// TestManagerSpatialQueriesRejectNonRTreeConfig verifies the spatial
// methods report ErrUnsupportedOperation rather than panicking when called
// against a Manager that isn't R-tree-backed.
func TestManagerSpatialQueriesRejectNonRTreeConfig(t *testing.T) {
	m := openTestManager(t, Config{Kind: IndexBPlusTree})
	if _, err := m.RecordsInBox(NewBBox(0, 0, 1, 1)); err != ErrUnsupportedOperation {
		t.Errorf("RecordsInBox on non-rtree manager = %v, want ErrUnsupportedOperation", err)
	}
}

// TestManagerRTreeRebuildsFromHeapOnMissingIndex verifies the same
// rebuild-on-missing-index guarantee extends to R-tree tables, which
// are wired outside the shared PositionIndex interface.
func TestManagerRTreeRebuildsFromHeapOnMissingIndex(t *testing.T) {
	dir := t.TempDir()
	s := personSchema(t)
	cfg := Config{Kind: IndexRTree, BoxOf: personBoxOf}

	m, err := Open(dir, s, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := int32(0); i < 5; i++ {
		m.AddRecord([]any{i, "x", float32(i)})
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, "people.idx")); err != nil {
		t.Fatalf("Remove index file: %v", err)
	}

	reopened, err := Open(dir, s, cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	for i := int32(0); i < 5; i++ {
		if _, err := reopened.GetRecord(i); err != nil {
			t.Errorf("GetRecord(%d) after rtree rebuild: %v", i, err)
		}
	}
}

// TestManagerOpenRTreeWithoutBoxOfFails verifies Open refuses an
// R-tree configuration missing the BoxOf hook instead of deferring
// the failure to the first AddRecord.
func TestManagerOpenRTreeWithoutBoxOfFails(t *testing.T) {
	s := personSchema(t)
	if _, err := Open(t.TempDir(), s, Config{Kind: IndexRTree}); err != ErrSchemaMismatch {
		t.Errorf("Open(IndexRTree, no BoxOf) = %v, want ErrSchemaMismatch", err)
	}
}
