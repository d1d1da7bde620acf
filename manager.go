// The Database Manager: binds a schema, a heap file, and one of the five
// index kinds into the single entry point every table operation goes
// through.
//
// Grounded on the original source's DatabaseManager
// (core/databasemanager.py): add_record writes to the heap first and
// indexes the returned position; get/remove/range_search all go
// index-first then heap; and, most importantly, load_index_from_file
// checks is_empty() after the index tries to load its own snapshot, and
// if it's still empty, walks every heap slot and reinserts every live
// record — so a missing or corrupt index file never loses data, only
// the time to rebuild it, per spec.md §4.8's rebuild-on-missing-index
// requirement.
//
// SequentialFile is the one index kind that owns its files directly
// (seqfile.go) — PositionIndex doesn't cover it, so Open and every
// operation below branch on cfg.Kind up front rather than going through
// the shared interface.
package strata

import (
	"math"
	"os"
	"strings"
)

// PositionIndex is the shared shape of the three key-to-position indexes
// (B+ tree, ISAM, extendible hash; R-tree's Search/Delete cover different
// key semantics and it isn't included here). SequentialFile stores whole
// records, not positions, and also sits outside this interface.
type PositionIndex interface {
	Search(key any) (int64, error)
	Insert(key any, pos int64)
	Update(key any, pos int64) bool
	Delete(key any) bool
	RangeSearch(start, end any) []KeyPos
	IsEmpty() bool
	SaveToFile() error
	LoadFromFile() error
}

var (
	_ PositionIndex = (*BPlusTree)(nil)
	_ PositionIndex = (*ISAMIndex)(nil)
	_ PositionIndex = (*ExtendibleHash)(nil)
)

// Manager is the Database Manager for one table: its schema, heap file
// (absent for IndexSequentialFile), and chosen index.
type Manager struct {
	schema *Schema
	cfg    Config

	heap  *Heap // nil when cfg.Kind == IndexSequentialFile
	index PositionIndex
	seq   *SequentialFile // set only when cfg.Kind == IndexSequentialFile
	rtree *RTree          // set only when cfg.Kind == IndexRTree

	lock   fileLock
	filter *existenceFilter
}

// Open binds schema to the heap/index files rooted at dir (one directory
// per table, holding <table>.dat, <table>.header or <table>.aux, and
// <table>.idx as appropriate) and loads or rebuilds the index.
func Open(dir string, schema *Schema, cfg Config) (*Manager, error) {
	cfg = cfg.Normalize()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dataPath := dir + "/" + schema.Name + ".dat"
	indexPath := dir + "/" + schema.Name + ".idx"

	m := &Manager{schema: schema, cfg: cfg}

	if cfg.Kind == IndexSequentialFile {
		auxPath := dir + "/" + schema.Name + ".aux"
		seq, err := OpenSequentialFile(dataPath, auxPath, schema, cfg.AuxThreshold)
		if err != nil {
			return nil, err
		}
		seq.SetSyncWrites(cfg.SyncWrites)
		m.seq = seq
		m.lock.setFile(seq.DataFile())
	} else {
		headerPath := dir + "/" + schema.Name + ".header"
		heap, err := OpenHeap(dataPath, headerPath, schema)
		if err != nil {
			return nil, err
		}
		heap.SetSyncWrites(cfg.SyncWrites)
		m.heap = heap
		m.lock.setFile(heap.DataFile())

		switch cfg.Kind {
		case IndexISAM:
			m.index = NewISAMIndex(indexPath)
		case IndexExtendibleHash:
			m.index = NewExtendibleHash(indexPath, cfg.BucketSize, cfg.HashAlgorithm)
		case IndexRTree:
			// R-tree keys are bounding boxes, not scalars; it's driven
			// through its own spatial methods below, not PositionIndex.
			if cfg.BoxOf == nil {
				return nil, ErrSchemaMismatch
			}
			m.rtree = NewRTree(indexPath, cfg.MaxChildren)
		default:
			m.index = NewBPlusTree(schema, cfg.Order, indexPath)
		}

		if err := m.loadOrRebuildIndex(); err != nil {
			return nil, err
		}
	}

	if cfg.UseBloomFilter {
		m.filter = newExistenceFilter(cfg.ExpectedKeys)
		if err := m.rebuildFilter(); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// rebuildFilter seeds the existence filter from every live record
// currently on disk. Called once at Open; afterward AddRecord adds each new
// key, and RemoveRecord leaves removed keys in the filter.
func (m *Manager) rebuildFilter() error {
	records, err := m.GetAll()
	if err != nil {
		return err
	}
	keys := make([]any, len(records))
	for i, rec := range records {
		keys[i] = rec.Key(m.schema)
	}
	m.filter.RebuildFrom(keys)
	return nil
}

// loadOrRebuildIndex tries the index's own snapshot; if that fails or
// leaves the index empty while the heap isn't, it scans every heap slot
// and reinserts every live record, matching the original's
// load_index_from_file.
func (m *Manager) loadOrRebuildIndex() error {
	if m.rtree != nil {
		if err := m.rtree.LoadFromFile(); err != nil && err != ErrCorruptSnapshot {
			if !os.IsNotExist(err) {
				return err
			}
		}
		if !m.rtree.IsEmpty() {
			return nil
		}
		return m.rebuildFromHeap()
	}
	if m.index != nil {
		if err := m.index.LoadFromFile(); err != nil && err != ErrCorruptSnapshot {
			if !os.IsNotExist(err) {
				return err
			}
		}
		if !m.index.IsEmpty() {
			return nil
		}
	}
	return m.rebuildFromHeap()
}

func (m *Manager) rebuildFromHeap() error {
	records, err := m.heap.GetAllLiveRecords()
	if err != nil {
		return err
	}
	for _, rec := range records {
		key := rec.Key(m.schema)
		switch {
		case m.rtree != nil:
			box := bbox(m.cfg.BoxOf(rec.Values))
			m.rtree.Insert(box, key, rec.Pos)
		case m.index != nil:
			m.index.Insert(key, rec.Pos)
		}
	}
	return nil
}

// AddRecord writes record to the heap (or sequential file) and indexes
// the resulting position.
func (m *Manager) AddRecord(values []any) (*Record, error) {
	rec, err := NewRecord(m.schema, values)
	if err != nil {
		return nil, err
	}

	m.lock.Lock(LockExclusive)
	defer m.lock.Unlock()

	if m.seq != nil {
		if err := m.seq.Add(rec); err != nil {
			return nil, err
		}
		if m.filter != nil {
			m.filter.Add(rec.Key(m.schema))
		}
		return rec, nil
	}

	pos, err := m.heap.AddRecord(rec)
	if err != nil {
		return nil, err
	}
	rec.Pos = pos
	if m.rtree != nil {
		box := bbox(m.cfg.BoxOf(rec.Values))
		m.rtree.Insert(box, rec.Key(m.schema), pos)
	} else if m.index != nil {
		m.index.Insert(rec.Key(m.schema), pos)
	}
	if m.filter != nil {
		m.filter.Add(rec.Key(m.schema))
	}
	return rec, nil
}

// GetRecord looks up key through the index (or sequential file) and
// reads the record from the heap.
func (m *Manager) GetRecord(key any) (*Record, error) {
	m.lock.Lock(LockShared)
	defer m.lock.Unlock()

	if m.filter != nil && !m.filter.MaybeContains(key) {
		return nil, ErrNotFound
	}

	if m.seq != nil {
		return m.seq.Search(key)
	}

	if m.rtree != nil {
		pos, ok := m.rtree.FindByKey(key)
		if !ok {
			return nil, ErrNotFound
		}
		return m.heap.ReadRecord(pos)
	}

	pos, err := m.index.Search(key)
	if err != nil {
		return nil, err
	}
	return m.heap.ReadRecord(pos)
}

// UpdateRecord overwrites an existing record's values in place.
func (m *Manager) UpdateRecord(key any, values []any) (*Record, error) {
	rec, err := NewRecord(m.schema, values)
	if err != nil {
		return nil, err
	}
	if compareKeys(rec.Key(m.schema), key) != 0 {
		return nil, ErrSchemaMismatch
	}

	m.lock.Lock(LockExclusive)
	defer m.lock.Unlock()

	if m.seq != nil {
		if _, ok, err := m.seq.binarySearchData(key); err != nil {
			return nil, err
		} else if !ok {
			if _, ok2, err := m.seq.linearSearchAux(key); err != nil {
				return nil, err
			} else if !ok2 {
				return nil, ErrNotFound
			}
		}
		if _, err := m.seq.Remove(key); err != nil {
			return nil, err
		}
		if err := m.seq.Add(rec); err != nil {
			return nil, err
		}
		return rec, nil
	}

	if m.rtree != nil {
		pos, ok := m.rtree.FindByKey(key)
		if !ok {
			return nil, ErrNotFound
		}
		if err := m.heap.WriteRecordAt(pos, rec); err != nil {
			return nil, err
		}
		rec.Pos = pos
		m.rtree.Delete(key)
		box := bbox(m.cfg.BoxOf(rec.Values))
		m.rtree.Insert(box, key, pos)
		return rec, nil
	}

	pos, err := m.index.Search(key)
	if err != nil {
		return nil, err
	}
	if err := m.heap.WriteRecordAt(pos, rec); err != nil {
		return nil, err
	}
	rec.Pos = pos
	m.index.Update(key, pos)
	return rec, nil
}

// RemoveRecord deletes a record from the heap (or sequential file) and
// its index entry.
func (m *Manager) RemoveRecord(key any) (bool, error) {
	m.lock.Lock(LockExclusive)
	defer m.lock.Unlock()

	if m.seq != nil {
		return m.seq.Remove(key)
	}

	if m.rtree != nil {
		pos, ok := m.rtree.FindByKey(key)
		if !ok {
			return false, nil
		}
		removed, err := m.heap.RemoveRecord(pos)
		if err != nil {
			return false, err
		}
		if removed {
			m.rtree.Delete(key)
		}
		return removed, nil
	}

	pos, err := m.index.Search(key)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	removed, err := m.heap.RemoveRecord(pos)
	if err != nil {
		return false, err
	}
	if removed {
		m.index.Delete(key)
	}
	return removed, nil
}

// RangeSearch returns every record with start <= key <= end.
func (m *Manager) RangeSearch(start, end any) ([]*Record, error) {
	m.lock.Lock(LockShared)
	defer m.lock.Unlock()

	if m.seq != nil {
		return m.seq.RangeSearch(start, end)
	}

	if m.rtree != nil {
		// R-tree has no scalar-key ordering to range over; scan and
		// filter, same cost as the original's linear fallback would have.
		records, err := m.heap.GetAllLiveRecords()
		if err != nil {
			return nil, err
		}
		var out []*Record
		for _, rec := range records {
			key := rec.Key(m.schema)
			if compareKeys(key, start) >= 0 && compareKeys(key, end) <= 0 {
				out = append(out, rec)
			}
		}
		return out, nil
	}

	var out []*Record
	for _, kp := range m.index.RangeSearch(start, end) {
		rec, err := m.heap.ReadRecord(kp.Pos)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		if rec.Next == nextLive {
			out = append(out, rec)
		}
	}
	return out, nil
}

// GetAll returns every live record in the table.
func (m *Manager) GetAll() ([]*Record, error) {
	m.lock.Lock(LockShared)
	defer m.lock.Unlock()

	if m.seq != nil {
		return m.seq.RangeSearch(minimalKeyFor(m.schema), maximalKeyFor(m.schema))
	}
	return m.heap.GetAllLiveRecords()
}

// SaveAll persists the index (or forces a sequential file rebuild),
// flushing whatever in-memory state callers need durable before close.
func (m *Manager) SaveAll() error {
	m.lock.Lock(LockExclusive)
	defer m.lock.Unlock()

	if m.seq != nil {
		return m.seq.SaveToFile()
	}
	if m.rtree != nil {
		return m.rtree.SaveToFile()
	}
	if m.index != nil {
		return m.index.SaveToFile()
	}
	return nil
}

// Close saves the index and releases file handles.
func (m *Manager) Close() error {
	if err := m.SaveAll(); err != nil {
		return err
	}
	m.lock.setFile(nil)
	if m.seq != nil {
		return m.seq.Close()
	}
	return m.heap.Close()
}

// RecordsInBox returns every live record whose stored bounding box
// intersects box. Only meaningful when cfg.Kind == IndexRTree.
func (m *Manager) RecordsInBox(box BBox) ([]*Record, error) {
	m.lock.Lock(LockShared)
	defer m.lock.Unlock()
	if m.rtree == nil {
		return nil, ErrUnsupportedOperation
	}
	return m.recordsFromEntries(m.rtree.Search(bbox(box)))
}

// RecordsInRadius returns every live record within radius of (px, py).
// Only meaningful when cfg.Kind == IndexRTree.
func (m *Manager) RecordsInRadius(px, py, radius float64) ([]*Record, error) {
	m.lock.Lock(LockShared)
	defer m.lock.Unlock()
	if m.rtree == nil {
		return nil, ErrUnsupportedOperation
	}
	return m.recordsFromEntries(m.rtree.RangeSearchRadius(px, py, radius))
}

// KNearestRecords returns up to k live records nearest to (px, py). Only
// meaningful when cfg.Kind == IndexRTree.
func (m *Manager) KNearestRecords(px, py float64, k int) ([]*Record, error) {
	m.lock.Lock(LockShared)
	defer m.lock.Unlock()
	if m.rtree == nil {
		return nil, ErrUnsupportedOperation
	}
	return m.recordsFromEntries(m.rtree.KNearest(px, py, k))
}

func (m *Manager) recordsFromEntries(entries []SpatialEntry) ([]*Record, error) {
	out := make([]*Record, 0, len(entries))
	for _, e := range entries {
		rec, err := m.heap.ReadRecord(e.Pos)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		if rec.Next == nextLive {
			out = append(out, rec)
		}
	}
	return out, nil
}

// minimalKeyFor/maximalKeyFor produce sentinel bounds for a full
// unbounded range scan over a sequential file, which has no dedicated
// "get everything" primitive of its own.
func minimalKeyFor(s *Schema) any {
	switch s.KeyField().Type {
	case TypeInt32:
		return int32(-1 << 31)
	case TypeFloat32:
		return float32(math.Inf(-1))
	default:
		return ""
	}
}

func maximalKeyFor(s *Schema) any {
	switch s.KeyField().Type {
	case TypeInt32:
		return int32(1<<31 - 1)
	case TypeFloat32:
		return float32(math.Inf(1))
	default:
		// no stored key (at most Size bytes) sorts after Size 0xFF bytes
		return strings.Repeat("\xff", s.KeyField().Size)
	}
}
