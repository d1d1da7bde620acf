// ISAM index: a static, page-summarized index over a sorted leaf array,
// with a per-key overflow chain for duplicate inserts.
//
// Grounded on the original source's ISAMIndex (isam.py): idx_l3 is the
// sorted (key, pos) leaf array; idx_l2 and idx_l1 are resummarized from it
// every time idx_l3's shape changes — each holds one (first_key, index)
// entry per IDX_BLOCK_FACTOR span of the level below, where
// IDX_BLOCK_FACTOR is derived from how many (key, pos) entries fit in a
// 4KiB page. A key that already has a base entry gets its new position
// appended to the overflow map instead of a second leaf entry; deleting a
// base entry with overflow promotes the first overflow position to take
// its place.
package strata

import "sort"

// isamEntrySize mirrors struct.calcsize('ii') from the original: two
// 4-byte fields (key, position) per index entry.
const isamEntrySize = 8

// isamPageHeaderSize mirrors struct.calcsize('i'): one 4-byte page header.
const isamPageHeaderSize = 4

// isamPageSize is the assumed disk page size the block factor is derived
// from, per spec.md's supplemented ISAM section.
const isamPageSize = 4096

// isamBlockFactor is how many entries fit in one page after the header,
// and therefore the fan-out of every summary level.
const isamBlockFactor = (isamPageSize - isamPageHeaderSize) / isamEntrySize

type isamEntry struct {
	Key any   `json:"key"`
	Pos int64 `json:"pos"`
}

type isamSummary struct {
	FirstKey any `json:"first_key"`
	Start    int `json:"start"`
}

// isamOverflowEntry is the on-disk form of one overflow chain. JSON object
// keys must be strings, so unlike the in-memory map[any][]int64 this
// snapshot form pairs each key with its chain explicitly.
type isamOverflowEntry struct {
	Key       wireKey `json:"key"`
	Positions []int64 `json:"positions"`
}

type isamWireEntry struct {
	Key wireKey `json:"key"`
	Pos int64   `json:"pos"`
}

type isamWireSummary struct {
	FirstKey wireKey `json:"first_key"`
	Start    int     `json:"start"`
}

type isamSnapshot struct {
	L3       []isamWireEntry   `json:"l3"`
	L2       []isamWireSummary `json:"l2"`
	L1       []isamWireSummary `json:"l1"`
	Overflow []isamOverflowEntry `json:"overflow"`
}

// ISAMIndex is the three-level static summary index plus overflow chains.
type ISAMIndex struct {
	path     string
	l3       []isamEntry
	l2       []isamSummary
	l1       []isamSummary
	overflow map[any][]int64
}

// NewISAMIndex creates an empty index persisted at path.
func NewISAMIndex(path string) *ISAMIndex {
	return &ISAMIndex{path: path, overflow: make(map[any][]int64)}
}

// IsEmpty reports whether the index holds no base entries.
func (idx *ISAMIndex) IsEmpty() bool {
	return len(idx.l3) == 0
}

// insertPos returns the first index in l3 whose key is >= key (a lower
// bound), matching the original's insert_pos.
func insertPos(l3 []isamEntry, key any) int {
	return sort.Search(len(l3), func(i int) bool {
		return compareKeys(l3[i].Key, key) >= 0
	})
}

// rebuildSummaries regenerates idx_l2 and idx_l1 from idx_l3 from scratch.
// Cheap relative to the leaf array (O(n/blockFactor)), and simplest to
// reason about correctness for — same tradeoff the original makes.
func (idx *ISAMIndex) rebuildSummaries() {
	idx.l2 = nil
	idx.l1 = nil
	if len(idx.l3) == 0 {
		return
	}
	for start := 0; start < len(idx.l3); start += isamBlockFactor {
		idx.l2 = append(idx.l2, isamSummary{FirstKey: idx.l3[start].Key, Start: start})
	}
	for start := 0; start < len(idx.l2); start += isamBlockFactor {
		idx.l1 = append(idx.l1, isamSummary{FirstKey: idx.l2[start].FirstKey, Start: start})
	}
}

// Insert adds (key, pos). A key that already has a base entry gets pos
// appended to its overflow chain instead of a second base entry.
func (idx *ISAMIndex) Insert(key any, pos int64) {
	if len(idx.l3) == 0 {
		idx.l3 = []isamEntry{{Key: key, Pos: pos}}
		idx.rebuildSummaries()
		return
	}

	i := insertPos(idx.l3, key)
	if i < len(idx.l3) && compareKeys(idx.l3[i].Key, key) == 0 {
		idx.appendOverflow(key, idx.l3[i].Pos, pos)
		return
	}
	if i > 0 && compareKeys(idx.l3[i-1].Key, key) == 0 {
		idx.appendOverflow(key, idx.l3[i-1].Pos, pos)
		return
	}

	idx.l3 = append(idx.l3, isamEntry{})
	copy(idx.l3[i+1:], idx.l3[i:])
	idx.l3[i] = isamEntry{Key: key, Pos: pos}
	idx.rebuildSummaries()
}

func (idx *ISAMIndex) appendOverflow(key any, basePos, pos int64) {
	if pos == basePos {
		return
	}
	for _, p := range idx.overflow[key] {
		if p == pos {
			return
		}
	}
	idx.overflow[key] = append(idx.overflow[key], pos)
}

// BulkInsert replaces the leaf array wholesale with a sorted copy of
// pairs, clearing any existing overflow. Used when loading a table from
// scratch, matching the original's bulk_insert fast path.
func (idx *ISAMIndex) BulkInsert(pairs []isamEntry) {
	idx.l3 = append([]isamEntry{}, pairs...)
	sort.Slice(idx.l3, func(i, j int) bool { return compareKeys(idx.l3[i].Key, idx.l3[j].Key) < 0 })
	idx.overflow = make(map[any][]int64)
	idx.rebuildSummaries()
}

// Search returns the base position for key, or ErrNotFound.
func (idx *ISAMIndex) Search(key any) (int64, error) {
	if len(idx.l3) == 0 {
		return 0, ErrNotFound
	}
	i := insertPos(idx.l3, key)
	if i < len(idx.l3) && compareKeys(idx.l3[i].Key, key) == 0 {
		return idx.l3[i].Pos, nil
	}
	if i > 0 && compareKeys(idx.l3[i-1].Key, key) == 0 {
		return idx.l3[i-1].Pos, nil
	}
	return 0, ErrNotFound
}

// GetAllPositions returns the base position followed by every overflow
// position for key, in insertion order.
func (idx *ISAMIndex) GetAllPositions(key any) []int64 {
	base, err := idx.Search(key)
	if err != nil {
		return nil
	}
	out := []int64{base}
	return append(out, idx.overflow[key]...)
}

// Delete removes key's base entry, promoting the first overflow position
// to take its place if one exists. Returns false if key has no entry.
func (idx *ISAMIndex) Delete(key any) bool {
	if len(idx.l3) == 0 {
		return false
	}
	i := insertPos(idx.l3, key)
	if i < len(idx.l3) && compareKeys(idx.l3[i].Key, key) == 0 {
		return idx.deleteAt(i, key)
	}
	if i > 0 && compareKeys(idx.l3[i-1].Key, key) == 0 {
		return idx.deleteAt(i-1, key)
	}
	return false
}

func (idx *ISAMIndex) deleteAt(i int, key any) bool {
	if chain := idx.overflow[key]; len(chain) > 0 {
		idx.l3[i].Pos = chain[0]
		if len(chain) == 1 {
			delete(idx.overflow, key)
		} else {
			idx.overflow[key] = chain[1:]
		}
		return true
	}
	idx.l3 = append(idx.l3[:i], idx.l3[i+1:]...)
	idx.rebuildSummaries()
	return true
}

// Update rewrites the base position for key, inserting a new base entry
// if key isn't present. Existing overflow positions are left untouched.
// The bool return reports whether key already existed.
func (idx *ISAMIndex) Update(key any, pos int64) bool {
	if len(idx.l3) == 0 {
		idx.l3 = append(idx.l3, isamEntry{Key: key, Pos: pos})
		idx.rebuildSummaries()
		return false
	}
	i := insertPos(idx.l3, key)
	if i < len(idx.l3) && compareKeys(idx.l3[i].Key, key) == 0 {
		idx.l3[i].Pos = pos
		return true
	}
	if i > 0 && compareKeys(idx.l3[i-1].Key, key) == 0 {
		idx.l3[i-1].Pos = pos
		return true
	}
	idx.l3 = append(idx.l3, isamEntry{})
	copy(idx.l3[i+1:], idx.l3[i:])
	idx.l3[i] = isamEntry{Key: key, Pos: pos}
	idx.rebuildSummaries()
	return false
}

// RangeSearch returns every (key, pos) pair — including overflow — with
// start <= key <= end.
func (idx *ISAMIndex) RangeSearch(start, end any) []KeyPos {
	var out []KeyPos
	if len(idx.l3) == 0 {
		return out
	}
	i := insertPos(idx.l3, start)
	if i > 0 && compareKeys(idx.l3[i-1].Key, start) >= 0 {
		i--
	}
	for j := i; j < len(idx.l3) && compareKeys(idx.l3[j].Key, end) <= 0; j++ {
		out = append(out, KeyPos{Key: idx.l3[j].Key, Pos: idx.l3[j].Pos})
		for _, p := range idx.overflow[idx.l3[j].Key] {
			out = append(out, KeyPos{Key: idx.l3[j].Key, Pos: p})
		}
	}
	return out
}

// SaveToFile persists the index via persistence.go's snapshot framing.
func (idx *ISAMIndex) SaveToFile() error {
	l3 := make([]isamWireEntry, len(idx.l3))
	for i, e := range idx.l3 {
		l3[i] = isamWireEntry{Key: toWireKey(e.Key), Pos: e.Pos}
	}
	l2 := make([]isamWireSummary, len(idx.l2))
	for i, s := range idx.l2 {
		l2[i] = isamWireSummary{FirstKey: toWireKey(s.FirstKey), Start: s.Start}
	}
	l1 := make([]isamWireSummary, len(idx.l1))
	for i, s := range idx.l1 {
		l1[i] = isamWireSummary{FirstKey: toWireKey(s.FirstKey), Start: s.Start}
	}
	overflow := make([]isamOverflowEntry, 0, len(idx.overflow))
	for k, positions := range idx.overflow {
		overflow = append(overflow, isamOverflowEntry{Key: toWireKey(k), Positions: positions})
	}
	snap := isamSnapshot{L3: l3, L2: l2, L1: l1, Overflow: overflow}
	return writeSnapshot(idx.path, snap, 0)
}

// LoadFromFile restores a previously saved snapshot, rebuilding the
// summary levels if they were empty or missing. Returns ErrCorruptSnapshot
// (without modifying the index) on any framing failure.
func (idx *ISAMIndex) LoadFromFile() error {
	var snap isamSnapshot
	if err := readSnapshot(idx.path, &snap); err != nil {
		return err
	}
	idx.l3 = make([]isamEntry, len(snap.L3))
	for i, e := range snap.L3 {
		idx.l3[i] = isamEntry{Key: fromWireKey(e.Key), Pos: e.Pos}
	}
	idx.l2 = make([]isamSummary, len(snap.L2))
	for i, s := range snap.L2 {
		idx.l2[i] = isamSummary{FirstKey: fromWireKey(s.FirstKey), Start: s.Start}
	}
	idx.l1 = make([]isamSummary, len(snap.L1))
	for i, s := range snap.L1 {
		idx.l1[i] = isamSummary{FirstKey: fromWireKey(s.FirstKey), Start: s.Start}
	}
	idx.overflow = make(map[any][]int64, len(snap.Overflow))
	for _, e := range snap.Overflow {
		idx.overflow[fromWireKey(e.Key)] = e.Positions
	}
	if len(idx.l2) == 0 || len(idx.l1) == 0 {
		idx.rebuildSummaries()
	}
	return nil
}
