// Extendible Hashing index: a doubling directory of fixed-capacity
// buckets, each with its own local depth, and a single level of chained
// overflow before the whole directory grows.
//
// Grounded on the original source's ExtendibleHashing (ExtendibleHashing.py):
// EH_hash(key) = hash(key) mod 2^D selects a directory slot; a full bucket
// with local depth d < global depth D splits in place — its directory
// slots whose extra bit is set are repointed at a new sibling bucket and
// every record is reinserted; a full bucket with d == D instead chains one
// overflow bucket, and a second overflow forces the whole directory to
// double (rehash) before retrying the insert.
//
// Per spec.md §9's note that persistence needs a deterministic hash, the
// bucket selector here isn't Go's (randomly seeded) map hash — it's
// hash.go's fixed-seed hashKey, so a saved directory rehydrates onto the
// exact same bucket layout it was written with.
package strata

// ehDirEnd marks "no chained overflow bucket".
const ehDirEnd = -1

type ehRecord struct {
	Key any   `json:"key"`
	Pos int64 `json:"pos"`
}

type ehBucket struct {
	ID      int        `json:"id"`
	D       int        `json:"d"` // local depth
	Records []ehRecord `json:"records"`
	Next    int        `json:"next"` // chained overflow bucket id, ehDirEnd if none
}

func (b *ehBucket) isFull(capacity int) bool {
	return len(b.Records) >= capacity
}

// ExtendibleHash is the directory-of-buckets hash index.
type ExtendibleHash struct {
	path       string
	algorithm  int
	globalD    int
	bucketCap  int
	buckets    map[int]*ehBucket
	directory  []int // bucket ids, len == 2^globalD
	nextID     int
}

// NewExtendibleHash creates a fresh index with global depth 2 (matching
// the original's starting directory of 4 slots split across 2 buckets)
// and the given per-bucket record capacity.
func NewExtendibleHash(path string, bucketCapacity int, algorithm int) *ExtendibleHash {
	if bucketCapacity < 1 {
		bucketCapacity = 1
	}
	h := &ExtendibleHash{
		path:      path,
		algorithm: algorithm,
		globalD:   2,
		bucketCap: bucketCapacity,
		buckets:   make(map[int]*ehBucket),
	}
	b0 := h.newBucket(1)
	b1 := h.newBucket(1)
	h.directory = []int{b0.ID, b1.ID, b0.ID, b1.ID}
	return h
}

func (h *ExtendibleHash) newBucket(depth int) *ehBucket {
	b := &ehBucket{ID: h.nextID, D: depth, Next: ehDirEnd}
	h.buckets[b.ID] = b
	h.nextID++
	return b
}

func (h *ExtendibleHash) slot(key any) int {
	mask := uint64(1)<<uint(h.globalD) - 1
	return int(hashKey(keyBytes(key), h.algorithm) & mask)
}

// IsEmpty reports whether every bucket (including overflow) is empty.
func (h *ExtendibleHash) IsEmpty() bool {
	seen := make(map[int]bool)
	for _, id := range h.directory {
		if seen[id] {
			continue
		}
		seen[id] = true
		b := h.buckets[id]
		if len(b.Records) > 0 {
			return false
		}
		if b.Next != ehDirEnd && len(h.buckets[b.Next].Records) > 0 {
			return false
		}
	}
	return true
}

// Insert adds key -> pos, splitting or rehashing the directory as needed.
func (h *ExtendibleHash) Insert(key any, pos int64) {
	slot := h.slot(key)
	bucket := h.buckets[h.directory[slot]]

	if !bucket.isFull(h.bucketCap) {
		bucket.Records = append(bucket.Records, ehRecord{Key: key, Pos: pos})
		return
	}

	if bucket.D < h.globalD {
		h.split(slot)
		h.Insert(key, pos)
		return
	}

	if bucket.Next == ehDirEnd {
		overflow := h.newBucket(bucket.D)
		overflow.Records = append(overflow.Records, ehRecord{Key: key, Pos: pos})
		bucket.Next = overflow.ID
		return
	}

	overflow := h.buckets[bucket.Next]
	if !overflow.isFull(h.bucketCap) {
		overflow.Records = append(overflow.Records, ehRecord{Key: key, Pos: pos})
		return
	}

	h.rehash()
	h.Insert(key, pos)
}

// split grows the bucket at directory slot pos into two, repointing every
// directory slot whose extra bit now disagrees with the old bucket, then
// reinserts all of the old bucket's records.
func (h *ExtendibleHash) split(pos int) {
	oldBucket := h.buckets[h.directory[pos]]
	oldBucket.D++

	newBucket := h.newBucket(oldBucket.D)
	m := 1 << uint(oldBucket.D)

	for i := range h.directory {
		if h.directory[i] == oldBucket.ID && i&(m>>1) != 0 {
			h.directory[i] = newBucket.ID
		}
	}

	toReinsert := oldBucket.Records
	oldBucket.Records = nil
	for _, r := range toReinsert {
		h.Insert(r.Key, r.Pos)
	}
}

// rehash doubles the directory and global depth, then drains every
// chained overflow bucket back through Insert so records redistribute
// across the larger directory.
func (h *ExtendibleHash) rehash() {
	h.globalD++
	h.directory = append(h.directory, h.directory...)

	for _, id := range h.directory {
		bucket := h.buckets[id]
		if bucket.Next != ehDirEnd {
			overflow := h.buckets[bucket.Next]
			toReinsert := overflow.Records
			bucket.Next = ehDirEnd
			delete(h.buckets, overflow.ID)
			for _, r := range toReinsert {
				h.Insert(r.Key, r.Pos)
			}
		}
	}
}

// Search returns the position for key, or ErrNotFound.
func (h *ExtendibleHash) Search(key any) (int64, error) {
	bucket := h.buckets[h.directory[h.slot(key)]]
	for bucket != nil {
		for _, r := range bucket.Records {
			if compareKeys(r.Key, key) == 0 {
				return r.Pos, nil
			}
		}
		if bucket.Next == ehDirEnd {
			break
		}
		bucket = h.buckets[bucket.Next]
	}
	return 0, ErrNotFound
}

// RangeSearch scans every unique bucket (directory slots fan in) for keys
// in [start, end] — O(n), acceptable per the original's own comment that
// hashing isn't built for ordered scans.
func (h *ExtendibleHash) RangeSearch(start, end any) []KeyPos {
	var out []KeyPos
	seen := make(map[int]bool)
	for _, id := range h.directory {
		if seen[id] {
			continue
		}
		seen[id] = true
		bucket := h.buckets[id]
		for bucket != nil {
			for _, r := range bucket.Records {
				if compareKeys(start, r.Key) <= 0 && compareKeys(r.Key, end) <= 0 {
					out = append(out, KeyPos{Key: r.Key, Pos: r.Pos})
				}
			}
			if bucket.Next == ehDirEnd {
				break
			}
			bucket = h.buckets[bucket.Next]
		}
	}
	return out
}

// Delete removes key from its bucket or chained overflow, freeing the
// overflow bucket if it becomes empty. Returns false if key isn't present.
func (h *ExtendibleHash) Delete(key any) bool {
	bucket := h.buckets[h.directory[h.slot(key)]]

	for i, r := range bucket.Records {
		if compareKeys(r.Key, key) == 0 {
			bucket.Records = append(bucket.Records[:i], bucket.Records[i+1:]...)
			return true
		}
	}

	if bucket.Next != ehDirEnd {
		overflow := h.buckets[bucket.Next]
		for i, r := range overflow.Records {
			if compareKeys(r.Key, key) == 0 {
				overflow.Records = append(overflow.Records[:i], overflow.Records[i+1:]...)
				if len(overflow.Records) == 0 {
					delete(h.buckets, overflow.ID)
					bucket.Next = ehDirEnd
				}
				return true
			}
		}
	}
	return false
}

// Update rewrites the position for an existing key. Absent keys are a
// no-op, matching the original (callers insert explicitly).
func (h *ExtendibleHash) Update(key any, pos int64) bool {
	bucket := h.buckets[h.directory[h.slot(key)]]
	for i, r := range bucket.Records {
		if compareKeys(r.Key, key) == 0 {
			bucket.Records[i].Pos = pos
			return true
		}
	}
	if bucket.Next != ehDirEnd {
		overflow := h.buckets[bucket.Next]
		for i, r := range overflow.Records {
			if compareKeys(r.Key, key) == 0 {
				overflow.Records[i].Pos = pos
				return true
			}
		}
	}
	return false
}

// ehWireBucket is ehBucket's JSON-safe form.
type ehWireBucket struct {
	ID      int             `json:"id"`
	D       int             `json:"d"`
	Records []ehWireRecord  `json:"records"`
	Next    int             `json:"next"`
}

type ehWireRecord struct {
	Key wireKey `json:"key"`
	Pos int64   `json:"pos"`
}

type ehSnapshot struct {
	Algorithm int                  `json:"algorithm"`
	GlobalD   int                  `json:"global_d"`
	BucketCap int                  `json:"bucket_cap"`
	NextID    int                  `json:"next_id"`
	Directory []int                `json:"directory"`
	Buckets   map[int]*ehWireBucket `json:"buckets"`
}

// SaveToFile persists the directory and every bucket via persistence.go's
// snapshot framing. The hash algorithm is recorded in the snapshot so a
// later load adopts it and keeps hashing keys the same way, per spec.md §9.
func (h *ExtendibleHash) SaveToFile() error {
	buckets := make(map[int]*ehWireBucket, len(h.buckets))
	for id, b := range h.buckets {
		records := make([]ehWireRecord, len(b.Records))
		for i, r := range b.Records {
			records[i] = ehWireRecord{Key: toWireKey(r.Key), Pos: r.Pos}
		}
		buckets[id] = &ehWireBucket{ID: b.ID, D: b.D, Records: records, Next: b.Next}
	}
	snap := ehSnapshot{
		Algorithm: h.algorithm,
		GlobalD:   h.globalD,
		BucketCap: h.bucketCap,
		NextID:    h.nextID,
		Directory: h.directory,
		Buckets:   buckets,
	}
	return writeSnapshot(h.path, snap, h.algorithm)
}

// LoadFromFile restores a previously saved directory and bucket set.
// Returns ErrCorruptSnapshot (without modifying the index) on any framing
// failure.
func (h *ExtendibleHash) LoadFromFile() error {
	var snap ehSnapshot
	if err := readSnapshot(h.path, &snap); err != nil {
		return err
	}
	buckets := make(map[int]*ehBucket, len(snap.Buckets))
	for id, b := range snap.Buckets {
		records := make([]ehRecord, len(b.Records))
		for i, r := range b.Records {
			records[i] = ehRecord{Key: fromWireKey(r.Key), Pos: r.Pos}
		}
		buckets[id] = &ehBucket{ID: b.ID, D: b.D, Records: records, Next: b.Next}
	}
	h.algorithm = snap.Algorithm
	h.globalD = snap.GlobalD
	h.bucketCap = snap.BucketCap
	h.nextID = snap.NextID
	h.directory = snap.Directory
	h.buckets = buckets
	return nil
}
