// Sequential File index: a physically key-sorted main file plus an
// unsorted auxiliary file, merged back into one sorted file once the
// auxiliary grows past a threshold.
//
// Grounded on the original source's SequentialIndex
// (indexes/sequential_file.py): add() appends to the .aux file and
// triggers _rebuild() once aux_records_count reaches K_THRESHOLD; rebuild
// loads every live (non-tombstoned) aux record, sorts it by key, and
// merges it against the sorted main file into a temp file that then
// replaces the main file atomically — the same temp-file-then-os.Rename
// swap folio's repair.go uses for its own file replacement. search() tries
// a binary search of the main file first, then a linear scan of aux.
// delete() never removes bytes directly; it marks next = -1 in place
// (tombstone) and leaves the purge to the next rebuild.
//
// Unlike every other index here, SequentialFile owns its files directly
// instead of going through heap.go — the original's own comment is
// explicit about this ("NO utiliza el FileManager genérico"), because a
// sorted .dat file's slot numbers are not a stable position: rebuild
// freely reorders and renumbers every record.
package strata

import (
	"io"
	"os"
	"sort"
)

// seqDefaultKThreshold is how many auxiliary records accumulate before a
// rebuild, matching the original's K_THRESHOLD constant.
const seqDefaultKThreshold = 5

// SequentialFile is the sorted-main-plus-unsorted-aux index.
type SequentialFile struct {
	schema     *Schema
	dataPath   string
	auxPath    string
	data       *os.File
	aux        *os.File
	recordSize int
	kThreshold int
	auxCount   int64
	syncWrites bool // fsync after each tombstone write made by Remove
}

// OpenSequentialFile opens or creates the main and auxiliary files.
func OpenSequentialFile(dataPath, auxPath string, schema *Schema, kThreshold int) (*SequentialFile, error) {
	if kThreshold <= 0 {
		kThreshold = seqDefaultKThreshold
	}
	data, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	aux, err := os.OpenFile(auxPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		data.Close()
		return nil, err
	}

	s := &SequentialFile{
		schema:     schema,
		dataPath:   dataPath,
		auxPath:    auxPath,
		data:       data,
		aux:        aux,
		recordSize: schema.RecordSize,
		kThreshold: kThreshold,
	}

	info, err := aux.Stat()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.auxCount = info.Size() / int64(s.recordSize)

	return s, nil
}

// SetSyncWrites enables or disables fsync after each in-place tombstone
// write Remove makes (in the main or the aux file), per Config.SyncWrites.
// Off by default, matching folio's own Config. Add and rebuild sync their
// writes regardless of this setting.
func (s *SequentialFile) SetSyncWrites(sync bool) {
	s.syncWrites = sync
}

// Close releases both file handles.
func (s *SequentialFile) Close() error {
	err1 := s.data.Close()
	err2 := s.aux.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// IsEmpty reports whether neither file holds any records.
func (s *SequentialFile) IsEmpty() bool {
	if s.auxCount > 0 {
		return false
	}
	info, err := s.data.Stat()
	return err != nil || info.Size() == 0
}

// DataFile exposes the underlying main file handle, used by the Database
// Manager to drive a fileLock across process boundaries.
func (s *SequentialFile) DataFile() *os.File {
	return s.data
}

// Add appends r to the auxiliary file, rebuilding the merged main file
// once the threshold is reached. A live record already stored under r's
// key is tombstoned first, so the newest record replaces it.
func (s *SequentialFile) Add(r *Record) error {
	r.Next = nextLive
	buf, err := pack(s.schema, r)
	if err != nil {
		return err
	}
	if _, err := s.Remove(r.Key(s.schema)); err != nil {
		return err
	}
	if _, err := s.aux.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	if _, err := s.aux.Write(buf); err != nil {
		return err
	}
	if err := s.aux.Sync(); err != nil {
		return err
	}
	s.auxCount++

	if s.auxCount >= int64(s.kThreshold) {
		return s.rebuild()
	}
	return nil
}

// rebuild merges the sorted main file with every live aux record into a
// temp file, ordered by key, then atomically replaces the main file and
// truncates aux back to empty.
func (s *SequentialFile) rebuild() error {
	auxRecords, err := s.liveAuxRecords()
	if err != nil {
		return err
	}
	sort.Slice(auxRecords, func(i, j int) bool {
		return compareKeys(auxRecords[i].Key(s.schema), auxRecords[j].Key(s.schema)) < 0
	})

	tmpPath := s.dataPath + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	if _, err := s.data.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	mainBuf := make([]byte, s.recordSize)
	haveMain := false
	advanceMain := func() error {
		n, err := io.ReadFull(s.data, mainBuf)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			haveMain = n == s.recordSize
			if !haveMain {
				return nil
			}
		} else if err != nil {
			return err
		} else {
			haveMain = true
		}
		return nil
	}
	if err := advanceMain(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	auxIdx := 0
	for {
		var mainRec *Record
		for haveMain {
			mainRec, err = unpack(s.schema, mainBuf)
			if err != nil {
				tmp.Close()
				os.Remove(tmpPath)
				return err
			}
			if mainRec.Next != nextLive {
				if err := advanceMain(); err != nil {
					tmp.Close()
					os.Remove(tmpPath)
					return err
				}
				continue
			}
			break
		}

		var auxRec *Record
		if auxIdx < len(auxRecords) {
			auxRec = auxRecords[auxIdx]
		}

		if !haveMain && auxRec == nil {
			break
		}

		writeRecord := func(r *Record) error {
			buf, err := pack(s.schema, r)
			if err != nil {
				return err
			}
			_, err = tmp.Write(buf)
			return err
		}

		if haveMain && (auxRec == nil || compareKeys(mainRec.Key(s.schema), auxRec.Key(s.schema)) <= 0) {
			if err := writeRecord(mainRec); err != nil {
				tmp.Close()
				os.Remove(tmpPath)
				return err
			}
			if err := advanceMain(); err != nil {
				tmp.Close()
				os.Remove(tmpPath)
				return err
			}
		} else if auxRec != nil {
			if err := writeRecord(auxRec); err != nil {
				tmp.Close()
				os.Remove(tmpPath)
				return err
			}
			auxIdx++
		}
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := s.data.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.dataPath); err != nil {
		return err
	}
	data, err := os.OpenFile(s.dataPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	s.data = data

	if err := s.aux.Truncate(0); err != nil {
		return err
	}
	if _, err := s.aux.Seek(0, io.SeekStart); err != nil {
		return err
	}
	s.auxCount = 0
	return nil
}

func (s *SequentialFile) liveAuxRecords() ([]*Record, error) {
	if _, err := s.aux.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	var out []*Record
	buf := make([]byte, s.recordSize)
	for {
		n, err := io.ReadFull(s.aux, buf)
		if err == io.EOF {
			break
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, err
		}
		if n != s.recordSize {
			break
		}
		rec, err := unpack(s.schema, buf)
		if err != nil {
			return nil, err
		}
		if rec.Next == nextLive {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Search tries a binary search of the sorted main file, then a linear
// scan of the auxiliary file.
func (s *SequentialFile) Search(key any) (*Record, error) {
	if rec, ok, err := s.binarySearchData(key); err != nil {
		return nil, err
	} else if ok {
		return rec, nil
	}
	if rec, ok, err := s.linearSearchAux(key); err != nil {
		return nil, err
	} else if ok {
		return rec, nil
	}
	return nil, ErrNotFound
}

func (s *SequentialFile) binarySearchData(key any) (*Record, bool, error) {
	info, err := s.data.Stat()
	if err != nil {
		return nil, false, err
	}
	total := info.Size() / int64(s.recordSize)
	buf := make([]byte, s.recordSize)

	low, high := int64(0), total-1
	for low <= high {
		mid := (low + high) / 2
		if _, err := s.data.ReadAt(buf, mid*int64(s.recordSize)); err != nil {
			return nil, false, err
		}
		rec, err := unpack(s.schema, buf)
		if err != nil {
			return nil, false, err
		}
		cmp := compareKeys(rec.Key(s.schema), key)
		switch {
		case cmp == 0:
			if rec.Next == nextLive {
				return rec, true, nil
			}
			return nil, false, nil
		case cmp < 0:
			low = mid + 1
		default:
			high = mid - 1
		}
	}
	return nil, false, nil
}

func (s *SequentialFile) linearSearchAux(key any) (*Record, bool, error) {
	records, err := s.liveAuxRecords()
	if err != nil {
		return nil, false, err
	}
	for _, rec := range records {
		if compareKeys(rec.Key(s.schema), key) == 0 {
			return rec, true, nil
		}
	}
	return nil, false, nil
}

// RangeSearch scans the sorted main file from the start (stopping once
// keys exceed end, since it's physically ordered) and does a full linear
// scan of the auxiliary file.
func (s *SequentialFile) RangeSearch(start, end any) ([]*Record, error) {
	var out []*Record

	if _, err := s.data.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, s.recordSize)
	for {
		n, err := io.ReadFull(s.data, buf)
		if err == io.EOF {
			break
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, err
		}
		if n != s.recordSize {
			break
		}
		rec, err := unpack(s.schema, buf)
		if err != nil {
			return nil, err
		}
		if rec.Next == nextLive {
			k := rec.Key(s.schema)
			if compareKeys(k, end) > 0 {
				break
			}
			if compareKeys(k, start) >= 0 {
				out = append(out, rec)
			}
		}
	}

	auxRecords, err := s.liveAuxRecords()
	if err != nil {
		return nil, err
	}
	for _, rec := range auxRecords {
		k := rec.Key(s.schema)
		if compareKeys(start, k) <= 0 && compareKeys(k, end) <= 0 {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Remove tombstones key's live record in place (next = -1) in whichever
// file holds it, looking in main first and then aux. Returns false if key
// has no live record.
func (s *SequentialFile) Remove(key any) (bool, error) {
	info, err := s.data.Stat()
	if err != nil {
		return false, err
	}
	total := info.Size() / int64(s.recordSize)
	buf := make([]byte, s.recordSize)

	low, high := int64(0), total-1
	for low <= high {
		mid := (low + high) / 2
		offset := mid * int64(s.recordSize)
		if _, err := s.data.ReadAt(buf, offset); err != nil {
			return false, err
		}
		rec, err := unpack(s.schema, buf)
		if err != nil {
			return false, err
		}
		cmp := compareKeys(rec.Key(s.schema), key)
		switch {
		case cmp == 0:
			if rec.Next != nextLive {
				// a replacement copy may still be live in aux
				low = high + 1
				continue
			}
			rec.Next = nextTombstone
			out, err := pack(s.schema, rec)
			if err != nil {
				return false, err
			}
			if _, err := s.data.WriteAt(out, offset); err != nil {
				return false, err
			}
			if s.syncWrites {
				if err := s.data.Sync(); err != nil {
					return false, err
				}
			}
			return true, nil
		case cmp < 0:
			low = mid + 1
		default:
			high = mid - 1
		}
	}

	if _, err := s.aux.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	offset := int64(0)
	abuf := make([]byte, s.recordSize)
	for {
		n, err := io.ReadFull(s.aux, abuf)
		if err == io.EOF {
			break
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return false, err
		}
		if n != s.recordSize {
			break
		}
		rec, err := unpack(s.schema, abuf)
		if err != nil {
			return false, err
		}
		if compareKeys(rec.Key(s.schema), key) == 0 {
			if rec.Next != nextLive {
				offset += int64(s.recordSize)
				continue
			}
			rec.Next = nextTombstone
			out, err := pack(s.schema, rec)
			if err != nil {
				return false, err
			}
			if _, err := s.aux.WriteAt(out, offset); err != nil {
				return false, err
			}
			if s.syncWrites {
				if err := s.aux.Sync(); err != nil {
					return false, err
				}
			}
			return true, nil
		}
		offset += int64(s.recordSize)
	}
	return false, nil
}

// SaveToFile forces a rebuild if the auxiliary file holds anything,
// leaving the index fully merged and sorted on disk.
func (s *SequentialFile) SaveToFile() error {
	if s.auxCount > 0 {
		return s.rebuild()
	}
	return nil
}

// LoadFromFile reports whether the main file exists — the sequential
// file's data lives directly in dataPath/auxPath, so there's nothing else
// to load, matching the original's trivial load_from_file.
func (s *SequentialFile) LoadFromFile() bool {
	_, err := os.Stat(s.dataPath)
	return err == nil
}
