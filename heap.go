// The Heap File Manager: slotted fixed-size records over a flat data file,
// with a free-slot list persisted in a small header file.
//
// Grounded on the original source's FileManager (core/file_manager.py):
// slot i lives at byte i*record_size; a 4-byte header file holds the
// free-list head (-1 means empty); add_record reuses a freed slot in LIFO
// order before appending. The read/write primitives follow folio's
// seek-then-read-exactly-N-bytes discipline (read.go/write.go) rather than
// the line-delimited scan folio uses for its own document format — heap
// slots are fixed-width, so there is no delimiter to scan for.
package strata

import (
	"encoding/binary"
	"io"
	"os"
)

const heapHeaderSize = 4 // signed 32-bit free_list_head

// Heap is the fixed-record data file plus its free-slot header.
type Heap struct {
	schema       *Schema
	dataPath     string
	headerPath   string
	data         *os.File
	header       *os.File
	recordSize   int
	freeListHead int32 // -1 == empty
	fileSize     int64 // record count
	syncWrites   bool  // fsync the data file after each mutating write
}

// OpenHeap opens or creates the data and header files for a table. If the
// header file exists its free_list_head is read; otherwise the list starts
// empty and a fresh header is written. fileSize is derived from the data
// file's length, never stored redundantly.
func OpenHeap(dataPath, headerPath string, schema *Schema) (*Heap, error) {
	data, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	header, err := os.OpenFile(headerPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		data.Close()
		return nil, err
	}

	h := &Heap{
		schema:     schema,
		dataPath:   dataPath,
		headerPath: headerPath,
		data:       data,
		header:     header,
		recordSize: schema.RecordSize,
	}

	info, err := header.Stat()
	if err != nil {
		h.Close()
		return nil, err
	}
	if info.Size() < heapHeaderSize {
		h.freeListHead = -1
		if err := h.writeHeader(); err != nil {
			h.Close()
			return nil, err
		}
	} else {
		buf := make([]byte, heapHeaderSize)
		if _, err := header.ReadAt(buf, 0); err != nil {
			h.Close()
			return nil, err
		}
		h.freeListHead = int32(binary.LittleEndian.Uint32(buf))
	}

	dataInfo, err := data.Stat()
	if err != nil {
		h.Close()
		return nil, err
	}
	h.fileSize = dataInfo.Size() / int64(h.recordSize)

	return h, nil
}

// SetSyncWrites enables or disables fsync after each data-file write, per
// Config.SyncWrites. Off by default, matching folio's own Config.
func (h *Heap) SetSyncWrites(sync bool) {
	h.syncWrites = sync
}

// Close releases the heap's file handles.
func (h *Heap) Close() error {
	err1 := h.data.Close()
	err2 := h.header.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func (h *Heap) writeHeader() error {
	var buf [heapHeaderSize]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(h.freeListHead))
	if _, err := h.header.WriteAt(buf[:], 0); err != nil {
		return err
	}
	return h.header.Sync()
}

func (h *Heap) byteOffset(slot int64) int64 {
	return slot * int64(h.recordSize)
}

// AddRecord reuses the head of the free list if non-empty, otherwise
// appends at the end of the file. The record's Next is forced to 0 on
// write, per spec.md §4.2.
func (h *Heap) AddRecord(r *Record) (int64, error) {
	if h.freeListHead != -1 {
		slot := int64(h.freeListHead)
		old, err := h.ReadRecord(slot)
		if err != nil {
			return 0, err
		}
		h.freeListHead = old.Next

		r.Next = nextLive
		if err := h.writeRecordAt(slot, r); err != nil {
			return 0, err
		}
		if err := h.writeHeader(); err != nil {
			return 0, err
		}
		return slot, nil
	}

	slot := h.fileSize
	r.Next = nextLive
	if err := h.writeRecordAt(slot, r); err != nil {
		return 0, err
	}
	h.fileSize++
	return slot, nil
}

// ReadRecord reads the record at slot, returning ErrNotFound on a short
// read (slot past the end of the file).
func (h *Heap) ReadRecord(slot int64) (*Record, error) {
	buf := make([]byte, h.recordSize)
	n, err := h.data.ReadAt(buf, h.byteOffset(slot))
	if err != nil && err != io.EOF {
		return nil, err
	}
	if n != h.recordSize {
		return nil, ErrNotFound
	}
	rec, err := unpack(h.schema, buf)
	if err != nil {
		return nil, err
	}
	rec.Pos = slot
	return rec, nil
}

// RemoveRecord pushes slot onto the free list. Returns false (not an
// error) if the slot is already free — idempotent delete, per spec.md §7.
func (h *Heap) RemoveRecord(slot int64) (bool, error) {
	rec, err := h.ReadRecord(slot)
	if err != nil {
		return false, err
	}
	if rec.Next != nextLive {
		return false, nil
	}

	rec.Next = h.freeListHead
	if err := h.writeRecordAt(slot, rec); err != nil {
		return false, err
	}
	h.freeListHead = int32(slot)
	if err := h.writeHeader(); err != nil {
		return false, err
	}
	return true, nil
}

// WriteRecordAt overwrites the record at slot in place with r exactly as
// given, including r's own Next value (spec.md §4.8 update_record writes
// new values at the same slot via this primitive). The heap grows to cover
// slot if needed.
func (h *Heap) WriteRecordAt(slot int64, r *Record) error {
	if err := h.writeRecordAt(slot, r); err != nil {
		return err
	}
	if slot >= h.fileSize {
		h.fileSize = slot + 1
	}
	return nil
}

// writeRecordAt is the single point every mutating heap write funnels
// through (AddRecord, WriteRecordAt, RemoveRecord), so gating the data-file
// fsync here covers all three, per Config.SyncWrites and folio's write.go.
func (h *Heap) writeRecordAt(slot int64, r *Record) error {
	buf, err := pack(h.schema, r)
	if err != nil {
		return err
	}
	if _, err := h.data.WriteAt(buf, h.byteOffset(slot)); err != nil {
		return err
	}
	if h.syncWrites {
		return h.data.Sync()
	}
	return nil
}

// GetAllLiveRecords scans every slot and yields those with Next == 0.
func (h *Heap) GetAllLiveRecords() ([]*Record, error) {
	var out []*Record
	for slot := int64(0); slot < h.fileSize; slot++ {
		rec, err := h.ReadRecord(slot)
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

// FileSize returns the current slot count (including free slots).
func (h *Heap) FileSize() int64 {
	return h.fileSize
}

// DataFile exposes the underlying data file handle, used by the Database
// Manager to drive a fileLock across process boundaries.
func (h *Heap) DataFile() *os.File {
	return h.data
}
