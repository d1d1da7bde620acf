// Shared snapshot persistence for every index kind.
//
// Each index snapshot is an opaque blob (spec.md §6) produced by the
// index's own serializer, but all five indexes share the same framing:
// a small fixed-size header (magic, version, hash algorithm, compressed
// flag, payload checksum and length) followed by the payload, written to a
// temp file and atomically renamed into place — the same swap folio's
// repair.go uses to replace its main file without ever leaving a reader
// looking at a half-written snapshot.
//
// The payload itself is encoded with github.com/goccy/go-json (folio's
// header.go/record.go encoder) and optionally Zstd-compressed (folio's
// compress.go) when it's large enough to be worth it. Checksums use xxh3
// (hash.go), the same dependency folio uses for fast hashing — so
// ErrCorruptSnapshot is raised from a checksum mismatch, not merely a
// JSON decode failure that a coincidentally-valid-looking blob could pass.
package strata

import (
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

const snapshotMagic uint32 = 0x53545254 // "STRT"
const snapshotVersion uint32 = 1

// snapshotHeader is encoded as a fixed-size JSON-padded region at the
// start of every index snapshot file.
type snapshotHeader struct {
	Magic      uint32 `json:"magic"`
	Version    uint32 `json:"version"`
	Algorithm  int    `json:"alg"`  // hash algorithm, meaningful for extendible hash only
	Compressed bool   `json:"zstd"`
	Checksum   uint64 `json:"sum"`  // xxh3 of the (possibly compressed) payload
	Length     int64  `json:"len"`  // byte length of the payload as stored on disk
}

const snapshotHeaderSize = 64

// compressThreshold is the payload size above which a snapshot is worth
// the zstd round trip. Small index snapshots (a handful of nodes) compress
// poorly and decompressing them on every load only adds latency.
const compressThreshold = 4096

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

func encodeHeader(h snapshotHeader) ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	if len(data) >= snapshotHeaderSize {
		return nil, ErrCorruptSnapshot
	}
	buf := make([]byte, snapshotHeaderSize)
	copy(buf, data)
	return buf, nil
}

func decodeHeader(buf []byte) (snapshotHeader, error) {
	var h snapshotHeader
	trimmed := buf[:0]
	for _, b := range buf {
		if b == 0 {
			break
		}
		trimmed = append(trimmed, b)
	}
	if err := json.Unmarshal(trimmed, &h); err != nil {
		return h, ErrCorruptSnapshot
	}
	if h.Magic != snapshotMagic {
		return h, ErrCorruptSnapshot
	}
	return h, nil
}

// writeSnapshot encodes value as JSON, compresses it if it's large enough
// to benefit, wraps it in a header, and atomically replaces path.
func writeSnapshot(path string, value any, algorithm int) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	compressed := false
	stored := payload
	if len(payload) >= compressThreshold {
		stored = zstdEncoder.EncodeAll(payload, nil)
		compressed = true
	}

	hdr := snapshotHeader{
		Magic:      snapshotMagic,
		Version:    snapshotVersion,
		Algorithm:  algorithm,
		Compressed: compressed,
		Checksum:   checksum64(stored),
		Length:     int64(len(stored)),
	}
	hdrBuf, err := encodeHeader(hdr)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(hdrBuf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if _, err := tmp.Write(stored); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// readSnapshot loads and validates a snapshot written by writeSnapshot,
// decoding the payload into dest (a pointer). Returns ErrCorruptSnapshot
// on any framing, checksum, or decode failure so callers can fall back to
// rebuilding the index from the heap, per spec.md §4.8.
func readSnapshot(path string, dest any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) < snapshotHeaderSize {
		return ErrCorruptSnapshot
	}

	hdr, err := decodeHeader(data[:snapshotHeaderSize])
	if err != nil {
		return err
	}

	stored := data[snapshotHeaderSize:]
	if int64(len(stored)) != hdr.Length {
		return ErrCorruptSnapshot
	}
	if checksum64(stored) != hdr.Checksum {
		return ErrCorruptSnapshot
	}

	payload := stored
	if hdr.Compressed {
		payload, err = zstdDecoder.DecodeAll(stored, nil)
		if err != nil {
			return ErrCorruptSnapshot
		}
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		return ErrCorruptSnapshot
	}
	return nil
}

// snapshotAlgorithm reads just enough of a snapshot to recover the
// persisted hash algorithm from the header, without decoding the payload.
// The extendible hash index does not call it; it reads the algorithm from
// its decoded snapshot payload instead.
func snapshotAlgorithm(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buf := make([]byte, snapshotHeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return 0, ErrCorruptSnapshot
	}
	hdr, err := decodeHeader(buf)
	if err != nil {
		return 0, err
	}
	return hdr.Algorithm, nil
}
