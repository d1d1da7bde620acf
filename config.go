// Tunables for the Database Manager and the index it opens.
//
// Every field is optional — the zero value means "use the default",
// the same convention folio's db.go applies to its own Options (a missing
// SyncWrites, missing directory, etc. all fall back silently rather than
// erroring). Order/BucketSize/MaxChildren/AuxThreshold only matter for the
// index kind that uses them; the rest are ignored.
package strata

// IndexKind selects which of the five index implementations a table uses.
type IndexKind int

const (
	IndexBPlusTree IndexKind = iota
	IndexISAM
	IndexExtendibleHash
	IndexSequentialFile
	IndexRTree
)

func (k IndexKind) String() string {
	switch k {
	case IndexBPlusTree:
		return "bplustree"
	case IndexISAM:
		return "isam"
	case IndexExtendibleHash:
		return "extendible_hash"
	case IndexSequentialFile:
		return "sequential_file"
	case IndexRTree:
		return "rtree"
	default:
		return "unknown"
	}
}

const (
	defaultOrder        = 4  // B+ tree order, matching the original's default
	defaultBucketSize   = 3  // extendible hash per-bucket capacity
	defaultMaxChildren  = 4  // R-tree fan-out
	defaultAuxThreshold = seqDefaultKThreshold
	defaultHashAlgo     = AlgXXHash3
)

// Config tunes a Database Manager and its index. The zero Config is valid
// and resolves every field to its default via Normalize.
type Config struct {
	Kind IndexKind

	HashAlgorithm int // extendible hash only; one of the Alg* constants
	SyncWrites    bool
	Order         int // B+ tree
	BucketSize    int // extendible hash
	MaxChildren   int // R-tree
	AuxThreshold  int // sequential file

	UseBloomFilter bool
	ExpectedKeys   uint // sizing hint for the Bloom filter

	// BoxOf derives a record's bounding box from its field values.
	// Required when Kind == IndexRTree; ignored otherwise.
	BoxOf func(values []any) BBox
}

// Normalize returns a copy of c with every zero-valued tunable replaced by
// its default.
func (c Config) Normalize() Config {
	if c.HashAlgorithm == 0 {
		c.HashAlgorithm = defaultHashAlgo
	}
	if c.Order == 0 {
		c.Order = defaultOrder
	}
	if c.BucketSize == 0 {
		c.BucketSize = defaultBucketSize
	}
	if c.MaxChildren == 0 {
		c.MaxChildren = defaultMaxChildren
	}
	if c.AuxThreshold == 0 {
		c.AuxThreshold = defaultAuxThreshold
	}
	if c.ExpectedKeys == 0 {
		c.ExpectedKeys = 1024
	}
	return c
}
