package radixcache

// Config holds the construction-time parameters for a DataManager: page
// size, buffer pool capacity and the radix cache's byte budget. There is no
// config-file/env loader here — like the teacher's NewBufMgr/NewBLTree
// constructors, an embedded library takes its parameters directly as
// arguments from its host process rather than reading its own
// configuration source (see DESIGN.md for why this stays a plain struct
// rather than pulling in a config-loading library).
type Config struct {
	// PageSize is the fixed byte size P of every page on disk; must be a
	// multiple of 16 large enough to hold the 32-byte shared header/count
	// region plus at least a handful of entries.
	PageSize int
	// BufferFrames is the buffer pool's fixed frame capacity B.
	BufferFrames int
	// CacheBudget is the radix cache's byte budget. Zero or negative
	// disables the cache entirely.
	CacheBudget int
	// DataFile is the path of the backing data file.
	DataFile string
}

// DefaultConfig returns reasonable defaults for an embedded index: 4KiB
// pages, a 64-frame buffer pool, and a 1MiB cache budget.
func DefaultConfig(dataFile string) Config {
	return Config{
		PageSize:     4096,
		BufferFrames: 64,
		CacheBudget:  1 << 20,
		DataFile:     dataFile,
	}
}
