// Package radixcache is a single-key-space embedded ordered index over
// int64 -> int64 keys: a fixed-page-size B+-tree (internal/bptree) backed
// by a buffer pool (internal/buffer) and flat-file storage manager
// (internal/storage), optionally accelerated by an adaptive radix tree
// cache (internal/radix) that hints at a leaf page directly instead of
// walking the tree from the root.
//
// Grounded on original_source/src/data/data_manager.h's thin-composition
// shape: DataManager itself does no algorithmic work, it only wires C1-C4
// together and routes each public operation to the right component.
package radixcache

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/ryogrid/radixcache/internal/bptree"
	"github.com/ryogrid/radixcache/internal/buffer"
	"github.com/ryogrid/radixcache/internal/radix"
	"github.com/ryogrid/radixcache/internal/storage"
)

// Absent is the sentinel returned in place of any value for a key that is
// not present in the index.
const Absent = bptree.Absent

// DataManager composes the storage, buffer, B+-tree and radix cache layers
// behind the driver API in SPEC_FULL.md §6.
type DataManager struct {
	storage *storage.Manager
	buffer  *buffer.Manager
	tree    *bptree.Tree
	cache   *radix.Cache
}

// Open builds a fresh DataManager from cfg, creating a new backing file on
// disk (afero.NewOsFs()).
func Open(cfg Config) (*DataManager, error) {
	return OpenFs(afero.NewOsFs(), cfg)
}

// OpenFs builds a fresh DataManager against the given afero filesystem,
// letting tests run entirely in memory via afero.NewMemMapFs().
func OpenFs(fs afero.Fs, cfg Config) (*DataManager, error) {
	if cfg.PageSize%16 != 0 || cfg.PageSize <= 32 {
		return nil, fmt.Errorf("radixcache: page size %d must be a multiple of 16 greater than 32", cfg.PageSize)
	}
	sm, err := storage.Open(fs, cfg.DataFile, cfg.PageSize)
	if err != nil {
		return nil, err
	}
	bm := buffer.New(sm, cfg.BufferFrames)
	cache := radix.NewCache(cfg.CacheBudget)
	tree := bptree.New(bm, cache, cfg.PageSize)
	return &DataManager{storage: sm, buffer: bm, tree: tree, cache: cache}, nil
}

// OpenComponents builds a DataManager directly from already-constructed
// components, mirroring data_manager.h's component-based constructor
// (as opposed to Open/OpenFs's path-based one). Lets callers inject a tree
// or cache wired up against fakes instead of a freshly opened file.
func OpenComponents(sm *storage.Manager, bm *buffer.Manager, tree *bptree.Tree, cache *radix.Cache) *DataManager {
	return &DataManager{storage: sm, buffer: bm, tree: tree, cache: cache}
}

// Close flushes dirty pages and truncates the backing file (the buffer
// manager's Close also closes storage beneath it), then drops the cache,
// in the same buffer-then-storage-then-cache order as data_manager.h's
// destroy(). The backing file is scratch storage: its contents do not
// survive Close, and a later Open on the same path starts from an empty
// index.
func (d *DataManager) Close() error {
	err := d.buffer.Close()
	if d.cache != nil {
		d.cache.Destroy()
	}
	return err
}

// Insert adds a new key -> value entry; inserting a key that is already
// present adds a further entry for it rather than overwriting the old one.
func (d *DataManager) Insert(key, value int64) {
	d.tree.Insert(key, value)
}

// DeleteValue removes key if present. Per data_manager.h, the cache
// reference is dropped first (it is a pure hint, dropping it is always
// safe) and then the authoritative B+-tree entry is removed.
func (d *DataManager) DeleteValue(key int64) {
	d.tree.Delete(key)
}

// GetValue returns the value stored for key, or Absent if it is not present.
func (d *DataManager) GetValue(key int64) int64 {
	return d.tree.Get(key)
}

// Update overwrites key's value if present, reporting whether it was found.
func (d *DataManager) Update(key, value int64) bool {
	return d.tree.Update(key, value)
}

// Scan locates key's slot and XORs together up to count consecutive
// values from there, walking leaf links across page boundaries. Absent is
// returned if key itself is not present.
func (d *DataManager) Scan(key int64, count int) int64 {
	return d.tree.Scan(key, count)
}

// Validate checks the B+-tree's three structural predicates: balanced
// (equal leaf depth), ordered (key-range containment at every level), and
// concatenated (the leaf chain holds exactly expectedCount entries in
// non-decreasing order).
func (d *DataManager) Validate(expectedCount int) bool {
	return d.tree.Validate(expectedCount)
}

// GetCacheSize returns the radix cache's current estimated resident byte size.
func (d *DataManager) GetCacheSize() int {
	return d.cache.Size()
}

// GetCurrentBufferSize returns the number of frames currently allocated in
// the buffer pool.
func (d *DataManager) GetCurrentBufferSize() int {
	return d.buffer.CurrentSize()
}
