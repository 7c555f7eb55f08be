// Package buffer implements the fixed-capacity buffer pool: pin/unpin
// (fix/unfix) accounting, dirty-flag writeback, and second-chance eviction
// that draws a fresh random slot on every probe.
//
// Frames live in a fixed-capacity slot array whose addresses never move
// once allocated — eviction reuses a slot's existing *Frame, only mutating
// its fields. This is deliberate: the radix cache (package radix) captures
// raw *Frame pointers as lookup hints and revalidates them by comparing the
// frame's live PageID against the id it captured, the same way the teacher
// repo's pagePool/latchs parallel arrays give its buffer manager stable
// per-slot addresses. A map of freshly-allocated per-fetch frames would
// never go stale and would break that invalidation scheme.
package buffer

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ryogrid/radixcache/internal/storage"
)

// Frame is one buffer pool slot: a pinned/unpinned page image plus its
// clock (reference) bit and dirty flag.
type Frame struct {
	PageID   uint64
	Data     []byte
	pinCount int
	marked   bool
	dirty    bool
}

// Pinned reports whether the frame currently has at least one outstanding
// fix. Exposed for validation/test use only.
func (f *Frame) Pinned() bool { return f.pinCount > 0 }

// Manager is the fixed-capacity buffer pool sitting in front of a storage.Manager.
type Manager struct {
	mu       sync.Mutex
	storage  *storage.Manager
	pageSize int
	capacity int
	frames   []*Frame
	index    map[uint64]int
	rnd      *rand.Rand
}

// New creates a buffer pool of the given frame capacity over sm.
func New(sm *storage.Manager, capacity int) *Manager {
	return &Manager{
		storage:  sm,
		pageSize: sm.PageSize(),
		capacity: capacity,
		frames:   make([]*Frame, 0, capacity),
		index:    make(map[uint64]int, capacity),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// FetchPage pins and returns the frame holding page_id, loading it from
// storage if it is not already resident.
func (m *Manager) FetchPage(pageID uint64) *Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot, ok := m.index[pageID]; ok {
		f := m.frames[slot]
		f.pinCount++
		f.marked = true
		return f
	}
	slot := m.allocSlot()
	f := m.frames[slot]
	m.storage.LoadPage(pageID, f.Data)
	f.PageID = pageID
	f.pinCount = 1
	f.marked = true
	f.dirty = false
	m.index[pageID] = slot
	return f
}

// NewPage allocates a fresh page from storage, pins it dirty, and returns
// its frame.
func (m *Manager) NewPage() *Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot := m.allocSlot()
	f := m.frames[slot]
	pageID := m.storage.GetUnusedPageID()
	for i := range f.Data {
		f.Data[i] = 0
	}
	f.PageID = pageID
	f.pinCount = 1
	f.marked = true
	f.dirty = true
	m.index[pageID] = slot
	return f
}

// allocSlot returns a slot index ready to hold a new page: either a fresh
// slot (pool not yet full) or an evicted one. Caller holds m.mu.
func (m *Manager) allocSlot() int {
	if len(m.frames) < m.capacity {
		m.frames = append(m.frames, &Frame{Data: make([]byte, m.pageSize)})
		return len(m.frames) - 1
	}
	return m.evict()
}

// evict repeatedly probes a random slot until it finds one that is unpinned
// and unmarked, skipping pinned probes and clearing the mark on
// unpinned-but-marked probes it passes over. This mirrors evict_page's dist(rd) % current_buffer_size reroll on
// every iteration rather than a sequentially advancing clock hand.
func (m *Manager) evict() int {
	if len(m.frames) == 0 {
		panic("buffer: no frames to evict from an empty pool")
	}
	attempts := 0
	maxAttempts := 64 * (len(m.frames) + 1)
	for {
		i := m.rnd.Intn(len(m.frames))
		f := m.frames[i]
		if f.pinCount != 0 {
			attempts++
			if attempts >= maxAttempts {
				panic("buffer: pool exhausted, every frame is pinned")
			}
			continue
		}
		if f.marked {
			f.marked = false
			continue
		}
		if f.dirty {
			m.storage.SavePage(f.PageID, f.Data)
		}
		delete(m.index, f.PageID)
		return i
	}
}

// UnpinPage releases one fix on page_id. dirty is OR'd into the frame's
// existing dirty flag.
func (m *Manager) UnpinPage(pageID uint64, dirty bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.index[pageID]
	if !ok {
		return
	}
	f := m.frames[slot]
	if f.pinCount == 0 {
		panic(fmt.Sprintf("buffer: unpin of already-unpinned page %d", pageID))
	}
	f.pinCount--
	f.dirty = f.dirty || dirty
}

// DeletePage evicts page_id from the pool (if resident) and frees it in
// storage. The page must not be pinned.
func (m *Manager) DeletePage(pageID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot, ok := m.index[pageID]; ok {
		f := m.frames[slot]
		if f.pinCount != 0 {
			panic(fmt.Sprintf("buffer: delete of pinned page %d", pageID))
		}
		delete(m.index, pageID)
		f.PageID = 0
		f.marked = false
		f.dirty = false
	}
	m.storage.DeletePage(pageID)
}

// MarkDirty marks page_id dirty without changing its pin count, mirroring
// the original's standalone mark_dirty entry point.
func (m *Manager) MarkDirty(pageID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot, ok := m.index[pageID]; ok {
		m.frames[slot].dirty = true
	}
}

// Close flushes every dirty frame to storage and closes the underlying file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.frames {
		if f.dirty {
			m.storage.SavePage(f.PageID, f.Data)
		}
	}
	return m.storage.Close()
}

// CurrentSize returns the number of frames currently allocated (not
// necessarily all pinned), mirroring get_current_buffer_size.
func (m *Manager) CurrentSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

// Capacity returns the pool's fixed frame capacity B.
func (m *Manager) Capacity() int { return m.capacity }
