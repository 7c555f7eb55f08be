package bptree

import (
	"github.com/ryogrid/radixcache/internal/buffer"
	"github.com/ryogrid/radixcache/internal/radix"
)

// Tree is the fixed-size int64-keyed B+-tree. Every operation pins pages
// through bm as it descends and unpins them again once it no longer needs
// them, giving crab-style single-writer latching: a parent is held only
// until its child is safely pinned.
type Tree struct {
	bm       *buffer.Manager
	cache    *radix.Cache
	rootID   uint64
	innerCap int
	leafCap  int
}

// New bootstraps a brand-new tree: a single empty leaf page serves as the
// root until the first split promotes it.
func New(bm *buffer.Manager, cache *radix.Cache, pageSize int) *Tree {
	innerCap, leafCap := capacities(pageSize)
	t := &Tree{bm: bm, cache: cache, innerCap: innerCap, leafCap: leafCap}
	f := bm.NewPage()
	p := wrap(f.Data, innerCap, leafCap)
	p.SetPageID(f.PageID)
	p.SetInner(false)
	p.SetCount(0)
	p.SetCapacity(int32(leafCap))
	p.SetNextLeaf(0)
	t.rootID = f.PageID
	bm.UnpinPage(f.PageID, true)
	return t
}

// Reopen attaches a tree to an already-populated buffer/storage stack whose
// root page id is already known, supporting the restart-from-a-prior-file
// path.
func Reopen(bm *buffer.Manager, cache *radix.Cache, pageSize int, rootID uint64) *Tree {
	innerCap, leafCap := capacities(pageSize)
	return &Tree{bm: bm, cache: cache, rootID: rootID, innerCap: innerCap, leafCap: leafCap}
}

// RootPageID exposes the current root id, e.g. for persisting across restarts.
func (t *Tree) RootPageID() uint64 { return t.rootID }

func (t *Tree) wrapFrame(f *buffer.Frame) *page {
	return wrap(f.Data, t.innerCap, t.leafCap)
}

func (t *Tree) isFull(p *page) bool {
	if p.IsInner() {
		return int(p.Count()) == t.innerCap
	}
	return int(p.Count()) == t.leafCap
}

func (t *Tree) minFill(isLeaf bool) int {
	if isLeaf {
		return t.leafCap / 2
	}
	return t.innerCap / 2
}

func (t *Tree) tooSparse(p *page) bool {
	return int(p.Count()) <= t.minFill(!p.IsInner())
}

func (t *Tree) allocLeaf() (*buffer.Frame, *page) {
	f := t.bm.NewPage()
	p := t.wrapFrame(f)
	p.SetPageID(f.PageID)
	p.SetInner(false)
	p.SetCount(0)
	p.SetCapacity(int32(t.leafCap))
	p.SetNextLeaf(0)
	return f, p
}

func (t *Tree) allocInner() (*buffer.Frame, *page) {
	f := t.bm.NewPage()
	p := t.wrapFrame(f)
	p.SetPageID(f.PageID)
	p.SetInner(true)
	p.SetCount(0)
	p.SetCapacity(int32(t.innerCap))
	return f, p
}

// --- descent helpers shared by get/update/scan ---

func (t *Tree) descendToLeaf(key int64) (*buffer.Frame, *page) {
	frame := t.bm.FetchPage(t.rootID)
	p := t.wrapFrame(frame)
	for p.IsInner() {
		idx := p.innerSearch(key)
		childID := p.Child(idx)
		t.bm.UnpinPage(frame.PageID, false)
		frame = t.bm.FetchPage(childID)
		p = t.wrapFrame(frame)
	}
	return frame, p
}

// Get returns the value stored for key, or Absent if it is not present.
func (t *Tree) Get(key int64) int64 {
	if t.cache != nil {
		if pageID, frame, ok := t.cache.Lookup(key); ok && frame.PageID == pageID {
			p := wrap(frame.Data, t.innerCap, t.leafCap)
			if idx, found := p.leafSearch(key); found {
				return p.Value(idx)
			}
		}
	}
	frame, p := t.descendToLeaf(key)
	idx, found := p.leafSearch(key)
	result := Absent
	if found {
		result = p.Value(idx)
	}
	if t.cache != nil {
		t.cache.Insert(key, p.PageID(), frame)
	}
	t.bm.UnpinPage(frame.PageID, false)
	return result
}

// Update overwrites key's value in place if present, reporting whether it
// was found. A cache hit updates the frame directly and marks the page
// dirty, with no cache bookkeeping required: the key set hasn't changed,
// only the value.
func (t *Tree) Update(key, value int64) bool {
	if t.cache != nil {
		if pageID, frame, ok := t.cache.Lookup(key); ok && frame.PageID == pageID {
			p := wrap(frame.Data, t.innerCap, t.leafCap)
			if idx, found := p.leafSearch(key); found {
				p.SetValue(idx, value)
				t.bm.MarkDirty(pageID)
				return true
			}
		}
	}
	frame, p := t.descendToLeaf(key)
	idx, found := p.leafSearch(key)
	if found {
		p.SetValue(idx, value)
	}
	if t.cache != nil {
		t.cache.Insert(key, p.PageID(), frame)
	}
	t.bm.UnpinPage(frame.PageID, found)
	return found
}

// Scan locates key's slot and XORs together up to count consecutive values
// from there, walking NextLeaf across leaf boundaries. Absent is returned
// if key itself is not present (scan never starts mid-range); if the true
// reduction happens to equal Absent, Absent+1 is returned instead so the
// two cases stay distinguishable.
func (t *Tree) Scan(key int64, count int) int64 {
	frame, p := t.descendToLeaf(key)
	idx, found := p.leafSearch(key)
	if !found {
		t.bm.UnpinPage(frame.PageID, false)
		return Absent
	}
	if t.cache != nil {
		t.cache.Insert(key, p.PageID(), frame)
	}
	var xorAcc int64
	scanned := 0
	for scanned < count {
		if idx == int(p.Count()) {
			next := p.NextLeaf()
			t.bm.UnpinPage(frame.PageID, false)
			if next == 0 {
				return normalizeXOR(xorAcc, true)
			}
			frame = t.bm.FetchPage(next)
			p = t.wrapFrame(frame)
			idx = 0
			continue
		}
		xorAcc ^= p.Value(idx)
		scanned++
		idx++
	}
	t.bm.UnpinPage(frame.PageID, false)
	return normalizeXOR(xorAcc, true)
}

func normalizeXOR(x int64, seen bool) int64 {
	if !seen {
		return Absent
	}
	if x == Absent {
		return Absent + 1
	}
	return x
}

// Validate checks the three structural predicates the original tree
// exposes for tests: balanced (every leaf at the same depth), ordered
// (recursive key-range containment across every subtree edge, keys
// non-decreasing within every page), and concatenated (the leaf chain reached via
// NextLeaf from the leftmost leaf visits exactly expectedCount entries in
// non-decreasing order). expectedCount counts every leaf slot, including
// duplicate-key entries created by repeated inserts of the same key.
func (t *Tree) Validate(expectedCount int) bool {
	if _, ok := t.validateSubtree(t.rootID, nil, nil); !ok {
		return false
	}
	return t.isConcatenated(expectedCount)
}

// validateSubtree checks ordering/containment and returns the subtree's
// leaf depth (1 for a leaf); ok is false if containment, in-page key
// order, or equal-leaf-depth (balance) fails anywhere below pageID.
func (t *Tree) validateSubtree(pageID uint64, lo, hi *int64) (int, bool) {
	frame := t.bm.FetchPage(pageID)
	p := t.wrapFrame(frame)
	defer t.bm.UnpinPage(frame.PageID, false)
	n := int(p.Count())
	for i := 0; i < n; i++ {
		if lo != nil && p.Key(i) < *lo {
			return 0, false
		}
		if hi != nil && p.Key(i) > *hi {
			return 0, false
		}
		// Leaves may hold duplicate keys in successive slots, and splitting
		// such a run promotes equal separators, so inner keys may repeat too.
		if i > 0 && p.Key(i) < p.Key(i-1) {
			return 0, false
		}
	}
	if !p.IsInner() {
		return 1, true
	}
	depth := -1
	for i := 0; i <= n; i++ {
		var childLo, childHi *int64
		if i > 0 {
			k := p.Key(i - 1)
			childLo = &k
		}
		if i < n {
			k := p.Key(i)
			childHi = &k
		}
		childDepth, ok := t.validateSubtree(p.Child(i), childLo, childHi)
		if !ok {
			return 0, false
		}
		if depth == -1 {
			depth = childDepth
		} else if depth != childDepth {
			return 0, false
		}
	}
	return depth + 1, true
}

// isConcatenated walks the leaf chain from the leftmost leaf, checking
// non-decreasing order across leaf boundaries and a total slot count equal
// to expectedCount.
func (t *Tree) isConcatenated(expectedCount int) bool {
	pageID := t.leftmostLeaf(t.rootID)
	count := 0
	havePrev := false
	var prev int64
	for pageID != 0 {
		frame := t.bm.FetchPage(pageID)
		p := t.wrapFrame(frame)
		n := int(p.Count())
		for i := 0; i < n; i++ {
			k := p.Key(i)
			if havePrev && k < prev {
				t.bm.UnpinPage(frame.PageID, false)
				return false
			}
			prev = k
			havePrev = true
			count++
		}
		next := p.NextLeaf()
		t.bm.UnpinPage(frame.PageID, false)
		pageID = next
	}
	return count == expectedCount
}

func (t *Tree) leftmostLeaf(pageID uint64) uint64 {
	frame := t.bm.FetchPage(pageID)
	p := t.wrapFrame(frame)
	for p.IsInner() {
		childID := p.Child(0)
		t.bm.UnpinPage(frame.PageID, false)
		frame = t.bm.FetchPage(childID)
		p = t.wrapFrame(frame)
	}
	id := p.PageID()
	t.bm.UnpinPage(frame.PageID, false)
	return id
}
