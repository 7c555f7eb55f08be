// Package bptree implements the fixed-size, int64-keyed B+-tree: a 16-byte
// page header shared by inner and leaf pages, followed by a typed,
// capacity-bound array region. Layout matches
// original_source/src/bplus_tree/b_nodes.h (BInnerNode/BOuterNode)
// byte-for-byte; page access goes through this file's accessor methods
// rather than heap-owned struct fields, so a page's on-disk image is always
// exactly its in-memory buffer.Frame.Data slice.
package bptree

import "encoding/binary"

// Absent is the sentinel value returned for keys that are not present.
const Absent int64 = -1 << 63

// page is a typed view over a fixed-size byte buffer. innerCap/leafCap are
// derived once per tree from the configured page size and shared by every
// page instance, matching b_nodes.h's PAGE_SIZE-templated capacity math:
// innerCap = ((P-32)/2)/8 - 1, leafCap = ((P-32)/2)/8.
type page struct {
	data     []byte
	innerCap int
	leafCap  int
}

func wrap(data []byte, innerCap, leafCap int) *page {
	return &page{data: data, innerCap: innerCap, leafCap: leafCap}
}

func capacities(pageSize int) (innerCap, leafCap int) {
	innerCap = ((pageSize-32)/2)/8 - 1
	leafCap = ((pageSize - 32) / 2) / 8
	return
}

// --- 16-byte header, shared by inner and leaf pages ---

func (p *page) PageID() uint64     { return binary.LittleEndian.Uint64(p.data[0:8]) }
func (p *page) SetPageID(id uint64) { binary.LittleEndian.PutUint64(p.data[0:8], id) }
func (p *page) IsInner() bool      { return p.data[8] != 0 }
func (p *page) SetInner(v bool) {
	if v {
		p.data[8] = 1
	} else {
		p.data[8] = 0
	}
}

// --- count/capacity, shared field offsets ---

func (p *page) Count() int32 { return int32(binary.LittleEndian.Uint32(p.data[16:20])) }
func (p *page) SetCount(n int32) {
	binary.LittleEndian.PutUint32(p.data[16:20], uint32(n))
}
func (p *page) Capacity() int32 { return int32(binary.LittleEndian.Uint32(p.data[20:24])) }
func (p *page) SetCapacity(n int32) {
	binary.LittleEndian.PutUint32(p.data[20:24], uint32(n))
}

// --- inner-node region: keys[innerCap], children[innerCap+1] ---

func (p *page) Key(i int) int64 {
	off := 32 + 8*i
	return int64(binary.LittleEndian.Uint64(p.data[off:]))
}
func (p *page) SetKey(i int, k int64) {
	off := 32 + 8*i
	binary.LittleEndian.PutUint64(p.data[off:], uint64(k))
}
func (p *page) Child(i int) uint64 {
	off := 32 + 8*p.innerCap + 8*i
	return binary.LittleEndian.Uint64(p.data[off:])
}
func (p *page) SetChild(i int, id uint64) {
	off := 32 + 8*p.innerCap + 8*i
	binary.LittleEndian.PutUint64(p.data[off:], id)
}

// --- leaf-node region: nextLeaf uint64 (at header offset 24), values[leafCap] ---

func (p *page) NextLeaf() uint64 { return binary.LittleEndian.Uint64(p.data[24:32]) }
func (p *page) SetNextLeaf(id uint64) {
	binary.LittleEndian.PutUint64(p.data[24:32], id)
}
func (p *page) Value(i int) int64 {
	off := 32 + 8*p.leafCap + 8*i
	return int64(binary.LittleEndian.Uint64(p.data[off:]))
}
func (p *page) SetValue(i int, v int64) {
	off := 32 + 8*p.leafCap + 8*i
	binary.LittleEndian.PutUint64(p.data[off:], uint64(v))
}

// leafSearch returns the position of key in a leaf's sorted key array, or
// the insertion point and false if absent.
func (p *page) leafSearch(key int64) (int, bool) {
	n := int(p.Count())
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if p.Key(mid) < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < n && p.Key(lo) == key {
		return lo, true
	}
	return lo, false
}

// innerSearch returns the child index to descend into for key: the number
// of separator keys <= key, matching the convention that keys[i] is the
// smallest key reachable through children[i+1].
func (p *page) innerSearch(key int64) int {
	n := int(p.Count())
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if p.Key(mid) <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// --- mutation helpers shared by insert/delete/split/merge ---

func (p *page) insertInner(idx int, key int64, rightChild uint64) {
	n := int(p.Count())
	for i := n; i > idx; i-- {
		p.SetKey(i, p.Key(i-1))
	}
	for i := n + 1; i > idx+1; i-- {
		p.SetChild(i, p.Child(i-1))
	}
	p.SetKey(idx, key)
	p.SetChild(idx+1, rightChild)
	p.SetCount(int32(n + 1))
}

// insertLeaf always creates a new slot for (key, value), even when key is
// already present: leaves may hold duplicate keys in successive slots, one
// per insert, matching BOuterNode::insert's unconditional shift-and-place.
func (p *page) insertLeaf(key, value int64) {
	idx, _ := p.leafSearch(key)
	n := int(p.Count())
	for i := n; i > idx; i-- {
		p.SetKey(i, p.Key(i-1))
		p.SetValue(i, p.Value(i-1))
	}
	p.SetKey(idx, key)
	p.SetValue(idx, value)
	p.SetCount(int32(n + 1))
}

func (p *page) deleteLeafAt(idx int) {
	n := int(p.Count())
	for i := idx; i < n-1; i++ {
		p.SetKey(i, p.Key(i+1))
		p.SetValue(i, p.Value(i+1))
	}
	p.SetCount(int32(n - 1))
}

func (p *page) prependInner(key int64, child uint64) {
	n := int(p.Count())
	for i := n; i > 0; i-- {
		p.SetKey(i, p.Key(i-1))
	}
	for i := n + 1; i > 0; i-- {
		p.SetChild(i, p.Child(i-1))
	}
	p.SetKey(0, key)
	p.SetChild(0, child)
	p.SetCount(int32(n + 1))
}

func (p *page) appendInner(key int64, child uint64) {
	n := int(p.Count())
	p.SetKey(n, key)
	p.SetChild(n+1, child)
	p.SetCount(int32(n + 1))
}

func (p *page) prependLeaf(key, val int64) {
	n := int(p.Count())
	for i := n; i > 0; i-- {
		p.SetKey(i, p.Key(i-1))
		p.SetValue(i, p.Value(i-1))
	}
	p.SetKey(0, key)
	p.SetValue(0, val)
	p.SetCount(int32(n + 1))
}

func (p *page) appendLeaf(key, val int64) {
	n := int(p.Count())
	p.SetKey(n, key)
	p.SetValue(n, val)
	p.SetCount(int32(n + 1))
}

func (p *page) popLastInner() (int64, uint64) {
	n := int(p.Count())
	k := p.Key(n - 1)
	c := p.Child(n)
	p.SetCount(int32(n - 1))
	return k, c
}

func (p *page) popFirstInner() (int64, uint64) {
	k := p.Key(0)
	c := p.Child(0)
	n := int(p.Count())
	for i := 0; i < n-1; i++ {
		p.SetKey(i, p.Key(i+1))
	}
	for i := 0; i < n; i++ {
		p.SetChild(i, p.Child(i+1))
	}
	p.SetCount(int32(n - 1))
	return k, c
}

func (p *page) popLastLeaf() (int64, int64) {
	n := int(p.Count())
	k, v := p.Key(n-1), p.Value(n-1)
	p.SetCount(int32(n - 1))
	return k, v
}

func (p *page) popFirstLeaf() (int64, int64) {
	k, v := p.Key(0), p.Value(0)
	n := int(p.Count())
	for i := 0; i < n-1; i++ {
		p.SetKey(i, p.Key(i+1))
		p.SetValue(i, p.Value(i+1))
	}
	p.SetCount(int32(n - 1))
	return k, v
}

// splitIndex implements the split-point rule: max/2 entries stay on the
// left side if max is even, max/2+1 if max is odd.
func splitIndex(max int) int {
	if max%2 == 0 {
		return max / 2
	}
	return max/2 + 1
}
