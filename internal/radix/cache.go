package radix

import (
	"encoding/binary"

	"github.com/ryogrid/radixcache/internal/buffer"
)

// Cache is the adaptive radix tree keyed by the raw 8-byte representation
// of an int64 key. A byte budget bounds its resident size; once the budget
// is exhausted, Insert silently drops the new entry rather than erroring,
// matching the "cache capacity exhaustion is not an error" rule.
type Cache struct {
	root    gnode
	budget  int
	used    int
	enabled bool
}

// NewCache returns a cache with the given byte budget. A non-positive
// budget disables the cache entirely (every Lookup misses, every Insert is
// a no-op) so callers can wire C4 out without special-casing call sites.
func NewCache(budget int) *Cache {
	return &Cache{budget: budget, enabled: budget > 0}
}

// Enabled reports whether this cache is active.
func (c *Cache) Enabled() bool { return c.enabled }

// Size returns the cache's current estimated resident byte size.
func (c *Cache) Size() int { return c.used }

func keyBytes(key int64) [8]byte {
	var kb [8]byte
	binary.BigEndian.PutUint64(kb[:], uint64(key))
	return kb
}

// Lookup resolves key to a cached (page id, frame) hint. The caller must
// still verify frame.PageID == the returned page id before trusting the
// frame's contents are actually the page they expect: eviction can reuse a
// frame's backing memory for an unrelated page between the cache's Insert
// call and a later Lookup, and that is the normal, expected way a hint goes
// stale, not an error condition.
func (c *Cache) Lookup(key int64) (pageID uint64, frame *buffer.Frame, ok bool) {
	if !c.enabled || c.root == nil {
		return 0, nil, false
	}
	kb := keyBytes(key)
	cur := c.root
	depth := 0
	for {
		if lf, isLeaf := cur.(*leafFrame); isLeaf {
			if lf.key == key {
				return lf.pageID, lf.frame, true
			}
			return 0, nil, false
		}
		h := nodeHeader(cur)
		for i := 0; i < int(h.prefixLen); i++ {
			if kb[depth+i] != h.prefix[i] {
				return 0, nil, false
			}
		}
		depth += int(h.prefixLen)
		if depth >= 8 {
			return 0, nil, false
		}
		next := childAt(cur, kb[depth])
		depth++
		if next == nil {
			return 0, nil, false
		}
		cur = next
	}
}

// Insert records that key currently resolves to pageID within frame.
func (c *Cache) Insert(key int64, pageID uint64, frame *buffer.Frame) {
	if !c.enabled {
		return
	}
	lf := &leafFrame{key: key, pageID: pageID, frame: frame}
	kb := keyBytes(key)
	added := c.insertAt(&c.root, kb, 0, lf)
	if added {
		c.used += sizeLeaf
	}
}

// insertAt inserts lf at *slot (depth bytes already consumed), returning
// true if new leaf bytes were allocated (false if an existing leaf for the
// same key was updated in place).
func (c *Cache) insertAt(slot *gnode, kb [8]byte, depth int, lf *leafFrame) bool {
	if c.used >= c.budget {
		return false
	}
	cur := *slot
	if cur == nil {
		*slot = lf
		return true
	}
	if exLeaf, isLeaf := cur.(*leafFrame); isLeaf {
		if exLeaf.key == lf.key {
			*exLeaf = *lf
			return false
		}
		var exBytes [8]byte
		binary.BigEndian.PutUint64(exBytes[:], uint64(exLeaf.key))
		d := depth
		for d < 8 && exBytes[d] == kb[d] {
			d++
		}
		branch := &n4{}
		branch.depth = uint8(d)
		copy(branch.prefix[:], kb[depth:d])
		branch.prefixLen = uint8(d - depth)
		branch.keys[0] = exBytes[d]
		branch.kids[0] = exLeaf
		branch.keys[1] = kb[d]
		branch.kids[1] = lf
		branch.count = 2
		*slot = branch
		c.used += sizeN4
		return true
	}
	return c.insertInternal(slot, cur, kb, depth, lf)
}

func (c *Cache) insertInternal(slot *gnode, cur gnode, kb [8]byte, depth int, lf *leafFrame) bool {
	h := nodeHeader(cur)
	i := 0
	for i < int(h.prefixLen) && kb[depth+i] == h.prefix[i] {
		i++
	}
	if i < int(h.prefixLen) {
		branch := &n4{}
		branch.depth = uint8(depth + i)
		copy(branch.prefix[:], kb[depth:depth+i])
		branch.prefixLen = uint8(i)
		oldByte := h.prefix[i]

		var shrunk [8]byte
		copy(shrunk[:], h.prefix[i+1:h.prefixLen])
		h.prefix = shrunk
		h.prefixLen = h.prefixLen - uint8(i) - 1

		branch.keys[0] = oldByte
		branch.kids[0] = cur
		branch.keys[1] = kb[depth+i]
		branch.kids[1] = lf
		branch.count = 2
		*slot = branch
		c.used += sizeN4
		return true
	}
	nd := depth + int(h.prefixLen)
	b := kb[nd]
	added, grown := c.insertChild(cur, b, nd+1, kb, lf)
	if grown != nil {
		*slot = grown
	}
	return added
}

// insertChild inserts lf as cur's child for byte b, growing cur to the next
// fan-out class if it is full. Returns whether new bytes were allocated and
// a non-nil replacement for cur if it was promoted.
func (c *Cache) insertChild(cur gnode, b byte, nextDepth int, kb [8]byte, lf *leafFrame) (bool, gnode) {
	switch n := cur.(type) {
	case *n4:
		for i := 0; i < n.count; i++ {
			if n.keys[i] == b {
				return c.insertAt(&n.kids[i], kb, nextDepth, lf), nil
			}
		}
		if n.count < 4 {
			n.keys[n.count] = b
			n.kids[n.count] = lf
			n.count++
			return true, nil
		}
		grown := growN4(n)
		c.used += sizeN16 - sizeN4
		added, _ := c.insertChild(grown, b, nextDepth, kb, lf)
		return added, grown
	case *n16:
		for i := 0; i < n.count; i++ {
			if n.keys[i] == b {
				return c.insertAt(&n.kids[i], kb, nextDepth, lf), nil
			}
		}
		if n.count < 16 {
			n.keys[n.count] = b
			n.kids[n.count] = lf
			n.count++
			return true, nil
		}
		grown := growN16(n)
		c.used += sizeN48 - sizeN16
		added, _ := c.insertChild(grown, b, nextDepth, kb, lf)
		return added, grown
	case *n48:
		if n.index[b] != 0 {
			return c.insertAt(&n.kids[n.index[b]-1], kb, nextDepth, lf), nil
		}
		if n.count < 48 {
			free := 0
			for n.kids[free] != nil {
				free++
			}
			n.index[b] = uint8(free + 1)
			n.kids[free] = lf
			n.count++
			return true, nil
		}
		grown := growN48(n)
		c.used += sizeN256 - sizeN48
		added, _ := c.insertChild(grown, b, nextDepth, kb, lf)
		return added, grown
	case *n256:
		if n.kids[b] == nil {
			n.kids[b] = lf
			n.count++
			return true, nil
		}
		return c.insertAt(&n.kids[b], kb, nextDepth, lf), nil
	}
	return false, nil
}

// DeleteReference removes key's cached entry, if any, demoting and
// path-merging nodes left with too few children.
func (c *Cache) DeleteReference(key int64) {
	if !c.enabled || c.root == nil {
		return
	}
	kb := keyBytes(key)
	c.deleteAt(&c.root, kb, 0, key)
}

func (c *Cache) deleteAt(slot *gnode, kb [8]byte, depth int, key int64) {
	cur := *slot
	if cur == nil {
		return
	}
	if lf, isLeaf := cur.(*leafFrame); isLeaf {
		if lf.key == key {
			*slot = nil
			c.used -= sizeLeaf
		}
		return
	}
	h := nodeHeader(cur)
	for i := 0; i < int(h.prefixLen); i++ {
		if kb[depth+i] != h.prefix[i] {
			return
		}
	}
	nd := depth + int(h.prefixLen)
	if nd >= 8 {
		return
	}
	b := kb[nd]
	c.deleteChild(slot, cur, b, kb, nd+1, key)
}

func (c *Cache) deleteChild(slot *gnode, cur gnode, b byte, kb [8]byte, nextDepth int, key int64) {
	switch n := cur.(type) {
	case *n4:
		for i := 0; i < n.count; i++ {
			if n.keys[i] == b {
				if lf, isLeaf := n.kids[i].(*leafFrame); isLeaf && lf.key == key {
					c.used -= sizeLeaf
					n.count--
					n.keys[i] = n.keys[n.count]
					n.kids[i] = n.kids[n.count]
					n.kids[n.count] = nil
				} else {
					c.deleteAt(&n.kids[i], kb, nextDepth, key)
				}
				break
			}
		}
		c.collapseN4(slot, n)
	case *n16:
		for i := 0; i < n.count; i++ {
			if n.keys[i] == b {
				if lf, isLeaf := n.kids[i].(*leafFrame); isLeaf && lf.key == key {
					c.used -= sizeLeaf
					n.count--
					n.keys[i] = n.keys[n.count]
					n.kids[i] = n.kids[n.count]
					n.kids[n.count] = nil
				} else {
					c.deleteAt(&n.kids[i], kb, nextDepth, key)
				}
				break
			}
		}
		if n.count <= 4 {
			*slot = shrinkToN4(n)
			c.used += sizeN4 - sizeN16
		}
	case *n48:
		if n.index[b] != 0 {
			i := n.index[b] - 1
			if lf, isLeaf := n.kids[i].(*leafFrame); isLeaf && lf.key == key {
				c.used -= sizeLeaf
				n.kids[i] = nil
				n.index[b] = 0
				n.count--
			} else {
				c.deleteAt(&n.kids[i], kb, nextDepth, key)
			}
		}
		if n.count <= 16 {
			*slot = shrinkToN16(n)
			c.used += sizeN16 - sizeN48
		}
	case *n256:
		if n.kids[b] != nil {
			if lf, isLeaf := n.kids[b].(*leafFrame); isLeaf && lf.key == key {
				c.used -= sizeLeaf
				n.kids[b] = nil
				n.count--
			} else {
				c.deleteAt(&n.kids[b], kb, nextDepth, key)
			}
		}
		if n.count <= 48 {
			*slot = shrinkToN48(n)
			c.used += sizeN48 - sizeN256
		}
	}
}

// collapseN4 folds an n4 left with a single child back into that child,
// merging path-compression prefixes, or drops straight to a bare leaf if
// the sole remaining child already is one. Only an n4 with exactly one
// child is folded: an n4 that UpdateRange empties stays in place with no
// children, and a larger node demoted to n4 keeps whatever count it had,
// which can be one.
func (c *Cache) collapseN4(slot *gnode, n *n4) {
	if n.count != 1 {
		return
	}
	child := n.kids[0]
	childByte := n.keys[0]
	if lf, isLeaf := child.(*leafFrame); isLeaf {
		*slot = lf
		c.used -= sizeN4
		return
	}
	ch := nodeHeader(child)
	oldLen := ch.prefixLen
	merged := make([]byte, 0, 8)
	merged = append(merged, n.prefix[:n.prefixLen]...)
	merged = append(merged, childByte)
	merged = append(merged, ch.prefix[:oldLen]...)
	ch.depth = n.depth + 1 + oldLen
	var np [8]byte
	copy(np[:], merged)
	ch.prefix = np
	ch.prefixLen = uint8(len(merged))
	*slot = child
	c.used -= sizeN4
}

// UpdateRange drops every cached entry whose key falls within [from, to],
// inclusive, collapsing and demoting nodes left under-populated by the
// drop. The B+-tree calls it whenever a split, borrow or merge moves a
// contiguous key range onto a different leaf page.
func (c *Cache) UpdateRange(from, to int64) {
	if !c.enabled || c.root == nil {
		return
	}
	c.collectAndDrop(&c.root, from, to)
}

func (c *Cache) collectAndDrop(slot *gnode, from, to int64) {
	cur := *slot
	if cur == nil {
		return
	}
	if lf, isLeaf := cur.(*leafFrame); isLeaf {
		if lf.key >= from && lf.key <= to {
			*slot = nil
			c.used -= sizeLeaf
		}
		return
	}
	switch n := cur.(type) {
	case *n4:
		for i := 0; i < n.count; {
			c.collectAndDrop(&n.kids[i], from, to)
			if n.kids[i] == nil {
				n.count--
				n.keys[i] = n.keys[n.count]
				n.kids[i] = n.kids[n.count]
				n.kids[n.count] = nil
			} else {
				i++
			}
		}
		c.collapseN4(slot, n)
	case *n16:
		for i := 0; i < n.count; {
			c.collectAndDrop(&n.kids[i], from, to)
			if n.kids[i] == nil {
				n.count--
				n.keys[i] = n.keys[n.count]
				n.kids[i] = n.kids[n.count]
				n.kids[n.count] = nil
			} else {
				i++
			}
		}
		if n.count <= 4 {
			*slot = shrinkToN4(n)
			c.used += sizeN4 - sizeN16
		}
	case *n48:
		for b := 0; b < 256; b++ {
			if n.index[b] == 0 {
				continue
			}
			i := n.index[b] - 1
			c.collectAndDrop(&n.kids[i], from, to)
			if n.kids[i] == nil {
				n.index[b] = 0
				n.count--
			}
		}
		if n.count <= 16 {
			*slot = shrinkToN16(n)
			c.used += sizeN16 - sizeN48
		}
	case *n256:
		for b := 0; b < 256; b++ {
			if n.kids[b] == nil {
				continue
			}
			c.collectAndDrop(&n.kids[b], from, to)
			if n.kids[b] == nil {
				n.count--
			}
		}
		if n.count <= 48 {
			*slot = shrinkToN48(n)
			c.used += sizeN48 - sizeN256
		}
	}
}

// Destroy drops the whole cache, freeing every node and leaf.
func (c *Cache) Destroy() {
	c.root = nil
	c.used = 0
}
