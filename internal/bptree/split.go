package bptree

import "github.com/ryogrid/radixcache/internal/buffer"

// Insert adds a new key -> value entry (a key already present gets a further
// entry beside the existing ones), preemptively splitting any full
// node on the way down so every node actually entered already has room.
// Grounded on bplus_tree.h's recursive_insert (split-before-descend) and
// the teacher's InsertKey/splitPage top-down shape, adapted from
// variable-length slotted pages to the fixed int64 array layout here.
func (t *Tree) Insert(key, value int64) {
	frame := t.bm.FetchPage(t.rootID)
	root := t.wrapFrame(frame)
	if t.isFull(root) {
		t.splitRoot(root)
	}
	t.insertNonFull(frame, root, key, value)
}

func (t *Tree) insertNonFull(frame *buffer.Frame, p *page, key, value int64) {
	cur, curPage := frame, p
	for {
		if !curPage.IsInner() {
			curPage.insertLeaf(key, value)
			if t.cache != nil {
				t.cache.Insert(key, curPage.PageID(), cur)
			}
			t.bm.UnpinPage(cur.PageID, true)
			return
		}
		idx := curPage.innerSearch(key)
		childFrame := t.bm.FetchPage(curPage.Child(idx))
		childPage := t.wrapFrame(childFrame)
		if t.isFull(childPage) {
			sep := t.splitChild(curPage, idx, childPage)
			if key >= sep {
				t.bm.UnpinPage(childFrame.PageID, true)
				idx = curPage.innerSearch(key)
				childFrame = t.bm.FetchPage(curPage.Child(idx))
				childPage = t.wrapFrame(childFrame)
			}
		}
		t.bm.UnpinPage(cur.PageID, true)
		cur, curPage = childFrame, childPage
	}
}

// splitChild splits the full child at curPage.Child(idx), inserting the
// promoted separator and new right-sibling pointer into curPage, and
// returns the separator key.
func (t *Tree) splitChild(parent *page, idx int, child *page) int64 {
	var median int64
	var rf *buffer.Frame
	if child.IsInner() {
		median, rf, _ = t.splitInner(child)
	} else {
		median, rf, _ = t.splitLeaf(child)
	}
	parent.insertInner(idx, median, rf.PageID)
	t.bm.UnpinPage(rf.PageID, true)
	return median
}

// splitLeaf moves the upper half of full's entries into a freshly
// allocated right sibling, linking the two via nextLeaf. The returned
// separator is the smallest key now in the right sibling.
func (t *Tree) splitLeaf(full *page) (int64, *buffer.Frame, *page) {
	n := int(full.Count())
	si := splitIndex(n)
	rf, rp := t.allocLeaf()
	for i := si; i < n; i++ {
		rp.SetKey(i-si, full.Key(i))
		rp.SetValue(i-si, full.Value(i))
	}
	rp.SetCount(int32(n - si))
	rp.SetNextLeaf(full.NextLeaf())
	full.SetNextLeaf(rp.PageID())
	full.SetCount(int32(si))
	if t.cache != nil && n > si {
		t.cache.UpdateRange(rp.Key(0), rp.Key(n-si-1))
	}
	return rp.Key(0), rf, rp
}

// splitInner moves the upper half of full's keys/children into a freshly
// allocated right sibling. The separator key is dropped from both sides
// and promoted to the parent, as is standard for B+-tree inner splits.
func (t *Tree) splitInner(full *page) (int64, *buffer.Frame, *page) {
	n := int(full.Count())
	si := splitIndex(n)
	median := full.Key(si)
	rf, rp := t.allocInner()
	cnt := 0
	for i := si + 1; i < n; i++ {
		rp.SetKey(cnt, full.Key(i))
		cnt++
	}
	cc := 0
	for i := si + 1; i <= n; i++ {
		rp.SetChild(cc, full.Child(i))
		cc++
	}
	rp.SetCount(int32(n - si - 1))
	full.SetCount(int32(si))
	return median, rf, rp
}

// splitRoot splits the root page in place: its post-split remainder moves
// into a fresh left child, a fresh right child holds the upper half, and
// the root page itself (identity preserved, same page id) becomes a new
// single-key inner node pointing at both. This is what lets RootPageID
// never change across the tree's lifetime.
func (t *Tree) splitRoot(root *page) {
	wasInner := root.IsInner()
	var median int64
	var rf *buffer.Frame
	if wasInner {
		median, rf, _ = t.splitInner(root)
	} else {
		median, rf, _ = t.splitLeaf(root)
	}

	var lf *buffer.Frame
	var lp *page
	if wasInner {
		lf, lp = t.allocInner()
	} else {
		lf, lp = t.allocLeaf()
	}
	lp.SetCount(root.Count())
	if wasInner {
		for i := 0; i < int(root.Count()); i++ {
			lp.SetKey(i, root.Key(i))
		}
		for i := 0; i <= int(root.Count()); i++ {
			lp.SetChild(i, root.Child(i))
		}
	} else {
		for i := 0; i < int(root.Count()); i++ {
			lp.SetKey(i, root.Key(i))
			lp.SetValue(i, root.Value(i))
		}
		lp.SetNextLeaf(root.NextLeaf())
		if t.cache != nil && root.Count() > 0 {
			t.cache.UpdateRange(lp.Key(0), lp.Key(int(root.Count())-1))
		}
	}

	root.SetInner(true)
	root.SetCount(1)
	root.SetCapacity(int32(t.innerCap))
	root.SetKey(0, median)
	root.SetChild(0, lp.PageID())
	root.SetChild(1, rf.PageID)

	t.bm.UnpinPage(lf.PageID, true)
	t.bm.UnpinPage(rf.PageID, true)
}
