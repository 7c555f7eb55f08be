package bptree

import "github.com/ryogrid/radixcache/internal/buffer"

// Delete removes key if present, preemptively fixing up any too-sparse
// child (substitution before merge, left sibling preferred) before
// descending into it, then shrinking the root if it collapses to a single
// child. Grounded on bplus_tree.h's preemptive-rebalance description and
// the teacher's top-down DeleteKey/collapseRoot shape.
func (t *Tree) Delete(key int64) {
	if t.cache != nil {
		t.cache.DeleteReference(key)
	}
	frame := t.bm.FetchPage(t.rootID)
	root := t.wrapFrame(frame)
	t.deleteNonSparse(frame, root, key)

	frame = t.bm.FetchPage(t.rootID)
	root = t.wrapFrame(frame)
	if root.IsInner() && root.Count() == 0 {
		t.collapseRoot(root.Child(0))
	}
	t.bm.UnpinPage(t.rootID, false)
}

func (t *Tree) deleteNonSparse(frame *buffer.Frame, p *page, key int64) {
	cur, curPage := frame, p
	for curPage.IsInner() {
		idx := curPage.innerSearch(key)
		if idx > 0 && key == curPage.Key(idx-1) {
			pred := t.maxKeyInSubtree(curPage.Child(idx - 1))
			curPage.SetKey(idx-1, pred)
		}
		childFrame := t.bm.FetchPage(curPage.Child(idx))
		childPage := t.wrapFrame(childFrame)
		if t.tooSparse(childPage) {
			t.bm.UnpinPage(childFrame.PageID, false)
			t.fixChild(curPage, idx)
			idx = curPage.innerSearch(key)
			childFrame = t.bm.FetchPage(curPage.Child(idx))
			childPage = t.wrapFrame(childFrame)
		}
		t.bm.UnpinPage(cur.PageID, true)
		cur, curPage = childFrame, childPage
	}
	if idx, found := curPage.leafSearch(key); found {
		curPage.deleteLeafAt(idx)
	}
	t.bm.UnpinPage(cur.PageID, true)
}

// maxKeyInSubtree returns the largest key reachable under pageID, used to
// exchange a separator with its predecessor when a delete key matches an
// inner node's separator exactly.
func (t *Tree) maxKeyInSubtree(pageID uint64) int64 {
	frame := t.bm.FetchPage(pageID)
	p := t.wrapFrame(frame)
	for p.IsInner() {
		child := p.Child(int(p.Count()))
		t.bm.UnpinPage(frame.PageID, false)
		frame = t.bm.FetchPage(child)
		p = t.wrapFrame(frame)
	}
	k := p.Key(int(p.Count()) - 1)
	t.bm.UnpinPage(frame.PageID, false)
	return k
}

// fixChild restores parent.Child(idx) to at-least-minFill by borrowing
// from a sibling (left preferred), falling back to merging with a sibling
// (left preferred) when neither sibling has anything to spare.
func (t *Tree) fixChild(parent *page, idx int) {
	n := int(parent.Count())
	if idx > 0 {
		lf := t.bm.FetchPage(parent.Child(idx - 1))
		lp := t.wrapFrame(lf)
		if int(lp.Count()) > t.minFill(!lp.IsInner()) {
			cf := t.bm.FetchPage(parent.Child(idx))
			cp := t.wrapFrame(cf)
			t.borrowFromLeft(parent, idx, lp, cp)
			t.bm.UnpinPage(lf.PageID, true)
			t.bm.UnpinPage(cf.PageID, true)
			return
		}
		t.bm.UnpinPage(lf.PageID, false)
	}
	if idx < n {
		rf := t.bm.FetchPage(parent.Child(idx + 1))
		rp := t.wrapFrame(rf)
		if int(rp.Count()) > t.minFill(!rp.IsInner()) {
			cf := t.bm.FetchPage(parent.Child(idx))
			cp := t.wrapFrame(cf)
			t.borrowFromRight(parent, idx, cp, rp)
			t.bm.UnpinPage(rf.PageID, true)
			t.bm.UnpinPage(cf.PageID, true)
			return
		}
		t.bm.UnpinPage(rf.PageID, false)
	}
	if idx > 0 {
		t.mergeChildren(parent, idx-1)
	} else {
		t.mergeChildren(parent, idx)
	}
}

func (t *Tree) borrowFromLeft(parent *page, idx int, left, child *page) {
	if child.IsInner() {
		sepDown := parent.Key(idx - 1)
		k, c := left.popLastInner()
		child.prependInner(sepDown, c)
		parent.SetKey(idx-1, k)
	} else {
		k, v := left.popLastLeaf()
		child.prependLeaf(k, v)
		parent.SetKey(idx-1, k)
		if t.cache != nil {
			t.cache.UpdateRange(k, k)
		}
	}
}

func (t *Tree) borrowFromRight(parent *page, idx int, child, right *page) {
	if child.IsInner() {
		sepDown := parent.Key(idx)
		k, c := right.popFirstInner()
		child.appendInner(sepDown, c)
		parent.SetKey(idx, k)
	} else {
		k, v := right.popFirstLeaf()
		child.appendLeaf(k, v)
		parent.SetKey(idx, right.Key(0))
		if t.cache != nil {
			t.cache.UpdateRange(k, k)
		}
	}
}

// mergeChildren merges parent.Child(leftIdx+1) into parent.Child(leftIdx),
// removing the separator between them from parent and freeing the
// now-empty right page.
func (t *Tree) mergeChildren(parent *page, leftIdx int) {
	lf := t.bm.FetchPage(parent.Child(leftIdx))
	lp := t.wrapFrame(lf)
	rf := t.bm.FetchPage(parent.Child(leftIdx + 1))
	rp := t.wrapFrame(rf)

	if lp.IsInner() {
		sep := parent.Key(leftIdx)
		n := int(lp.Count())
		lp.SetKey(n, sep)
		for i := 0; i < int(rp.Count()); i++ {
			lp.SetKey(n+1+i, rp.Key(i))
		}
		for i := 0; i <= int(rp.Count()); i++ {
			lp.SetChild(n+1+i, rp.Child(i))
		}
		lp.SetCount(int32(n + 1 + int(rp.Count())))
	} else {
		n := int(lp.Count())
		rn := int(rp.Count())
		var loKey, hiKey int64
		if rn > 0 {
			loKey, hiKey = rp.Key(0), rp.Key(rn-1)
		}
		for i := 0; i < rn; i++ {
			lp.SetKey(n+i, rp.Key(i))
			lp.SetValue(n+i, rp.Value(i))
		}
		lp.SetCount(int32(n + rn))
		lp.SetNextLeaf(rp.NextLeaf())
		if t.cache != nil && rn > 0 {
			t.cache.UpdateRange(loKey, hiKey)
		}
	}

	pn := int(parent.Count())
	for i := leftIdx; i < pn-1; i++ {
		parent.SetKey(i, parent.Key(i+1))
	}
	for i := leftIdx + 1; i < pn; i++ {
		parent.SetChild(i, parent.Child(i+1))
	}
	parent.SetCount(int32(pn - 1))

	rightID := rf.PageID
	t.bm.UnpinPage(lf.PageID, true)
	t.bm.UnpinPage(rf.PageID, false)
	t.bm.DeletePage(rightID)
}

// collapseRoot replaces the root's contents with childID's, preserving the
// root's page id but adopting the child's node type, keys and children,
// then frees the now-redundant child page.
func (t *Tree) collapseRoot(childID uint64) {
	cf := t.bm.FetchPage(childID)
	cp := t.wrapFrame(cf)
	rf := t.bm.FetchPage(t.rootID)
	rp := t.wrapFrame(rf)

	rp.SetInner(cp.IsInner())
	rp.SetCount(cp.Count())
	if cp.IsInner() {
		rp.SetCapacity(int32(t.innerCap))
		for i := 0; i < int(cp.Count()); i++ {
			rp.SetKey(i, cp.Key(i))
		}
		for i := 0; i <= int(cp.Count()); i++ {
			rp.SetChild(i, cp.Child(i))
		}
	} else {
		rp.SetCapacity(int32(t.leafCap))
		for i := 0; i < int(cp.Count()); i++ {
			rp.SetKey(i, cp.Key(i))
			rp.SetValue(i, cp.Value(i))
		}
		rp.SetNextLeaf(cp.NextLeaf())
		if t.cache != nil && cp.Count() > 0 {
			t.cache.UpdateRange(cp.Key(0), cp.Key(int(cp.Count())-1))
		}
	}

	t.bm.UnpinPage(t.rootID, true)
	t.bm.UnpinPage(childID, false)
	t.bm.DeletePage(childID)
}
