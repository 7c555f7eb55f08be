// Package radix implements the adaptive radix tree (ART) cache: an
// in-memory index from the 8 bytes of an int64 key to a (page id, buffer
// frame) hint, with path compression, lazy expansion, and N4/N16/N48/N256
// fan-out promotion and demotion.
//
// Grounded on original_source/src/radix_tree/radix_tree.h and r_nodes.h
// (RNode4/RNode16/RNode48/RNode256, insert_recursive, get_value_recursive's
// frame-validity check). The teacher repo has no radix cache of its own;
// node dispatch here uses the tagged-variant pattern called for by the
// design notes this cache is built against: four concrete struct types
// behind a common gnode interface, switched on exhaustively, rather than a
// single struct carrying a kind tag and a type-punned header.
package radix

import "github.com/ryogrid/radixcache/internal/buffer"

// Approximate resident byte sizes per node size-class, used for the
// cache's byte-budget accounting. Mirrors the original's fixed C++ struct
// sizes for each RNode variant.
const (
	sizeN4   = 64
	sizeN16  = 168
	sizeN48  = 920
	sizeN256 = 2072
	sizeLeaf = 16
)

// gnode is the tagged-variant interface every node type and leafFrame
// implements. It carries no methods beyond the marker: all dispatch is
// done via type switches, never by embedding a pointer-to-header and
// downcasting.
type gnode interface {
	isNode()
}

// leafFrame is a cached hint: the full key it was inserted for (needed to
// detect lazy-expansion divergence and to confirm an exact match), the page
// id it pointed at, and the buffer frame it pointed at.
type leafFrame struct {
	key    int64
	pageID uint64
	frame  *buffer.Frame
}

// header is the path-compression state shared by all four internal node
// types: depth is the byte position (0-7) of this node's discriminating
// byte, prefix/prefixLen is the compressed run of key bytes consumed
// between the parent's discriminating byte and this node's.
type header struct {
	depth     uint8
	prefix    [8]byte
	prefixLen uint8
}

type n4 struct {
	header
	count int
	keys  [4]byte
	kids  [4]gnode
}

type n16 struct {
	header
	count int
	keys  [16]byte
	kids  [16]gnode
}

type n48 struct {
	header
	count int
	index [256]uint8 // 0 = empty, else (slot+1)
	kids  [48]gnode
}

type n256 struct {
	header
	count int
	kids  [256]gnode
}

func (*n4) isNode()        {}
func (*n16) isNode()       {}
func (*n48) isNode()       {}
func (*n256) isNode()      {}
func (*leafFrame) isNode() {}

func nodeHeader(n gnode) *header {
	switch t := n.(type) {
	case *n4:
		return &t.header
	case *n16:
		return &t.header
	case *n48:
		return &t.header
	case *n256:
		return &t.header
	}
	return nil
}

func childAt(n gnode, b byte) gnode {
	switch t := n.(type) {
	case *n4:
		for i := 0; i < t.count; i++ {
			if t.keys[i] == b {
				return t.kids[i]
			}
		}
	case *n16:
		for i := 0; i < t.count; i++ {
			if t.keys[i] == b {
				return t.kids[i]
			}
		}
	case *n48:
		if t.index[b] != 0 {
			return t.kids[t.index[b]-1]
		}
	case *n256:
		return t.kids[b]
	}
	return nil
}
