// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package bvh builds flattened bounding volume hierarchies over primitive
// bounds and serializes them for upload to accelerator memory.
//
// Trees are built on the host with a median split along the longest axis of
// each node's bounds. Nodes are stored in depth-first order with the left child
// immediately after its parent.
package bvh

import "golang.org/x/image/math/f32"

// LeafSize is the largest primitive count stored in a single leaf.
const LeafSize = 8

// Node is one entry of a flattened tree.
//
// An inner node has Count == 0; its left child is the next node and Right is
// the index of its right child. A leaf covers Prims[First : First+Count].
type Node struct {
	Bounds AABB
	Right  int32
	First  int32
	Count  int32
}

// IsLeaf reports whether the node stores primitives.
func (n Node) IsLeaf() bool { return n.Count > 0 }

// Tree is a flattened hierarchy over a set of primitive bounds.
type Tree struct {
	Nodes []Node
	// Prims holds primitive indices in leaf order.
	Prims []int32
}

// Bounds returns the bounds of the whole tree, or Empty for an empty tree.
func (t *Tree) Bounds() AABB {
	if len(t.Nodes) == 0 {
		return Empty()
	}
	return t.Nodes[0].Bounds
}

// Build constructs a tree over the given primitive bounds. Primitive i is
// referred to by index i in the result. Empty boxes are skipped.
func Build(prims []AABB) *Tree {
	b := &builder{
		prims:   prims,
		centers: make([]f32.Vec3, len(prims)),
	}
	idx := make([]int32, 0, len(prims))
	for i, p := range prims {
		if p.IsEmpty() {
			continue
		}
		b.centers[i] = p.Center()
		idx = append(idx, int32(i))
	}
	t := &Tree{Prims: idx}
	if len(idx) == 0 {
		return t
	}
	b.tree = t
	b.build(0, len(idx))
	return t
}

type builder struct {
	prims   []AABB
	centers []f32.Vec3
	tree    *Tree
}

// build appends the subtree over tree.Prims[lo:hi] and returns its node index.
func (b *builder) build(lo, hi int) int32 {
	idx := b.tree.Prims[lo:hi]
	bounds := Empty()
	for _, p := range idx {
		bounds = bounds.Union(b.prims[p])
	}

	self := int32(len(b.tree.Nodes))
	b.tree.Nodes = append(b.tree.Nodes, Node{Bounds: bounds, Right: -1})

	if len(idx) <= LeafSize {
		b.leaf(self, lo, hi)
		return self
	}

	axis := bounds.LongestAxis()
	lo3, hi3 := bounds.Min[axis], bounds.Max[axis]
	if hi3 <= lo3 {
		b.leaf(self, lo, hi)
		return self
	}
	split := (lo3 + hi3) * 0.5

	// Partition by centroid in place.
	mid := 0
	for i := range idx {
		if b.centers[idx[i]][axis] < split {
			idx[i], idx[mid] = idx[mid], idx[i]
			mid++
		}
	}
	if mid == 0 || mid == len(idx) {
		b.leaf(self, lo, hi)
		return self
	}

	b.build(lo, lo+mid)
	right := b.build(lo+mid, hi)
	b.tree.Nodes[self].Right = right
	return self
}

func (b *builder) leaf(n int32, lo, hi int) {
	b.tree.Nodes[n].First = int32(lo)
	b.tree.Nodes[n].Count = int32(hi - lo)
}
