// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bvh

import (
	"errors"
	"testing"

	"golang.org/x/image/math/f32"
)

func unitBox(x, y, z float32) AABB {
	return AABB{Min: f32.Vec3{x, y, z}, Max: f32.Vec3{x + 1, y + 1, z + 1}}
}

func TestAABBUnionAndCenter(t *testing.T) {
	a := unitBox(0, 0, 0)
	b := unitBox(4, -2, 1)
	u := a.Union(b)
	if u.Min != (f32.Vec3{0, -2, 0}) || u.Max != (f32.Vec3{5, 1, 2}) {
		t.Errorf("Union = %+v", u)
	}
	if c := u.Center(); c != (f32.Vec3{2.5, -0.5, 1}) {
		t.Errorf("Center = %v", c)
	}
	if u.LongestAxis() != 0 {
		t.Errorf("LongestAxis = %d, want 0", u.LongestAxis())
	}
}

func TestEmptyIsUnionIdentity(t *testing.T) {
	a := unitBox(1, 2, 3)
	if got := Empty().Union(a); got != a {
		t.Errorf("Empty().Union(a) = %+v, want %+v", got, a)
	}
	if !Empty().IsEmpty() {
		t.Error("Empty().IsEmpty() = false")
	}
	if a.IsEmpty() {
		t.Error("unit box reported empty")
	}
}

func TestTransformTranslateScale(t *testing.T) {
	m := f32.Aff4{
		2, 0, 0, 10,
		0, 1, 0, 0,
		0, 0, 1, -1,
	}
	got := unitBox(0, 0, 0).Transform(m)
	want := AABB{Min: f32.Vec3{10, 0, -1}, Max: f32.Vec3{12, 1, 0}}
	if got != want {
		t.Errorf("Transform = %+v, want %+v", got, want)
	}
	if got := unitBox(3, 3, 3).Transform(Identity); got != unitBox(3, 3, 3) {
		t.Errorf("identity Transform = %+v", got)
	}
}

func TestBuildSmallIsSingleLeaf(t *testing.T) {
	prims := []AABB{unitBox(0, 0, 0), unitBox(2, 0, 0), unitBox(4, 0, 0)}
	tree := Build(prims)
	if len(tree.Nodes) != 1 {
		t.Fatalf("got %d nodes, want 1", len(tree.Nodes))
	}
	if !tree.Nodes[0].IsLeaf() || tree.Nodes[0].Count != 3 {
		t.Errorf("root = %+v, want leaf of 3", tree.Nodes[0])
	}
	want := AABB{Min: f32.Vec3{0, 0, 0}, Max: f32.Vec3{5, 1, 1}}
	if tree.Bounds() != want {
		t.Errorf("Bounds = %+v, want %+v", tree.Bounds(), want)
	}
}

func TestBuildSplitsAndCoversEveryPrim(t *testing.T) {
	var prims []AABB
	for i := 0; i < 40; i++ {
		prims = append(prims, unitBox(float32(i*2), 0, 0))
	}
	tree := Build(prims)
	if len(tree.Nodes) < 3 {
		t.Fatalf("got %d nodes, want a split tree", len(tree.Nodes))
	}

	seen := make(map[int32]bool)
	for i, n := range tree.Nodes {
		if !n.IsLeaf() {
			if n.Right <= int32(i) || int(n.Right) >= len(tree.Nodes) {
				t.Errorf("node %d has bad right child %d", i, n.Right)
			}
			continue
		}
		if n.Count > LeafSize {
			t.Errorf("leaf %d holds %d prims, max %d", i, n.Count, LeafSize)
		}
		for _, p := range tree.Prims[n.First : n.First+n.Count] {
			if seen[p] {
				t.Errorf("prim %d appears in two leaves", p)
			}
			seen[p] = true
			u := n.Bounds.Union(prims[p])
			if u != n.Bounds {
				t.Errorf("leaf %d bounds %+v do not contain prim %d", i, n.Bounds, p)
			}
		}
	}
	if len(seen) != len(prims) {
		t.Errorf("leaves cover %d prims, want %d", len(seen), len(prims))
	}
}

func TestBuildCoincidentPrimsStaysLeaf(t *testing.T) {
	prims := make([]AABB, 20)
	for i := range prims {
		prims[i] = unitBox(0, 0, 0)
	}
	tree := Build(prims)
	if len(tree.Nodes) != 1 || tree.Nodes[0].Count != 20 {
		t.Errorf("coincident prims: nodes=%d root=%+v, want single leaf", len(tree.Nodes), tree.Nodes[0])
	}
}

func TestBuildSkipsEmptyBoxes(t *testing.T) {
	tree := Build([]AABB{Empty(), unitBox(1, 1, 1), Empty()})
	if len(tree.Prims) != 1 || tree.Prims[0] != 1 {
		t.Errorf("Prims = %v, want [1]", tree.Prims)
	}
	empty := Build(nil)
	if len(empty.Nodes) != 0 || !empty.Bounds().IsEmpty() {
		t.Errorf("Build(nil) = %+v, want empty tree", empty)
	}
}

func TestEncodeDecode(t *testing.T) {
	var prims []AABB
	for i := 0; i < 17; i++ {
		prims = append(prims, unitBox(float32(i), float32(i%3), 0))
	}
	tree := Build(prims)
	buf := tree.Encode()
	if len(buf) != tree.EncodedSize() {
		t.Fatalf("Encode len = %d, want %d", len(buf), tree.EncodedSize())
	}

	got, n, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != len(buf) {
		t.Errorf("Decode consumed %d, want %d", n, len(buf))
	}
	if len(got.Nodes) != len(tree.Nodes) || len(got.Prims) != len(tree.Prims) {
		t.Fatalf("decoded %d nodes/%d prims, want %d/%d",
			len(got.Nodes), len(got.Prims), len(tree.Nodes), len(tree.Prims))
	}
	for i := range tree.Nodes {
		if got.Nodes[i] != tree.Nodes[i] {
			t.Errorf("node %d = %+v, want %+v", i, got.Nodes[i], tree.Nodes[i])
		}
	}

	if _, _, err := Decode(buf[:len(buf)-1]); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Decode(truncated) error = %v, want ErrCorrupt", err)
	}
}
