// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bvh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"golang.org/x/image/math/f32"
)

// Encoded layout, little endian:
//
//	header: nodeCount u32, primCount u32
//	nodes:  min 3×f32, max 3×f32, right i32, first i32, count i32, pad u32
//	prims:  index u32 per primitive
const (
	HeaderSize = 8
	NodeSize   = 40
)

// ErrCorrupt is returned by Decode for malformed input.
var ErrCorrupt = errors.New("bvh: corrupt encoding")

// EncodedSize returns the number of bytes Encode produces for t.
func (t *Tree) EncodedSize() int {
	return HeaderSize + len(t.Nodes)*NodeSize + len(t.Prims)*4
}

// Encode serializes the tree in the device layout.
func (t *Tree) Encode() []byte {
	buf := make([]byte, t.EncodedSize())
	t.EncodeTo(buf)
	return buf
}

// EncodeTo writes the tree into buf, which must hold EncodedSize bytes.
func (t *Tree) EncodeTo(buf []byte) {
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], uint32(len(t.Nodes)))
	le.PutUint32(buf[4:8], uint32(len(t.Prims)))
	off := HeaderSize
	for _, n := range t.Nodes {
		PutVec3(buf[off:], n.Bounds.Min)
		PutVec3(buf[off+12:], n.Bounds.Max)
		le.PutUint32(buf[off+24:], uint32(n.Right))
		le.PutUint32(buf[off+28:], uint32(n.First))
		le.PutUint32(buf[off+32:], uint32(n.Count))
		le.PutUint32(buf[off+36:], 0)
		off += NodeSize
	}
	for _, p := range t.Prims {
		le.PutUint32(buf[off:], uint32(p))
		off += 4
	}
}

// Decode parses a tree produced by Encode and returns the bytes consumed.
func Decode(buf []byte) (*Tree, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	le := binary.LittleEndian
	nodes := int(le.Uint32(buf[0:4]))
	prims := int(le.Uint32(buf[4:8]))
	size := HeaderSize + nodes*NodeSize + prims*4
	if nodes < 0 || prims < 0 || len(buf) < size {
		return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrCorrupt, size, len(buf))
	}

	t := &Tree{Nodes: make([]Node, nodes), Prims: make([]int32, prims)}
	off := HeaderSize
	for i := range t.Nodes {
		t.Nodes[i] = Node{
			Bounds: AABB{Min: GetVec3(buf[off:]), Max: GetVec3(buf[off+12:])},
			Right:  int32(le.Uint32(buf[off+24:])),
			First:  int32(le.Uint32(buf[off+28:])),
			Count:  int32(le.Uint32(buf[off+32:])),
		}
		off += NodeSize
	}
	for i := range t.Prims {
		t.Prims[i] = int32(le.Uint32(buf[off:]))
		off += 4
	}
	return t, size, nil
}

// PutVec3 writes v as three little-endian float32 values.
func PutVec3(b []byte, v f32.Vec3) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(v[0]))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(v[1]))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(v[2]))
}

// GetVec3 reads three little-endian float32 values.
func GetVec3(b []byte) f32.Vec3 {
	return f32.Vec3{
		math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
	}
}
