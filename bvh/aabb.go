// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bvh

import (
	"math"

	"golang.org/x/image/math/f32"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min f32.Vec3
	Max f32.Vec3
}

// Empty returns an inverted box that acts as the identity for Union.
func Empty() AABB {
	inf := float32(math.Inf(1))
	return AABB{
		Min: f32.Vec3{inf, inf, inf},
		Max: f32.Vec3{-inf, -inf, -inf},
	}
}

// FromPoints returns the smallest box containing all points.
func FromPoints(points ...f32.Vec3) AABB {
	b := Empty()
	for _, p := range points {
		b = b.Extend(p)
	}
	return b
}

// IsEmpty reports whether the box contains no points.
func (b AABB) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Extend returns the box grown to include p.
func (b AABB) Extend(p f32.Vec3) AABB {
	for i := 0; i < 3; i++ {
		b.Min[i] = min(b.Min[i], p[i])
		b.Max[i] = max(b.Max[i], p[i])
	}
	return b
}

// Union returns the smallest box containing both boxes.
func (b AABB) Union(o AABB) AABB {
	for i := 0; i < 3; i++ {
		b.Min[i] = min(b.Min[i], o.Min[i])
		b.Max[i] = max(b.Max[i], o.Max[i])
	}
	return b
}

// Center returns the midpoint of the box.
func (b AABB) Center() f32.Vec3 {
	return f32.Vec3{
		(b.Min[0] + b.Max[0]) * 0.5,
		(b.Min[1] + b.Max[1]) * 0.5,
		(b.Min[2] + b.Max[2]) * 0.5,
	}
}

// LongestAxis returns 0, 1 or 2 for the axis with the largest extent.
func (b AABB) LongestAxis() int {
	dx := b.Max[0] - b.Min[0]
	dy := b.Max[1] - b.Min[1]
	dz := b.Max[2] - b.Min[2]
	if dx >= dy && dx >= dz {
		return 0
	}
	if dy >= dz {
		return 1
	}
	return 2
}

// Transform returns the bounds of b's eight corners under the affine matrix m.
// m is row-major 3x4; the last column is the translation.
func (b AABB) Transform(m f32.Aff4) AABB {
	if b.IsEmpty() {
		return b
	}
	out := Empty()
	for c := 0; c < 8; c++ {
		p := f32.Vec3{b.Min[0], b.Min[1], b.Min[2]}
		if c&1 != 0 {
			p[0] = b.Max[0]
		}
		if c&2 != 0 {
			p[1] = b.Max[1]
		}
		if c&4 != 0 {
			p[2] = b.Max[2]
		}
		out = out.Extend(TransformPoint(m, p))
	}
	return out
}

// TransformPoint applies the affine matrix m to p.
func TransformPoint(m f32.Aff4, p f32.Vec3) f32.Vec3 {
	return f32.Vec3{
		m[0]*p[0] + m[1]*p[1] + m[2]*p[2] + m[3],
		m[4]*p[0] + m[5]*p[1] + m[6]*p[2] + m[7],
		m[8]*p[0] + m[9]*p[1] + m[10]*p[2] + m[11],
	}
}

// Identity is the identity affine transform.
var Identity = f32.Aff4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
}
