// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ll

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/owl/bvh"
)

// GeomKind tags a geometry.
type GeomKind uint8

// Geometry kinds.
const (
	GeomTriangles GeomKind = iota
	GeomUser
)

// String returns the geometry kind name.
func (k GeomKind) String() string {
	switch k {
	case GeomTriangles:
		return "triangles"
	case GeomUser:
		return "user"
	default:
		return fmt.Sprintf("GeomKind(%d)", uint8(k))
	}
}

// Default strides of triangle vertex and index buffers: three float32
// positions and three uint32 indices.
const (
	DefaultVertexStride = 12
	DefaultIndexStride  = 12
)

// BoundsFunc computes the bounds of user primitive prim on device d. prims is
// d's copy of the geometry's primitive buffer, nil when none is set. Like
// RecordWriter, it runs inside a DeviceGroup call.
type BoundsFunc func(d *Device, prim int, prims []byte) (bvh.AABB, error)

type vertexSpec struct {
	// buffers holds one buffer handle per motion time step.
	buffers []int
	count   int
	stride  int
	offset  int
}

type indexSpec struct {
	buffer int // -1 when unset
	count  int
	stride int
	offset int
}

// geometry is a triangle mesh or a set of user primitives.
type geometry struct {
	kind            GeomKind
	geomType        int
	logicalHitGroup int

	vertex vertexSpec
	index  indexSpec

	primCount  int
	primBuffer int // -1 when unset
	bounds     BoundsFunc
}

func (d *Device) createGeom(id int, kind GeomKind, geomType, lhg, primCount int) error {
	if lhg < 0 {
		return fmt.Errorf("%w: negative logical hit group %d", ErrInvalidValue, lhg)
	}
	if primCount < 0 {
		return fmt.Errorf("%w: negative primitive count %d", ErrInvalidValue, primCount)
	}
	if !d.geomTypes.Has(geomType) {
		return fmt.Errorf("%w: geometry type %d", ErrInvalidHandle, geomType)
	}
	g := &geometry{
		kind:            kind,
		geomType:        geomType,
		logicalHitGroup: lhg,
		index:           indexSpec{buffer: -1},
		primCount:       primCount,
		primBuffer:      -1,
	}
	if err := d.geoms.Set(id, g); err != nil {
		return err
	}
	d.geomChanged(id)
	return nil
}

func (d *Device) geomOfKind(id int, kind GeomKind) (*geometry, error) {
	g, err := d.geoms.Get(id)
	if err != nil {
		return nil, err
	}
	if g.kind != kind {
		return nil, fmt.Errorf("%w: geometry %d is %s, not %s", ErrInvalidValue, id, g.kind, kind)
	}
	return g, nil
}

func (d *Device) trianglesSetVertices(id int, buffers []int, count, stride, offset int) error {
	g, err := d.geomOfKind(id, GeomTriangles)
	if err != nil {
		return err
	}
	if len(buffers) == 0 {
		return fmt.Errorf("%w: triangles need at least one vertex buffer", ErrInvalidValue)
	}
	if count < 0 || stride < 0 || offset < 0 {
		return fmt.Errorf("%w: vertex count %d stride %d offset %d", ErrInvalidValue, count, stride, offset)
	}
	for _, b := range buffers {
		if !d.buffers.Has(b) {
			return fmt.Errorf("%w: vertex buffer %d", ErrInvalidHandle, b)
		}
	}
	if stride == 0 {
		stride = DefaultVertexStride
	}
	g.vertex = vertexSpec{buffers: append([]int(nil), buffers...), count: count, stride: stride, offset: offset}
	d.geomChanged(id)
	return nil
}

func (d *Device) trianglesSetIndices(id, buf, count, stride, offset int) error {
	g, err := d.geomOfKind(id, GeomTriangles)
	if err != nil {
		return err
	}
	if count < 0 || stride < 0 || offset < 0 {
		return fmt.Errorf("%w: index count %d stride %d offset %d", ErrInvalidValue, count, stride, offset)
	}
	if !d.buffers.Has(buf) {
		return fmt.Errorf("%w: index buffer %d", ErrInvalidHandle, buf)
	}
	if stride == 0 {
		stride = DefaultIndexStride
	}
	g.index = indexSpec{buffer: buf, count: count, stride: stride, offset: offset}
	d.geomChanged(id)
	return nil
}

func (d *Device) userSetPrimBuffer(id, buf int) error {
	g, err := d.geomOfKind(id, GeomUser)
	if err != nil {
		return err
	}
	if !d.buffers.Has(buf) {
		return fmt.Errorf("%w: primitive buffer %d", ErrInvalidHandle, buf)
	}
	g.primBuffer = buf
	d.geomChanged(id)
	return nil
}

func (d *Device) userSetBounds(id int, fn BoundsFunc) error {
	g, err := d.geomOfKind(id, GeomUser)
	if err != nil {
		return err
	}
	g.bounds = fn
	d.geomChanged(id)
	return nil
}

// geomChanged marks every group holding geometry id stale along with the hit
// binding table, whose layout follows the geometry table.
func (d *Device) geomChanged(id int) {
	d.markSBTStale(SBTHit)
	_ = d.groups.Each(func(gid int, g *group) error {
		if g.kind == GroupGeometry && g.hasChild(id) {
			d.groupChanged(gid)
		}
		return nil
	})
}

// primBounds computes per-primitive bounds of g from this device's buffers.
func (d *Device) primBounds(id int, g *geometry) ([]bvh.AABB, error) {
	switch g.kind {
	case GeomTriangles:
		return d.triangleBounds(id, g)
	default:
		return d.userBounds(id, g)
	}
}

func (d *Device) triangleBounds(id int, g *geometry) ([]bvh.AABB, error) {
	vs := g.vertex
	if len(vs.buffers) == 0 {
		return nil, fmt.Errorf("%w: triangles %d have no vertex buffer", ErrBuildFailure, id)
	}

	steps := make([][]f32.Vec3, len(vs.buffers))
	for s, bufID := range vs.buffers {
		data, err := d.downloadBuffer(bufID)
		if err != nil {
			return nil, fmt.Errorf("triangles %d: vertex buffer %d: %w", id, bufID, err)
		}
		verts := make([]f32.Vec3, vs.count)
		for i := range verts {
			at := vs.offset + i*vs.stride
			if at+12 > len(data) {
				return nil, fmt.Errorf("%w: triangles %d: vertex %d lies past the end of buffer %d",
					ErrBuildFailure, id, i, bufID)
			}
			verts[i] = bvh.GetVec3(data[at:])
		}
		steps[s] = verts
	}

	var tris [][3]uint32
	if g.index.buffer < 0 {
		tris = make([][3]uint32, vs.count/3)
		for t := range tris {
			tris[t] = [3]uint32{uint32(3 * t), uint32(3*t + 1), uint32(3*t + 2)}
		}
	} else {
		is := g.index
		data, err := d.downloadBuffer(is.buffer)
		if err != nil {
			return nil, fmt.Errorf("triangles %d: index buffer %d: %w", id, is.buffer, err)
		}
		tris = make([][3]uint32, is.count)
		for t := range tris {
			at := is.offset + t*is.stride
			if at+12 > len(data) {
				return nil, fmt.Errorf("%w: triangles %d: triangle %d lies past the end of buffer %d",
					ErrBuildFailure, id, t, is.buffer)
			}
			for k := 0; k < 3; k++ {
				tris[t][k] = binary.LittleEndian.Uint32(data[at+4*k:])
			}
		}
	}

	out := make([]bvh.AABB, len(tris))
	for t, tri := range tris {
		box := bvh.Empty()
		for _, v := range tri {
			if int(v) >= vs.count {
				return nil, fmt.Errorf("%w: triangles %d: triangle %d references vertex %d of %d",
					ErrBuildFailure, id, t, v, vs.count)
			}
			for _, verts := range steps {
				box = box.Extend(verts[v])
			}
		}
		out[t] = box
	}
	return out, nil
}

func (d *Device) userBounds(id int, g *geometry) ([]bvh.AABB, error) {
	if g.bounds == nil {
		return nil, fmt.Errorf("%w: user geometry %d has no bounds routine", ErrBuildFailure, id)
	}
	var prims []byte
	if g.primBuffer >= 0 {
		var err error
		if prims, err = d.downloadBuffer(g.primBuffer); err != nil {
			return nil, fmt.Errorf("user geometry %d: %w", id, err)
		}
	}
	out := make([]bvh.AABB, g.primCount)
	for i := range out {
		b, err := g.bounds(d, i, prims)
		if err != nil {
			return nil, fmt.Errorf("%w: user geometry %d primitive %d: %w", ErrBuildFailure, id, i, err)
		}
		out[i] = b
	}
	return out, nil
}
