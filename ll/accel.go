// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ll

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/owl/backend"
	"github.com/gogpu/owl/bvh"
	"github.com/gogpu/owl/internal/metrics"
)

// Acceleration structure layout in device memory, little endian. A header
// is followed by a geometry or instance table and then the encoded BVH.
//
//	header:   magic u32, kind u32, entries u32, prims u32
//	geometry: geometry id u32, logical hit group u32, first prim u32, prims u32
//	instance: child traversable u64, child group u32, pad u32, 3x4 transform f32
//
// BVH leaves of a geometry group index the concatenated primitives of its
// geometries; leaves of an instance group index instances.
const (
	AccelMagic         = 0x4c47574f // "OWGL"
	AccelHeaderSize    = 16
	AccelGeomEntrySize = 16
	AccelInstanceSize  = 64
)

// buildAccel builds group id's acceleration structure from this device's
// buffer contents and uploads it.
func (d *Device) buildAccel(id int) (err error) {
	defer func() { metrics.Build(metrics.StageAccel, err) }()

	g, err := d.groups.Get(id)
	if err != nil {
		return err
	}
	var (
		blob   []byte
		bounds bvh.AABB
	)
	switch g.kind {
	case GroupGeometry:
		blob, bounds, err = d.encodeGeomGroup(id, g)
	case GroupInstance:
		blob, bounds, err = d.encodeInstanceGroup(id, g)
	}
	if err != nil {
		return asBuildFailure(err)
	}

	ptr, err := d.alloc(uint64(len(blob)), backend.MemoryDevice)
	if err != nil {
		return fmt.Errorf("%w: group %d: %w", ErrBuildFailure, id, err)
	}
	if err := d.dev.Upload(ptr, 0, blob); err != nil {
		d.release(ptr, uint64(len(blob)))
		return fmt.Errorf("%w: group %d: upload: %w", ErrBuildFailure, id, err)
	}
	d.freeAccel(g)
	g.accel, g.accelSize = ptr, uint64(len(blob))
	g.bounds = bounds

	// Parents captured the previous traversable.
	d.groupChanged(id)
	g.state = stateBuilt
	slogger().Debug("ll: accel built", "device", d.id, "group", id, "kind", g.kind, "bytes", len(blob))
	return nil
}

func putHeader(b []byte, kind GroupKind, entries, prims int) {
	le := binary.LittleEndian
	le.PutUint32(b[0:], AccelMagic)
	le.PutUint32(b[4:], uint32(kind))
	le.PutUint32(b[8:], uint32(entries))
	le.PutUint32(b[12:], uint32(prims))
}

func (d *Device) encodeGeomGroup(id int, g *group) ([]byte, bvh.AABB, error) {
	var all []bvh.AABB
	table := make([]byte, len(g.children)*AccelGeomEntrySize)
	le := binary.LittleEndian
	for i, gid := range g.children {
		geom, err := d.geoms.Get(gid)
		if err != nil {
			return nil, bvh.AABB{}, fmt.Errorf("group %d: %w", id, err)
		}
		// Members may have been replaced since the group was created.
		if first, _ := d.geoms.Get(g.children[0]); geom.kind != first.kind {
			return nil, bvh.AABB{}, fmt.Errorf("%w: group %d mixes %s and %s geometries",
				ErrBuildFailure, id, first.kind, geom.kind)
		}
		boxes, err := d.primBounds(gid, geom)
		if err != nil {
			return nil, bvh.AABB{}, fmt.Errorf("group %d: %w", id, err)
		}
		e := table[i*AccelGeomEntrySize:]
		le.PutUint32(e[0:], uint32(gid))
		le.PutUint32(e[4:], uint32(geom.logicalHitGroup))
		le.PutUint32(e[8:], uint32(len(all)))
		le.PutUint32(e[12:], uint32(len(boxes)))
		all = append(all, boxes...)
	}

	tree := bvh.Build(all)
	blob := make([]byte, AccelHeaderSize+len(table)+tree.EncodedSize())
	putHeader(blob, GroupGeometry, len(g.children), len(all))
	copy(blob[AccelHeaderSize:], table)
	tree.EncodeTo(blob[AccelHeaderSize+len(table):])
	return blob, tree.Bounds(), nil
}

func (d *Device) encodeInstanceGroup(id int, g *group) ([]byte, bvh.AABB, error) {
	boxes := make([]bvh.AABB, len(g.children))
	table := make([]byte, len(g.children)*AccelInstanceSize)
	le := binary.LittleEndian
	for i, cid := range g.children {
		if cid < 0 {
			return nil, bvh.AABB{}, fmt.Errorf("%w: group %d instance %d has no child", ErrBuildFailure, id, i)
		}
		child, err := d.groups.Get(cid)
		if err != nil {
			return nil, bvh.AABB{}, fmt.Errorf("group %d instance %d: %w", id, i, err)
		}
		trav, err := d.Traversable(cid)
		if err != nil {
			return nil, bvh.AABB{}, fmt.Errorf("group %d instance %d: %w", id, i, err)
		}
		xfm := g.transforms[i]
		boxes[i] = child.bounds.Transform(xfm)

		e := table[i*AccelInstanceSize:]
		le.PutUint64(e[0:], uint64(trav))
		le.PutUint32(e[8:], uint32(cid))
		le.PutUint32(e[12:], 0)
		for k, v := range xfm {
			le.PutUint32(e[16+4*k:], math.Float32bits(v))
		}
	}

	tree := bvh.Build(boxes)
	blob := make([]byte, AccelHeaderSize+len(table)+tree.EncodedSize())
	putHeader(blob, GroupInstance, len(g.children), len(g.children))
	copy(blob[AccelHeaderSize:], table)
	tree.EncodeTo(blob[AccelHeaderSize+len(table):])
	return blob, tree.Bounds(), nil
}
