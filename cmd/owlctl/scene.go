// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/owl"
	"github.com/gogpu/owl/bvh"
	"github.com/gogpu/owl/ll"
)

const sceneSource = `
@compute @workgroup_size(8, 8)
fn ray_gen(@builtin(global_invocation_id) id: vec3<u32>) {
}

@compute @workgroup_size(64)
fn miss_main(@builtin(global_invocation_id) id: vec3<u32>) {
}

@compute @workgroup_size(64)
fn closest_hit(@builtin(global_invocation_id) id: vec3<u32>) {
}

@compute @workgroup_size(64)
fn shadow_hit(@builtin(global_invocation_id) id: vec3<u32>) {
}
`

// Scene handles.
const (
	bufVertices = iota
	bufIndices
	bufSpheres
	bufCount
)

const (
	groupMesh = iota
	groupSpheres
	groupWorld
	groupCount
)

const (
	rayTypes     = 2
	recordSize   = 16
	paramsSize   = 16
	sphereStride = 16
)

// scene builds a two-instance world of one triangle and one sphere, traced
// with a radiance and a shadow ray type.
type scene struct {
	c   *owl.Context
	op  string
	res owl.Result
}

// do runs step unless an earlier one failed.
func (s *scene) do(op string, step func() owl.Result) {
	if s.res != owl.Success {
		return
	}
	if r := step(); r != owl.Success {
		s.op, s.res = op, r
	}
}

func (s *scene) err() error {
	if s.res == owl.Success {
		return nil
	}
	return fmt.Errorf("%s: %v: %s", s.op, s.res, s.c.LastError())
}

func (s *scene) build(width, height int) error {
	c := s.c
	s.do("modules", func() owl.Result {
		if r := c.SetRayTypeCount(rayTypes); !r.OK() {
			return r
		}
		if r := c.AllocModules(1); !r.OK() {
			return r
		}
		if r := c.SetModule(0, []byte(sceneSource)); !r.OK() {
			return r
		}
		return c.BuildModules()
	})
	s.do("programs", s.programs)
	s.do("pipeline", c.CreatePipeline)
	s.do("buffers", s.buffers)
	s.do("geometry", s.geometry)
	s.do("accel", s.accel)
	s.do("binding tables", s.bindingTables)
	s.do("launch", func() owl.Result {
		if r := c.Launch2D(0, width, height, paramsSize, owl.RecordWriterFunc(s.writeParams)); !r.OK() {
			return r
		}
		return c.Synchronize()
	})
	return s.err()
}

func (s *scene) programs() owl.Result {
	c := s.c
	for _, r := range []owl.Result{
		c.AllocRayGens(1),
		c.SetRayGen(0, 0, "ray_gen", recordSize),
		c.AllocMissProgs(rayTypes),
		c.SetMissProg(0, 0, "miss_main", 0),
		c.SetMissProg(1, 0, "miss_main", 0),
		c.AllocHitProgs(rayTypes),
		c.SetHitProg(0, 0, "closest_hit", recordSize, 0),
		c.SetHitProg(1, 0, "shadow_hit", 0, 1),
		c.AllocGeomTypes(2),
		c.SetGeomType(0, recordSize),
		c.SetGeomType(1, recordSize),
	} {
		if !r.OK() {
			return r
		}
	}
	for gt := range 2 {
		for ray := range rayTypes {
			if r := c.GeomTypeSetHitProg(gt, ray, ray); !r.OK() {
				return r
			}
		}
	}
	return owl.Success
}

func (s *scene) buffers() owl.Result {
	c := s.c
	verts := make([]byte, 3*ll.DefaultVertexStride)
	for i, v := range []f32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}} {
		bvh.PutVec3(verts[i*ll.DefaultVertexStride:], v)
	}
	indices := make([]byte, ll.DefaultIndexStride)
	for i, idx := range []uint32{0, 1, 2} {
		binary.LittleEndian.PutUint32(indices[4*i:], idx)
	}
	// center xyz and radius of each sphere
	spheres := make([]byte, 2*sphereStride)
	for i, sp := range [][4]float32{{0, 0, 0, 0.5}, {2, 0, 0, 0.25}} {
		bvh.PutVec3(spheres[i*sphereStride:], f32.Vec3{sp[0], sp[1], sp[2]})
		binary.LittleEndian.PutUint32(spheres[i*sphereStride+12:], math.Float32bits(sp[3]))
	}
	for _, r := range []owl.Result{
		c.AllocBuffers(bufCount),
		c.DeviceBufferCreate(bufVertices, 3, ll.DefaultVertexStride, verts),
		c.DeviceBufferCreate(bufIndices, 1, ll.DefaultIndexStride, indices),
		c.DeviceBufferCreate(bufSpheres, 2, sphereStride, spheres),
	} {
		if !r.OK() {
			return r
		}
	}
	return owl.Success
}

func (s *scene) geometry() owl.Result {
	c := s.c
	for _, r := range []owl.Result{
		c.AllocGeoms(2),
		c.CreateTrianglesGeom(0, 0, 0),
		c.TrianglesSetVertexBuffers(0, []int{bufVertices}, 3, 0, 0),
		c.TrianglesSetIndexBuffer(0, bufIndices, 1, 0, 0),
		c.CreateUserGeom(1, 1, 1, 2),
		c.UserGeomSetPrimBuffer(1, bufSpheres),
		c.UserGeomSetBounds(1, sphereBounds),
	} {
		if !r.OK() {
			return r
		}
	}
	return owl.Success
}

func sphereBounds(_ *owl.Device, prim int, prims []byte) (bvh.AABB, error) {
	if (prim+1)*sphereStride > len(prims) {
		return bvh.AABB{}, fmt.Errorf("sphere %d outside %d-byte buffer", prim, len(prims))
	}
	rec := prims[prim*sphereStride:]
	center := bvh.GetVec3(rec)
	r := math.Float32frombits(binary.LittleEndian.Uint32(rec[12:]))
	return bvh.AABB{
		Min: f32.Vec3{center[0] - r, center[1] - r, center[2] - r},
		Max: f32.Vec3{center[0] + r, center[1] + r, center[2] + r},
	}, nil
}

func (s *scene) accel() owl.Result {
	c := s.c
	for _, r := range []owl.Result{
		c.AllocGroups(groupCount),
		c.CreateGeomGroup(groupMesh, []int{0}),
		c.CreateGeomGroup(groupSpheres, []int{1}),
		c.BuildAccel(groupMesh),
		c.BuildAccel(groupSpheres),
		c.CreateInstanceGroup(groupWorld, 2),
		c.InstanceGroupSetChild(groupWorld, 0, groupMesh),
		c.InstanceGroupSetChild(groupWorld, 1, groupSpheres),
		c.InstanceGroupSetTransform(groupWorld, 1, f32.Aff4{1, 0, 0, 0, 0, 1, 0, 3, 0, 0, 1, 0}),
		c.BuildAccel(groupWorld),
	} {
		if !r.OK() {
			return r
		}
	}
	return owl.Success
}

func (s *scene) bindingTables() owl.Result {
	c := s.c
	if r := c.SBTRayGensBuild(recordSize, owl.RecordWriterFunc(s.writeRayGen)); !r.OK() {
		return r
	}
	if r := c.SBTMissProgsBuild(0, nil); !r.OK() {
		return r
	}
	return c.SBTHitProgsBuild(recordSize, owl.RecordWriterFunc(s.writeHit))
}

// writeRayGen stores the world traversable of each device.
func (s *scene) writeRayGen(d *owl.Device, _ int, dst []byte) error {
	t, err := d.Traversable(groupWorld)
	binary.LittleEndian.PutUint64(dst, uint64(t))
	return err
}

// writeHit stores the primitive buffer address of the record's geometry.
// Rows are logical hit group × ray type count plus ray type.
func (s *scene) writeHit(d *owl.Device, record int, dst []byte) error {
	buf := bufVertices
	if record/rayTypes == 1 {
		buf = bufSpheres
	}
	p, err := d.BufferPointer(buf)
	binary.LittleEndian.PutUint64(dst, uint64(p))
	return err
}

func (s *scene) writeParams(d *owl.Device, _ int, dst []byte) error {
	t, err := d.Traversable(groupWorld)
	binary.LittleEndian.PutUint64(dst, uint64(t))
	binary.LittleEndian.PutUint32(dst[8:], uint32(d.ID()))
	return err
}
