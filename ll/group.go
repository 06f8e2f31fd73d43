// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ll

import (
	"fmt"
	"slices"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/owl/backend"
	"github.com/gogpu/owl/bvh"
)

// GroupKind tags a group.
type GroupKind uint8

// Group kinds.
const (
	// GroupGeometry is a bottom-level group of geometries of one kind.
	GroupGeometry GroupKind = iota
	// GroupInstance is a top-level group of transformed child groups.
	GroupInstance
)

// String returns the group kind name.
func (k GroupKind) String() string {
	switch k {
	case GroupGeometry:
		return "geometry"
	case GroupInstance:
		return "instance"
	default:
		return fmt.Sprintf("GroupKind(%d)", uint8(k))
	}
}

type group struct {
	kind GroupKind
	// children holds geometry handles for GroupGeometry and group handles
	// (-1 when unset) for GroupInstance.
	children   []int
	transforms []f32.Aff4

	state     buildState
	accel     backend.Ptr
	accelSize uint64
	bounds    bvh.AABB
}

func (g *group) hasChild(id int) bool { return slices.Contains(g.children, id) }

func (d *Device) freeAccel(g *group) {
	d.release(g.accel, g.accelSize)
	g.accel, g.accelSize = 0, 0
}

func (d *Device) createGeomGroup(id int, geoms []int) error {
	if len(geoms) == 0 {
		return fmt.Errorf("%w: geometry group needs at least one geometry", ErrInvalidValue)
	}
	var kind GeomKind
	for i, gid := range geoms {
		g, err := d.geoms.Get(gid)
		if err != nil {
			return fmt.Errorf("geometry group %d: %w", id, err)
		}
		if i == 0 {
			kind = g.kind
		} else if g.kind != kind {
			return fmt.Errorf("%w: geometry group %d mixes %s and %s geometries", ErrInvalidValue, id, kind, g.kind)
		}
	}
	if err := d.groups.Set(id, &group{kind: GroupGeometry, children: append([]int(nil), geoms...)}); err != nil {
		return err
	}
	d.groupChanged(id)
	return nil
}

func (d *Device) createInstanceGroup(id, count int) error {
	if count < 0 {
		return fmt.Errorf("%w: negative instance count %d", ErrInvalidValue, count)
	}
	g := &group{
		kind:       GroupInstance,
		children:   make([]int, count),
		transforms: make([]f32.Aff4, count),
	}
	for i := range g.children {
		g.children[i] = -1
		g.transforms[i] = bvh.Identity
	}
	if err := d.groups.Set(id, g); err != nil {
		return err
	}
	d.groupChanged(id)
	return nil
}

func (d *Device) instanceGroup(id, index int) (*group, error) {
	g, err := d.groups.Get(id)
	if err != nil {
		return nil, err
	}
	if g.kind != GroupInstance {
		return nil, fmt.Errorf("%w: group %d is a %s group", ErrInvalidValue, id, g.kind)
	}
	if index < 0 || index >= len(g.children) {
		return nil, fmt.Errorf("%w: instance %d of group %d with %d instances", ErrInvalidHandle, index, id, len(g.children))
	}
	return g, nil
}

func (d *Device) instanceSetChild(id, index, child int) error {
	g, err := d.instanceGroup(id, index)
	if err != nil {
		return err
	}
	if child == id {
		return fmt.Errorf("%w: group %d cannot instance itself", ErrInvalidValue, id)
	}
	if !d.groups.Has(child) {
		return fmt.Errorf("%w: child group %d", ErrInvalidHandle, child)
	}
	g.children[index] = child
	d.groupChanged(id)
	return nil
}

func (d *Device) instanceSetTransform(id, index int, xfm f32.Aff4) error {
	g, err := d.instanceGroup(id, index)
	if err != nil {
		return err
	}
	g.transforms[index] = xfm
	d.groupChanged(id)
	return nil
}

// groupChanged marks group id stale and, transitively, every instance group
// that holds it.
func (d *Device) groupChanged(id int) {
	seen := map[int]bool{}
	var mark func(int)
	mark = func(gid int) {
		if seen[gid] {
			return
		}
		seen[gid] = true
		if g, err := d.groups.Get(gid); err == nil && g.state == stateBuilt {
			g.state = stateStale
		}
		_ = d.groups.Each(func(pid int, p *group) error {
			if p.kind == GroupInstance && p.hasChild(gid) {
				mark(pid)
			}
			return nil
		})
	}
	mark(id)
}

// Traversable returns the device reference of group id's acceleration
// structure.
func (d *Device) Traversable(id int) (backend.Ptr, error) {
	g, err := d.groups.Get(id)
	if err != nil {
		return 0, err
	}
	switch g.state {
	case stateDeclared:
		return 0, fmt.Errorf("%w: group %d has no acceleration structure", ErrNotBuilt, id)
	case stateStale:
		return 0, fmt.Errorf("%w: group %d changed since its last build", ErrNotBuilt, id)
	}
	return g.accel, nil
}

// GroupBounds returns the world bounds of a built group on this device.
func (d *Device) GroupBounds(id int) (bvh.AABB, error) {
	if _, err := d.Traversable(id); err != nil {
		return bvh.AABB{}, err
	}
	g, _ := d.groups.Get(id)
	return g.bounds, nil
}
