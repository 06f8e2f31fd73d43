// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ll

import (
	"fmt"

	"github.com/gogpu/owl/internal/handle"
)

// program is a ray-gen or miss program, and the common part of hit programs.
type program struct {
	module   int
	entry    string
	dataSize int
}

// hitProgram additionally carries its ray type and optional any-hit and
// intersection entries resolved in the same module.
type hitProgram struct {
	program
	rayType      int
	anyHit       string
	intersection string
}

// HitEntries names the entries of a hit program. Closest is required.
type HitEntries struct {
	Closest      string
	AnyHit       string
	Intersection string
}

func checkProgram(module int, entry string, dataSize int) error {
	if entry == "" {
		return fmt.Errorf("%w: empty entry point name", ErrInvalidValue)
	}
	if module < 0 {
		return fmt.Errorf("%w: module %d", ErrInvalidHandle, module)
	}
	if dataSize < 0 {
		return fmt.Errorf("%w: negative data size %d", ErrInvalidValue, dataSize)
	}
	return nil
}

func (d *Device) setProgram(t *handle.Table[*program], id, module int, entry string, dataSize int) error {
	if err := checkProgram(module, entry, dataSize); err != nil {
		return err
	}
	if err := t.Set(id, &program{module: module, entry: entry, dataSize: dataSize}); err != nil {
		return err
	}
	d.invalidatePipeline()
	return nil
}

func (d *Device) setHitProgram(id, module int, e HitEntries, dataSize, rayType int) error {
	if err := checkProgram(module, e.Closest, dataSize); err != nil {
		return err
	}
	if rayType < 0 {
		return fmt.Errorf("%w: negative ray type %d", ErrInvalidValue, rayType)
	}
	p := &hitProgram{
		program:      program{module: module, entry: e.Closest, dataSize: dataSize},
		rayType:      rayType,
		anyHit:       e.AnyHit,
		intersection: e.Intersection,
	}
	if err := d.hits.Set(id, p); err != nil {
		return err
	}
	d.invalidatePipeline()
	return nil
}

// geomType is the per-type hit program binding of geometries.
type geomType struct {
	dataSize int
	// hit maps a ray type to a hit program handle, -1 when unset.
	hit []int
}

func (d *Device) setGeomType(id, dataSize int) error {
	if dataSize < 0 {
		return fmt.Errorf("%w: negative data size %d", ErrInvalidValue, dataSize)
	}
	if err := d.geomTypes.Set(id, &geomType{dataSize: dataSize}); err != nil {
		return err
	}
	d.markSBTStale(SBTHit)
	return nil
}

func (d *Device) geomTypeSetHit(id, rayType, hitProg int) error {
	gt, err := d.geomTypes.Get(id)
	if err != nil {
		return err
	}
	if rayType < 0 {
		return fmt.Errorf("%w: negative ray type %d", ErrInvalidValue, rayType)
	}
	for len(gt.hit) <= rayType {
		gt.hit = append(gt.hit, -1)
	}
	gt.hit[rayType] = hitProg
	d.markSBTStale(SBTHit)
	return nil
}

func (gt *geomType) hitFor(rayType int) int {
	if rayType < len(gt.hit) {
		return gt.hit[rayType]
	}
	return -1
}
