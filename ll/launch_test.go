// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ll

import (
	"encoding/binary"
	"errors"
	"math"
	"strconv"
	"testing"
)

func buildLaunchable(t *testing.T, g *DeviceGroup) {
	t.Helper()
	buildUserScene(t, g, 1, 0)
	must(t, g.AllocGroups(1))
	must(t, g.CreateGeomGroup(0, []int{0}))
	must(t, g.BuildAccel(0))
	must(t, g.SBTRayGensBuild(16, nil))
	must(t, g.SBTMissProgsBuild(8, nil))
	must(t, g.SBTHitProgsBuild(8, nil))
}

func TestLaunch2D(t *testing.T) {
	g, b := newTestGroup(t, 2)
	buildLaunchable(t, g)

	params := RecordWriterFunc(func(d *Device, record int, dst []byte) error {
		// Each device receives its own root traversable.
		if record != 0 {
			t.Errorf("params record = %d", record)
		}
		root, err := d.Traversable(0)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(dst, uint64(root))
		return nil
	})
	must(t, g.Launch2D(0, 64, 32, 16, params))

	for i, sd := range b.Devices() {
		if sd.Pending() != 1 {
			t.Errorf("device %d: %d pending launches, want 1", i, sd.Pending())
		}
		ds := sd.Dispatches()
		if len(ds) != 1 {
			t.Fatalf("device %d: %d dispatches", i, len(ds))
		}
		got := ds[0]
		if got.Entry != "raygen" || got.Desc.Width != 64 || got.Desc.Height != 32 {
			t.Errorf("device %d: dispatch %+v", i, got)
		}
		root, _ := g.GroupTraversable(0, i)
		if len(got.Params) != 16 || binary.LittleEndian.Uint64(got.Params) != uint64(root) {
			t.Errorf("device %d: params % x, want root %#x", i, got.Params, uint64(root))
		}
		hit, _ := g.SBT(SBTHit, i)
		if got.Desc.Hits.Ptr != hit.Ptr || got.Desc.Hits.Count != uint32(hit.Count) {
			t.Errorf("device %d: hit region %+v, want %+v", i, got.Desc.Hits, hit)
		}
		if got.Desc.RayGens.Count != 1 {
			t.Errorf("device %d: ray-gen region %+v", i, got.Desc.RayGens)
		}
	}

	must(t, g.Synchronize())
	for i, sd := range b.Devices() {
		if sd.Pending() != 0 {
			t.Errorf("device %d: %d pending after Synchronize", i, sd.Pending())
		}
	}
}

func TestLaunch2DRequirements(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, g *DeviceGroup)
		rayGen int
		want   error
	}{
		{"ready", func(*testing.T, *DeviceGroup) {}, 0, nil},
		{"unknown ray-gen", func(*testing.T, *DeviceGroup) {}, 3, ErrInvalidHandle},
		{"stale hit table", func(t *testing.T, g *DeviceGroup) { must(t, g.SetRayTypeCount(2)) }, 0, ErrNotBuilt},
		{"stale pipeline", func(t *testing.T, g *DeviceGroup) { must(t, g.SetRayGen(0, 0, "raygen", 0)) }, 0, ErrNotBuilt},
		{"rebuilt pipeline", func(t *testing.T, g *DeviceGroup) { must(t, g.CreatePipeline()) }, 0, ErrNotBuilt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGroup(t, 1)
			buildLaunchable(t, g)
			tt.mutate(t, g)
			if err := g.Launch2D(tt.rayGen, 8, 8, 0, nil); !errors.Is(err, tt.want) {
				t.Errorf("Launch2D = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLaunch2DInvalidSize(t *testing.T) {
	g, _ := newTestGroup(t, 1)
	if err := g.Launch2D(0, -1, 8, 0, nil); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("negative width = %v, want ErrInvalidValue", err)
	}
}

func TestLaunch2DRejectsOversizedGrid(t *testing.T) {
	if strconv.IntSize < 64 {
		t.Skip("int cannot exceed 32 bits")
	}
	g, _ := newTestGroup(t, 1)
	wide := int64(math.MaxUint32) + 9
	if err := g.Launch2D(0, int(wide), 1, 0, nil); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("width %d = %v, want ErrInvalidValue", wide, err)
	}
	if err := g.Launch2D(0, 1, int(wide), 0, nil); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("height %d = %v, want ErrInvalidValue", wide, err)
	}
}

func TestLaunchParamsBufferReused(t *testing.T) {
	g, b := newTestGroup(t, 1)
	buildLaunchable(t, g)
	must(t, g.Launch2D(0, 4, 4, 32, nil))
	before := b.Devices()[0].MemoryStats().Allocations
	must(t, g.Launch2D(0, 4, 4, 16, nil))
	must(t, g.Launch2D(0, 4, 4, 32, nil))
	if got := b.Devices()[0].MemoryStats().Allocations; got != before {
		t.Errorf("allocations = %d, want %d", got, before)
	}
}
