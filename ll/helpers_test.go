// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ll

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"testing"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/owl/backend/software"
	"github.com/gogpu/owl/bvh"
	"github.com/gogpu/owl/compiler"
)

// entryCompiler treats module source as a whitespace-separated list of entry
// point names. A source starting with "!" fails to compile.
var entryCompiler = compiler.Func(func(label string, source []byte) (*compiler.Module, error) {
	src := string(source)
	if strings.HasPrefix(src, "!") {
		return nil, fmt.Errorf("%w: %s: %s", compiler.ErrCompile, label, src[1:])
	}
	m := &compiler.Module{Label: label, Source: source}
	for _, name := range strings.Fields(src) {
		m.EntryPoints = append(m.EntryPoints, compiler.EntryPoint{Name: name, Stage: compiler.StageCompute})
	}
	return m, nil
})

func newTestGroup(t *testing.T, adapters int, opts ...Option) (*DeviceGroup, *software.Backend) {
	t.Helper()
	b := software.New(software.WithAdapters(adapters))
	g, err := NewDeviceGroup(b, nil, append([]Option{WithCompiler(entryCompiler)}, opts...)...)
	if err != nil {
		t.Fatalf("NewDeviceGroup: %v", err)
	}
	t.Cleanup(func() { _ = g.Destroy() })
	return g, b
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func vertexBytes(verts ...f32.Vec3) []byte {
	b := make([]byte, 12*len(verts))
	for i, v := range verts {
		bvh.PutVec3(b[12*i:], v)
	}
	return b
}

func indexBytes(tris ...[3]uint32) []byte {
	b := make([]byte, 12*len(tris))
	for i, tri := range tris {
		for k, v := range tri {
			binary.LittleEndian.PutUint32(b[12*i+4*k:], v)
		}
	}
	return b
}

func translate(x, y, z float32) f32.Aff4 {
	m := bvh.Identity
	m[3], m[7], m[11] = x, y, z
	return m
}

func approx(a, b f32.Vec3) bool {
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > 1e-5 {
			return false
		}
	}
	return true
}

// buildPrograms declares one ray-gen, one miss and one closest-hit program
// per ray type in a single module, builds it and creates the pipeline.
func buildPrograms(t *testing.T, g *DeviceGroup, rayTypes int) {
	t.Helper()
	entries := []string{"raygen", "miss"}
	for r := range rayTypes {
		entries = append(entries, fmt.Sprintf("closest_%d", r))
	}
	must(t, g.SetRayTypeCount(rayTypes))
	must(t, g.AllocModules(1))
	must(t, g.SetModule(0, []byte(strings.Join(entries, " "))))
	must(t, g.BuildModules())
	must(t, g.AllocRayGens(1))
	must(t, g.SetRayGen(0, 0, "raygen", 16))
	must(t, g.AllocMissProgs(1))
	must(t, g.SetMissProg(0, 0, "miss", 8))
	must(t, g.AllocHitProgs(rayTypes))
	for r := range rayTypes {
		must(t, g.SetHitProg(r, 0, fmt.Sprintf("closest_%d", r), 8, r))
	}
	must(t, g.CreatePipeline())
}

// unitBox bounds user primitive i as [i,i+1]^3.
func unitBox(_ *Device, prim int, _ []byte) (bvh.AABB, error) {
	p := float32(prim)
	return bvh.AABB{Min: f32.Vec3{p, p, p}, Max: f32.Vec3{p + 1, p + 1, p + 1}}, nil
}

// buildUserScene declares geometry type 0 with one hit program per ray type
// and len(lhgs) user geometries with the given logical hit groups.
func buildUserScene(t *testing.T, g *DeviceGroup, rayTypes int, lhgs ...int) {
	t.Helper()
	buildPrograms(t, g, rayTypes)
	must(t, g.AllocGeomTypes(1))
	must(t, g.SetGeomType(0, 8))
	for r := range rayTypes {
		must(t, g.GeomTypeSetHitProg(0, r, r))
	}
	must(t, g.AllocGeoms(len(lhgs)))
	for i, lhg := range lhgs {
		must(t, g.CreateUserGeom(i, 0, lhg, 2))
		must(t, g.UserGeomSetBounds(i, unitBox))
	}
}
