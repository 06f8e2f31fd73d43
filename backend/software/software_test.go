// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/owl/backend"
	"github.com/gogpu/owl/compiler"
)

func openDevice(t *testing.T, b *Backend, ordinal int) *Device {
	t.Helper()
	d, err := b.Open(ordinal)
	if err != nil {
		t.Fatalf("Open(%d) error = %v", ordinal, err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d.(*Device)
}

func TestRegistered(t *testing.T) {
	if !backend.IsRegistered(backend.NameSoftware) {
		t.Fatal("software backend not registered")
	}
	if b := backend.Get(backend.NameSoftware); b == nil || b.Name() != "software" {
		t.Errorf("Get(software) = %v", b)
	}
}

func TestProbe(t *testing.T) {
	infos, err := New(WithAdapters(3)).Probe()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 3 {
		t.Fatalf("Probe() returned %d adapters, want 3", len(infos))
	}
	for i, info := range infos {
		if info.Ordinal != i || info.Backend != "software" {
			t.Errorf("adapter %d = %+v", i, info)
		}
	}
}

func TestOpenErrors(t *testing.T) {
	boom := errors.New("boom")
	b := New(WithAdapters(2), WithOpenError(1, boom))
	if _, err := b.Open(1); !errors.Is(err, boom) {
		t.Errorf("Open(1) error = %v, want boom", err)
	}
	if _, err := b.Open(5); !errors.Is(err, backend.ErrNoAdapter) {
		t.Errorf("Open(5) error = %v, want ErrNoAdapter", err)
	}
	openDevice(t, b, 0)
	if len(b.Devices()) != 1 {
		t.Errorf("Devices() = %d, want 1", len(b.Devices()))
	}
}

func TestAllocUploadDownload(t *testing.T) {
	d := openDevice(t, New(), 0)
	p, err := d.Alloc(16, backend.MemoryDevice)
	if err != nil {
		t.Fatal(err)
	}
	if p == 0 {
		t.Fatal("Alloc returned zero pointer")
	}
	if err := d.Upload(p, 4, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 8)
	if err := d.Download(p, 0, got); err != nil {
		t.Fatal(err)
	}
	if want := []byte{0, 0, 0, 0, 1, 2, 3, 4}; !bytes.Equal(got, want) {
		t.Errorf("Download = %v, want %v", got, want)
	}
	if err := d.Upload(p, 14, []byte{1, 2, 3}); !errors.Is(err, backend.ErrOutOfRange) {
		t.Errorf("Upload past end error = %v, want ErrOutOfRange", err)
	}
	stats := d.MemoryStats()
	if stats.Allocations != 1 || stats.AllocatedBytes != 16 {
		t.Errorf("MemoryStats = %+v", stats)
	}

	if err := d.Free(p); err != nil {
		t.Fatal(err)
	}
	if err := d.Free(p); !errors.Is(err, backend.ErrInvalidPointer) {
		t.Errorf("double Free error = %v, want ErrInvalidPointer", err)
	}
}

func TestAddressRangesDisjoint(t *testing.T) {
	b := New(WithAdapters(2))
	d0 := openDevice(t, b, 0)
	d1 := openDevice(t, b, 1)
	p0, _ := d0.Alloc(64, backend.MemoryDevice)
	p1, _ := d1.Alloc(64, backend.MemoryDevice)
	if p0 == p1 {
		t.Errorf("devices returned the same address %#x", uint64(p0))
	}
	q0, _ := d0.Alloc(1, backend.MemoryHostPinned)
	if q0 <= p0 || uint64(q0)%Alignment != 0 {
		t.Errorf("second allocation %#x not aligned past %#x", uint64(q0), uint64(p0))
	}
}

func TestMemoryLimit(t *testing.T) {
	d := openDevice(t, New(WithMemoryLimit(100)), 0)
	if _, err := d.Alloc(64, backend.MemoryDevice); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Alloc(64, backend.MemoryDevice); !errors.Is(err, backend.ErrOutOfMemory) {
		t.Errorf("Alloc over limit error = %v, want ErrOutOfMemory", err)
	}
}

func TestPipelineAndDispatch(t *testing.T) {
	d := openDevice(t, New(), 0)
	mod := &compiler.Module{Label: "m", EntryPoints: []compiler.EntryPoint{{Name: "rg"}, {Name: "ms"}}}
	ref, err := d.LoadModule(mod)
	if err != nil {
		t.Fatal(err)
	}

	_, err = d.CreatePipeline(&backend.PipelineDesc{Programs: []backend.ProgramDesc{
		{Kind: backend.ProgramRayGen, Module: ref, Entry: "missing"},
	}})
	if err == nil {
		t.Error("CreatePipeline with unknown entry succeeded")
	}

	pl, err := d.CreatePipeline(&backend.PipelineDesc{Programs: []backend.ProgramDesc{
		{Kind: backend.ProgramRayGen, Module: ref, Entry: "rg"},
		{Kind: backend.ProgramMiss, Module: ref, Entry: "ms"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(pl.Identifiers) != 2 || pl.Identifiers[0] == pl.Identifiers[1] || pl.Identifiers[0] == 0 {
		t.Errorf("Identifiers = %v, want two distinct non-zero ids", pl.Identifiers)
	}

	params, _ := d.Alloc(8, backend.MemoryDevice)
	_ = d.Upload(params, 0, []byte("launch!!"))

	if err := d.Dispatch(&backend.DispatchDesc{Pipeline: pl.Ref, RayGen: 1}); err == nil {
		t.Error("Dispatch of a miss program succeeded")
	}
	err = d.Dispatch(&backend.DispatchDesc{Pipeline: pl.Ref, RayGen: 0, Width: 4, Height: 2, Params: params, ParamsSize: 8})
	if err != nil {
		t.Fatal(err)
	}
	if d.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", d.Pending())
	}
	if err := d.Synchronize(); err != nil || d.Pending() != 0 {
		t.Errorf("Synchronize() = %v, pending %d", err, d.Pending())
	}
	rec := d.Dispatches()
	if len(rec) != 1 || rec[0].Entry != "rg" || string(rec[0].Params) != "launch!!" {
		t.Errorf("Dispatches() = %+v", rec)
	}
}

func TestCloseIdempotent(t *testing.T) {
	d := openDevice(t, New(), 0)
	if _, err := d.Alloc(8, backend.MemoryDevice); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if !d.Closed() {
		t.Error("Closed() = false")
	}
	if _, err := d.Alloc(8, backend.MemoryDevice); !errors.Is(err, backend.ErrClosed) {
		t.Errorf("Alloc after Close error = %v, want ErrClosed", err)
	}
	if d.MemoryStats().Allocations != 0 {
		t.Error("allocations survive Close")
	}
}
