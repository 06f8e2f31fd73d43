// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ll

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/owl/backend"
	"github.com/gogpu/owl/internal/metrics"
)

// SBTKind selects one of a device's three binding tables.
type SBTKind uint8

// Binding table kinds.
const (
	SBTRayGen SBTKind = iota
	SBTMiss
	SBTHit

	sbtKindCount = 3
)

// String returns the table kind name.
func (k SBTKind) String() string {
	switch k {
	case SBTRayGen:
		return "raygen"
	case SBTMiss:
		return "miss"
	case SBTHit:
		return "hit"
	default:
		return fmt.Sprintf("SBTKind(%d)", uint8(k))
	}
}

// Binding record layout. Every record starts with a RecordHeader followed by
// the caller's payload; records are RecordAlignment-aligned.
const (
	HeaderSize      = 32
	RecordAlignment = 16
)

// RecordStride returns the record stride for a payload of maxDataSize bytes.
func RecordStride(maxDataSize int) int {
	return (HeaderSize + maxDataSize + RecordAlignment - 1) &^ (RecordAlignment - 1)
}

// RecordHeader identifies the program a binding record dispatches to.
// Program and Geometry are -1 when the record has none; an unbound record
// has a zero Identifier.
//
// Wire layout, little endian:
//
//	0  identifier u64
//	8  kind       u32
//	12 program    i32
//	16 ray type   u32
//	20 geometry   i32
//	24 record     u32
//	28 device     u32
type RecordHeader struct {
	Identifier uint64
	Kind       SBTKind
	Program    int32
	RayType    uint32
	Geometry   int32
	Record     uint32
	Device     uint32
}

// Encode writes h into the first HeaderSize bytes of b.
func (h RecordHeader) Encode(b []byte) {
	le := binary.LittleEndian
	le.PutUint64(b[0:], h.Identifier)
	le.PutUint32(b[8:], uint32(h.Kind))
	le.PutUint32(b[12:], uint32(h.Program))
	le.PutUint32(b[16:], h.RayType)
	le.PutUint32(b[20:], uint32(h.Geometry))
	le.PutUint32(b[24:], h.Record)
	le.PutUint32(b[28:], h.Device)
}

// DecodeRecordHeader reads a header from the first HeaderSize bytes of b.
func DecodeRecordHeader(b []byte) RecordHeader {
	le := binary.LittleEndian
	return RecordHeader{
		Identifier: le.Uint64(b[0:]),
		Kind:       SBTKind(le.Uint32(b[8:])),
		Program:    int32(le.Uint32(b[12:])),
		RayType:    le.Uint32(b[16:]),
		Geometry:   int32(le.Uint32(b[20:])),
		Record:     le.Uint32(b[24:]),
		Device:     le.Uint32(b[28:]),
	}
}

// RecordWriter fills binding record payloads. WriteRecord is called exactly
// once per device and record with a zeroed dst of the table's maximum data
// size. Payloads may hold device-specific addresses, so writers must not
// reuse one device's bytes for another; query them through d.
//
// Writers run inside a DeviceGroup call. Calls made on the group while a
// writer runs fail with ErrCallbackActive.
type RecordWriter interface {
	WriteRecord(d *Device, record int, dst []byte) error
}

// RecordWriterFunc adapts a function to RecordWriter.
type RecordWriterFunc func(d *Device, record int, dst []byte) error

// WriteRecord calls f.
func (f RecordWriterFunc) WriteRecord(d *Device, record int, dst []byte) error {
	return f(d, record, dst)
}

// SBTInfo describes a device-resident binding table.
type SBTInfo struct {
	Ptr         backend.Ptr
	Stride      int
	Count       int
	MaxDataSize int
}

// region converts the table to a dispatch region.
func (s SBTInfo) region() backend.Region {
	return backend.Region{Ptr: s.Ptr, Stride: uint32(s.Stride), Count: uint32(s.Count)}
}

type sbtTable struct {
	info       SBTInfo
	host       []byte
	generation uint64
	stale      bool
}

func (d *Device) markSBTStale(k SBTKind) {
	if t := d.sbts[k]; t != nil {
		t.stale = true
	}
}

func (d *Device) dropSBT(k SBTKind) {
	if t := d.sbts[k]; t != nil {
		d.release(t.info.Ptr, uint64(len(t.host)))
		d.sbts[k] = nil
	}
}

// sbtReady returns table k when it was built against the current pipeline
// and nothing it depends on has changed since.
func (d *Device) sbtReady(k SBTKind) (*sbtTable, error) {
	t := d.sbts[k]
	switch {
	case t == nil:
		return nil, fmt.Errorf("%w: %s binding table has not been built", ErrNotBuilt, k)
	case t.stale || t.generation != d.generation || d.pipelineSt != stateBuilt:
		return nil, fmt.Errorf("%w: %s binding table is stale", ErrNotBuilt, k)
	}
	return t, nil
}

// SBT returns this device's table of kind k.
func (d *Device) SBT(k SBTKind) (SBTInfo, error) {
	t, err := d.sbtReady(k)
	if err != nil {
		return SBTInfo{}, err
	}
	return t.info, nil
}

// SBTRecord returns the header and payload of record i of table k from the
// host mirror of the last build.
func (d *Device) SBTRecord(k SBTKind, i int) (RecordHeader, []byte, error) {
	t, err := d.sbtReady(k)
	if err != nil {
		return RecordHeader{}, nil, err
	}
	if i < 0 || i >= t.info.Count {
		return RecordHeader{}, nil, fmt.Errorf("%w: record %d of %d-record %s table", ErrInvalidHandle, i, t.info.Count, k)
	}
	rec := t.host[i*t.info.Stride:]
	payload := append([]byte(nil), rec[HeaderSize:HeaderSize+t.info.MaxDataSize]...)
	return DecodeRecordHeader(rec), payload, nil
}

func checkDataSize(maxSize, size int, what string, id int) error {
	if size > maxSize {
		return fmt.Errorf("%w: %s %d declares %d data bytes, table holds %d", ErrBuildFailure, what, id, size, maxSize)
	}
	return nil
}

// programHeaders lays out one record per slot of a ray-gen or miss table.
func (d *Device) programHeaders(k SBTKind, pl *pipeline, maxSize int) ([]RecordHeader, error) {
	t := d.rayGens
	if k == SBTMiss {
		t = d.misses
	}
	ids := pl.identifiers(k)
	hdrs := make([]RecordHeader, t.Len())
	for i := range hdrs {
		hdrs[i] = RecordHeader{Kind: k, Program: -1, Geometry: -1}
	}
	err := t.Each(func(i int, p *program) error {
		if err := checkDataSize(maxSize, p.dataSize, k.String()+" program", i); err != nil {
			return err
		}
		if i >= len(ids) || ids[i] == 0 {
			return fmt.Errorf("%w: %s program %d is not part of the pipeline", ErrNotBuilt, k, i)
		}
		hdrs[i].Identifier = ids[i]
		hdrs[i].Program = int32(i)
		return nil
	})
	return hdrs, err
}

// hitHeaders lays out geometryCount × rayTypeCount records with geometry g's
// record for ray type r at row lhg(g)×R + r.
func (d *Device) hitHeaders(pl *pipeline, maxSize int) ([]RecordHeader, error) {
	numGeoms, rayTypes := d.geoms.Len(), d.rayTypeCount
	hdrs := make([]RecordHeader, numGeoms*rayTypes)
	for i := range hdrs {
		hdrs[i] = RecordHeader{Kind: SBTHit, Program: -1, RayType: uint32(i % rayTypes), Geometry: -1}
	}
	owner := make([]int, numGeoms)
	for i := range owner {
		owner[i] = -1
	}

	err := d.geoms.Each(func(gid int, g *geometry) error {
		lhg := g.logicalHitGroup
		if lhg >= numGeoms {
			return fmt.Errorf("%w: geometry %d has logical hit group %d, table holds %d",
				ErrBuildFailure, gid, lhg, numGeoms)
		}
		if owner[lhg] >= 0 {
			return fmt.Errorf("%w: geometries %d and %d share logical hit group %d",
				ErrBuildFailure, owner[lhg], gid, lhg)
		}
		owner[lhg] = gid

		gt, err := d.geomTypes.Get(g.geomType)
		if err != nil {
			return fmt.Errorf("geometry %d: %w", gid, err)
		}
		if err := checkDataSize(maxSize, gt.dataSize, "geometry type", g.geomType); err != nil {
			return err
		}
		for r := range rayTypes {
			h := &hdrs[lhg*rayTypes+r]
			h.Geometry = int32(gid)
			hp := gt.hitFor(r)
			if hp < 0 {
				continue
			}
			prog, err := d.hits.Get(hp)
			if err != nil {
				return fmt.Errorf("geometry type %d ray type %d: %w", g.geomType, r, err)
			}
			if prog.rayType != r {
				return fmt.Errorf("%w: hit program %d is for ray type %d, bound to ray type %d",
					ErrBuildFailure, hp, prog.rayType, r)
			}
			if err := checkDataSize(maxSize, prog.dataSize, "hit program", hp); err != nil {
				return err
			}
			if hp >= len(pl.hit) || pl.hit[hp] == 0 {
				return fmt.Errorf("%w: hit program %d is not part of the pipeline", ErrNotBuilt, hp)
			}
			h.Identifier = pl.hit[hp]
			h.Program = int32(hp)
		}
		return nil
	})
	return hdrs, err
}

// buildSBT assembles, uploads and replaces table k.
func (d *Device) buildSBT(k SBTKind, maxSize int, w RecordWriter) (err error) {
	defer func() { metrics.Build(metrics.StageSBT, err) }()

	if maxSize < 0 {
		return fmt.Errorf("%w: negative maximum data size %d", ErrInvalidValue, maxSize)
	}
	pl, err := d.pipelineReady()
	if err != nil {
		return err
	}
	var hdrs []RecordHeader
	if k == SBTHit {
		hdrs, err = d.hitHeaders(pl, maxSize)
	} else {
		hdrs, err = d.programHeaders(k, pl, maxSize)
	}
	if err != nil {
		return err
	}

	stride := RecordStride(maxSize)
	host := make([]byte, stride*len(hdrs))
	scratch := make([]byte, maxSize)
	for i, h := range hdrs {
		clear(scratch)
		if w != nil {
			if err := w.WriteRecord(d, i, scratch); err != nil {
				return fmt.Errorf("%w: %s record %d on device %d: %w", ErrBuildFailure, k, i, d.id, err)
			}
		}
		rec := host[i*stride : (i+1)*stride]
		h.Record = uint32(i)
		h.Device = uint32(d.id)
		h.Encode(rec)
		copy(rec[HeaderSize:], scratch)
	}

	ptr, err := d.alloc(uint64(len(host)), backend.MemoryDevice)
	if err != nil {
		return fmt.Errorf("%w: %s binding table: %w", ErrBuildFailure, k, err)
	}
	if len(host) > 0 {
		if err := d.dev.Upload(ptr, 0, host); err != nil {
			d.release(ptr, uint64(len(host)))
			return fmt.Errorf("%w: %s binding table upload: %w", ErrBuildFailure, k, err)
		}
	}
	d.dropSBT(k)
	d.sbts[k] = &sbtTable{
		info:       SBTInfo{Ptr: ptr, Stride: stride, Count: len(hdrs), MaxDataSize: maxSize},
		host:       host,
		generation: pl.generation,
	}
	slogger().Debug("ll: binding table built", "device", d.id, "kind", k, "records", len(hdrs), "stride", stride)
	return nil
}
