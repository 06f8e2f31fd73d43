// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second Register() error = %v", err)
	}
}

func TestGatherNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	DeviceOpened()
	Allocated("software", 0, 128)
	Build(StageModules, nil)
	Launch()
	t.Cleanup(func() {
		DeviceClosed()
		Allocated("software", 0, -128)
	})

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := make(map[string]bool)
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{
		"owl_device_live",
		"owl_device_allocated_bytes",
		"owl_build_total",
		"owl_launch_total",
	} {
		if !found[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}
}

func TestBuildOutcome(t *testing.T) {
	okBefore := testutil.ToFloat64(buildsTotal.WithLabelValues(StageSBT, OutcomeOK))
	errBefore := testutil.ToFloat64(buildsTotal.WithLabelValues(StageSBT, OutcomeError))

	Build(StageSBT, nil)
	Build(StageSBT, errors.New("boom"))
	Build(StageSBT, errors.New("boom"))

	if got := testutil.ToFloat64(buildsTotal.WithLabelValues(StageSBT, OutcomeOK)) - okBefore; got != 1 {
		t.Errorf("ok builds = %v, want 1", got)
	}
	if got := testutil.ToFloat64(buildsTotal.WithLabelValues(StageSBT, OutcomeError)) - errBefore; got != 2 {
		t.Errorf("error builds = %v, want 2", got)
	}
}

func TestAllocatedGauge(t *testing.T) {
	g := allocatedBytes.WithLabelValues("test", "7")
	before := testutil.ToFloat64(g)
	Allocated("test", 7, 100)
	Allocated("test", 7, -40)
	if got := testutil.ToFloat64(g) - before; got != 60 {
		t.Errorf("allocated delta = %v, want 60", got)
	}
}
