// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package metrics holds the prometheus collectors of the device layer.
//
// Collectors are always updated; they are exported only once Register has
// been called with a registry.
package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Build stages and outcomes used as label values.
const (
	StageModules  = "modules"
	StagePipeline = "pipeline"
	StageAccel    = "accel"
	StageSBT      = "sbt"

	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	devicesLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "owl",
			Subsystem: "device",
			Name:      "live",
			Help:      "Devices currently open across all device groups",
		},
	)

	allocatedBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "owl",
			Subsystem: "device",
			Name:      "allocated_bytes",
			Help:      "Bytes of accelerator memory held by the device layer",
		},
		[]string{"backend", "ordinal"},
	)

	buildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "owl",
			Subsystem: "build",
			Name:      "total",
			Help:      "Builds per stage and outcome, counted once per device",
		},
		[]string{"stage", "outcome"},
	)

	launchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "owl",
			Subsystem: "launch",
			Name:      "total",
			Help:      "Launches dispatched, counted once per device",
		},
	)
)

// Collectors returns every collector of the package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{devicesLive, allocatedBytes, buildsTotal, launchesTotal}
}

// Register registers the collectors with reg. Registering twice with the
// same registry is not an error.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// DeviceOpened records a newly opened device.
func DeviceOpened() { devicesLive.Inc() }

// DeviceClosed records a closed device.
func DeviceClosed() { devicesLive.Dec() }

// Allocated adjusts the allocated byte gauge of one device by delta.
func Allocated(backend string, ordinal int, delta int64) {
	allocatedBytes.WithLabelValues(backend, strconv.Itoa(ordinal)).Add(float64(delta))
}

// Build counts one build of stage on one device.
func Build(stage string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	buildsTotal.WithLabelValues(stage, outcome).Inc()
}

// Launch counts one per-device launch.
func Launch() { launchesTotal.Inc() }
