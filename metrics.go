// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package owl

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gogpu/owl/internal/metrics"
)

// RegisterMetrics registers owl's collectors with reg: live devices,
// allocated bytes per device, builds by stage and outcome, and launches.
// Registering with the same registry twice is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	return metrics.Register(reg)
}
