// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ll

import (
	"errors"
	"fmt"

	"github.com/gogpu/owl/backend"
	"github.com/gogpu/owl/compiler"
	"github.com/gogpu/owl/internal/metrics"
)

// module is an opaque source blob and, once built, its loaded form.
type module struct {
	source   []byte
	compiled *compiler.Module
	ref      backend.ModuleRef
}

func (m *module) built() bool { return m.ref != 0 }

func (d *Device) unload(m *module) {
	if m.ref != 0 {
		d.dev.UnloadModule(m.ref)
		m.ref = 0
	}
	m.compiled = nil
}

func (d *Device) setModule(id int, source []byte) error {
	if err := d.modules.Set(id, &module{source: append([]byte(nil), source...)}); err != nil {
		return err
	}
	d.invalidatePipeline()
	return nil
}

// buildModules compiles and loads every module in the table. Modules that
// fail are left unbuilt and the first failures are reported together.
func (d *Device) buildModules() (err error) {
	defer func() { metrics.Build(metrics.StageModules, err) }()

	var errs []error
	_ = d.modules.Each(func(i int, m *module) error {
		d.unload(m)
		cm, err := d.compiler.Compile(fmt.Sprintf("module_%d", i), m.source)
		if err != nil {
			errs = append(errs, fmt.Errorf("module %d: %w", i, err))
			return nil
		}
		ref, err := d.dev.LoadModule(cm)
		if err != nil {
			errs = append(errs, fmt.Errorf("module %d: load: %w", i, err))
			return nil
		}
		m.compiled, m.ref = cm, ref
		return nil
	})
	d.modulesBuilt = true
	d.invalidatePipeline()
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrBuildFailure, errors.Join(errs...))
	}
	slogger().Debug("ll: modules built", "device", d.id, "count", d.modules.Count())
	return nil
}

// ModuleBuilt reports whether module id is occupied and built.
func (d *Device) ModuleBuilt(id int) (bool, error) {
	m, err := d.modules.Get(id)
	if err != nil {
		return false, err
	}
	return m.built(), nil
}
