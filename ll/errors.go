// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package ll

import (
	"errors"
	"fmt"

	"github.com/gogpu/owl/internal/handle"
)

// Error kinds. Every error returned by this package wraps exactly one of
// these; match with errors.Is.
var (
	// ErrInvalidHandle is returned for out-of-range or empty handles.
	ErrInvalidHandle = handle.ErrInvalidHandle

	// ErrResourceInUse is returned when shrinking a table would drop a live
	// resource.
	ErrResourceInUse = handle.ErrResourceInUse

	// ErrNotBuilt is returned when an operation needs a build step that has
	// not run, or whose result is stale.
	ErrNotBuilt = errors.New("ll: not built")

	// ErrDeviceInit is returned when no requested device could be opened.
	ErrDeviceInit = errors.New("ll: device initialization failed")

	// ErrBuildFailure is returned when compiling, linking, acceleration
	// structure construction or binding table assembly fails.
	ErrBuildFailure = errors.New("ll: build failed")

	// ErrInvalidValue is returned for arguments that are out of their domain
	// (negative sizes, mismatched geometry kinds, oversized uploads).
	ErrInvalidValue = errors.New("ll: invalid value")

	// ErrDestroyed is returned by every call on a destroyed device group.
	ErrDestroyed = fmt.Errorf("%w: device group destroyed", ErrInvalidHandle)

	// ErrCallbackActive is returned by calls on a device group made while one
	// of its record writers or bounds routines runs.
	ErrCallbackActive = fmt.Errorf("%w: device group is running a callback", ErrInvalidValue)
)

// kinds lists the sentinels in the order hasKind checks them.
var kinds = []error{ErrNotBuilt, ErrBuildFailure, ErrDeviceInit, ErrInvalidHandle, ErrResourceInUse, ErrInvalidValue}

// hasKind reports whether err already wraps one of the package sentinels.
func hasKind(err error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// asBuildFailure wraps err in ErrBuildFailure unless it already carries a kind.
func asBuildFailure(err error) error {
	if err == nil || hasKind(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBuildFailure, err)
}
