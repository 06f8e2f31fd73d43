// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package owl

import (
	"errors"
	"fmt"

	"github.com/gogpu/owl/ll"
)

// Result is the outcome code of a Context call.
type Result int

// Result codes.
const (
	Success Result = iota
	InvalidHandle
	ResourceInUse
	NotBuilt
	DeviceInitFailure
	BuildFailure
	InvalidValue
	UnknownError
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case Success:
		return "Success"
	case InvalidHandle:
		return "InvalidHandle"
	case ResourceInUse:
		return "ResourceInUse"
	case NotBuilt:
		return "NotBuilt"
	case DeviceInitFailure:
		return "DeviceInitFailure"
	case BuildFailure:
		return "BuildFailure"
	case InvalidValue:
		return "InvalidValue"
	case UnknownError:
		return "UnknownError"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// OK reports whether r is Success.
func (r Result) OK() bool { return r == Success }

// resultOf maps an error to its code. Kinds are checked from most to least
// specific; ErrDestroyed matches InvalidHandle.
func resultOf(err error) Result {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ll.ErrNotBuilt):
		return NotBuilt
	case errors.Is(err, ll.ErrBuildFailure):
		return BuildFailure
	case errors.Is(err, ll.ErrDeviceInit):
		return DeviceInitFailure
	case errors.Is(err, ll.ErrResourceInUse):
		return ResourceInUse
	case errors.Is(err, ll.ErrInvalidHandle):
		return InvalidHandle
	case errors.Is(err, ll.ErrInvalidValue):
		return InvalidValue
	default:
		return UnknownError
	}
}
