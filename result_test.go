// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package owl

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gogpu/owl/ll"
)

func TestResultOf(t *testing.T) {
	tests := []struct {
		err  error
		want Result
	}{
		{nil, Success},
		{ll.ErrInvalidHandle, InvalidHandle},
		{ll.ErrDestroyed, InvalidHandle},
		{fmt.Errorf("device 1: %w", ll.ErrResourceInUse), ResourceInUse},
		{ll.ErrNotBuilt, NotBuilt},
		{ll.ErrDeviceInit, DeviceInitFailure},
		{fmt.Errorf("%w: module 0", ll.ErrBuildFailure), BuildFailure},
		{ll.ErrInvalidValue, InvalidValue},
		{errors.New("disk on fire"), UnknownError},
	}
	for _, tt := range tests {
		if got := resultOf(tt.err); got != tt.want {
			t.Errorf("resultOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestResultString(t *testing.T) {
	if s := NotBuilt.String(); s != "NotBuilt" {
		t.Errorf("NotBuilt.String() = %q", s)
	}
	if s := Result(99).String(); s != "Result(99)" {
		t.Errorf("Result(99).String() = %q", s)
	}
	if !Success.OK() || BuildFailure.OK() {
		t.Error("OK() mismatch")
	}
}
