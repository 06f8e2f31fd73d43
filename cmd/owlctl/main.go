// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command owlctl inspects owl backends and runs a small end-to-end scene
// through every device.
package main

import (
	"fmt"
	"os"

	_ "github.com/gogpu/owl/backend/software"
	_ "github.com/gogpu/owl/backend/wgpu"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "owlctl:", err)
		os.Exit(1)
	}
}
