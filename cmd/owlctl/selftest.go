// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gogpu/owl"
)

func newSelftestCmd(f *rootFlags) *cobra.Command {
	var width, height int
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Build a small scene on every device and launch it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return err
			}
			c, err := owl.NewContext(contextOptions(cmd, cfg)...)
			if err != nil {
				return err
			}
			defer c.Destroy()

			s := &scene{c: c}
			if err := s.build(width, height); err != nil {
				return err
			}
			return report(cmd, c)
		},
	}
	cmd.Flags().IntVar(&width, "width", 64, "launch width")
	cmd.Flags().IntVar(&height, "height", 64, "launch height")
	return cmd
}

// report prints each device's world traversable and binding tables.
func report(cmd *cobra.Command, c *owl.Context) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tTABLE\tADDRESS\tSTRIDE\tRECORDS")
	for dev := range c.DeviceCount() {
		fmt.Fprintf(w, "%d\tworld\t%#x\t-\t-\n", dev, c.GroupTraversable(groupWorld, dev))
		for _, k := range []owl.SBTKind{owl.SBTRayGen, owl.SBTMiss, owl.SBTHit} {
			info, r := c.SBT(k, dev)
			if !r.OK() {
				return fmt.Errorf("device %d %s table: %v: %s", dev, k, r, c.LastError())
			}
			fmt.Fprintf(w, "%d\t%s\t%#x\t%d\t%d\n", dev, k, uint64(info.Ptr), info.Stride, info.Count)
		}
	}
	return w.Flush()
}
