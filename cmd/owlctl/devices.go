// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gogpu/owl/backend"
)

func newDevicesCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the adapters each registered backend reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return err
			}
			names := backend.Available()
			if cfg.Backend != "" {
				names = []string{cfg.Backend}
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "BACKEND\tORDINAL\tTYPE\tNAME")
			for _, name := range names {
				b, err := backend.Lookup(name)
				if err != nil {
					return err
				}
				adapters, err := b.Probe()
				if err != nil {
					fmt.Fprintf(w, "%s\t-\t-\tunavailable: %v\n", name, err)
					continue
				}
				for _, a := range adapters {
					fmt.Fprintf(w, "%s\t%d\t%v\t%s\n", name, a.Ordinal, a.Type, a.Name)
				}
			}
			return w.Flush()
		},
	}
}
