// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gogpu/owl"
	"github.com/gogpu/owl/internal/config"
)

type rootFlags struct {
	configPath string
	backend    string
	devices    []int
	logLevel   string
	fatal      bool
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "owlctl",
		Short:         "Inspect owl backends and exercise device groups",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "config file (.toml, .yaml or .json)")
	pf.StringVar(&f.backend, "backend", "", "backend name (default: first available)")
	pf.IntSliceVar(&f.devices, "devices", nil, "adapter ordinals to open (default: all)")
	pf.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&f.fatal, "fatal", false, "exit on the first failed call")

	root.AddCommand(newDevicesCmd(f), newSelftestCmd(f))
	return root
}

// resolve merges the config file with flags set on the command line.
func (f *rootFlags) resolve(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = f.backend
	}
	if flags.Changed("devices") {
		cfg.Devices = f.devices
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if flags.Changed("fatal") {
		cfg.Fatal = &f.fatal
	}
	return cfg, cfg.Validate()
}

func newLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	level, _ := config.ParseLevel(cfg.LogLevel)
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// contextOptions translates cfg into context options. Fatal mode is only
// overridden when the flag or the config file sets it.
func contextOptions(cmd *cobra.Command, cfg config.Config) []owl.Option {
	opts := []owl.Option{
		owl.WithBackendName(cfg.Backend),
		owl.WithDevices(cfg.Devices...),
		owl.WithLogger(newLogger(cmd, cfg)),
	}
	if cfg.Fatal != nil {
		opts = append(opts, owl.WithFatalErrors(*cfg.Fatal))
	}
	if cfg.RayTypes > 0 {
		opts = append(opts, owl.WithRayTypeCount(cfg.RayTypes))
	}
	return opts
}
