// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package config loads owlctl run settings from TOML, YAML or JSON files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config selects the backend and devices a context is created on.
type Config struct {
	// Backend is a registered backend name; empty picks the default.
	Backend string `json:"backend" yaml:"backend" toml:"backend"`
	// Devices lists adapter ordinals; empty opens every adapter.
	Devices []int `json:"devices" yaml:"devices" toml:"devices"`
	// RayTypes is the ray type count; 0 keeps the default of 1.
	RayTypes int `json:"ray_types" yaml:"ray_types" toml:"ray_types"`
	// Fatal makes every failed call exit the process. Nil keeps the build
	// default.
	Fatal *bool `json:"fatal" yaml:"fatal" toml:"fatal"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Load reads a config file, choosing the decoder by extension.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension %q", filepath.Ext(path))
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports settings no context could be created with.
func (c Config) Validate() error {
	if c.RayTypes < 0 {
		return fmt.Errorf("ray_types must not be negative, got %d", c.RayTypes)
	}
	for _, d := range c.Devices {
		if d < 0 {
			return fmt.Errorf("negative device ordinal %d", d)
		}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog level. Empty means warn.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
