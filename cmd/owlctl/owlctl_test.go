// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/gogpu/owl/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDevices(t *testing.T) {
	out, err := run(t, "--backend", "software", "devices")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "BACKEND") || !strings.Contains(out, "software") {
		t.Errorf("devices output:\n%s", out)
	}
}

func TestDevicesUnknownBackend(t *testing.T) {
	if _, err := run(t, "--backend", "no-such-backend", "devices"); err == nil {
		t.Error("devices with unknown backend succeeded")
	}
}

func TestSelftest(t *testing.T) {
	out, err := run(t, "--backend", "software", "--devices", "0", "selftest", "--width", "8", "--height", "8")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"world", "raygen", "miss", "hit"} {
		if !strings.Contains(out, want) {
			t.Errorf("selftest output missing %q:\n%s", want, out)
		}
	}
	// two geometries traced with two ray types
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 5 && fields[1] == "hit" && fields[4] != "4" {
			t.Errorf("hit table has %s records, want 4", fields[4])
		}
	}
}

func TestSelftestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "owl.yaml")
	if err := os.WriteFile(path, []byte("backend: software\nlog_level: error\nray_types: 2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "--config", path, "selftest"); err != nil {
		t.Fatal(err)
	}
}

func TestBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "owl.toml")
	if err := os.WriteFile(path, []byte("log_level = \"loud\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "--config", path, "selftest"); err == nil {
		t.Error("selftest with invalid config succeeded")
	}
}

func TestFatalModeFollowsBuildDefaultUnlessSet(t *testing.T) {
	fatalYAML := filepath.Join(t.TempDir(), "owl.yaml")
	if err := os.WriteFile(fatalYAML, []byte("fatal: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name      string
		args      []string
		config    string
		wantFatal *bool
	}{
		{"unset", nil, "", nil},
		{"flag off", []string{"--fatal=false"}, "", new(bool)},
		{"flag on", []string{"--fatal"}, "", boolPtr(true)},
		{"config on", nil, fatalYAML, boolPtr(true)},
		{"flag overrides config", []string{"--fatal=false"}, fatalYAML, new(bool)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &rootFlags{configPath: tt.config}
			cmd := &cobra.Command{Use: "owlctl"}
			cmd.Flags().BoolVar(&f.fatal, "fatal", false, "")
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatal(err)
			}
			cfg, err := f.resolve(cmd)
			if err != nil {
				t.Fatal(err)
			}
			switch {
			case tt.wantFatal == nil && cfg.Fatal != nil:
				t.Errorf("Fatal = %v, want unset", *cfg.Fatal)
			case tt.wantFatal != nil && (cfg.Fatal == nil || *cfg.Fatal != *tt.wantFatal):
				t.Errorf("Fatal = %v, want %v", cfg.Fatal, *tt.wantFatal)
			}

			extra := len(contextOptions(cmd, cfg)) - len(contextOptions(cmd, config.Config{}))
			if want := map[bool]int{false: 0, true: 1}[tt.wantFatal != nil]; extra != want {
				t.Errorf("fatal options = %d, want %d", extra, want)
			}
		})
	}
}

func boolPtr(b bool) *bool { return &b }
