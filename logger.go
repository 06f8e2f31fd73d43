// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package owl

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/owl/backend/software"
	"github.com/gogpu/owl/backend/wgpu"
	"github.com/gogpu/owl/ll"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for owl and all its sub-packages.
// By default, owl produces no log output. Call SetLogger to enable logging.
// Pass nil to restore the default silent behavior.
//
// Log levels used by owl:
//   - [slog.LevelDebug]: builds, uploads and launches per device
//   - [slog.LevelInfo]: device group lifecycle
//   - [slog.LevelWarn]: devices dropped during initialization
//   - [slog.LevelError]: failed calls in fatal mode, right before exit
//
// Example:
//
//	owl.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	ll.SetLogger(l)
	software.SetLogger(l)
	wgpu.SetLogger(l)
}

// Logger returns the current logger used by owl.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
