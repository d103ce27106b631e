// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// silentHandler drops every record. Enabled reports false, so the debug
// records written on every submission cost no formatting when logging is
// off.
type silentHandler struct{}

func (silentHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (silentHandler) Handle(context.Context, slog.Record) error { return nil }
func (silentHandler) WithAttrs([]slog.Attr) slog.Handler        { return silentHandler{} }
func (silentHandler) WithGroup(string) slog.Handler             { return silentHandler{} }

var silentLogger = slog.New(silentHandler{})

// packageLogger is the logger of devices opened without WithLogger.
var packageLogger atomic.Pointer[slog.Logger]

func init() {
	packageLogger.Store(silentLogger)
}

// SetLogger configures the logger used by devices opened without
// [WithLogger]. By default rhi produces no log output.
//
// Devices pick the logger up when they are opened; changing it later does
// not affect devices that are already open. Pass nil to restore the silent
// default.
//
// Log levels used by rhi:
//   - [slog.LevelDebug]: submissions, deferred releases, backend selection
//   - [slog.LevelInfo]: device opened and closed
//   - [slog.LevelWarn]: leaked resources, device lost
//
// Example:
//
//	rhi.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = silentLogger
	}
	packageLogger.Store(l)
}

// Logger returns the logger devices open with when no [WithLogger] option
// is given. Backends receive the device's logger through
// driver.DeviceDesc.
func Logger() *slog.Logger {
	return packageLogger.Load()
}

// deviceLogger returns the logger of a device opened with o. Records of
// labelled devices carry a "device" attribute.
func deviceLogger(o *deviceOptions) *slog.Logger {
	l := o.logger
	if l == nil {
		l = Logger()
	}
	if o.label != "" {
		l = l.With("device", o.label)
	}
	return l
}
