// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"log/slog"

	"github.com/gogpu/rhi/driver"
)

// DeviceOption configures a Device during Open.
//
// Example:
//
//	// First available backend in priority order
//	dev, err := rhi.Open()
//
//	// A specific backend with ray tracing required
//	dev, err := rhi.Open(
//		rhi.WithBackend("software"),
//		rhi.WithFeatures(rhi.FeatureAccelerationStructure|rhi.FeatureRayQuery),
//	)
type DeviceOption func(*deviceOptions)

type deviceOptions struct {
	backend  string
	driver   driver.Backend
	logger   *slog.Logger
	debug    bool
	label    string
	required Feature
}

func defaultDeviceOptions() deviceOptions {
	return deviceOptions{
		label: "device",
	}
}

// WithBackend selects a registered backend by name. Without it, Open tries
// every registered backend in priority order.
func WithBackend(name string) DeviceOption {
	return func(o *deviceOptions) {
		o.backend = name
	}
}

// WithDriver opens the device on b directly, bypassing the registry. Use it
// for backends constructed with their own options:
//
//	dev, err := rhi.Open(rhi.WithDriver(software.New(software.WithWorkers(2))))
func WithDriver(b driver.Backend) DeviceOption {
	return func(o *deviceOptions) {
		o.driver = b
	}
}

// WithLogger sets the device logger, overriding the package logger.
func WithLogger(l *slog.Logger) DeviceOption {
	return func(o *deviceOptions) {
		o.logger = l
	}
}

// WithDebugLayers enables backend validation and leak reporting at Close.
func WithDebugLayers(enabled bool) DeviceOption {
	return func(o *deviceOptions) {
		o.debug = enabled
	}
}

// WithLabel sets the device debug label.
func WithLabel(label string) DeviceOption {
	return func(o *deviceOptions) {
		o.label = label
	}
}

// WithFeatures makes Open fail with ErrCapability unless the device
// supports every feature in f.
func WithFeatures(f Feature) DeviceOption {
	return func(o *deviceOptions) {
		o.required |= f
	}
}
