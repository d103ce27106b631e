// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package software is a CPU reference backend.
//
// Every resource lives in host memory. Command lists execute on the
// calling goroutine, except kernel dispatches, whose workgroups are spread
// over a worker pool. Acceleration structures are bounding volume
// hierarchies traced on the CPU, and kernels are Go functions.
//
// Importing the package registers the backend under the name "software":
//
//	import _ "github.com/gogpu/rhi/backend/software"
package software

import (
	"fmt"

	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/format"
)

// DefaultRowAlignment is the row pitch alignment reported by devices
// created without WithRowAlignment.
const DefaultRowAlignment = 256

// AllFeatures is the feature set of a software device.
const AllFeatures = driver.FeatureAccelerationStructure |
	driver.FeatureRayQuery |
	driver.FeatureTimestampQuery |
	driver.FeatureTexture1DMips |
	driver.FeatureTextureCompressionBC |
	driver.FeatureHostKernels

// Option configures the backend.
type Option func(*config)

type config struct {
	workers      int
	rowAlignment uint64
	features     driver.Feature
	lostAfter    int
	hook         func(driver.Command) error
}

func defaultConfig() config {
	return config{
		rowAlignment: DefaultRowAlignment,
		features:     AllFeatures,
		lostAfter:    -1,
	}
}

// WithWorkers sets the number of goroutines that run kernel workgroups.
// Zero or negative means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithRowAlignment sets the row pitch alignment the device reports. It
// must be a power of two.
func WithRowAlignment(align uint64) Option {
	return func(c *config) {
		c.rowAlignment = align
	}
}

// WithFeatures restricts the device to a subset of AllFeatures.
func WithFeatures(f driver.Feature) Option {
	return func(c *config) {
		c.features = f & AllFeatures
	}
}

// WithDeviceLostAfter makes the device lost once n command lists have
// executed: the next Execute call fails with driver.ErrDeviceLost.
func WithDeviceLostAfter(n int) Option {
	return func(c *config) {
		c.lostAfter = n
	}
}

// WithCommandHook installs a function that runs before every command. A
// non-nil error aborts the command list and is returned from Execute.
func WithCommandHook(fn func(driver.Command) error) Option {
	return func(c *config) {
		c.hook = fn
	}
}

// Backend opens software devices.
type Backend struct {
	cfg config
}

func init() {
	driver.Register(driver.BackendSoftware, func() driver.Backend {
		return New()
	})
}

// New creates a software backend.
func New(opts ...Option) *Backend {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Backend{cfg: cfg}
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return driver.BackendSoftware
}

// Open creates a device. It never fails for a valid configuration.
func (b *Backend) Open(desc driver.DeviceDesc) (driver.Device, error) {
	if !format.IsPowerOfTwo(b.cfg.rowAlignment) {
		return nil, fmt.Errorf("software: %w: row alignment %d is not a power of two", driver.ErrValidation, b.cfg.rowAlignment)
	}
	return newDevice(b.cfg, desc), nil
}
