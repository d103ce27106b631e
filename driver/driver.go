// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package driver defines the interfaces a GPU backend implements.
//
// The rhi package performs all validation, lifetime tracking and
// scheduling. A backend only creates native objects and executes
// pre-validated command lists, one list at a time, in submission order.
//
// Backends register a Factory from an init function:
//
//	func init() {
//		driver.Register(driver.BackendSoftware, func() driver.Backend { return &Backend{} })
//	}
package driver

import (
	"context"
	"log/slog"
)

// Backend opens devices.
type Backend interface {
	// Name returns the registered name of the backend.
	Name() string

	// Open creates a device. It fails with an error wrapping
	// ErrCapability when the backend cannot run on this system.
	Open(desc DeviceDesc) (Device, error)
}

// DeviceDesc configures a device at open time.
type DeviceDesc struct {
	Label       string
	DebugLayers bool
	Logger      *slog.Logger
}

// Device is an opened backend device.
//
// Create and Destroy methods may be called from any goroutine. Execute is
// only called from one goroutine at a time.
type Device interface {
	Info() DeviceInfo

	CreateBuffer(desc BufferDesc) (Buffer, error)
	CreateTexture(desc TextureDesc) (Texture, error)
	CreateAccelerationStructure(desc AccelerationStructureDesc) (AccelerationStructure, error)
	CreateKernel(desc KernelDesc) (Kernel, error)
	CreateQueryPool(desc QueryPoolDesc) (QueryPool, error)

	// AccelerationStructureSizes returns the storage a build needs. The
	// description has already been validated.
	AccelerationStructureSizes(desc *BuildDesc) (Sizes, error)

	// Execute runs cmds to completion. An error wrapping ErrDeviceLost
	// means the device can run no further work.
	Execute(ctx context.Context, cmds []Command) error

	// Destroy releases the device. All objects must already be destroyed.
	Destroy()
}

// Buffer is backend buffer storage.
type Buffer interface {
	Destroy()
}

// Texture is backend texture storage.
type Texture interface {
	Destroy()
}

// AccelerationStructure is backend acceleration structure storage.
type AccelerationStructure interface {
	// Handle returns the value instance records use to reference the
	// structure. It is never zero.
	Handle() uint64
	Destroy()
}

// Kernel is a compiled compute program.
type Kernel interface {
	Destroy()
}

// QueryPool is backend query storage.
type QueryPool interface {
	// Results returns raw values of count queries starting at first.
	// Unwritten queries read as zero.
	Results(first, count uint32) []uint64
	// Reset clears every query.
	Reset()
	Destroy()
}
