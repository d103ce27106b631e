// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"fmt"

	"github.com/gogpu/rhi/driver"
)

// Error classes. Every error returned by this package wraps exactly one.
var (
	ErrValidation = driver.ErrValidation
	ErrCapability = driver.ErrCapability
	ErrState      = driver.ErrState
	ErrDeviceLost = driver.ErrDeviceLost
)

// Validation errors.
var (
	// ErrRange is returned when a subresource, byte range or query index
	// falls outside its resource.
	ErrRange = fmt.Errorf("%w: out of range", ErrValidation)

	// ErrUsage is returned when a resource lacks the usage flag an
	// operation requires.
	ErrUsage = fmt.Errorf("%w: missing usage", ErrValidation)

	// ErrSizeMismatch is returned when host data does not match the size
	// of its destination.
	ErrSizeMismatch = fmt.Errorf("%w: size mismatch", ErrValidation)

	// ErrForeignObject is returned when an object created by one device is
	// used with another.
	ErrForeignObject = fmt.Errorf("%w: object belongs to another device", ErrValidation)
)

// Capability errors.
var (
	// ErrBackendNotAvailable is returned when no registered backend could
	// open a device.
	ErrBackendNotAvailable = fmt.Errorf("%w: no backend available", ErrCapability)
)

// State errors.
var (
	// ErrEncoderFinished is returned when recording into an encoder after
	// Finish.
	ErrEncoderFinished = fmt.Errorf("%w: encoder already finished", ErrState)

	// ErrUseAfterFree is returned when a destroyed resource is referenced.
	ErrUseAfterFree = fmt.Errorf("%w: resource destroyed", ErrState)

	// ErrNotBuilt is returned when work depends on an acceleration
	// structure that has not been built.
	ErrNotBuilt = fmt.Errorf("%w: acceleration structure not built", ErrState)

	// ErrAlreadySubmitted is returned when a command buffer is submitted
	// twice.
	ErrAlreadySubmitted = fmt.Errorf("%w: command buffer already submitted", ErrState)

	// ErrDeviceClosed is returned by a device after Close.
	ErrDeviceClosed = fmt.Errorf("%w: device closed", ErrState)
)
