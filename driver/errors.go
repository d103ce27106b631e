// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import "errors"

// Error classes shared by every backend. Backends wrap one of these with
// fmt.Errorf("%w: ...") so that callers can classify failures with
// errors.Is regardless of which backend produced them.
var (
	// ErrValidation means a descriptor, range or usage was rejected before
	// any work reached the device.
	ErrValidation = errors.New("rhi: validation failed")

	// ErrCapability means the device or backend does not support the
	// requested feature, format or shape.
	ErrCapability = errors.New("rhi: capability not supported")

	// ErrState means the operation is illegal in the object's current
	// state, such as recording into a finished encoder.
	ErrState = errors.New("rhi: invalid object state")

	// ErrDeviceLost means the device stopped executing work. It is
	// terminal: every later submission fails with it too.
	ErrDeviceLost = errors.New("rhi: device lost")
)
