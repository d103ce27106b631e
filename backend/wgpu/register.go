// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	"github.com/gogpu/rhi/driver"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

func init() {
	driver.Register(driver.BackendWGPU, func() driver.Backend {
		return New()
	})
}
