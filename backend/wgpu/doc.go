// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu is a GPU backend built on the gogpu/wgpu hardware
// abstraction layer.
//
// Buffers and textures map to hal objects and kernels are WGSL compute
// shaders compiled to SPIR-V with naga. Command lists are encoded into a
// single hal command encoder, submitted, and waited for by polling the
// queue's completed submission index. Readbacks copy into staging buffers
// that are mapped once the submission has completed.
//
// # Capabilities
//
// Kernels may bind constant, read-only and read-write buffers. Texture and
// acceleration structure bindings, acceleration structure builds and
// timestamp queries are not available and fail with driver.ErrCapability.
//
// # Device selection
//
// Importing the package registers the backend under the name "wgpu". Open
// picks a discrete or integrated adapter from the Vulkan hal backend and
// falls back to the first adapter it finds:
//
//	import _ "github.com/gogpu/rhi/backend/wgpu"
//
// A device owned by another component, such as a gogpu application, is
// shared with FromProvider. The shared device is never destroyed by this
// package.
//
// Building with the nogpu tag leaves the backend unregistered.
package wgpu
