// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rhi is a cross-backend GPU resource and command submission layer.
//
// # Overview
//
// A [Device] owns buffers, mip-mapped and arrayed textures, ray tracing
// acceleration structures, compute kernels and query pools. Work is recorded
// into a [CommandEncoder], sealed into an immutable [CommandBuffer] with
// Finish, and submitted to the device's single FIFO queue:
//
//	dev, err := rhi.Open(rhi.WithBackend("software"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	enc := dev.CreateCommandEncoder("upload")
//	_ = enc.UploadTextureData(tex, 0, 0, pixels)
//	cb, _ := enc.Finish()
//	_ = dev.Submit(cb)
//	if err := dev.WaitForIdle(); err != nil {
//		log.Fatal(err)
//	}
//
// Submit returns as soon as the command buffer is queued. WaitForIdle
// blocks until everything submitted so far has executed and reports the
// first execution error since the previous wait. Host transfers such as
// [Texture.CopyFromHost] and [Buffer.ToHost] are immediate: they submit
// their own work and wait for it.
//
// # Errors
//
// Every error wraps one of [ErrValidation], [ErrCapability], [ErrState] or
// [ErrDeviceLost]; test with errors.Is. Validation happens synchronously
// when a command is recorded or submitted, before any work reaches the
// device.
//
// # Backends
//
// Backends live under backend/ and register themselves from init. Import
// one for its side effect:
//
//	import _ "github.com/gogpu/rhi/backend/software"
//
// The software backend executes everything on the CPU, including
// acceleration structure builds and ray queries. The wgpu backend runs on
// gogpu/wgpu's HAL.
package rhi
