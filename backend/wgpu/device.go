// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/format"
)

// RowAlignment is the buffer row pitch alignment of texture copies.
const RowAlignment = 256

// waitTimeout bounds every wait for submitted work. Completion is polled
// every pollInterval.
const (
	waitTimeout  = 5 * time.Second
	pollInterval = 100 * time.Microsecond
)

// Device is a hal-backed device.
type Device struct {
	log      *slog.Logger
	name     string
	limits   driver.Limits
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool // true when using a shared device (don't destroy on Destroy)

	// mu guards the hal device across Create and Destroy calls from
	// different goroutines.
	mu sync.Mutex
}

func deviceLogger(desc driver.DeviceDesc) *slog.Logger {
	if desc.Logger != nil {
		return desc.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func newDevice(desc driver.DeviceDesc, instance hal.Instance, device hal.Device, queue hal.Queue, name string, external bool) *Device {
	lim := gputypes.DefaultLimits()
	d := &Device{
		log:      deviceLogger(desc),
		name:     name,
		instance: instance,
		device:   device,
		queue:    queue,
		external: external,
		limits: driver.Limits{
			MaxBufferSize:         lim.MaxBufferSize,
			MaxTextureDimension1D: lim.MaxTextureDimension1D,
			MaxTextureDimension2D: lim.MaxTextureDimension2D,
			MaxTextureDimension3D: lim.MaxTextureDimension3D,
			MaxTextureArrayLayers: lim.MaxTextureArrayLayers,
			MaxWorkgroupSize:      [3]uint32{lim.MaxComputeWorkgroupSizeX, lim.MaxComputeWorkgroupSizeY, lim.MaxComputeWorkgroupSizeZ},
		},
	}
	d.log.Debug("wgpu: device created", "label", desc.Label, "adapter", name, "shared", external)
	return d
}

// Info describes the device.
func (d *Device) Info() driver.DeviceInfo {
	return driver.DeviceInfo{
		Name:         d.name,
		Backend:      driver.BackendWGPU,
		Features:     driver.FeatureWGSLKernels,
		Limits:       d.limits,
		RowAlignment: RowAlignment,
	}
}

// Destroy releases the hal device and instance unless they are shared.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.external {
		return
	}
	if d.device != nil {
		d.device.Destroy()
		d.device = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
}

type buffer struct {
	dev  *Device
	raw  hal.Buffer
	size uint64
}

func (b *buffer) Destroy() {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	if b.dev.device != nil {
		b.dev.device.DestroyBuffer(b.raw)
	}
}

// bufferUsage returns the hal usage for a buffer. Every buffer is a copy
// source and destination so that host reads and writes can be staged.
func bufferUsage(u driver.BufferUsage) gputypes.BufferUsage {
	usage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	if u.Has(driver.BufferUsageConstant) {
		usage |= gputypes.BufferUsageUniform
	}
	return usage
}

// CreateBuffer creates a device buffer. Sizes are rounded up to a multiple
// of four bytes.
func (d *Device) CreateBuffer(desc driver.BufferDesc) (driver.Buffer, error) {
	if desc.Usage.Has(driver.BufferUsageAccelerationStructure) || desc.Usage.Has(driver.BufferUsageShaderTable) {
		return nil, fmt.Errorf("wgpu: %w: buffer usage %v", driver.ErrCapability, desc.Usage)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	raw, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  format.AlignUp(max(desc.Size, 4), 4),
		Usage: bufferUsage(desc.Usage),
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, err)
	}
	return &buffer{dev: d, raw: raw, size: desc.Size}, nil
}

var textureFormats = map[format.Format]gputypes.TextureFormat{
	format.R8Unorm:        gputypes.TextureFormatR8Unorm,
	format.RGBA8Unorm:     gputypes.TextureFormatRGBA8Unorm,
	format.RGBA8UnormSrgb: gputypes.TextureFormatRGBA8UnormSrgb,
	format.BGRA8Unorm:     gputypes.TextureFormatBGRA8Unorm,
	format.R32Uint:        gputypes.TextureFormatR32Uint,
	format.R32Float:       gputypes.TextureFormatR32Float,
	format.RGBA16Float:    gputypes.TextureFormatRGBA16Float,
	format.RGBA32Float:    gputypes.TextureFormatRGBA32Float,
	format.D24UnormS8Uint: gputypes.TextureFormatDepth24PlusStencil8,
}

type texture struct {
	dev   *Device
	raw   hal.Texture
	desc  driver.TextureDesc
	info  format.Info
	usage gputypes.TextureUsage
}

func (t *texture) Destroy() {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	if t.dev.device != nil {
		t.dev.device.DestroyTexture(t.raw)
	}
}

func textureDimension(t driver.TextureType) gputypes.TextureDimension {
	switch t {
	case driver.Texture1D, driver.Texture1DArray:
		return gputypes.TextureDimension1D
	case driver.Texture3D:
		return gputypes.TextureDimension3D
	default:
		return gputypes.TextureDimension2D
	}
}

// CreateTexture creates a device texture. Array layers and cube faces are
// stored as the depth of a 2D texture.
func (d *Device) CreateTexture(desc driver.TextureDesc) (driver.Texture, error) {
	tf, ok := textureFormats[desc.Format]
	if !ok {
		return nil, fmt.Errorf("wgpu: %w: texture format %v", driver.ErrCapability, desc.Format)
	}
	info, _ := desc.Format.Info()

	depth := desc.LayerCount()
	if desc.Type == driver.Texture3D {
		depth = desc.Depth
	}
	usage := gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding
	if desc.Usage.Has(driver.TextureUsageRenderTarget) || desc.Usage.Has(driver.TextureUsageDepthStencil) {
		usage |= gputypes.TextureUsageRenderAttachment
	}
	if desc.Usage.Has(driver.TextureUsageUnorderedAccess) {
		usage |= gputypes.TextureUsageStorageBinding
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	raw, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: max(desc.Height, 1), DepthOrArrayLayers: max(depth, 1)},
		MipLevelCount: desc.MipCount,
		SampleCount:   max(desc.SampleCount, 1),
		Dimension:     textureDimension(desc.Type),
		Format:        tf,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create texture %q: %w", desc.Label, err)
	}
	return &texture{dev: d, raw: raw, desc: desc, info: info, usage: usage}, nil
}

// CreateAccelerationStructure is not supported.
func (d *Device) CreateAccelerationStructure(driver.AccelerationStructureDesc) (driver.AccelerationStructure, error) {
	return nil, fmt.Errorf("wgpu: %w: acceleration structures", driver.ErrCapability)
}

// AccelerationStructureSizes is not supported.
func (d *Device) AccelerationStructureSizes(*driver.BuildDesc) (driver.Sizes, error) {
	return driver.Sizes{}, fmt.Errorf("wgpu: %w: acceleration structures", driver.ErrCapability)
}

// CreateQueryPool is not supported.
func (d *Device) CreateQueryPool(driver.QueryPoolDesc) (driver.QueryPool, error) {
	return nil, fmt.Errorf("wgpu: %w: query pools", driver.ErrCapability)
}
