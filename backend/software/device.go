// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/format"
	"github.com/gogpu/rhi/internal/parallel"
)

var limits = driver.Limits{
	MaxBufferSize:         1 << 32,
	MaxTextureDimension1D: 16384,
	MaxTextureDimension2D: 16384,
	MaxTextureDimension3D: 2048,
	MaxTextureArrayLayers: 2048,
	MaxWorkgroupSize:      [3]uint32{1024, 1024, 64},
}

// Device is a software device.
type Device struct {
	cfg   config
	label string
	log   *slog.Logger
	pool  *parallel.WorkerPool
	epoch time.Time

	nextHandle atomic.Uint64

	mu     sync.Mutex
	accels map[uint64]*accel

	// execMu serializes Execute; lost and executed are guarded by it.
	execMu   sync.Mutex
	lost     error
	executed int
}

func newDevice(cfg config, desc driver.DeviceDesc) *Device {
	log := desc.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	d := &Device{
		cfg:    cfg,
		label:  desc.Label,
		log:    log,
		pool:   parallel.NewWorkerPool(cfg.workers),
		epoch:  time.Now(),
		accels: make(map[uint64]*accel),
	}
	log.Debug("software: device created", "label", desc.Label, "workers", d.pool.Workers())
	return d
}

// Info describes the device.
func (d *Device) Info() driver.DeviceInfo {
	return driver.DeviceInfo{
		Name:               "software reference device",
		Backend:            driver.BackendSoftware,
		Features:           d.cfg.features,
		Limits:             limits,
		RowAlignment:       d.cfg.rowAlignment,
		TimestampFrequency: uint64(time.Second),
	}
}

// Destroy stops the worker pool.
func (d *Device) Destroy() {
	d.pool.Close()
}

type buffer struct {
	data []byte
}

func (*buffer) Destroy() {}

// CreateBuffer allocates zeroed host memory.
func (d *Device) CreateBuffer(desc driver.BufferDesc) (driver.Buffer, error) {
	return &buffer{data: make([]byte, desc.Size)}, nil
}

// texture stores each subresource tightly packed, layer-major.
type texture struct {
	desc    driver.TextureDesc
	info    format.Info
	layouts []format.SubresourceLayout
	subs    [][]byte
}

func (*texture) Destroy() {}

func (t *texture) sub(layer, mip uint32) ([]byte, format.SubresourceLayout) {
	return t.subs[layer*t.desc.MipCount+mip], t.layouts[mip]
}

// CreateTexture allocates zeroed storage for every subresource.
func (d *Device) CreateTexture(desc driver.TextureDesc) (driver.Texture, error) {
	info, ok := desc.Format.Info()
	if !ok {
		return nil, fmt.Errorf("software: %w: format %v", driver.ErrValidation, desc.Format)
	}
	t := &texture{desc: desc, info: info, layouts: make([]format.SubresourceLayout, desc.MipCount)}
	for mip := range desc.MipCount {
		l, err := format.Layout(desc.Format, desc.Extent(), mip, 1)
		if err != nil {
			return nil, fmt.Errorf("software: %w: %w", driver.ErrValidation, err)
		}
		t.layouts[mip] = l
	}
	layers := desc.LayerCount()
	t.subs = make([][]byte, 0, layers*desc.MipCount)
	for range layers {
		for mip := range desc.MipCount {
			t.subs = append(t.subs, make([]byte, t.layouts[mip].SizeInBytes))
		}
	}
	return t, nil
}

type kernel struct {
	desc driver.KernelDesc
}

func (*kernel) Destroy() {}

// CreateKernel accepts kernels with a host function.
func (d *Device) CreateKernel(desc driver.KernelDesc) (driver.Kernel, error) {
	if desc.Host == nil {
		return nil, fmt.Errorf("software: %w: kernel %q has no host function", driver.ErrCapability, desc.Label)
	}
	return &kernel{desc: desc}, nil
}

type queryPool struct {
	mu     sync.Mutex
	values []uint64
}

func (p *queryPool) Results(first, count uint32) []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint64(nil), p.values[first:first+count]...)
}

func (p *queryPool) Reset() {
	p.mu.Lock()
	clear(p.values)
	p.mu.Unlock()
}

func (*queryPool) Destroy() {}

// CreateQueryPool creates a pool of timestamp queries.
func (d *Device) CreateQueryPool(desc driver.QueryPoolDesc) (driver.QueryPool, error) {
	return &queryPool{values: make([]uint64, desc.Count)}, nil
}

// Execute runs cmds in order on the calling goroutine.
func (d *Device) Execute(ctx context.Context, cmds []driver.Command) error {
	d.execMu.Lock()
	defer d.execMu.Unlock()
	if d.lost != nil {
		return d.lost
	}
	if d.cfg.lostAfter >= 0 && d.executed >= d.cfg.lostAfter {
		d.lost = fmt.Errorf("%w: software: device lost after %d command lists", driver.ErrDeviceLost, d.executed)
		return d.lost
	}
	d.executed++

	for i, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.cfg.hook != nil {
			if err := d.cfg.hook(cmd); err != nil {
				return err
			}
		}
		if err := d.exec(ctx, cmd); err != nil {
			if errors.Is(err, driver.ErrDeviceLost) {
				d.lost = err
			}
			return fmt.Errorf("command %d (%T): %w", i, cmd, err)
		}
	}
	return nil
}

func (d *Device) exec(ctx context.Context, cmd driver.Command) error {
	switch c := cmd.(type) {
	case driver.UploadBuffer:
		copy(c.Dst.(*buffer).data[c.Offset:], c.Data)
	case driver.ReadBuffer:
		src := c.Src.(*buffer).data
		copy(c.Dst, src[c.Offset:c.Offset+uint64(len(c.Dst))])
	case driver.CopyBuffer:
		dst, src := c.Dst.(*buffer).data, c.Src.(*buffer).data
		copy(dst[c.DstOffset:c.DstOffset+c.Size], src[c.SrcOffset:c.SrcOffset+c.Size])
	case driver.ClearBuffer:
		clear(c.Dst.(*buffer).data[c.Offset : c.Offset+c.Size])
	case driver.UploadTexture:
		return d.uploadTexture(c)
	case driver.ReadTexture:
		return d.readTexture(c)
	case driver.CopyTexture:
		return d.copyTexture(c)
	case driver.CopyTextureToBuffer:
		return d.copyTextureToBuffer(c)
	case driver.CopyBufferToTexture:
		return d.copyBufferToTexture(c)
	case driver.BuildAccelerationStructure:
		return d.build(c)
	case driver.Dispatch:
		return d.dispatch(ctx, c)
	case driver.WriteTimestamp:
		p := c.Pool.(*queryPool)
		p.mu.Lock()
		p.values[c.Index] = uint64(max(time.Since(d.epoch), 1))
		p.mu.Unlock()
	default:
		return fmt.Errorf("software: %w: unknown command %T", driver.ErrCapability, cmd)
	}
	return nil
}
