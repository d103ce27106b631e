// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/rhi/backend/software"
	"github.com/gogpu/rhi/driver"
)

func openSoftware(t *testing.T, opts ...DeviceOption) *Device {
	t.Helper()
	all := append([]DeviceOption{WithDriver(software.New(software.WithWorkers(2))), WithLabel(t.Name())}, opts...)
	d, err := Open(all...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// fakeBackend opens fakeDevices. Its Execute records the first byte of
// every uploaded buffer, which tests use as a submission marker.
type fakeBackend struct {
	dev *fakeDevice
	err error
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Open(driver.DeviceDesc) (driver.Device, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.dev, nil
}

type fakeDevice struct {
	info driver.DeviceInfo

	// gate, when set, blocks every Execute until it is closed.
	gate chan struct{}
	// fail, when set, is called with each list's markers.
	fail func(markers []byte) error

	mu       sync.Mutex
	executed []byte

	released  atomic.Int32
	destroyed atomic.Bool
	handles   atomic.Uint64
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{info: driver.DeviceInfo{
		Name:               "fake",
		Backend:            "fake",
		Features:           driver.FeatureAccelerationStructure | driver.FeatureRayQuery | driver.FeatureTimestampQuery | driver.FeatureHostKernels,
		Limits:             driver.Limits{MaxBufferSize: 1 << 20, MaxWorkgroupSize: [3]uint32{256, 256, 64}},
		RowAlignment:       256,
		TimestampFrequency: 1000,
	}}
}

func openFake(t *testing.T, f *fakeDevice, opts ...DeviceOption) *Device {
	t.Helper()
	d, err := Open(append([]DeviceOption{WithDriver(&fakeBackend{dev: f})}, opts...)...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if f.gate != nil {
			select {
			case <-f.gate:
			default:
				close(f.gate)
			}
		}
		_ = d.Close()
	})
	return d
}

func (f *fakeDevice) markers() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.executed...)
}

type fakeObject struct {
	dev    *fakeDevice
	handle uint64
}

func (o *fakeObject) Destroy()       { o.dev.released.Add(1) }
func (o *fakeObject) Handle() uint64 { return o.handle }

func (o *fakeObject) Results(first, count uint32) []uint64 { return make([]uint64, count) }
func (o *fakeObject) Reset()                               {}

func (f *fakeDevice) Info() driver.DeviceInfo { return f.info }

func (f *fakeDevice) CreateBuffer(driver.BufferDesc) (driver.Buffer, error) {
	return &fakeObject{dev: f}, nil
}

func (f *fakeDevice) CreateTexture(driver.TextureDesc) (driver.Texture, error) {
	return &fakeObject{dev: f}, nil
}

func (f *fakeDevice) CreateAccelerationStructure(driver.AccelerationStructureDesc) (driver.AccelerationStructure, error) {
	return &fakeObject{dev: f, handle: f.handles.Add(1)}, nil
}

func (f *fakeDevice) CreateKernel(driver.KernelDesc) (driver.Kernel, error) {
	return &fakeObject{dev: f}, nil
}

func (f *fakeDevice) CreateQueryPool(driver.QueryPoolDesc) (driver.QueryPool, error) {
	return &fakeObject{dev: f}, nil
}

func (f *fakeDevice) AccelerationStructureSizes(*driver.BuildDesc) (driver.Sizes, error) {
	return driver.Sizes{AccelerationStructureSize: 1024, ScratchSize: 512, UpdateScratchSize: 256}, nil
}

func (f *fakeDevice) Execute(ctx context.Context, cmds []driver.Command) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	var markers []byte
	for _, c := range cmds {
		if up, ok := c.(driver.UploadBuffer); ok && len(up.Data) > 0 {
			markers = append(markers, up.Data[0])
		}
	}
	if f.fail != nil {
		if err := f.fail(markers); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.executed = append(f.executed, markers...)
	f.mu.Unlock()
	return nil
}

func (f *fakeDevice) Destroy() { f.destroyed.Store(true) }
