// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/driver"
)

// ErrNoAdapter is returned when the hal instance exposes no adapters.
var ErrNoAdapter = errors.New("wgpu: no GPU adapter found")

// API creates hal instances. Both hal.Backend values and the noop API
// satisfy it.
type API interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// Option configures the backend.
type Option func(*Backend)

// WithAPI opens devices through api instead of the registered Vulkan hal
// backend.
func WithAPI(api API) Option {
	return func(b *Backend) {
		b.api = api
	}
}

// Backend opens hal devices.
type Backend struct {
	api API

	// shared is set for backends created by FromProvider.
	shared *sharedDevice
}

type sharedDevice struct {
	device hal.Device
	queue  hal.Queue
}

// New creates a backend.
func New(opts ...Option) *Backend {
	b := &Backend{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FromProvider creates a backend that opens devices on the hal device and
// queue of an external provider. The provider must implement
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue.
func FromProvider(provider gpucontext.DeviceProvider) (*Backend, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("wgpu: %w: provider does not expose HAL types", driver.ErrCapability)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("wgpu: %w: provider HalDevice is not hal.Device", driver.ErrCapability)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("wgpu: %w: provider HalQueue is not hal.Queue", driver.ErrCapability)
	}
	return &Backend{shared: &sharedDevice{device: device, queue: queue}}, nil
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return driver.BackendWGPU
}

// Open creates a device. It fails with driver.ErrCapability when no hal
// backend or adapter is available.
func (b *Backend) Open(desc driver.DeviceDesc) (driver.Device, error) {
	log := deviceLogger(desc)
	if b.shared != nil {
		log.Debug("wgpu: using shared device")
		return newDevice(desc, nil, b.shared.device, b.shared.queue, "shared hal device", true), nil
	}

	api := b.api
	if api == nil {
		hb, ok := hal.GetBackend(gputypes.BackendVulkan)
		if !ok {
			return nil, fmt.Errorf("wgpu: %w: Vulkan hal backend not registered", driver.ErrCapability)
		}
		api = hb
	}

	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: %w: create instance: %v", driver.ErrCapability, err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: %w", driver.ErrCapability, ErrNoAdapter)
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	log.Debug("wgpu: selected adapter", "name", selected.Info.Name, "type", selected.Info.DeviceType)

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: %w: open adapter %q: %v", driver.ErrCapability, selected.Info.Name, err)
	}
	return newDevice(desc, instance, openDev.Device, openDev.Queue, selected.Info.Name, false), nil
}
