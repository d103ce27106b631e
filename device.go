// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/rhi/driver"
)

// Device is an opened GPU device with a single FIFO submission queue.
//
// All methods are safe for concurrent use.
type Device struct {
	drv     driver.Device
	info    DeviceInfo
	label   string
	log     *slog.Logger
	debug   bool
	queue   *queue
	closed  atomic.Bool
	nextID  atomic.Uint64
	closeMu sync.Mutex

	mu      sync.Mutex
	live    map[uint64]*resource
	handles map[uint64]*AccelerationStructure
}

// Open opens a device on the first backend that succeeds.
//
// Without [WithBackend] or [WithDriver], every registered backend is tried
// in priority order. Open fails with ErrBackendNotAvailable if none can
// open a device and with ErrCapability if the device lacks a feature
// requested through [WithFeatures].
func Open(opts ...DeviceOption) (*Device, error) {
	o := defaultDeviceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := deviceLogger(&o)

	var candidates []driver.Backend
	switch {
	case o.driver != nil:
		candidates = []driver.Backend{o.driver}
	case o.backend != "":
		b := driver.Get(o.backend)
		if b == nil {
			return nil, fmt.Errorf("%w: backend %q is not registered (available: %v)",
				ErrBackendNotAvailable, o.backend, driver.Available())
		}
		candidates = []driver.Backend{b}
	default:
		candidates = driver.Candidates()
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no backends registered", ErrBackendNotAvailable)
	}

	desc := driver.DeviceDesc{Label: o.label, DebugLayers: o.debug, Logger: log}
	var errs []error
	for _, b := range candidates {
		drv, err := b.Open(desc)
		if err != nil {
			log.Debug("rhi: backend unavailable", "backend", b.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		info := drv.Info()
		if missing := o.required &^ info.Features; missing != 0 {
			drv.Destroy()
			errs = append(errs, fmt.Errorf("%s: %w: missing features %v", b.Name(), ErrCapability, missing))
			continue
		}
		d := newDevice(drv, o, log)
		log.Info("rhi: device opened", "backend", info.Backend, "name", info.Name, "features", info.Features.String())
		return d, nil
	}
	if len(candidates) == 1 {
		return nil, errs[0]
	}
	return nil, fmt.Errorf("%w: %w", ErrBackendNotAvailable, errors.Join(errs...))
}

func newDevice(drv driver.Device, o deviceOptions, log *slog.Logger) *Device {
	return &Device{
		drv:     drv,
		info:    drv.Info(),
		label:   o.label,
		log:     log,
		debug:   o.debug,
		queue:   newQueue(drv, log),
		live:    make(map[uint64]*resource),
		handles: make(map[uint64]*AccelerationStructure),
	}
}

// Info returns the device description.
func (d *Device) Info() DeviceInfo { return d.info }

// Backend returns the name of the backend the device runs on.
func (d *Device) Backend() string { return d.info.Backend }

// Label returns the device debug label.
func (d *Device) Label() string { return d.label }

// Features returns the optional features the device supports.
func (d *Device) Features() Feature { return d.info.Features }

// HasFeature reports whether the device supports every feature in f.
func (d *Device) HasFeature(f Feature) bool { return d.info.Features.Has(f) }

// Limits returns the device size limits.
func (d *Device) Limits() Limits { return d.info.Limits }

// RowAlignment returns the row pitch alignment the device uses for
// texture data in buffers.
func (d *Device) RowAlignment() uint64 { return d.info.RowAlignment }

func (d *Device) requireFeature(f Feature, what string) error {
	if !d.HasFeature(f) {
		return fmt.Errorf("%w: %s requires %v", ErrCapability, what, f)
	}
	return nil
}

func (d *Device) usable() error {
	if d.closed.Load() {
		return ErrDeviceClosed
	}
	if err := d.queue.isLost(); err != nil {
		return err
	}
	return nil
}

// Submit queues cb for execution and returns without waiting for it.
//
// Submission fails synchronously if cb was already submitted, references a
// destroyed resource, depends on an acceleration structure that has not
// been built, or if the device is lost. In that case nothing is queued and
// cb may not be submitted again.
func (d *Device) Submit(cb *CommandBuffer) error {
	_, err := d.submit(cb)
	return err
}

func (d *Device) submit(cb *CommandBuffer) (*submission, error) {
	if cb == nil {
		return nil, fmt.Errorf("%w: nil command buffer", ErrValidation)
	}
	if cb.dev != d {
		return nil, fmt.Errorf("%w: command buffer %q", ErrForeignObject, cb.label)
	}
	if !cb.submitted.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: %q", ErrAlreadySubmitted, cb.label)
	}
	if err := d.usable(); err != nil {
		return nil, err
	}

	for _, as := range cb.needs {
		if !as.available() {
			return nil, fmt.Errorf("%w: %v is referenced by %q", ErrNotBuilt, &as.resource, cb.label)
		}
	}
	for _, b := range cb.builds {
		if st := b.as.committed(); st.set && st.kind != b.state.kind {
			return nil, fmt.Errorf("%w: %v was built as %v, not %v", ErrValidation, &b.as.resource, st.kind, b.state.kind)
		}
	}

	for i, r := range cb.refs {
		if err := r.acquire(); err != nil {
			for _, p := range cb.refs[:i] {
				p.unpin()
			}
			return nil, err
		}
	}

	s := &submission{
		label:  cb.label,
		cmds:   cb.cmds,
		refs:   cb.refs,
		needs:  cb.needs,
		builds: cb.builds,
		done:   make(chan struct{}),
	}
	for _, b := range cb.builds {
		b.as.beginBuild()
	}
	if err := d.queue.enqueue(s); err != nil {
		for _, b := range cb.builds {
			b.as.endBuild(b, false)
		}
		for _, r := range cb.refs {
			r.unpin()
		}
		return nil, err
	}
	return s, nil
}

// run submits cb and waits for it. It returns the execution error of cb
// alone, leaving earlier asynchronous errors to WaitForIdle.
func (d *Device) run(cb *CommandBuffer) error {
	s, err := d.submit(cb)
	if err != nil {
		return err
	}
	<-s.done
	return s.err
}

// record builds a one-off command buffer with fn and runs it to
// completion.
func (d *Device) record(label string, fn func(e *CommandEncoder) error) error {
	enc := d.CreateCommandEncoder(label)
	if err := fn(enc); err != nil {
		return err
	}
	cb, err := enc.Finish()
	if err != nil {
		return err
	}
	return d.run(cb)
}

// WaitForIdle blocks until every submitted command buffer has completed.
// It returns the first execution error reported since the previous call,
// or ErrDeviceLost once the device is lost.
func (d *Device) WaitForIdle() error {
	if d.closed.Load() {
		return ErrDeviceClosed
	}
	return d.queue.wait()
}

// IsLost reports whether the device has stopped executing work.
func (d *Device) IsLost() bool {
	return d.queue.isLost() != nil
}

// Close waits for outstanding work, stops the queue and releases the
// backend device. With debug layers enabled, resources that are still alive
// are logged as leaks. Close returns the result of the final wait.
func (d *Device) Close() error {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	if d.closed.Load() {
		return nil
	}
	err := d.queue.wait()
	d.queue.close()
	d.closed.Store(true)

	leaked := d.LiveResources()
	if d.debug {
		for _, r := range leaked {
			d.log.Warn("rhi: leaked resource", "kind", string(r.Kind), "label", r.Label, "id", r.ID)
		}
	}
	for _, r := range d.liveObjects() {
		r.destroy()
	}
	d.drv.Destroy()
	d.log.Info("rhi: device closed")
	return err
}

func (d *Device) track(r *resource) {
	r.id = d.nextID.Add(1)
	d.mu.Lock()
	d.live[r.id] = r
	d.mu.Unlock()
}

func (d *Device) untrack(r *resource) {
	d.mu.Lock()
	delete(d.live, r.id)
	d.mu.Unlock()
}

func (d *Device) liveObjects() []*resource {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := slices.Sorted(maps.Keys(d.live))
	out := make([]*resource, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.live[id])
	}
	return out
}

func (d *Device) registerHandle(as *AccelerationStructure) {
	d.mu.Lock()
	d.handles[as.Handle()] = as
	d.mu.Unlock()
}

func (d *Device) unregisterHandle(h uint64) {
	d.mu.Lock()
	delete(d.handles, h)
	d.mu.Unlock()
}

func (d *Device) lookupHandle(h uint64) *AccelerationStructure {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handles[h]
}
