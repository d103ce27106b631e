// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"fmt"
	"sync"
)

// ResourceKind names the type of a device object.
type ResourceKind string

// Resource kinds.
const (
	KindBuffer                ResourceKind = "buffer"
	KindTexture               ResourceKind = "texture"
	KindAccelerationStructure ResourceKind = "acceleration_structure"
	KindKernel                ResourceKind = "kernel"
	KindQueryPool             ResourceKind = "query_pool"
)

// resource is the lifetime state shared by every device object.
//
// Destroy marks the object dead immediately so that new commands cannot
// reference it, but native storage is only released once no submitted
// command buffer that references it is still in flight.
type resource struct {
	dev   *Device
	id    uint64
	kind  ResourceKind
	label string
	size  uint64

	mu        sync.Mutex
	destroyed bool
	released  bool
	inflight  int
	release   func()
}

func (r *resource) init(dev *Device, kind ResourceKind, label string, size uint64, release func()) {
	r.dev = dev
	r.kind = kind
	r.label = label
	r.size = size
	r.release = release
	dev.track(r)
}

// ID returns the device-unique identifier of the object.
func (r *resource) ID() uint64 { return r.id }

// Label returns the debug label.
func (r *resource) Label() string { return r.label }

// Device returns the device that created the object.
func (r *resource) Device() *Device { return r.dev }

// IsDestroyed reports whether Destroy has been called.
func (r *resource) IsDestroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

func (r *resource) String() string {
	if r.label != "" {
		return fmt.Sprintf("%s %q", r.kind, r.label)
	}
	return fmt.Sprintf("%s #%d", r.kind, r.id)
}

// check returns ErrUseAfterFree for destroyed objects and ErrForeignObject
// for objects of another device.
func (r *resource) check(dev *Device) error {
	if r.dev != dev {
		return fmt.Errorf("%w: %v", ErrForeignObject, r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return fmt.Errorf("%w: %v", ErrUseAfterFree, r)
	}
	return nil
}

// acquire pins the object for one in-flight submission.
func (r *resource) acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return fmt.Errorf("%w: %v", ErrUseAfterFree, r)
	}
	r.inflight++
	return nil
}

// unpin drops one in-flight reference and releases storage if the object
// was destroyed meanwhile.
func (r *resource) unpin() {
	r.mu.Lock()
	r.inflight--
	free := r.destroyed && r.inflight == 0 && !r.released
	if free {
		r.released = true
	}
	r.mu.Unlock()
	if free {
		r.dev.log.Debug("rhi: deferred release", "object", r.String())
		r.finalize()
	}
}

// destroy marks the object dead and releases it when nothing is in flight.
func (r *resource) destroy() {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.destroyed = true
	free := r.inflight == 0
	if free {
		r.released = true
	}
	r.mu.Unlock()
	if free {
		r.finalize()
	}
}

func (r *resource) finalize() {
	if r.release != nil {
		r.release()
	}
	r.dev.untrack(r)
}
