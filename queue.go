// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/rhi/driver"
)

// submission is one command list on the device timeline.
type submission struct {
	label  string
	cmds   []driver.Command
	refs   []*resource
	needs  []*AccelerationStructure
	builds []pendingBuild
	done   chan struct{}
	err    error
}

// queue is the single FIFO timeline of a device. Submissions are executed
// one at a time, in order, by a dedicated goroutine.
type queue struct {
	drv driver.Device
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*submission
	busy    bool
	closed  bool
	lost    error
	failed  error // first execution error since the last wait
	serial  uint64

	exited chan struct{}
}

func newQueue(drv driver.Device, log *slog.Logger) *queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &queue{
		drv:    drv,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		exited: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// enqueue appends s to the timeline. It fails if the device is lost or
// the queue is closed; the caller then still owns s.refs.
func (q *queue) enqueue(s *submission) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrDeviceClosed
	}
	if q.lost != nil {
		return q.lost
	}
	q.serial++
	q.pending = append(q.pending, s)
	q.cond.Broadcast()
	q.log.Debug("rhi: submit", "label", s.label, "serial", q.serial, "commands", len(s.cmds))
	return nil
}

func (q *queue) run() {
	defer close(q.exited)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		s := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.busy = true
		lost := q.lost
		q.mu.Unlock()

		if lost != nil {
			s.err = lost
		} else {
			s.err = q.execute(s)
		}
		q.complete(s)
	}
}

func (q *queue) execute(s *submission) (err error) {
	// Builds queued ahead of s have completed by now; a failed one leaves
	// its structure unbuilt.
	for _, as := range s.needs {
		if !as.IsBuilt() {
			return fmt.Errorf("%w: %v", ErrNotBuilt, &as.resource)
		}
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: backend panic: %v", ErrDeviceLost, r)
		}
	}()
	return q.drv.Execute(q.ctx, s.cmds)
}

func (q *queue) complete(s *submission) {
	for _, b := range s.builds {
		b.as.endBuild(b, s.err == nil)
	}
	for _, r := range s.refs {
		r.unpin()
	}

	q.mu.Lock()
	if s.err != nil {
		if errors.Is(s.err, ErrDeviceLost) && q.lost == nil {
			q.lost = s.err
			q.log.Warn("rhi: device lost", "label", s.label, "err", s.err)
		}
		if q.failed == nil {
			q.failed = fmt.Errorf("rhi: %s: %w", s.label, s.err)
		}
	}
	q.busy = false
	q.cond.Broadcast()
	q.mu.Unlock()

	if s.done != nil {
		close(s.done)
	}
}

// idleLocked blocks until nothing is pending or executing.
func (q *queue) idleLocked() {
	for len(q.pending) > 0 || q.busy {
		q.cond.Wait()
	}
}

// wait blocks until the timeline is idle and returns the first execution
// error since the previous wait. A lost device keeps reporting
// ErrDeviceLost.
func (q *queue) wait() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.idleLocked()
	err := q.failed
	q.failed = nil
	if err == nil && q.lost != nil {
		err = q.lost
	}
	return err
}

// drain blocks until the timeline is idle without consuming errors.
func (q *queue) drain() {
	q.mu.Lock()
	q.idleLocked()
	q.mu.Unlock()
}

func (q *queue) isLost() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lost
}

// close drains the queue and stops the worker.
func (q *queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.exited
		return
	}
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	<-q.exited
	q.cancel()
}
