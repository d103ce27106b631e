// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cache

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

func TestGetSet(t *testing.T) {
	c := New[string, int](10)
	c.Set("key1", 42)

	val, ok := c.Get("key1")
	if !ok || val != 42 {
		t.Errorf("Get(key1) = %d, %v, want 42, true", val, ok)
	}
	if _, ok := c.Get("nonexistent"); ok {
		t.Error("expected nonexistent key to not exist")
	}

	c.Set("key1", 7)
	if val, _ := c.Get("key1"); val != 7 {
		t.Errorf("Get after overwrite = %d, want 7", val)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestEviction(t *testing.T) {
	c := New[int, int](3)
	for i := range 3 {
		c.Set(i, i)
	}
	// Touch 0 so that 1 becomes the oldest.
	c.Get(0)
	c.Set(3, 3)

	if _, ok := c.Get(1); ok {
		t.Error("least recently used entry 1 was not evicted")
	}
	for _, k := range []int{0, 2, 3} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("entry %d evicted", k)
		}
	}
	if s := c.Stats(); s.Evictions != 1 || s.Len != 3 || s.Capacity != 3 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestLoad(t *testing.T) {
	c := New[string, int](4)
	calls := 0
	create := func() (int, error) {
		calls++
		return 100, nil
	}
	for range 3 {
		v, err := c.Load("k", create)
		if err != nil || v != 100 {
			t.Fatalf("Load = %d, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}

	boom := errors.New("boom")
	if _, err := c.Load("bad", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Errorf("Load error = %v", err)
	}
	if _, ok := c.Get("bad"); ok {
		t.Error("failed load was cached")
	}

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 3 {
		t.Errorf("Stats = %+v, want 2 hits and 3 misses", s)
	}
	if r := s.HitRate(); r != 0.4 {
		t.Errorf("HitRate = %v, want 0.4", r)
	}
}

func TestDelete(t *testing.T) {
	c := New[string, int](2)
	c.Set("a", 1)
	c.Set("b", 2)
	if !c.Delete("a") {
		t.Error("Delete(a) = false")
	}
	if c.Delete("a") {
		t.Error("second Delete(a) = true")
	}
	c.Set("c", 3)
	if _, ok := c.Get("b"); !ok {
		t.Error("b evicted after a was deleted")
	}
}

func TestConcurrentLoad(t *testing.T) {
	c := New[string, int](8)
	var calls atomic.Int32
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := strconv.Itoa(i % 4)
			_, _ = c.Load(key, func() (int, error) {
				calls.Add(1)
				return i, nil
			})
		}()
	}
	wg.Wait()
	if n := calls.Load(); n != 4 {
		t.Errorf("create called %d times, want 4", n)
	}
	if c.Len() != 4 {
		t.Errorf("Len = %d, want 4", c.Len())
	}
}
