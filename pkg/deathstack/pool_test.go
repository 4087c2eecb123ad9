// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package deathstack

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := New(4)
	h, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(h)

	h2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	p.Release(h2)
}

// TestNoDoubleAcquire proves a slot is never handed out twice while held:
// with a pool of size N, N acquires hand out N distinct handles, and one more
// acquire on another goroutine stays blocked until a release happens.
func TestNoDoubleAcquire(t *testing.T) {
	const size = 3
	p := New(size)

	seen := make(map[Handle]bool)
	var mu sync.Mutex
	handles := make([]Handle, size)

	for i := 0; i < size; i++ {
		h, err := p.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		mu.Lock()
		if seen[h] {
			t.Fatalf("handle %d acquired twice while held", h)
		}
		seen[h] = true
		mu.Unlock()
		handles[i] = h
	}

	blocked := make(chan Handle, 1)
	go func() {
		h, err := p.Acquire(context.Background())
		if err != nil {
			return
		}
		blocked <- h
	}()

	select {
	case <-blocked:
		t.Fatalf("Acquire succeeded against an exhausted pool")
	case <-time.After(20 * time.Millisecond):
	}

	p.Release(handles[0])

	select {
	case h := <-blocked:
		if h != handles[0] {
			t.Errorf("released slot %d, but the waiter got %d", handles[0], h)
		}
	case <-time.After(time.Second):
		t.Fatalf("Acquire never unblocked after Release")
	}
}

func TestAcquireContextCancel(t *testing.T) {
	p := New(1)
	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); err == nil {
		t.Fatalf("Acquire against exhausted pool with a timeout should have failed")
	}
}

func TestSize(t *testing.T) {
	if got, want := New(5).Size(), 5; got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
}
