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

// Package deathstack implements the pool an exiting thread borrows a kernel
// stack from so it can free its own original stack (spec.md §3, §4.5): a
// fixed array of pre-allocated wired stacks, ownership tracked by a bitmap
// and gated by a counting semaphore sized to the pool's capacity.
//
// A Go goroutine cannot literally hand its stack to another goroutine or
// free the one it is running on, so this package models the protocol spec.md
// §9 insists be preserved — acquire a slot before doing anything else,
// release the slot only after the original stack is gone, one slot per CPU
// guarantees forward progress — rather than a literal stack-pointer swap.
// The "stack" a slot hands out is an opaque handle an exiting thread's
// teardown sequence treats as its new kernel stack identity; nothing reads
// or writes through it.
package deathstack

import (
	"context"
	"errors"
	"math/bits"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrExhausted names death-stack pool exhaustion. Acquire never returns it:
// Acquire blocks until a slot frees up and fails only with its context's
// error. Exhaustion should never happen in a well-formed system (spec.md §7),
// since capacity equals CPU count and at most one slot is held per CPU at a
// time.
var ErrExhausted = errors.New("deathstack: pool exhausted")

// Handle identifies a borrowed death-stack slot.
type Handle int

// Pool is a fixed-capacity, bitmap-tracked set of death-stack slots.
type Pool struct {
	sem *semaphore.Weighted

	mu     sync.Mutex
	bitmap []uint64 // bit set means slot in use
	size   int
}

// New returns a Pool with one slot per CPU (spec.md §4.5), capped at the
// bitmap's natural width.
func New(size int) *Pool {
	words := (size + 63) / 64
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		bitmap: make([]uint64, words),
		size:   size,
	}
}

// Acquire blocks until a slot is free and returns its handle.
func (p *Pool) Acquire(ctx context.Context) (Handle, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for w, word := range p.bitmap {
		if word == ^uint64(0) {
			continue
		}
		bit := bits.TrailingZeros64(^word)
		idx := w*64 + bit
		if idx >= p.size {
			continue
		}
		p.bitmap[w] |= 1 << uint(bit)
		return Handle(idx), nil
	}
	// Unreachable if the counting semaphore and bitmap stay in sync.
	panic("deathstack: bitmap full despite semaphore permit")
}

// Release returns h to the pool. Per spec.md §4.5 step 9, this happens
// under the scheduler lock without triggering a reschedule; callers arrange
// that themselves (the pool has no scheduling awareness of its own).
func (p *Pool) Release(h Handle) {
	p.mu.Lock()
	w, bit := int(h)/64, uint(int(h)%64)
	p.bitmap[w] &^= 1 << bit
	p.mu.Unlock()
	p.sem.Release(1)
}

// Size returns the pool's capacity.
func (p *Pool) Size() int { return p.size }
