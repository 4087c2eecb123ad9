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

// Package semiface names the semaphore subsystem's contract with the
// scheduler core (spec.md §6: create/delete/acquire_etc/release_etc) and
// ships the one concrete implementation the core needs internally — the
// retcode semaphore joiners wait on, and the private semaphore Snooze blocks
// on. (The death-stack pool's counting gate is a golang.org/x/sync semaphore
// of its own, not a Set.) The semaphore subsystem's own internals (priority-ordered wait
// queues, interaction with signal delivery while sleeping) are out of scope
// per spec.md §1; this package only implements the slice of behavior the
// core itself depends on.
package semiface

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ID identifies a semaphore.
type ID int64

// Flags passed to AcquireEtc/ReleaseEtc (spec.md §6).
type Flags int

// The flags the core uses.
const (
	FlagNone Flags = 0
	// FlagTimeout bounds how long Acquire waits.
	FlagTimeout Flags = 1 << (iota - 1)
	// FlagInterruptable allows Acquire to return early on cancellation.
	FlagInterruptable
	// FlagNoResched asks the implementation not to trigger an immediate
	// reschedule as a side effect of Release. Set's ReleaseEtc never
	// reschedules, so it accepts and ignores this flag; nothing in the core
	// passes it today.
	FlagNoResched
)

// ErrDeleted is returned by AcquireEtc/ReleaseEtc when the semaphore no
// longer exists (spec.md §7's SEM_DELETED kind, named locally to avoid a
// dependency back onto pkg/kernel).
var ErrDeleted = errors.New("semiface: semaphore deleted")

// Semaphores is the contract the core depends on (spec.md §6).
type Semaphores interface {
	Create(count int64, name string) ID
	Delete(id ID, retcode int64)
	AcquireEtc(ctx context.Context, id ID, n int64, flags Flags) error
	ReleaseEtc(id ID, n int64, flags Flags) error
	WaitForDelete(ctx context.Context, id ID) (retcode int64, err error)
}

// semCapacity bounds each semaphore's backing golang.org/x/sync/semaphore.Weighted.
// A spec.md §6 counting semaphore has no natural ceiling (release_etc may
// post units nobody ever acquired), but Weighted requires one; semCapacity
// is sized far beyond anything this domain's thread/process/resource counts
// could approach, with the semaphore's current count modeled as unused
// headroom below it (count available == semCapacity - Weighted.cur).
const semCapacity = int64(1) << 40

// Set is the table of live semaphores, and the one concrete implementation
// of Semaphores this package provides.
type Set struct {
	mu      sync.Mutex
	next    ID
	sems    map[ID]*semEntry
	waiters map[ID][]chan struct{}
	retired map[ID]int64
}

type semEntry struct {
	name     string
	weighted *semaphore.Weighted
	// deleted is closed exactly once, by Delete, to unblock any AcquireEtc
	// call currently waiting on this semaphore.
	deleted chan struct{}
}

// NewSet returns an empty semaphore table.
func NewSet() *Set {
	return &Set{
		sems:    make(map[ID]*semEntry),
		waiters: make(map[ID][]chan struct{}),
		retired: make(map[ID]int64),
	}
}

// Create implements spec.md §6 create(count, name).
func (s *Set) Create(count int64, name string) ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	w := semaphore.NewWeighted(semCapacity)
	if !w.TryAcquire(semCapacity - count) {
		panic("semiface: initial semaphore count exceeds capacity")
	}
	s.sems[id] = &semEntry{name: name, weighted: w, deleted: make(chan struct{})}
	return id
}

// Delete implements spec.md §6 delete(sid, retcode): wakes every waiter
// registered via WaitForDelete with retcode and removes the semaphore. This
// is how the retcode semaphore delivers a thread's exit code to its joiners
// (spec.md §4.5 step 7). It also unblocks any AcquireEtc call still waiting
// on this semaphore.
func (s *Set) Delete(id ID, retcode int64) {
	s.mu.Lock()
	sem, ok := s.sems[id]
	delete(s.sems, id)
	if ok {
		close(sem.deleted)
	}
	s.retired[id] = retcode
	waiting := s.waiters[id]
	delete(s.waiters, id)
	s.mu.Unlock()

	for _, ch := range waiting {
		close(ch)
	}
}

// AcquireEtc implements spec.md §6 acquire_etc: blocks until n units are
// available, ctx is done (FlagTimeout or FlagInterruptable only — with
// neither, ctx is not consulted and the call only returns once satisfied or
// the semaphore is deleted), or the semaphore is deleted. The wait itself is
// Weighted.Acquire, not a poll loop; deletion is layered on top as an
// independent cancellation source via a derived context, since Weighted has
// no notion of a semaphore disappearing out from under a waiter.
func (s *Set) AcquireEtc(ctx context.Context, id ID, n int64, flags Flags) error {
	s.mu.Lock()
	sem, ok := s.sems[id]
	s.mu.Unlock()
	if !ok {
		return ErrDeleted
	}

	waitCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-sem.deleted:
			cancel()
		case <-stop:
		}
	}()
	usesCtx := flags&(FlagTimeout|FlagInterruptable) != 0
	if usesCtx {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-stop:
			}
		}()
	}

	if err := sem.weighted.Acquire(waitCtx, n); err != nil {
		s.mu.Lock()
		_, stillLive := s.sems[id]
		s.mu.Unlock()
		if !stillLive {
			return ErrDeleted
		}
		if usesCtx {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
		}
		return err
	}
	return nil
}

// ReleaseEtc implements spec.md §6 release_etc.
func (s *Set) ReleaseEtc(id ID, n int64, flags Flags) error {
	s.mu.Lock()
	sem, ok := s.sems[id]
	s.mu.Unlock()
	if !ok {
		return ErrDeleted
	}
	sem.weighted.Release(n)
	return nil
}

// WaitForDelete blocks until id is deleted and returns the retcode Delete
// was called with (spec.md §8 join-on-exit scenario). The retcode is
// consumed on the first successful call: a second call for the same id,
// whether concurrent or later, gets ErrDeleted instead of the same code
// again. pkg/kernel's WaitOnThread relies on this: exactly one joiner gets
// the retcode, and every other joiner gets ERR_INVALID_HANDLE (spec.md §8).
func (s *Set) WaitForDelete(ctx context.Context, id ID) (int64, error) {
	s.mu.Lock()
	if rc, done := s.retired[id]; done {
		delete(s.retired, id)
		s.mu.Unlock()
		return rc, nil
	}
	if _, ok := s.sems[id]; !ok {
		s.mu.Unlock()
		return 0, ErrDeleted
	}
	ch := make(chan struct{})
	s.waiters[id] = append(s.waiters[id], ch)
	s.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.retired[id]
	if !ok {
		return 0, ErrDeleted
	}
	delete(s.retired, id)
	return rc, nil
}
