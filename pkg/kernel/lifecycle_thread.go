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

package kernel

import (
	"context"

	"github.com/oskern/schedcore/pkg/vmiface"
)

const (
	defaultKernelStackSize = 16 * 1024
	defaultUserStackSize   = 64 * 1024

	userStackProbeBase   = uintptr(0x7fff_0000_0000)
	userStackProbeStride = defaultUserStackSize + 4096
	userStackProbeTries  = 4096
)

// CreateKernelThread implements spec.md §4.1 create_kernel_thread: it wires
// a kernel stack via the VM collaborator, publishes the thread in the
// global table before inserting it into proc (so a concurrent process-death
// sweep either sees it or denies its creation, spec.md §4.1), and leaves it
// in BIRTH until fully wired, then SUSPENDED.
func (k *Kernel) CreateKernelThread(proc *Process, name string, entry ThreadEntry, args any) (*Thread, error) {
	t := &Thread{
		name:      name,
		proc:      proc,
		entry:     entry,
		args:      args,
		k:         k,
		priority:  NormalPriority,
		state:     ThreadBirth,
		nextState: ThreadBirth,
		turn:      make(chan struct{}),
		parked:    make(chan struct{}),
	}

	id := k.threads.add(t)
	t.id = id

	proc.Lock()
	if proc.state == ProcessDeath {
		proc.Unlock()
		k.threads.remove(id)
		return nil, ErrTaskProcDeleted
	}

	var base uintptr
	rid, err := k.aspaces.KernelAddressSpace().CreateAnonymousRegion(
		name+"-kstack", &base, vmiface.PlacementAny, defaultKernelStackSize,
		vmiface.Wired, vmiface.PermRead|vmiface.PermWrite)
	if err != nil {
		proc.Unlock()
		k.threads.remove(id)
		return nil, ErrNoMemory
	}
	t.kernelStackHandle = rid
	t.kernelStackBase = base
	t.retcodeSem = k.sems.Create(0, name+"-retcode")

	proc.addThreadLocked(t)
	proc.Unlock()

	k.retcodeMu.Lock()
	k.retcodeSems[id] = t.retcodeSem
	k.retcodeMu.Unlock()

	k.Lock()
	t.state = ThreadSuspended
	t.nextState = ThreadSuspended
	k.Unlock()

	return t, nil
}

// CreateUserThread implements spec.md §4.1 create_user_thread: as
// CreateKernelThread, but also reserves a user-space stack region by
// probing downward from a well-known base until a region creation
// succeeds.
func (k *Kernel) CreateUserThread(proc *Process, name string, entry ThreadEntry, args any) (*Thread, error) {
	t, err := k.CreateKernelThread(proc, name, entry, args)
	if err != nil {
		return nil, err
	}

	base := userStackProbeBase
	for i := 0; i < userStackProbeTries; i++ {
		b := base
		rid, err := proc.aspace.CreateAnonymousRegion(
			name+"-ustack", &b, vmiface.PlacementExact, defaultUserStackSize,
			vmiface.Lazy, vmiface.PermRead|vmiface.PermWrite)
		if err == nil {
			t.userStackHandle = rid
			t.userStackBase = b
			return t, nil
		}
		base -= userStackProbeStride
	}
	return nil, ErrNoMemory
}

// Lookup implements spec.md §4.1 lookup: a pure read. spec.md requires the
// caller to hold the thread lock; the thread table's own internal mutex
// already makes this individual read atomic, so Lookup needs no additional
// locking of its own.
func (k *Kernel) Lookup(tid ThreadID) *Thread {
	return k.threads.lookup(tid)
}

// Resume transitions t from BIRTH/SUSPENDED to READY and enqueues it
// (spec.md §3 lifecycle: "becomes SUSPENDED once fully wired... transitions
// to READY when resumed").
func (k *Kernel) Resume(t *Thread) error {
	k.Lock()
	defer k.Unlock()
	if t.state != ThreadSuspended && t.state != ThreadBirth {
		return ErrInvalidArgs
	}
	t.state = ThreadReady
	t.nextState = ThreadReady
	k.enqueueReadyLocked(t)
	return nil
}

// SetPriority implements spec.md §4.1 set_priority: clamps to
// [MIN, MAX_RT], reseats a READY thread at the tail of its new bucket, and
// returns the thread's previous priority (spec.md §9 open question,
// resolved against original_source/kernel/thread.c's
// thread_set_priority, which returns the old value).
func (k *Kernel) SetPriority(tid ThreadID, p int) (old int, err error) {
	p = ClampPriority(p)

	k.Lock()
	defer k.Unlock()
	t := k.threads.lookup(tid)
	if t == nil {
		return 0, ErrInvalidHandle
	}
	old = t.priority
	if t.state == ThreadReady {
		k.runQueues[old].Remove(t)
		t.priority = p
		k.enqueueReadyLocked(t)
	} else {
		t.priority = p
	}
	return old, nil
}

// GetInfo implements spec.md §4.1 get_info: a point-in-time snapshot.
func (k *Kernel) GetInfo(tid ThreadID) (ThreadInfo, error) {
	k.Lock()
	defer k.Unlock()
	t := k.threads.lookup(tid)
	if t == nil {
		return ThreadInfo{}, ErrInvalidHandle
	}
	return snapshotThreadLocked(t), nil
}

func snapshotThreadLocked(t *Thread) ThreadInfo {
	cpuID := -1
	if t.cpu != nil {
		cpuID = t.cpu.id
	}
	pid := ProcessID(0)
	if t.proc != nil {
		pid = t.proc.id
	}
	return ThreadInfo{
		ID:         t.id,
		Name:       t.name,
		ProcessID:  pid,
		State:      t.state,
		Priority:   t.priority,
		CPU:        cpuID,
		UserTime:   t.userTime,
		KernelTime: t.kernelTime,
		InKernel:   t.inKernel,
	}
}

// GetNextInfo implements spec.md §6's enumeration contract: pass 0 to
// start, pass the previously returned id to continue, ERR_NO_MORE_HANDLES
// when exhausted. pid, when non-zero, restricts enumeration to one
// process's threads.
func (k *Kernel) GetNextInfo(cookie ThreadID, pid ProcessID) (ThreadInfo, error) {
	for {
		k.Lock()
		t := k.threads.next(cookie)
		if t == nil {
			k.Unlock()
			return ThreadInfo{}, ErrNoMoreHandles
		}
		cookie = t.id
		if pid != 0 && (t.proc == nil || t.proc.id != pid) {
			k.Unlock()
			continue
		}
		info := snapshotThreadLocked(t)
		k.Unlock()
		return info, nil
	}
}

// WaitOnThread implements spec.md §4.5 step 7's join-on-exit contract: it
// returns the thread's retcode exactly once (spec.md §8), after which any
// further call for the same tid returns ERR_INVALID_HANDLE — whether the
// thread has since been fully reaped or not.
//
// Per spec.md §9 open question (b), preserved as observed in
// original_source: this forcibly sends SIGCONT to the target first, which
// can awaken a STOPped thread before the wait even begins.
func (k *Kernel) WaitOnThread(ctx context.Context, tid ThreadID) (int64, error) {
	k.retcodeMu.Lock()
	sid, ok := k.retcodeSems[tid]
	k.retcodeMu.Unlock()
	if !ok {
		return 0, ErrInvalidHandle
	}

	if t := k.Lookup(tid); t != nil {
		k.SendSignal(t, SigCont)
	}

	rc, err := k.sems.WaitForDelete(ctx, sid)
	if err != nil {
		return 0, ErrInvalidHandle
	}

	k.retcodeMu.Lock()
	delete(k.retcodeSems, tid)
	k.retcodeMu.Unlock()
	return rc, nil
}
