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
	"time"

	"gvisor.dev/gvisor/pkg/atomicbitops"

	"github.com/oskern/schedcore/pkg/ilist"
	"github.com/oskern/schedcore/pkg/rlimit"
	"github.com/oskern/schedcore/pkg/semiface"
	"github.com/oskern/schedcore/pkg/timeriface"
	"github.com/oskern/schedcore/pkg/vmiface"
)

// ThreadState is a thread's position in the lifecycle spec.md §3 describes.
type ThreadState int

const (
	// ThreadBirth is the state a thread is created in, before it is fully
	// wired (stacks allocated, registered).
	ThreadBirth ThreadState = iota
	// ThreadReady means the thread is runnable and sitting in a run queue.
	ThreadReady
	// ThreadRunning means the thread is the one executing on its CPU.
	ThreadRunning
	// ThreadWaiting means the thread is blocked on a semaphore.
	ThreadWaiting
	// ThreadSuspended means the thread is fully wired but not runnable
	// (freshly created, or stopped by a signal).
	ThreadSuspended
	// ThreadFreeOnResched is staged for teardown: the next dispatcher pass
	// moves the thread to the dead-thread pool and it is never scheduled
	// again.
	ThreadFreeOnResched
)

func (s ThreadState) String() string {
	switch s {
	case ThreadBirth:
		return "BIRTH"
	case ThreadReady:
		return "READY"
	case ThreadRunning:
		return "RUNNING"
	case ThreadWaiting:
		return "WAITING"
	case ThreadSuspended:
		return "SUSPENDED"
	case ThreadFreeOnResched:
		return "FREE_ON_RESCHED"
	default:
		return "UNKNOWN"
	}
}

// Priority bands (spec.md §3, §4.3, grounded on original_source/kernel/thread.c
// THREAD_*_PRIORITY constants, whose numeric values the retrieved source
// does not include; these are the base design's conventional values).
const (
	IdlePriority    = 0
	MinPriority     = 1
	NormalPriority  = 10
	HighPriority    = 32
	MaxPriority     = 63  // top of the regular (time-sliced) band
	MinRTPriority   = 64  // bottom of the real-time band
	MaxRTPriority   = 127 // top of the real-time band
	NumPriorityLevels = MaxRTPriority + 1
)

// ClampPriority clamps p into [MinPriority, MaxRTPriority], per
// spec.md §4.1 set_priority.
func ClampPriority(p int) int {
	if p > MaxRTPriority {
		return MaxRTPriority
	}
	if p < MinPriority {
		return MinPriority
	}
	return p
}

// ClampUserPriority clamps p into the regular band only: user threads may
// not self-promote into the real-time band (original_source
// user_thread_set_priority clamps to THREAD_MAX_PRIORITY, not
// THREAD_MAX_RT_PRIORITY).
func ClampUserPriority(p int) int {
	if p > MaxPriority {
		return MaxPriority
	}
	if p < MinPriority {
		return MinPriority
	}
	return p
}

// TimeClass distinguishes which counter a span of elapsed time is charged
// to (spec.md §3 "last-measurement class").
type TimeClass int

// The two measurement classes named in spec.md §3.
const (
	TimeClassUser TimeClass = iota
	TimeClassKernel
)

// ThreadEntry is the function a kernel thread runs. It receives the Thread
// so it can call back into the scheduler (Yield, cooperative preemption
// checks) and args, the opaque pointer spec.md §3 names. Its return value is
// the thread's exit code, delivered to joiners exactly as if the thread had
// called Exit(code) itself.
type ThreadEntry func(t *Thread, args any) int64

// Thread is a first-class kernel entity: identity, state, and the
// parent/child/group/session-adjacent relationships a thread carries
// through its owning Process. Every field not explicitly documented as
// "owned by threadMutex" is immutable once CreateKernelThread (and, for user
// threads, CreateUserThread) returns (name, entry, args, kernel/user stack
// handles), except proc, which exit re-points at the kernel process.
type Thread struct {
	id   ThreadID
	name string

	// proc is a non-owning back-reference: the Process table owns the
	// Process, each Process owns its thread list.
	proc *Process

	// --- fields protected by the kernel's threadMutex ---

	state     ThreadState
	nextState ThreadState
	priority  int

	// exited guards the teardown protocol in exit.go against running
	// twice for the same thread: once from its own goroutine returning
	// normally, once from a concurrent SIGKILLTHR delivery.
	exited bool

	cpu    *CPU // nil if not currently executing
	fpuCPU *CPU // CPU owning this thread's FPU state, or nil
	fpuSaved bool

	inKernel bool
	irqLevel int // interrupt-disable nesting level

	userTime     time.Duration
	kernelTime   time.Duration
	lastTime     time.Time
	lastTimeType TimeClass

	pendingSignals Signals
	blockedSignals Signals
	actions        [32]SigAction

	// schedLink is shared by the run queue and the dead-thread free list:
	// spec.md §3 guarantees a thread is in at most one of
	// {run queue, dead-thread free list, semaphore wait list} at a time, so
	// one link field safely serves both of the scheduler-owned lists.
	schedLink ilist.Entry[Thread]

	// --- fields protected by the owning Process's processMutex ---

	procLink ilist.Entry[Thread] // per-process thread list

	// --- effectively immutable after creation ---

	entry ThreadEntry
	args  any

	kernelStackHandle vmiface.RegionID
	kernelStackBase   uintptr
	userStackHandle   vmiface.RegionID
	userStackBase     uintptr

	retcodeSem semiface.ID // joiners WaitForDelete on this; deleted with the retcode on exit
	blockSem   semiface.ID // set while WAITING on a semaphore
	lastSemErr error

	alarm timeriface.Event

	// turn/parked implement the cooperative-run protocol described in
	// SPEC_FULL.md §6: a Thread's goroutine blocks on turn until the
	// dispatcher picks it, runs until it calls a scheduling primitive
	// (Yield, BlockOn, exit), then signals parked and blocks on turn again.
	turn    chan struct{}
	parked  chan struct{}
	started bool

	preempted atomicbitops.Bool

	k *Kernel
}

// ID returns t's thread id.
func (t *Thread) ID() ThreadID { return t.id }

// Name returns t's short name.
func (t *Thread) Name() string { return t.name }

// Process returns t's owning process.
func (t *Thread) Process() *Process { return t.proc }

// ThreadInfo is a point-in-time snapshot of a thread's public fields,
// returned by get_info/get_next_info (spec.md §4.1).
type ThreadInfo struct {
	ID          ThreadID
	Name        string
	ProcessID   ProcessID
	State       ThreadState
	Priority    int
	CPU         int // -1 if not running
	UserTime    time.Duration
	KernelTime  time.Duration
	InKernel    bool
}

// RLimitNoFile is the only resource limit the core surfaces directly
// (spec.md §6); it is delegated to the VFS I/O context.
type RLimitNoFile = rlimit.NoFile
