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

// Package kernel is the scheduler core: thread and process registries, the
// run-queue dispatcher, context switching, thread exit, signals, and
// process groups/sessions (spec.md §1-§5). Everything it depends on that
// spec.md marks out of scope — the VM subsystem, semaphores, timers, the
// VFS I/O context, the ELF loader — is reached only through the
// collaborator interfaces in pkg/vmiface, pkg/semiface, pkg/timeriface,
// pkg/ioctx and pkg/elfload (spec.md §6).
package kernel

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
	"gvisor.dev/gvisor/pkg/sync"

	"github.com/oskern/schedcore/pkg/config"
	"github.com/oskern/schedcore/pkg/deathstack"
	"github.com/oskern/schedcore/pkg/elfload"
	"github.com/oskern/schedcore/pkg/ilist"
	"github.com/oskern/schedcore/pkg/ioctx"
	"github.com/oskern/schedcore/pkg/klog"
	"github.com/oskern/schedcore/pkg/semiface"
	"github.com/oskern/schedcore/pkg/timeriface"
	"github.com/oskern/schedcore/pkg/vmiface"
)

// Kernel owns every piece of the global mutable state spec.md §9 calls out:
// the process table, thread table, kernel process, run queues and
// dead-thread pool, death-stack pool — encapsulated behind this type with
// explicit construction, rather than scattered package-level singletons.
type Kernel struct {
	threadMutex

	cfg *config.Config

	threads   *threadTable
	processes *processTable
	groups    *groupTables

	kernelProcess *Process

	runQueues [NumPriorityLevels]*ilist.List[Thread]
	deadPool  *ilist.List[Thread]

	rng *rand.Rand // guarded by threadMutex; only the dispatcher draws from it

	cpus []*CPU

	deathStacks *deathstack.Pool

	aspaces vmiface.AddressSpaces
	sems    *semiface.Set
	timers  timeriface.Timers
	ioctxs  ioctx.Contexts
	loader  elfload.Loader

	// retcodeMu guards retcodeSems, a registry of each thread's
	// join-on-exit semaphore keyed by its tid. Unlike the thread table
	// (which exit removes the thread from at teardown, spec.md §4.5 step
	// 9), an entry here survives until a joiner actually consumes it, so
	// wait_on_thread(tid) can succeed exactly once even when called after
	// the thread has already fully exited (spec.md §8).
	retcodeMu   sync.Mutex
	retcodeSems map[ThreadID]semiface.ID

	// mainThreadOf survives process reaping the same way retcodeSems
	// survives thread reaping, so wait_on_process (spec.md §4.2: "delegates
	// to wait_on_thread(main_thread_id)") still has a tid to delegate to
	// even after the process itself has been fully torn down.
	mainThreadOf map[ProcessID]ThreadID

	// diagLimiter throttles the "broken invariant" diagnostic logging paths
	// (idle bucket empty, death-stack pool exhausted, spec.md §7) so a
	// system already failing one of those invariants doesn't also log-storm
	// on its way down.
	diagLimiter *rate.Limiter
}

// Collaborators bundles the out-of-scope services spec.md §6 names, so
// New's signature does not grow every time one more is wired in.
type Collaborators struct {
	AddressSpaces vmiface.AddressSpaces
	Semaphores    *semiface.Set
	Timers        timeriface.Timers
	IOContexts    ioctx.Contexts
	Loader        elfload.Loader
}

// New builds a Kernel: the kernel process, the one set of run queues all
// CPUs share, the death-stack pool, and one idle thread per configured CPU — everything
// spec.md §3 requires to exist before any CPU can be started.
func New(cfg *config.Config, collab Collaborators) *Kernel {
	k := &Kernel{
		cfg:         cfg,
		threads:     newThreadTable(),
		processes:   newProcessTable(),
		groups:      newGroupTables(),
		runQueues:   newRunQueues(),
		deadPool:    ilist.NewList(schedLinker),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		deathStacks: deathstack.New(cfg.NumCPUs),
		aspaces:     collab.AddressSpaces,
		sems:        collab.Semaphores,
		timers:      collab.Timers,
		ioctxs:      collab.IOContexts,
		loader:      collab.Loader,
		retcodeSems:  make(map[ThreadID]semiface.ID),
		mainThreadOf: make(map[ProcessID]ThreadID),
		diagLimiter:  rate.NewLimiter(rate.Every(time.Second), 1),
	}

	k.kernelProcess = &Process{
		id:      KernelProcessID,
		name:    "kernel",
		k:       k,
		state:   ProcessNormal,
		threads: ilist.NewList(procLinker),
		aspace:  collab.AddressSpaces.KernelAddressSpace(),
	}
	k.kernelProcess.parent = k.kernelProcess
	k.processes.byID[KernelProcessID] = k.kernelProcess
	k.processes.ordered.ReplaceOrInsert(processIDItem(KernelProcessID))
	k.processes.nextID = KernelProcessID + 1

	k.cpus = make([]*CPU, cfg.NumCPUs)
	for i := range k.cpus {
		cpu := newCPU(i, k)
		idle := newIdleThread(k, i)
		k.Lock()
		idle.state = ThreadReady
		idle.nextState = ThreadReady
		k.enqueueReadyLocked(idle)
		k.Unlock()
		cpu.idle = idle
		k.cpus[i] = cpu
	}

	klog.Infof("kernel: initialized with %d cpu(s)", cfg.NumCPUs)
	return k
}

// StartAll launches every CPU's dispatch loop on its own goroutine. Each
// loop runs until ctx is cancelled.
func (k *Kernel) StartAll(ctx context.Context) {
	for _, cpu := range k.cpus {
		go cpu.Run(ctx)
	}
}

// KernelProcess returns the kernel process, its own parent, never destroyed
// (spec.md §3 invariant).
func (k *Kernel) KernelProcess() *Process { return k.kernelProcess }

// CPUs returns the kernel's CPU set.
func (k *Kernel) CPUs() []*CPU { return k.cpus }

// sendProcessSignal delivers sig to p's main thread (spec.md §4.2
// send_pgrp_signal/send_session_signal target "each member's main thread").
func (k *Kernel) sendProcessSignal(p *Process, sig Signals) {
	p.Lock()
	main := p.mainThread
	p.Unlock()
	if main == nil {
		return
	}
	k.SendSignal(main, sig)
}

// SendSignal implements spec.md §4.6's scheduling-visible signal effects:
// it sets sig pending on t and, if unblocked, applies handleSignalsLocked's
// immediate STOP/CONT effects. A deliverable KILL_THREAD is, per
// handleSignalsLocked's doc comment, arranged by the caller: SendSignal
// itself runs t's exit protocol rather than waiting for t to reach a
// cooperative safe point, since SIGKILLTHR is forceful, not advisory.
//
// STOP and CONT are likewise applied immediately rather than left staged in
// nextState when t is sitting READY in a run queue: a RUNNING thread picks
// up a staged nextState the next time it's descheduled
// (transitionOutgoingLocked), but a thread only sitting in a run queue is
// never "descheduled" — reschedLocked overwrites nextState unconditionally
// for whatever it dispatches next — so a READY thread's STOP/CONT has to be
// pulled out of, or pushed into, its bucket here instead.
func (k *Kernel) SendSignal(t *Thread, sig Signals) {
	k.Lock()
	t.pendingSignals = t.pendingSignals.Add(sig)
	killed := handleSignalsLocked(t)
	switch {
	case !killed && t.nextState == ThreadReady && t.state == ThreadSuspended:
		t.state = ThreadReady
		k.enqueueReadyLocked(t)
	case !killed && t.nextState == ThreadSuspended && t.state == ThreadReady:
		k.runQueues[t.priority].Remove(t)
		t.state = ThreadSuspended
	}
	k.Unlock()

	if killed {
		k.reapKilled(t, killedRetcode)
	}
}

// killedRetcode is delivered to joiners of a thread that was torn down by
// SIGKILLTHR rather than a voluntary thread_exit.
const killedRetcode = -1
