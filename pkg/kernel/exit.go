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
	"errors"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/oskern/schedcore/pkg/klog"
)

// threadExit implements spec.md §4.5, the self-teardown protocol: a thread
// runs this on its own goroutine after its entry point returns, ultimately
// parking for the last time so its CPU's dispatcher moves it to the
// dead-thread pool and never picks it again.
//
// Go cannot literally hand a running goroutine someone else's stack or free
// the one it's executing on, so the death-stack pool below models the
// protocol spec.md §9 insists be preserved (acquire-before-teardown, one
// slot per CPU, forward progress guaranteed) rather than a literal
// stack-pointer swap — see pkg/deathstack's package doc.
func (k *Kernel) threadExit(t *Thread, retcode int64) {
	if !k.finishExit(t, retcode) {
		return
	}
	// Final park: this thread's turn is never sent again. The CPU's loop,
	// seeing next_state = FREE_ON_RESCHED, moves it to the dead-thread
	// pool on the next resched pass (spec.md §4.5 step 9, §4.3 step 1).
	t.parked <- struct{}{}
}

// reapKilled implements the forceful half of spec.md §4.6: SIGKILLTHR is
// not a request the target cooperatively honors at its own next Yield, it
// is delivered by the sender immediately (the sender "arranges the exit
// path" per handleSignalsLocked's doc comment). reapKilled runs the same
// teardown threadExit does, on the killer's goroutine rather than the
// target's own, since a killed thread's goroutine may be sitting parked
// indefinitely (or never started at all) and cannot be relied on to run
// its own exit path. The target's goroutine, if any, is simply abandoned:
// it never receives turn again, so it never touches t's fields again.
func (k *Kernel) reapKilled(t *Thread, retcode int64) {
	k.finishExit(t, retcode)
}

// finishExit runs spec.md §4.5's teardown exactly once per thread,
// regardless of whether it is reached via a normal return from entry or a
// forced SIGKILLTHR. It reports whether it actually ran the teardown (false
// if another caller already did).
func (k *Kernel) finishExit(t *Thread, retcode int64) bool {
	k.Lock()
	if t.exited {
		k.Unlock()
		return false
	}
	t.exited = true
	// A forcefully-killed thread may still be sitting in a run queue,
	// never having been given the CPU this round; pull it out before
	// tearing it down so the dispatcher can never hand it out mid-reap.
	if t.state == ThreadReady {
		k.runQueues[t.priority].Remove(t)
	}
	k.Unlock()

	// Step 1: boost to HIGH priority; cancel the per-thread alarm. A
	// RUNNING thread is in no run queue, so this needs no lock (spec.md
	// §4.1).
	t.priority = HighPriority
	if t.alarm != nil {
		t.alarm.Cancel()
		t.alarm = nil
	}

	// Step 2: delete the user stack region, if any.
	if t.userStackHandle != 0 && t.proc != nil && t.proc.aspace != nil {
		t.proc.aspace.DeleteRegion(t.userStackHandle)
	}

	oldProc := t.proc
	var wasMain, deleteProcess bool

	if oldProc != nil && oldProc != k.kernelProcess {
		// Step 3: detach from the owning process, reparent onto the
		// kernel process, and swap into the kernel address space.
		oldProc.Lock()
		wasMain = oldProc.mainThread == t
		empty := oldProc.removeThreadLocked(t)
		if wasMain {
			oldProc.state = ProcessDeath
			oldProc.exitCode = retcode
		}
		oldProc.Unlock()

		t.proc = k.kernelProcess
		k.kernelProcess.Lock()
		k.kernelProcess.addThreadLocked(t)
		k.kernelProcess.Unlock()

		k.aspaces.Swap(k.aspaces.KernelAddressSpace())

		if wasMain {
			// Step 4: if siblings remain, kill them and wait for the
			// process to drain before reaping it.
			if !empty {
				k.killSiblingsAndWait(oldProc)
			}
			deleteProcess = true
		}
	}

	// Step 5/6: tear down the process if this was its last thread, and
	// notify whoever should hear about it.
	var notify *Process
	if deleteProcess {
		notify = k.teardownProcess(oldProc)
	} else {
		notify = k.kernelProcess
	}
	if notify != nil {
		k.sendProcessSignal(notify, SigChld)
	}

	// Step 7: delete the retcode semaphore, waking joiners; clear the
	// thread's copy of its id.
	k.sems.Delete(t.retcodeSem, retcode)
	tid := t.id
	t.id = 0

	// Step 8: borrow a death-stack slot.
	handle, err := k.deathStacks.Acquire(context.Background())
	if err != nil {
		if k.diagLimiter.Allow() {
			klog.Warningf("kernel: death-stack pool acquire failed for exiting thread %s: %v", tid, err)
		}
	}

	// Step 9 (exit2, conceptually run on the borrowed stack): free the
	// original kernel stack, remove the thread from the kernel process and
	// the global table, retire it from scheduling, release the FPU and the
	// death-stack slot, and make the final, one-way trip through the
	// dispatcher.
	k.aspaces.KernelAddressSpace().DeleteRegion(t.kernelStackHandle)

	k.kernelProcess.Lock()
	k.kernelProcess.removeThreadLocked(t)
	k.kernelProcess.Unlock()

	k.threads.remove(tid)

	k.Lock()
	if t.fpuCPU == t.cpu {
		t.fpuCPU = nil
		t.fpuSaved = true
	}
	t.nextState = ThreadFreeOnResched
	k.deathStacks.Release(handle)
	k.Unlock()

	klog.Debugf("kernel: thread %s exited with code %d", tid, retcode)

	return true
}

// killSiblingsAndWait implements spec.md §4.5 step 4: send SIGKILLTHR to
// every remaining thread of a dying main thread's process, then poll until
// num_threads reaches zero.
func (k *Kernel) killSiblingsAndWait(p *Process) {
	p.Lock()
	var siblings []*Thread
	for s := p.threads.Front(); s != nil; s = p.threads.Next(s) {
		siblings = append(siblings, s)
	}
	p.Unlock()

	for _, s := range siblings {
		k.SendSignal(s, SigKillThread)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = k.cfg.PollInterval
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0 // spec.md §4.5 step 4: poll until drained, no deadline

	backoff.Retry(func() error {
		p.Lock()
		n := p.numThreads
		p.Unlock()
		if n == 0 {
			return nil
		}
		return errNotDrained
	}, b)
}

var errNotDrained = errors.New("kernel: process not yet drained")

// checkOrphanAndNotifyLocked implements spec.md §4.2's orphan-detection
// broadcast. Callers hold k.groups.mu.
func (k *Kernel) checkOrphanAndNotifyLocked(g *ProcessGroup) {
	if g == nil || g.members.Empty() {
		return
	}
	if k.isOrphanedLocked(g) {
		k.sendGroupSignalLocked(g, SigHup)
		k.sendGroupSignalLocked(g, SigCont)
	}
}

// teardownProcess implements spec.md §4.5 step 5: orphan detection, process
// table removal, reparenting children onto the grandparent (rechecking
// orphan status on each move), leaving the process group and session,
// removing p from its parent's children list, and releasing process-level
// resources. It returns p's former parent, the process to notify with
// SIGCHLD.
func (k *Kernel) teardownProcess(p *Process) *Process {
	p.Lock()
	parent := p.parent
	group := p.group
	var children []*Process
	for c := p.children.Front(); c != nil; c = p.children.Next(c) {
		children = append(children, c)
	}
	p.Unlock()

	k.groups.mu.Lock()
	if group != nil {
		group.members.Remove(p)
	}
	k.checkOrphanAndNotifyLocked(group)
	k.groups.mu.Unlock()

	k.processes.remove(p.id)

	for _, c := range children {
		p.Lock()
		p.children.Remove(c)
		p.Unlock()

		c.Lock()
		c.parent = parent
		cGroup := c.group
		c.Unlock()

		if parent != nil {
			parent.Lock()
			parent.children.PushBack(c)
			parent.Unlock()
		}

		k.groups.mu.Lock()
		k.checkOrphanAndNotifyLocked(cGroup)
		k.groups.mu.Unlock()
	}

	if parent != nil {
		parent.Lock()
		parent.children.Remove(p)
		parent.Unlock()
	}

	if p.aspace != nil {
		k.aspaces.DeleteAddressSpace(p.aspace)
	}
	if p.ioctxHandle != nil {
		p.ioctxHandle.Close()
	}

	return parent
}
