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
	"github.com/oskern/schedcore/pkg/ilist"
	"github.com/oskern/schedcore/pkg/klog"
)

func schedLinker(t *Thread) *ilist.Entry[Thread] { return &t.schedLink }

// newRunQueues returns NumPriorityLevels empty FIFOs, one per priority
// (spec.md §3 "fixed array of FIFO lists indexed by priority level").
func newRunQueues() [NumPriorityLevels]*ilist.List[Thread] {
	var rq [NumPriorityLevels]*ilist.List[Thread]
	for i := range rq {
		rq[i] = ilist.NewList(schedLinker)
	}
	return rq
}

// enqueueReadyLocked pushes t onto the tail of its priority's bucket.
// Callers hold k's threadMutex.
func (k *Kernel) enqueueReadyLocked(t *Thread) {
	k.runQueues[t.priority].PushBack(t)
}

// pickRegularLocked implements spec.md §4.3 step 3: scan MAX_PRIORITY down
// to one above IDLE; for each non-empty bucket, draw a pseudo-random value
// in [0, SkipDenominator) (15 bits wide with the default 0x7fff) and skip it
// with probability config.SkipNumerator/SkipDenominator; a zero denominator
// disables skipping. Dequeue the first bucket not skipped. If every
// considered bucket was skipped, fall back to the highest-priority
// non-empty one seen.
func (k *Kernel) pickRegularLocked() *Thread {
	var fallbackPriority = -1
	for p := MaxPriority; p > IdlePriority; p-- {
		rq := k.runQueues[p]
		if rq.Empty() {
			continue
		}
		if fallbackPriority == -1 {
			fallbackPriority = p
		}
		if den := int(k.cfg.SkipDenominator); den > 0 && uint32(k.rng.Intn(den)) < k.cfg.SkipNumerator {
			continue
		}
		return rq.PopFront()
	}
	if fallbackPriority == -1 {
		return nil
	}
	return k.runQueues[fallbackPriority].PopFront()
}

// pickNextLocked implements spec.md §4.3 steps 2-4: real-time strict
// priority, then regular with probabilistic skip, then IDLE. Callers hold
// k's threadMutex.
func (k *Kernel) pickNextLocked() *Thread {
	for p := MaxRTPriority; p >= MinRTPriority; p-- {
		if rq := k.runQueues[p]; !rq.Empty() {
			return rq.PopFront()
		}
	}
	if t := k.pickRegularLocked(); t != nil {
		return t
	}
	// IDLE bucket: never empty in a well-formed system (spec.md §3, §4.3
	// step 4). A missing idle thread is a broken invariant, not a runtime
	// condition (spec.md §7), hence the panic rather than an error return.
	rq := k.runQueues[IdlePriority]
	if rq.Empty() {
		if k.diagLimiter.Allow() {
			klog.Warningf("kernel: no idle thread ready on any run queue")
		}
		panic("kernel: no idle thread ready; broken invariant")
	}
	return rq.PopFront()
}

// transitionOutgoingLocked applies spec.md §4.3 step 1 to the thread a CPU
// is descheduling, based on its next_state. Callers hold k's threadMutex.
func (k *Kernel) transitionOutgoingLocked(t *Thread) {
	if t == nil {
		return
	}
	switch t.nextState {
	case ThreadRunning, ThreadReady:
		t.state = ThreadReady
		t.cpu = nil
		k.enqueueReadyLocked(t)
	case ThreadFreeOnResched:
		t.state = ThreadFreeOnResched
		t.cpu = nil
		k.deadPool.PushBack(t)
	default:
		t.state = t.nextState
		t.cpu = nil
	}
}

// reschedLocked implements spec.md §4.3: the dispatcher. It is always called
// with k's threadMutex held, conceptually "with interrupts disabled," and
// never blocks. It returns the thread cpu should run next (never nil).
func (k *Kernel) reschedLocked(cpu *CPU, outgoing *Thread) *Thread {
	k.transitionOutgoingLocked(outgoing)

	next := k.pickNextLocked()
	next.state = ThreadRunning
	next.nextState = ThreadReady
	next.cpu = cpu
	return next
}
