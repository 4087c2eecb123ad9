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

// Signals is a bitmask of pending or blocked signal numbers (spec.md §4.2,
// §7). Signal numbers run 1..31; bit N-1 holds signal N, matching the
// sigset_t convention the rest of the corpus (and original_source) use.
type Signals uint32

// The signal numbers the core itself interprets. Any other bit is carried
// and delivered but not given special handling.
const (
	SigKillThread Signals = 1 << (iota)
	SigStop
	SigCont
	SigSuspend
	// SigHup is broadcast to an orphaned process group, followed by
	// SigCont (spec.md §4.2).
	SigHup
	// SigChld notifies a process's parent that a child's main thread has
	// exited (spec.md §4.5 step 6).
	SigChld
)

// SigDisposition is what happens to a thread when a signal it does not
// block becomes pending (spec.md §4.2).
type SigDisposition int

// The dispositions the core supports.
const (
	// SigDefault runs the signal's built-in effect (KILL_THREAD kills the
	// thread; STOP suspends it; CONT resumes it; anything else is ignored).
	SigDefault SigDisposition = iota
	// SigIgnore drops the signal with no effect.
	SigIgnore
	// SigHandle marks the signal for delivery to a user handler (modeled
	// as a disposition only; no user-mode handler invocation is in scope,
	// spec.md §1).
	SigHandle
)

// SigAction records one signal's disposition, indexed 1..31 in
// Thread.actions (spec.md §4.2 sigaction).
type SigAction struct {
	Disposition SigDisposition
}

// Set reports whether sig's bit is set in s.
func (s Signals) Set(sig Signals) bool { return s&sig != 0 }

// Add returns s with sig's bit set.
func (s Signals) Add(sig Signals) Signals { return s | sig }

// Remove returns s with sig's bit cleared.
func (s Signals) Remove(sig Signals) Signals { return s &^ sig }

// handleSignalsLocked applies spec.md §4.2's pending-signal effects to t and
// reports whether t was killed as a result. Callers hold the kernel's
// threadMutex.
//
// Per spec.md §4.2: a pending, unblocked KILL_THREAD effectively terminates
// the thread (the caller arranges the exit path); STOP moves the thread to
// SUSPENDED; CONT clears a prior STOP and, if the thread was suspended for
// it, makes it runnable again.
func handleSignalsLocked(t *Thread) (killed bool) {
	deliverable := t.pendingSignals &^ t.blockedSignals
	if deliverable == 0 {
		return false
	}

	if deliverable.Set(SigKillThread) {
		t.pendingSignals = t.pendingSignals.Remove(SigKillThread)
		return true
	}
	if deliverable.Set(SigStop) {
		t.pendingSignals = t.pendingSignals.Remove(SigStop)
		if t.state != ThreadFreeOnResched {
			t.nextState = ThreadSuspended
		}
	}
	if deliverable.Set(SigCont) {
		t.pendingSignals = t.pendingSignals.Remove(SigCont)
		t.pendingSignals = t.pendingSignals.Remove(SigStop)
		if t.state == ThreadSuspended {
			t.nextState = ThreadReady
		}
	}
	return false
}
