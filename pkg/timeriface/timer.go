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

// Package timeriface names the per-CPU quantum timer's contract with the
// scheduler core (spec.md §4.3, §4.6): a one-shot alarm that fires a
// callback after a duration, and can be cancelled before it fires. The core
// arms one of these per CPU to time the quantum; its expiry only sets the
// CPU's preempted flag. Timed semaphore waits (Snooze) are bounded by a
// context deadline rather than by a timer from this package.
package timeriface

import "time"

// Event is a handle to a scheduled one-shot callback.
type Event interface {
	// Cancel stops the event if it has not already fired. It reports
	// whether the cancellation arrived in time (false means the callback
	// already ran, or is running).
	Cancel() bool
}

// Timers schedules one-shot callbacks. The reference implementation below
// wraps the standard library's time.AfterFunc, the same primitive the rest
// of the corpus reaches for wherever a one-shot deadline is needed; nothing
// in the retrieved example set ships a bespoke timer wheel worth imitating
// for a single per-CPU alarm.
type Timers interface {
	// AfterFunc schedules fn to run after d elapses, on its own goroutine.
	AfterFunc(d time.Duration, fn func()) Event
}

// realTimers is the production Timers, backed by time.AfterFunc.
type realTimers struct{}

// New returns the standard-library-backed Timers implementation.
func New() Timers { return realTimers{} }

func (realTimers) AfterFunc(d time.Duration, fn func()) Event {
	return (*stdEvent)(time.AfterFunc(d, fn))
}

type stdEvent time.Timer

func (e *stdEvent) Cancel() bool {
	return (*time.Timer)(e).Stop()
}
