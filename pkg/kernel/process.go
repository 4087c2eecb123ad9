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
	"github.com/oskern/schedcore/pkg/ioctx"
	"github.com/oskern/schedcore/pkg/vmiface"
)

// ProcessState mirrors the BIRTH/NORMAL/DEATH lifecycle spec.md §3 gives
// threads, applied to the process as a whole (spec.md §4.2).
type ProcessState int

const (
	// ProcessBirth is set until the process's main thread is created.
	ProcessBirth ProcessState = iota
	// ProcessNormal is a process with at least one live thread.
	ProcessNormal
	// ProcessDeath is set once the main thread begins exiting; no new
	// threads are accepted, and the process is removed from the process
	// table once its remaining threads have drained (exit.go).
	ProcessDeath
)

func (s ProcessState) String() string {
	switch s {
	case ProcessBirth:
		return "BIRTH"
	case ProcessNormal:
		return "NORMAL"
	case ProcessDeath:
		return "DEATH"
	default:
		return "UNKNOWN"
	}
}

// Process groups threads that share an address space, I/O context and
// parent/child/group/session relationships (spec.md §3).
type Process struct {
	processMutex

	id   ProcessID
	name string
	k    *Kernel

	// --- fields protected by processMutex ---

	state ProcessState

	parent   *Process
	children *ilist.List[Process]
	childLink ilist.Entry[Process]

	pgid  ProcessGroupID
	sid   SessionID
	group *ProcessGroup

	// groupLink is this process's link in its ProcessGroup's member list.
	groupLink ilist.Entry[Process]

	threads    *ilist.List[Thread]
	numThreads int
	mainThread *Thread

	exitCode int64

	// --- set by CreateProcess; rlimitNoFile is later changed only by
	// SetRLimitNoFile, under processMutex ---

	ioctxHandle  ioctx.Context
	aspace       vmiface.AddressSpace
	rlimitNoFile RLimitNoFile
}

// ID returns p's process id.
func (p *Process) ID() ProcessID { return p.id }

// Name returns p's name.
func (p *Process) Name() string { return p.name }

// ProcessInfo is a point-in-time snapshot returned by process introspection
// (spec.md §4.2, mirroring get_info/get_next_info for threads).
type ProcessInfo struct {
	ID         ProcessID
	Name       string
	ParentID   ProcessID
	State      ProcessState
	PGID       ProcessGroupID
	SID        SessionID
	NumThreads int
	// ExitCode is the main thread's retcode once State is ProcessDeath; zero
	// and meaningless otherwise.
	ExitCode int64
}

// procLinker is the ilist.Linker for a process's per-process thread list.
func procLinker(t *Thread) *ilist.Entry[Thread] { return &t.procLink }

// childLinker is the ilist.Linker for a process's children list.
func childLinker(p *Process) *ilist.Entry[Process] { return &p.childLink }

// addThreadLocked links t onto p's thread list. Caller holds p's
// processMutex.
func (p *Process) addThreadLocked(t *Thread) {
	p.threads.PushBack(t)
	p.numThreads++
	if p.mainThread == nil {
		p.mainThread = t
	}
}

// removeThreadLocked unlinks t from p's thread list. Caller holds p's
// processMutex. Reports whether p now has zero threads.
func (p *Process) removeThreadLocked(t *Thread) bool {
	p.threads.Remove(t)
	p.numThreads--
	return p.numThreads == 0
}
