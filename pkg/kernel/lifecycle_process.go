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

	"github.com/oskern/schedcore/pkg/ilist"
	"github.com/oskern/schedcore/pkg/rlimit"
)

// CreateProcessFlags controls CreateProcess's group/session handling
// (spec.md §4.2).
type CreateProcessFlags int

const (
	// CreateProcessDefault joins the parent's process group and session.
	CreateProcessDefault CreateProcessFlags = 0
	// CreateProcessNewSession implies CreateProcessNewPGroup: the process
	// becomes the leader of a brand new session and process group.
	CreateProcessNewSession CreateProcessFlags = 1 << iota
)

// LookupProcess implements spec.md §4.2 lookup for processes, mirroring
// (*Kernel).Lookup for threads.
func (k *Kernel) LookupProcess(pid ProcessID) *Process {
	return k.processes.lookup(pid)
}

// GetProcessInfo implements spec.md §4.2 get_info for processes, mirroring
// GetInfo for threads.
func (k *Kernel) GetProcessInfo(pid ProcessID) (ProcessInfo, error) {
	p := k.processes.lookup(pid)
	if p == nil {
		return ProcessInfo{}, ErrInvalidHandle
	}
	p.Lock()
	defer p.Unlock()
	parentID := ProcessID(0)
	if p.parent != nil {
		parentID = p.parent.id
	}
	return ProcessInfo{
		ID:         p.id,
		Name:       p.name,
		ParentID:   parentID,
		State:      p.state,
		PGID:       p.pgid,
		SID:        p.sid,
		NumThreads: p.numThreads,
		ExitCode:   p.exitCode,
	}, nil
}

// GetNextProcessInfo implements spec.md §6's enumeration contract for
// processes, mirroring GetNextInfo for threads.
func (k *Kernel) GetNextProcessInfo(cookie ProcessID) (ProcessInfo, error) {
	p := k.processes.next(cookie)
	if p == nil {
		return ProcessInfo{}, ErrNoMoreHandles
	}
	return k.GetProcessInfo(p.id)
}

// CreateProcess implements spec.md §4.2 create_process: allocates a
// process, links it into the parent's children list, joins either the
// parent's or a brand-new session and process group, derives a fresh I/O
// context from the creator's, creates a user address space, and spawns a
// kernel thread that loads image and transitions to user space.
func (k *Kernel) CreateProcess(parent *Process, name string, argv []string, flags CreateProcessFlags, image []byte) (ProcessID, error) {
	aspace, err := k.aspaces.CreateUserAddressSpace(name)
	if err != nil {
		return 0, ErrNoMemory
	}

	ioc := k.ioctxs.Fork(parent.ioctxHandle)
	p := &Process{
		name:         name,
		k:            k,
		state:        ProcessBirth,
		threads:      ilist.NewList(procLinker),
		children:     ilist.NewList(childLinker),
		aspace:       aspace,
		rlimitNoFile: ioc.GetRLimitNoFile(),
		ioctxHandle:  ioc,
	}

	id := k.processes.add(p)
	p.id = id

	parent.Lock()
	if parent.state == ProcessDeath {
		parent.Unlock()
		k.processes.remove(id)
		return 0, ErrTaskProcDeleted
	}
	p.parent = parent
	parent.children.PushBack(p)
	parent.Unlock()

	k.joinGroupAndSession(p, parent, flags)

	entry := func(t *Thread, args any) int64 {
		if _, err := k.loader.Load(aspace, image); err != nil {
			return ErrVMBadUserMemory.AsStatus()
		}
		return 0
	}
	main, err := k.CreateUserThread(p, name, entry, argv)
	if err != nil {
		k.teardownFailedProcess(p)
		return 0, err
	}

	p.Lock()
	p.state = ProcessNormal
	p.Unlock()

	k.retcodeMu.Lock()
	k.mainThreadOf[id] = main.id
	k.retcodeMu.Unlock()

	if err := k.Resume(main); err != nil {
		return 0, err
	}
	return id, nil
}

// joinGroupAndSession implements the group/session half of CreateProcess.
func (k *Kernel) joinGroupAndSession(p, parent *Process, flags CreateProcessFlags) {
	k.groups.mu.Lock()
	defer k.groups.mu.Unlock()

	if flags&CreateProcessNewSession != 0 {
		sid := SessionID(p.id)
		sess := &Session{id: sid, leader: p, groups: ilist.NewList(sessionGroupLinker)}
		k.groups.sessions[sid] = sess

		pgid := ProcessGroupID(p.id)
		g := &ProcessGroup{id: pgid, session: sess, leader: p, members: ilist.NewList(groupMemberLinker)}
		k.groups.groups[pgid] = g
		sess.groups.PushBack(g)

		p.Lock()
		p.sid = sid
		p.pgid = pgid
		p.group = g
		p.Unlock()
		g.members.PushBack(p)
		return
	}

	parent.Lock()
	pgid, sid, g := parent.pgid, parent.sid, parent.group
	parent.Unlock()

	p.Lock()
	p.pgid = pgid
	p.sid = sid
	p.group = g
	p.Unlock()
	if g != nil {
		g.members.PushBack(p)
	}
}

// teardownFailedProcess releases a process whose main thread could not be
// created, undoing CreateProcess's partial setup.
func (k *Kernel) teardownFailedProcess(p *Process) {
	k.processes.remove(p.id)
	if p.parent != nil {
		p.parent.Lock()
		p.parent.children.Remove(p)
		p.parent.Unlock()
	}
	k.aspaces.DeleteAddressSpace(p.aspace)
	if p.ioctxHandle != nil {
		p.ioctxHandle.Close()
	}
}

// KillProcess implements spec.md §4.2 kill_process: locates the main
// thread and sends SIGKILLTHR to it; the main thread's own exit path tears
// down the process (spec.md §4.5).
func (k *Kernel) KillProcess(pid ProcessID) error {
	p := k.processes.lookup(pid)
	if p == nil {
		return ErrNotFound
	}
	p.Lock()
	main := p.mainThread
	p.Unlock()
	if main == nil {
		return ErrNotFound
	}
	k.SendSignal(main, SigKillThread)
	return nil
}

// WaitOnProcess implements spec.md §4.2 wait_on_process: delegates to
// wait_on_thread(main_thread_id).
func (k *Kernel) WaitOnProcess(ctx context.Context, pid ProcessID) (int64, error) {
	k.retcodeMu.Lock()
	tid, ok := k.mainThreadOf[pid]
	k.retcodeMu.Unlock()
	if !ok {
		return 0, ErrInvalidHandle
	}
	return k.WaitOnThread(ctx, tid)
}

// GetRLimitNoFile implements spec.md §6 getrlimit(RLIMIT_NOFILE), grounded
// on original_source's user_getrlimit delegating to vfs_getrlimit: the
// authoritative value lives in the process's I/O context, and p.rlimitNoFile
// is kept as the kernel-level mirror returned here without an interface
// call on every read.
func (k *Kernel) GetRLimitNoFile(pid ProcessID) (rlimit.NoFile, error) {
	p := k.processes.lookup(pid)
	if p == nil {
		return rlimit.NoFile{}, ErrInvalidHandle
	}
	p.Lock()
	defer p.Unlock()
	return p.rlimitNoFile, nil
}

// SetRLimitNoFile implements spec.md §6 setrlimit(RLIMIT_NOFILE): updates
// the process's mirror and delegates enforcement to its I/O context
// (original_source's user_setrlimit delegating to vfs_setrlimit).
func (k *Kernel) SetRLimitNoFile(pid ProcessID, n rlimit.NoFile) error {
	p := k.processes.lookup(pid)
	if p == nil {
		return ErrInvalidHandle
	}
	p.Lock()
	defer p.Unlock()
	if p.ioctxHandle != nil {
		if err := p.ioctxHandle.SetRLimitNoFile(n); err != nil {
			return err
		}
	}
	p.rlimitNoFile = n
	return nil
}
