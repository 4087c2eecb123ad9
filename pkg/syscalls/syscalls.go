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

// Package syscalls is the user-visible surface spec.md §6 names, exposed as
// plain Go functions over a *kernel.Kernel rather than through an
// architecture/ABI marshaling layer — there is no real userspace to marshal
// for in this repo. Every status-returning call follows spec.md §7's
// convention directly: a non-negative int64 is success, a negative one
// equals one of the Errno values kernel/errors.go defines. Calls that hand
// back a structured snapshot (get_info, get_next_info) return that struct
// plus a separate error instead of packing it into the convention, since
// there is no wire format here to pack it into.
package syscalls

import (
	"context"
	"time"

	"github.com/oskern/schedcore/pkg/kernel"
	"github.com/oskern/schedcore/pkg/rlimit"
)

// statusOf turns a kernel error into spec.md §7's negative-status
// convention; nil becomes 0.
func statusOf(err error) int64 {
	if err == nil {
		return 0
	}
	if errno, ok := err.(kernel.Errno); ok {
		return errno.AsStatus()
	}
	return kernel.ErrNotFound.AsStatus()
}

// CreateKernelThread implements spec.md §4.1 create_kernel_thread.
func CreateKernelThread(k *kernel.Kernel, proc *kernel.Process, name string, entry kernel.ThreadEntry, args any) (int64, error) {
	t, err := k.CreateKernelThread(proc, name, entry, args)
	if err != nil {
		return statusOf(err), err
	}
	return int64(t.ID()), nil
}

// CreateUserThread implements spec.md §4.1 create_user_thread.
func CreateUserThread(k *kernel.Kernel, proc *kernel.Process, name string, entry kernel.ThreadEntry, args any) (int64, error) {
	t, err := k.CreateUserThread(proc, name, entry, args)
	if err != nil {
		return statusOf(err), err
	}
	return int64(t.ID()), nil
}

// Resume implements spec.md §4.1 resume.
func Resume(k *kernel.Kernel, tid kernel.ThreadID) (int64, error) {
	t := k.Lookup(tid)
	if t == nil {
		return kernel.ErrInvalidHandle.AsStatus(), kernel.ErrInvalidHandle
	}
	err := k.Resume(t)
	return statusOf(err), err
}

// SetPriority implements spec.md §4.1 set_priority: returns the thread's
// previous priority on success (spec.md §9 open question, see DESIGN.md).
func SetPriority(k *kernel.Kernel, tid kernel.ThreadID, priority int) (int64, error) {
	old, err := k.SetPriority(tid, priority)
	if err != nil {
		return statusOf(err), err
	}
	return int64(old), nil
}

// GetInfo implements spec.md §4.1 get_info.
func GetInfo(k *kernel.Kernel, tid kernel.ThreadID) (kernel.ThreadInfo, error) {
	return k.GetInfo(tid)
}

// GetNextInfo implements spec.md §6's enumeration contract for threads.
func GetNextInfo(k *kernel.Kernel, cookie kernel.ThreadID, pid kernel.ProcessID) (kernel.ThreadInfo, error) {
	return k.GetNextInfo(cookie, pid)
}

// WaitOnThread implements spec.md §4.5 step 7 / §8's join-on-exit contract.
func WaitOnThread(ctx context.Context, k *kernel.Kernel, tid kernel.ThreadID) (int64, error) {
	rc, err := k.WaitOnThread(ctx, tid)
	if err != nil {
		return statusOf(err), err
	}
	return rc, nil
}

// Exit implements spec.md §4.5 thread_exit(retcode): called by a thread on
// itself, from anywhere in its own entry call stack.
func Exit(t *kernel.Thread, retcode int64) {
	t.Exit(retcode)
}

// Yield implements spec.md §4.6's voluntary yield.
func Yield(t *kernel.Thread) {
	t.Yield()
}

// Snooze implements spec.md §4.6 snooze(duration): t blocks for d, returning
// 0 once it elapses.
func Snooze(ctx context.Context, t *kernel.Thread, d time.Duration) (int64, error) {
	if err := t.Snooze(ctx, d); err != nil {
		return statusOf(err), err
	}
	return 0, nil
}

// CreateProcess implements spec.md §4.2 create_process.
func CreateProcess(k *kernel.Kernel, parent kernel.ProcessID, name string, argv []string, flags kernel.CreateProcessFlags, image []byte) (int64, error) {
	parentProc := k.LookupProcess(parent)
	if parentProc == nil {
		return kernel.ErrInvalidHandle.AsStatus(), kernel.ErrInvalidHandle
	}
	pid, err := k.CreateProcess(parentProc, name, argv, flags, image)
	if err != nil {
		return statusOf(err), err
	}
	return int64(pid), nil
}

// KillProcess implements spec.md §4.2 kill_process.
func KillProcess(k *kernel.Kernel, pid kernel.ProcessID) (int64, error) {
	err := k.KillProcess(pid)
	return statusOf(err), err
}

// WaitOnProcess implements spec.md §4.2 wait_on_process.
func WaitOnProcess(ctx context.Context, k *kernel.Kernel, pid kernel.ProcessID) (int64, error) {
	rc, err := k.WaitOnProcess(ctx, pid)
	if err != nil {
		return statusOf(err), err
	}
	return rc, nil
}

// GetProcessInfo implements spec.md §4.2 get_info for processes.
func GetProcessInfo(k *kernel.Kernel, pid kernel.ProcessID) (kernel.ProcessInfo, error) {
	return k.GetProcessInfo(pid)
}

// GetNextProcessInfo implements spec.md §6's enumeration contract for
// processes.
func GetNextProcessInfo(k *kernel.Kernel, cookie kernel.ProcessID) (kernel.ProcessInfo, error) {
	return k.GetNextProcessInfo(cookie)
}

// SetPGID implements spec.md §4.2 setpgid.
func SetPGID(k *kernel.Kernel, pid kernel.ProcessID, pgid kernel.ProcessGroupID) (int64, error) {
	p := k.LookupProcess(pid)
	if p == nil {
		return kernel.ErrInvalidHandle.AsStatus(), kernel.ErrInvalidHandle
	}
	err := k.SetPGID(p, pgid)
	return statusOf(err), err
}

// GetPGID implements spec.md §4.2 getpgid.
func GetPGID(k *kernel.Kernel, pid kernel.ProcessID) (int64, error) {
	p := k.LookupProcess(pid)
	if p == nil {
		return kernel.ErrInvalidHandle.AsStatus(), kernel.ErrInvalidHandle
	}
	return int64(k.GetPGID(p)), nil
}

// SetSID implements spec.md §4.2 setsid.
func SetSID(k *kernel.Kernel, pid kernel.ProcessID) (int64, error) {
	p := k.LookupProcess(pid)
	if p == nil {
		return kernel.ErrInvalidHandle.AsStatus(), kernel.ErrInvalidHandle
	}
	sid, err := k.SetSID(p)
	if err != nil {
		return statusOf(err), err
	}
	return int64(sid), nil
}

// SendPGroupSignal implements spec.md §4.2 send_pgrp_signal.
func SendPGroupSignal(k *kernel.Kernel, pgid kernel.ProcessGroupID, sig kernel.Signals) (int64, error) {
	err := k.SendPGroupSignal(pgid, sig)
	return statusOf(err), err
}

// SendSessionSignal implements spec.md §4.2 send_session_signal.
func SendSessionSignal(k *kernel.Kernel, sid kernel.SessionID, sig kernel.Signals) (int64, error) {
	err := k.SendSessionSignal(sid, sig)
	return statusOf(err), err
}

// GetRLimitNoFile implements spec.md §6 getrlimit(RLIMIT_NOFILE).
func GetRLimitNoFile(k *kernel.Kernel, pid kernel.ProcessID) (rlimit.NoFile, error) {
	return k.GetRLimitNoFile(pid)
}

// SetRLimitNoFile implements spec.md §6 setrlimit(RLIMIT_NOFILE).
func SetRLimitNoFile(k *kernel.Kernel, pid kernel.ProcessID, n rlimit.NoFile) (int64, error) {
	err := k.SetRLimitNoFile(pid, n)
	return statusOf(err), err
}

// SendSignal implements spec.md §4.6's direct per-thread signal delivery.
func SendSignal(k *kernel.Kernel, tid kernel.ThreadID, sig kernel.Signals) (int64, error) {
	t := k.Lookup(tid)
	if t == nil {
		return kernel.ErrInvalidHandle.AsStatus(), kernel.ErrInvalidHandle
	}
	k.SendSignal(t, sig)
	return 0, nil
}
