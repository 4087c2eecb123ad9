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
	"testing"
	"time"

	elffake "github.com/oskern/schedcore/pkg/elfload/fake"
	"github.com/oskern/schedcore/pkg/config"
	"github.com/oskern/schedcore/pkg/ioctx"
	"github.com/oskern/schedcore/pkg/semiface"
	"github.com/oskern/schedcore/pkg/timeriface"
	vmfake "github.com/oskern/schedcore/pkg/vmiface/fake"
)

func newTestKernel(t *testing.T, numCPUs int) *Kernel {
	t.Helper()
	cfg := config.Default()
	cfg.NumCPUs = numCPUs
	cfg.Quantum = 5 * time.Millisecond
	cfg.PollInterval = time.Millisecond
	return New(cfg, Collaborators{
		AddressSpaces: vmfake.NewAddressSpaces(),
		Semaphores:    semiface.NewSet(),
		Timers:        timeriface.New(),
		IOContexts:    ioctx.New(),
		Loader:        elffake.NewLoader(),
	})
}

func startTestKernel(t *testing.T, numCPUs int) (*Kernel, context.CancelFunc) {
	t.Helper()
	k := newTestKernel(t, numCPUs)
	ctx, cancel := context.WithCancel(context.Background())
	k.StartAll(ctx)
	return k, cancel
}

// TestCreateResumeWaitExactlyOnce implements spec.md §8's headline property:
// after thread_exit(r), wait_on_thread(tid) returns r exactly once, then
// ERR_INVALID_HANDLE.
func TestCreateResumeWaitExactlyOnce(t *testing.T) {
	k, cancel := startTestKernel(t, 1)
	defer cancel()

	done := make(chan struct{})
	th, err := k.CreateKernelThread(k.KernelProcess(), "worker", func(t *Thread, args any) int64 {
		<-done
		return 42
	}, nil)
	if err != nil {
		t.Fatalf("CreateKernelThread: %v", err)
	}
	if err := k.Resume(th); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	ctx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()

	resultCh := make(chan struct {
		rc  int64
		err error
	}, 1)
	go func() {
		rc, err := k.WaitOnThread(ctx, th.ID())
		resultCh <- struct {
			rc  int64
			err error
		}{rc, err}
	}()

	time.Sleep(20 * time.Millisecond)
	close(done)

	res := <-resultCh
	if res.err != nil || res.rc != 42 {
		t.Fatalf("first WaitOnThread = (%d, %v), want (42, nil)", res.rc, res.err)
	}

	if _, err := k.WaitOnThread(context.Background(), th.ID()); err != ErrInvalidHandle {
		t.Fatalf("second WaitOnThread = %v, want ErrInvalidHandle", err)
	}
}

// TestSetPriorityReturnsOldPriority pins down spec.md §9's open question,
// resolved against original_source: set_priority returns the previous
// priority.
func TestSetPriorityReturnsOldPriority(t *testing.T) {
	k := newTestKernel(t, 1)
	th, err := k.CreateKernelThread(k.KernelProcess(), "worker", func(t *Thread, args any) int64 { return 0 }, nil)
	if err != nil {
		t.Fatalf("CreateKernelThread: %v", err)
	}

	old, err := k.SetPriority(th.ID(), HighPriority)
	if err != nil {
		t.Fatalf("SetPriority: %v", err)
	}
	if old != NormalPriority {
		t.Errorf("SetPriority returned old priority %d, want %d", old, NormalPriority)
	}

	old2, err := k.SetPriority(th.ID(), NormalPriority)
	if err != nil {
		t.Fatalf("SetPriority: %v", err)
	}
	if old2 != HighPriority {
		t.Errorf("SetPriority returned old priority %d, want %d", old2, HighPriority)
	}
}

// TestProcessExitWithSiblingsKillsThem implements spec.md §4.5 step 4: when
// the main thread of a multi-threaded process exits, every sibling is
// forcibly reaped via SIGKILLTHR and the process is fully torn down once
// every thread has drained.
//
// The process and its sibling are set up before StartAll so the main
// thread's (near-instant) exit can't race the sibling's creation.
func TestProcessExitWithSiblingsKillsThem(t *testing.T) {
	k := newTestKernel(t, 2)

	pid, err := k.CreateProcess(k.KernelProcess(), "multi", nil, CreateProcessDefault, []byte{})
	if err != nil {
		t.Fatalf("CreateProcess: %v", err)
	}
	proc := k.LookupProcess(pid)
	if proc == nil {
		t.Fatalf("LookupProcess(%d) = nil", pid)
	}

	sibling, err := k.CreateKernelThread(proc, "sibling", func(t *Thread, args any) int64 {
		for {
			t.Yield()
		}
	}, nil)
	if err != nil {
		t.Fatalf("CreateKernelThread(sibling): %v", err)
	}
	if err := k.Resume(sibling); err != nil {
		t.Fatalf("Resume(sibling): %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	k.StartAll(ctx)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if _, err := k.WaitOnProcess(waitCtx, pid); err != nil {
		t.Fatalf("WaitOnProcess: %v", err)
	}

	rc, err := k.WaitOnThread(context.Background(), sibling.ID())
	if err != nil || rc != killedRetcode {
		t.Fatalf("WaitOnThread(killed sibling) = (%d, %v), want (%d, nil)", rc, err, killedRetcode)
	}
	if _, err := k.WaitOnThread(context.Background(), sibling.ID()); err != ErrInvalidHandle {
		t.Fatalf("second WaitOnThread(sibling) = %v, want ErrInvalidHandle", err)
	}
}

// TestGetNextInfoEnumeratesAscending exercises the cookie-based enumeration
// contract (spec.md §6): starting at 0 and feeding each result's id back in
// visits every thread exactly once, in ascending id order.
func TestGetNextInfoEnumeratesAscending(t *testing.T) {
	k := newTestKernel(t, 1)
	var ids []ThreadID
	for i := 0; i < 3; i++ {
		th, err := k.CreateKernelThread(k.KernelProcess(), "t", func(t *Thread, args any) int64 { return 0 }, nil)
		if err != nil {
			t.Fatalf("CreateKernelThread: %v", err)
		}
		ids = append(ids, th.ID())
	}

	cookie := ThreadID(0)
	var got []ThreadID
	for {
		info, err := k.GetNextInfo(cookie, 0)
		if err == ErrNoMoreHandles {
			break
		}
		if err != nil {
			t.Fatalf("GetNextInfo: %v", err)
		}
		got = append(got, info.ID)
		cookie = info.ID
	}

	if len(got) < len(ids) {
		t.Fatalf("enumerated %d threads, want at least %d", len(got), len(ids))
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("enumeration not strictly ascending at index %d: %v", i, got)
		}
	}
}
