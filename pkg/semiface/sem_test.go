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

package semiface

import (
	"context"
	"testing"
	"time"
)

func TestAcquireReleaseEtc(t *testing.T) {
	s := NewSet()
	id := s.Create(1, "test")

	ctx := context.Background()
	if err := s.AcquireEtc(ctx, id, 1, FlagNone); err != nil {
		t.Fatalf("AcquireEtc: %v", err)
	}

	// A second acquire must block until released; prove that by racing it
	// against a timeout context.
	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := s.AcquireEtc(timeout, id, 1, FlagInterruptable); err == nil {
		t.Fatalf("AcquireEtc succeeded against an exhausted semaphore")
	}

	if err := s.ReleaseEtc(id, 1, FlagNone); err != nil {
		t.Fatalf("ReleaseEtc: %v", err)
	}
	if err := s.AcquireEtc(ctx, id, 1, FlagNone); err != nil {
		t.Fatalf("AcquireEtc after release: %v", err)
	}
}

func TestAcquireEtcDeletedSemaphore(t *testing.T) {
	s := NewSet()
	id := s.Create(0, "test")
	s.Delete(id, 7)

	if err := s.AcquireEtc(context.Background(), id, 1, FlagNone); err != ErrDeleted {
		t.Fatalf("AcquireEtc on deleted sem = %v, want ErrDeleted", err)
	}
}

// TestWaitForDeleteExactlyOnce proves spec.md §8's literal join property:
// after Delete(id, retcode), the first WaitForDelete returns retcode; any
// further call, concurrent or later, gets ErrDeleted.
func TestWaitForDeleteExactlyOnce(t *testing.T) {
	s := NewSet()
	id := s.Create(0, "test")

	done := make(chan struct{})
	var results [3]struct {
		rc  int64
		err error
	}
	for i := 0; i < 3; i++ {
		i := i
		go func() {
			rc, err := s.WaitForDelete(context.Background(), id)
			results[i].rc, results[i].err = rc, err
			done <- struct{}{}
		}()
	}
	// Give the waiters a moment to register before deleting.
	time.Sleep(10 * time.Millisecond)
	s.Delete(id, 42)
	for i := 0; i < 3; i++ {
		<-done
	}

	successes := 0
	for _, r := range results {
		if r.err == nil {
			successes++
			if r.rc != 42 {
				t.Errorf("successful WaitForDelete returned %d, want 42", r.rc)
			}
		} else if r.err != ErrDeleted {
			t.Errorf("failed WaitForDelete returned %v, want ErrDeleted", r.err)
		}
	}
	if successes != 1 {
		t.Errorf("%d waiters got the retcode, want exactly 1", successes)
	}

	if _, err := s.WaitForDelete(context.Background(), id); err != ErrDeleted {
		t.Errorf("WaitForDelete after consumption = %v, want ErrDeleted", err)
	}
}

func TestWaitForDeleteAfterDelete(t *testing.T) {
	s := NewSet()
	id := s.Create(0, "test")
	s.Delete(id, 9)

	rc, err := s.WaitForDelete(context.Background(), id)
	if err != nil || rc != 9 {
		t.Fatalf("WaitForDelete(already-deleted) = (%d, %v), want (9, nil)", rc, err)
	}
	if _, err := s.WaitForDelete(context.Background(), id); err != ErrDeleted {
		t.Fatalf("second WaitForDelete = %v, want ErrDeleted", err)
	}
}

func TestWaitForDeleteContextCancel(t *testing.T) {
	s := NewSet()
	id := s.Create(0, "never-deleted")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.WaitForDelete(ctx, id); err != context.DeadlineExceeded {
		t.Fatalf("WaitForDelete with expired context = %v, want DeadlineExceeded", err)
	}
}
