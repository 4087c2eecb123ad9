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

import "fmt"

// ThreadID is a monotonically assigned small integer identifying a Thread.
type ThreadID int32

// String implements fmt.Stringer.
func (tid ThreadID) String() string { return fmt.Sprintf("%d", int32(tid)) }

// ProcessID is a monotonically assigned small integer identifying a Process.
type ProcessID int32

// String implements fmt.Stringer.
func (pid ProcessID) String() string { return fmt.Sprintf("%d", int32(pid)) }

// ProcessGroupID identifies a process group (POSIX pgid).
type ProcessGroupID int32

// SessionID identifies a session (POSIX sid).
type SessionID int32

// KernelProcessID is the id of the kernel process: its own parent, never
// destroyed (spec.md §3 invariant).
const KernelProcessID ProcessID = 1
