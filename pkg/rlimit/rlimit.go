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

// Package rlimit carries the one resource limit the scheduler core surfaces
// directly to callers (spec.md §6): the per-process open-file-descriptor
// ceiling a VFS I/O context enforces. It is shaped after
// golang.org/x/sys/unix.Rlimit so a real implementation of the I/O context
// can hand it straight to setrlimit/getrlimit-style calls without a
// conversion layer.
package rlimit

import "golang.org/x/sys/unix"

// Infinity marks a limit as unbounded, mirroring unix.RLIM_INFINITY.
const Infinity = unix.RLIM_INFINITY

// NoFile is a soft/hard open-file-descriptor limit pair.
type NoFile struct {
	Cur uint64
	Max uint64
}

// Default returns the limit a freshly created process starts with
// (spec.md §5 process creation defaults).
func Default() NoFile {
	return NoFile{Cur: 1024, Max: Infinity}
}

// ToUnix converts n to the raw unix.Rlimit shape.
func (n NoFile) ToUnix() unix.Rlimit {
	return unix.Rlimit{Cur: n.Cur, Max: n.Max}
}

// FromUnix converts a raw unix.Rlimit into NoFile.
func FromUnix(r unix.Rlimit) NoFile {
	return NoFile{Cur: r.Cur, Max: r.Max}
}
