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

// Package ioctx names the VFS I/O context's contract with the scheduler
// core (spec.md §6): every process owns one, inherited by fork and released
// exactly once when the process's last thread exits. The VFS itself (file
// descriptor tables, path resolution, the underlying filesystem) is out of
// scope (spec.md §1); the core only creates, clones and releases a handle,
// and delegates RLIMIT_NOFILE get/set to it (spec.md §6
// get/setrlimit, grounded on original_source's user_getrlimit/
// user_setrlimit delegating to vfs_{get,set}rlimit).
package ioctx

import (
	"sync"

	"github.com/oskern/schedcore/pkg/rlimit"
)

// Context is an opaque per-process I/O context handle.
type Context interface {
	// Close releases the context's resources. Called exactly once, when a
	// process's last thread exits (spec.md §4.5 step 8).
	Close() error

	// GetRLimitNoFile and SetRLimitNoFile implement spec.md §6's
	// get/setrlimit(RLIMIT_NOFILE only).
	GetRLimitNoFile() rlimit.NoFile
	SetRLimitNoFile(rlimit.NoFile) error
}

// Contexts is the factory the core uses to create and fork I/O contexts.
type Contexts interface {
	// New returns a fresh, empty I/O context for a newly created process.
	New() Context

	// Fork returns a copy-on-write-equivalent duplicate of parent's context.
	// CreateProcess uses it for every new process, deriving the child's
	// context from its parent's (spec.md §4.2); a nil parent yields a fresh
	// context.
	Fork(parent Context) Context
}

// nullContexts is a no-op Contexts, the reference implementation: the VFS
// layer itself is out of scope, so the core only needs something that
// satisfies the contract, frees nothing real, and holds the one piece of
// state spec.md §6 asks an I/O context to carry (the RLIMIT_NOFILE pair).
type nullContexts struct{}

// New returns the no-op Contexts factory.
func New() Contexts { return nullContexts{} }

func (nullContexts) New() Context { return &nullContext{limit: rlimit.Default()} }

func (nullContexts) Fork(parent Context) Context {
	if parent == nil {
		return &nullContext{limit: rlimit.Default()}
	}
	return &nullContext{limit: parent.GetRLimitNoFile()}
}

type nullContext struct {
	mu    sync.Mutex
	limit rlimit.NoFile
}

func (c *nullContext) Close() error { return nil }

func (c *nullContext) GetRLimitNoFile() rlimit.NoFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit
}

func (c *nullContext) SetRLimitNoFile(n rlimit.NoFile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limit = n
	return nil
}
