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

// Package fake is an in-memory double for pkg/elfload, standing in for the
// real ELF loader (out of scope per spec.md §1) in tests and standalone use
// of the scheduler core.
package fake

import (
	"github.com/oskern/schedcore/pkg/elfload"
	"github.com/oskern/schedcore/pkg/vmiface"
)

// Loader is a fake elfload.Loader: it never actually maps anything into as,
// and reports a fixed entry point and stack top regardless of data.
type Loader struct {
	EntryPoint uintptr
	StackTop   uintptr
}

// NewLoader returns a Loader with plausible, fixed entry/stack values.
func NewLoader() *Loader {
	return &Loader{EntryPoint: 0x400000, StackTop: 0x7fff_0000_1000}
}

// Load implements elfload.Loader.
func (l *Loader) Load(as vmiface.AddressSpace, data []byte) (elfload.Image, error) {
	return elfload.Image{EntryPoint: l.EntryPoint, StackTop: l.StackTop}, nil
}
