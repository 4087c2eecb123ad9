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

// Package elfload names the program loader's contract with process creation
// (spec.md §6 create_process_from_image): map an ELF image's segments into
// a freshly created address space and return the entry point and initial
// stack top. Parsing and relocating the image itself is out of scope
// (spec.md §1); the core only needs the resulting entry point and stack
// pointer to seed the process's main thread.
package elfload

import "github.com/oskern/schedcore/pkg/vmiface"

// Image is a loaded program image's location, ready to seed a main thread.
type Image struct {
	EntryPoint uintptr
	StackTop   uintptr
}

// Loader loads an ELF image into an address space.
type Loader interface {
	// Load maps data's segments into as and returns the resulting entry
	// point and initial stack top.
	Load(as vmiface.AddressSpace, data []byte) (Image, error)
}
