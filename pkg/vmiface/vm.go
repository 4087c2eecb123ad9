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

// Package vmiface names the VM subsystem's contract with the scheduler
// core, exactly as spec.md §6 describes it. The VM subsystem itself
// (address spaces, anonymous regions, translation maps, backing stores) is
// out of scope (spec.md §1); the core only ever calls through this
// interface.
package vmiface

import "errors"

// RegionID identifies a region created by CreateAnonymousRegion.
type RegionID int64

// AddressSpaceID identifies an address space.
type AddressSpaceID int64

// Placement is where CreateAnonymousRegion should put the region.
type Placement int

// The two placement strategies the core uses (spec.md §6).
const (
	// PlacementAny lets the VM subsystem choose the base address.
	PlacementAny Placement = iota
	// PlacementExact requires the region to start at the given base.
	PlacementExact
)

// Wiring is whether a region's pages are pinned.
type Wiring int

// The two wiring modes the core uses (spec.md §6).
const (
	// Wired pages never get paged out (kernel stacks, death stacks).
	Wired Wiring = iota
	// Lazy pages are ordinary demand-paged memory (user stacks).
	Lazy
)

// Perms is a region's protection bits.
type Perms int

// Protection bits a region may carry.
const (
	PermRead Perms = 1 << iota
	PermWrite
	PermExecute
)

// ErrRegionCreationFailed is returned by CreateAnonymousRegion when no
// region could be created at the requested placement (e.g. every candidate
// base in a downward probe was occupied).
var ErrRegionCreationFailed = errors.New("vmiface: region creation failed")

// AddressSpace is the per-process (or kernel-shared) address space contract.
type AddressSpace interface {
	// ID returns the address space's handle.
	ID() AddressSpaceID

	// CreateAnonymousRegion creates a region of size bytes within this
	// address space. base is both an in/out parameter: for PlacementExact
	// it is the requested base; for PlacementAny and on success it is
	// filled with the chosen base.
	CreateAnonymousRegion(name string, base *uintptr, placement Placement, size uintptr, wiring Wiring, perms Perms) (RegionID, error)

	// DeleteRegion deletes a previously created region.
	DeleteRegion(rid RegionID) error

	// Activate installs this address space's translation map as current.
	// The core calls this only when the context switch table (spec.md
	// §4.4) says the target address space differs from the outgoing one.
	Activate() error
}

// AddressSpaces is the factory/registry contract used by process creation
// and exit (spec.md §6: create_aspace/delete_aspace/get_aspace_by_id/
// put_aspace/aspace_swap).
type AddressSpaces interface {
	// CreateUserAddressSpace allocates a fresh user address space.
	CreateUserAddressSpace(name string) (AddressSpace, error)

	// DeleteAddressSpace releases a as previously returned by
	// CreateUserAddressSpace.
	DeleteAddressSpace(as AddressSpace) error

	// KernelAddressSpace returns the single, reference-counted-externally
	// address space shared by all processes.
	KernelAddressSpace() AddressSpace

	// Swap activates the kernel address space directly, used by thread
	// exit (spec.md §4.5 step 3) once a thread detaches from a user
	// process.
	Swap(kernel AddressSpace) error
}
