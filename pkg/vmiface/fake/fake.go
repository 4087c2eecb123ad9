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

// Package fake is an in-memory double for pkg/vmiface, standing in for the
// real VM subsystem (out of scope per spec.md §1) in tests and in
// standalone use of the scheduler core.
package fake

import (
	"sync"
	"sync/atomic"

	"github.com/oskern/schedcore/pkg/vmiface"
)

var nextRegionID atomic.Int64
var nextASID atomic.Int64

// AddressSpace is a fake vmiface.AddressSpace that tracks regions in a map
// and records Activate calls instead of touching any real translation map.
type AddressSpace struct {
	mu        sync.Mutex
	id        vmiface.AddressSpaceID
	regions   map[vmiface.RegionID]uintptr
	activated int
}

// NewAddressSpace returns a fresh fake address space.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{
		id:      vmiface.AddressSpaceID(nextASID.Add(1)),
		regions: make(map[vmiface.RegionID]uintptr),
	}
}

// ID implements vmiface.AddressSpace.
func (a *AddressSpace) ID() vmiface.AddressSpaceID { return a.id }

// CreateAnonymousRegion implements vmiface.AddressSpace.
func (a *AddressSpace) CreateAnonymousRegion(name string, base *uintptr, placement vmiface.Placement, size uintptr, wiring vmiface.Wiring, perms vmiface.Perms) (vmiface.RegionID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if placement == vmiface.PlacementAny || *base == 0 {
		*base = uintptr(0x1000_0000) + uintptr(len(a.regions))*0x10_0000
	}
	rid := vmiface.RegionID(nextRegionID.Add(1))
	a.regions[rid] = *base
	return rid, nil
}

// DeleteRegion implements vmiface.AddressSpace.
func (a *AddressSpace) DeleteRegion(rid vmiface.RegionID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.regions, rid)
	return nil
}

// Activate implements vmiface.AddressSpace.
func (a *AddressSpace) Activate() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.activated++
	return nil
}

// Activations returns how many times Activate has been called, for tests
// asserting the context-switch table in spec.md §4.4 only swaps maps when
// required.
func (a *AddressSpace) Activations() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activated
}

// AddressSpaces is a fake vmiface.AddressSpaces factory.
type AddressSpaces struct {
	kernel *AddressSpace
}

// NewAddressSpaces returns a fake factory with a ready kernel address space.
func NewAddressSpaces() *AddressSpaces {
	return &AddressSpaces{kernel: NewAddressSpace()}
}

// CreateUserAddressSpace implements vmiface.AddressSpaces.
func (f *AddressSpaces) CreateUserAddressSpace(name string) (vmiface.AddressSpace, error) {
	return NewAddressSpace(), nil
}

// DeleteAddressSpace implements vmiface.AddressSpaces.
func (f *AddressSpaces) DeleteAddressSpace(as vmiface.AddressSpace) error { return nil }

// KernelAddressSpace implements vmiface.AddressSpaces.
func (f *AddressSpaces) KernelAddressSpace() vmiface.AddressSpace { return f.kernel }

// Swap implements vmiface.AddressSpaces.
func (f *AddressSpaces) Swap(kernel vmiface.AddressSpace) error { return kernel.Activate() }
