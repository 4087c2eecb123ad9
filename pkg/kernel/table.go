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
	"sync"

	"github.com/google/btree"
)

// get_next_info (spec.md §4.1, §4.2) takes "pass 0 to start, pass the
// returned id to continue" cookie semantics, which only make sense against
// a stable enumeration order. Go map iteration order is explicitly
// unspecified, so both tables below keep a btree.BTree ordered index
// alongside the map: the map gives O(1) lookup by id, the btree gives a
// deterministic ascending walk for enumeration.

type threadIDItem ThreadID

func (a threadIDItem) Less(than btree.Item) bool { return a < than.(threadIDItem) }

type processIDItem ProcessID

func (a processIDItem) Less(than btree.Item) bool { return a < than.(processIDItem) }

// threadTable is the kernel's id -> *Thread registry.
type threadTable struct {
	mu      sync.Mutex
	nextID  ThreadID
	byID    map[ThreadID]*Thread
	ordered *btree.BTree
}

func newThreadTable() *threadTable {
	return &threadTable{
		byID:    make(map[ThreadID]*Thread),
		ordered: btree.New(32),
		nextID:  1,
	}
}

func (tt *threadTable) add(t *Thread) ThreadID {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	id := tt.nextID
	tt.nextID++
	tt.byID[id] = t
	tt.ordered.ReplaceOrInsert(threadIDItem(id))
	return id
}

func (tt *threadTable) remove(id ThreadID) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	delete(tt.byID, id)
	tt.ordered.Delete(threadIDItem(id))
}

func (tt *threadTable) lookup(id ThreadID) *Thread {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return tt.byID[id]
}

// next implements get_next_info's cookie semantics: the first *Thread whose
// id is strictly greater than cookie, or nil if cookie was the last one.
func (tt *threadTable) next(cookie ThreadID) *Thread {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	var found *Thread
	tt.ordered.AscendGreaterOrEqual(threadIDItem(cookie+1), func(item btree.Item) bool {
		found = tt.byID[ThreadID(item.(threadIDItem))]
		return false
	})
	return found
}

// processTable is the kernel's id -> *Process registry.
type processTable struct {
	mu      sync.Mutex
	nextID  ProcessID
	byID    map[ProcessID]*Process
	ordered *btree.BTree
}

func newProcessTable() *processTable {
	return &processTable{
		byID:    make(map[ProcessID]*Process),
		ordered: btree.New(32),
		nextID:  KernelProcessID,
	}
}

func (pt *processTable) add(p *Process) ProcessID {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	id := pt.nextID
	pt.nextID++
	pt.byID[id] = p
	pt.ordered.ReplaceOrInsert(processIDItem(id))
	return id
}

func (pt *processTable) remove(id ProcessID) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	delete(pt.byID, id)
	pt.ordered.Delete(processIDItem(id))
}

func (pt *processTable) lookup(id ProcessID) *Process {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.byID[id]
}

func (pt *processTable) next(cookie ProcessID) *Process {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	var found *Process
	pt.ordered.AscendGreaterOrEqual(processIDItem(cookie+1), func(item btree.Item) bool {
		found = pt.byID[ProcessID(item.(processIDItem))]
		return false
	})
	return found
}
