package kernel

import (
	"reflect"

	"gvisor.dev/gvisor/pkg/sync"
	"gvisor.dev/gvisor/pkg/sync/locking"
)

// processMutex is the process-level lock in the core's lock order (spec.md
// §5): it protects every process's membership fields (parent, children,
// pgid, sid, thread list, state, num_threads, main_thread). It does not
// cover the process table or the process-group/session tables, which have
// their own locks (processTable.mu, groupTables.mu). It may be held while
// acquiring threadMutex;
// the reverse is forbidden, and processLockNameIndex/threadMutex's
// NestedLock bookkeeping below is what makes a violation of that order a
// runtime-detectable bug instead of a silent deadlock risk.
type processMutex struct {
	mu sync.Mutex
}

var processprefixIndex *locking.MutexClass

// lockNames is a list of user-friendly lock names.
// Populated in init.
var processlockNames []string

// processlockNameIndex indexes into processlockNames for NestedLock/NestedUnlock.
type processlockNameIndex int

const ()

// Lock locks m.
// +checklocksignore
func (m *processMutex) Lock() {
	locking.AddGLock(processprefixIndex, -1)
	m.mu.Lock()
}

// NestedLock locks m knowing that another lock of the same type is held.
// +checklocksignore
func (m *processMutex) NestedLock(i processlockNameIndex) {
	locking.AddGLock(processprefixIndex, int(i))
	m.mu.Lock()
}

// Unlock unlocks m.
// +checklocksignore
func (m *processMutex) Unlock() {
	locking.DelGLock(processprefixIndex, -1)
	m.mu.Unlock()
}

// NestedUnlock unlocks m knowing that another lock of the same type is held.
// +checklocksignore
func (m *processMutex) NestedUnlock(i processlockNameIndex) {
	locking.DelGLock(processprefixIndex, int(i))
	m.mu.Unlock()
}

func processinitLockNames() {}

func init() {
	processinitLockNames()
	processprefixIndex = locking.NewMutexClass(reflect.TypeOf(processMutex{}), processlockNames)
}
