package kernel

import (
	"reflect"

	"gvisor.dev/gvisor/pkg/sync"
	"gvisor.dev/gvisor/pkg/sync/locking"
)

// threadMutex is the innermost lock in the core's lock order (spec.md §5):
// it protects every thread's state/next_state/priority/queue membership/CPU
// pointer/FPU pointers/in_kernel/int_disable_level, the run queues, and the
// dead-thread pool. It does not cover the thread table, which has its own
// lock (threadTable.mu). It must never be held while acquiring
// processMutex.
type threadMutex struct {
	mu sync.Mutex
}

var threadprefixIndex *locking.MutexClass

var threadlockNames []string

type threadlockNameIndex int

const ()

// Lock locks m.
// +checklocksignore
func (m *threadMutex) Lock() {
	locking.AddGLock(threadprefixIndex, -1)
	m.mu.Lock()
}

// NestedLock locks m knowing that another lock of the same type is held.
// +checklocksignore
func (m *threadMutex) NestedLock(i threadlockNameIndex) {
	locking.AddGLock(threadprefixIndex, int(i))
	m.mu.Lock()
}

// Unlock unlocks m.
// +checklocksignore
func (m *threadMutex) Unlock() {
	locking.DelGLock(threadprefixIndex, -1)
	m.mu.Unlock()
}

// NestedUnlock unlocks m knowing that another lock of the same type is held.
// +checklocksignore
func (m *threadMutex) NestedUnlock(i threadlockNameIndex) {
	locking.DelGLock(threadprefixIndex, int(i))
	m.mu.Unlock()
}

func threadinitLockNames() {}

func init() {
	threadinitLockNames()
	threadprefixIndex = locking.NewMutexClass(reflect.TypeOf(threadMutex{}), threadlockNames)
}
