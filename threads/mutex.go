package threads

import (
	"time"

	"kestrel/kernel"
)

// Mutex type bits, combined at Init.
const (
	Plain     = 1 << 0
	Recursive = 1 << 1
	Timed     = 1 << 2
)

// Mutex wraps a kernel mutex behind the C11 surface. The zero value is
// unusable; call Init first.
type Mutex struct {
	mu *kernel.Mutex
}

// Init creates the underlying kernel mutex. The Recursive bit selects
// recursive locking; Plain and Timed are accepted for completeness.
func (m *Mutex) Init(typ int) Result {
	kind := kernel.MutexStandard
	if typ&Recursive != 0 {
		kind = kernel.MutexRecursive
	}
	m.mu = sys().NewMutex(kind)
	return Success
}

// Lock acquires the mutex, blocking while it is held elsewhere.
func (m *Mutex) Lock() Result {
	m.mu.Lock()
	return Success
}

// TryLock acquires the mutex only if it is immediately available.
func (m *Mutex) TryLock() Result {
	if !m.mu.TryLock(0) {
		return Busy
	}
	return Success
}

// TimedLock acquires the mutex, giving up at the deadline.
func (m *Mutex) TimedLock(deadline time.Time) Result {
	if !m.mu.TryLock(ticksUntil(sys(), deadline)) {
		return Busy
	}
	return Success
}

// Unlock releases the mutex.
func (m *Mutex) Unlock() Result {
	m.mu.Unlock()
	return Success
}

// Destroy releases the mutex resources.
func (m *Mutex) Destroy() {
	m.mu.Destroy()
	m.mu = nil
}
