package kernel

// MutexType selects standard or recursive locking behavior at creation.
type MutexType uint8

const (
	// MutexStandard mutexes are fatal to re-lock from the owner.
	MutexStandard MutexType = iota
	// MutexRecursive mutexes count nested locks by the owner.
	MutexRecursive
)

// Mutex provides mutual exclusion between kernel threads. Waiters are
// queued in priority order; a final unlock releases the whole waiting
// list back to the scheduler at once, so the highest-priority waiter
// wins the next acquisition race.
//
// There is no priority inheritance: priority inversion is possible.
type Mutex struct {
	k       *Kernel
	owner   tid // noThread iff counter == 0
	counter int
	typ     MutexType
	waiting thList
}

// NewMutex creates a mutex.
func (k *Kernel) NewMutex(typ MutexType) *Mutex {
	return &Mutex{k: k, owner: noThread, typ: typ, waiting: newThList()}
}

// Lock acquires the mutex, blocking while another thread owns it.
// Re-locking a standard mutex from its owner is fatal; a recursive
// mutex increments its counter instead.
func (m *Mutex) Lock() {
	m.k.enter()
	m.lockLocked()
	m.k.leave()
}

func (m *Mutex) lockLocked() {
	k := m.k
	t := k.cur
	if m.owner == t.id {
		if m.typ != MutexRecursive {
			k.fatalf("a non-recursive mutex cannot be locked twice")
		}
		m.counter++
		return
	}
	for m.owner != noThread {
		k.listAddPri(&m.waiting, t)
		k.reschedule(trapVoluntary)
	}
	m.owner = t.id
	m.counter = 1
}

// TryLock attempts to acquire the mutex, waiting at most the given
// number of ticks (0 means do not wait at all). It reports whether the
// lock was acquired.
func (m *Mutex) TryLock(ticks uint32) bool {
	k := m.k
	k.enter()
	defer k.leave()
	t := k.cur

	if m.owner == t.id {
		if m.typ != MutexRecursive {
			k.fatalf("a non-recursive mutex cannot be locked twice")
		}
		m.counter++
		return true
	}
	if m.owner == noThread {
		m.owner = t.id
		m.counter = 1
		return true
	}
	if ticks == 0 {
		return false
	}
	if k.timers == nil {
		k.fatalf("TryLock with a timeout requires a timer service")
	}

	timedOut := false
	timer := k.timers.After(ticks, func() {
		k.Interrupt(func() {
			k.debugf("mutex timeout: %s[%d]", t.name, t.id)
			timedOut = true
			// Only wake the thread if it is still queued on the
			// mutex: a concurrent unlock may already have moved it to
			// the ready list.
			if k.listRemove(&m.waiting, t) {
				k.listAddPri(&k.ready, t)
			}
			k.forceSchedule = true
		})
	})

	for m.owner != noThread && !timedOut {
		k.listAddPri(&m.waiting, t)
		k.reschedule(trapVoluntary)
	}
	if timedOut {
		return false
	}
	timer.Stop()
	m.owner = t.id
	m.counter = 1
	return true
}

// unlockLocked drops one level of ownership. At zero it releases every
// waiter to the scheduler and reports whether any of them outranks the
// current thread.
func (m *Mutex) unlockLocked() bool {
	k := m.k
	m.counter--
	if m.counter > 0 {
		return false
	}
	m.owner = noThread
	return k.listSplicePri(&k.ready, &m.waiting)
}

// Unlock releases the mutex. Unlocking a mutex not owned by the caller
// is fatal. If the release wakes a waiter that outranks the caller, the
// caller yields before returning.
func (m *Mutex) Unlock() {
	k := m.k
	k.enter()
	if m.owner != k.cur.id {
		k.fatalf("Unlock of a mutex not locked by %q", k.cur.name)
	}
	if m.counter <= 0 {
		k.fatalf("Unlock of an unlocked mutex")
	}
	if m.unlockLocked() {
		k.yieldLocked()
	}
	k.leave()
}

// Destroy checks that the mutex is idle. Destroying an owned mutex or
// one with waiters is fatal.
func (m *Mutex) Destroy() {
	k := m.k
	k.enter()
	if m.owner != noThread {
		k.fatalf("Destroy of a mutex locked by %q", k.thread(m.owner).name)
	}
	if m.waiting.head != noThread {
		k.fatalf("Destroy of a mutex with waiting threads")
	}
	k.leave()
}
