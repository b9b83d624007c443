package kernel

// Cond is a condition variable with priority-ordered waiters. It can be
// used with a mutex (released atomically while waiting, re-acquired
// before returning) or bare, for interrupt-style wakeups.
type Cond struct {
	k       *Kernel
	waiting thList
}

// NewCond creates a condition variable.
func (k *Kernel) NewCond() *Cond {
	return &Cond{k: k, waiting: newThList()}
}

// Wait blocks the calling thread until the condition is signaled. If m
// is non-nil it must be held exactly once (fatal otherwise); it is
// released atomically with enqueuing on the waiting list and
// re-acquired before Wait returns.
func (c *Cond) Wait(m *Mutex) {
	c.k.enter()
	c.waitLocked(m)
	c.k.leave()
}

func (c *Cond) waitLocked(m *Mutex) {
	k := c.k
	t := k.cur
	if m != nil {
		if m.owner != t.id {
			k.fatalf("Cond.Wait called by %q without holding the mutex", t.name)
		}
		if m.counter != 1 {
			k.fatalf("Cond.Wait called with the mutex locked %d times", m.counter)
		}
		m.unlockLocked()
	}
	k.listAddPri(&c.waiting, t)
	k.reschedule(trapVoluntary)
	if m != nil {
		m.lockLocked()
	}
}

// WaitTimeout is Wait bounded by a tick count. It reports whether the
// thread was signaled (false means the timer fired first). The mutex is
// required and is re-acquired in both outcomes.
func (c *Cond) WaitTimeout(m *Mutex, ticks uint32) bool {
	k := c.k
	k.enter()
	defer k.leave()
	t := k.cur
	if m == nil {
		k.fatalf("Cond.WaitTimeout requires a mutex")
	}
	if m.owner != t.id {
		k.fatalf("Cond.WaitTimeout called by %q without holding the mutex", t.name)
	}
	if m.counter != 1 {
		k.fatalf("Cond.WaitTimeout called with the mutex locked %d times", m.counter)
	}
	if k.timers == nil {
		k.fatalf("Cond.WaitTimeout requires a timer service")
	}

	m.unlockLocked()
	k.listAddPri(&c.waiting, t)

	timedOut := false
	timer := k.timers.After(ticks, func() {
		k.Interrupt(func() {
			k.debugf("cond timeout: %s[%d]", t.name, t.id)
			timedOut = true
			// Same race guard as the mutex timeout: wake the thread
			// only if a signal has not already moved it.
			if k.listRemove(&c.waiting, t) {
				k.listAddPri(&k.ready, t)
			}
			k.forceSchedule = true
		})
	})

	k.reschedule(trapVoluntary)

	if !timedOut {
		timer.Stop()
	}
	m.lockLocked()
	return !timedOut
}

// Signal wakes the highest-priority waiter, if any, and yields to it if
// it outranks the caller.
func (c *Cond) Signal() {
	k := c.k
	k.enter()
	if t := k.listPop(&c.waiting); t != nil {
		k.listAddPri(&k.ready, t)
		if t.pri > k.cur.pri {
			k.yieldLocked()
		}
	}
	k.leave()
}

// Broadcast wakes every waiter and yields if any of them outranks the
// caller.
func (c *Cond) Broadcast() {
	k := c.k
	k.enter()
	if k.listSplicePri(&k.ready, &c.waiting) {
		k.yieldLocked()
	}
	k.leave()
}

// BroadcastISR is the Broadcast variant for interrupt handlers: it
// performs the same wakeup but requests deferred preemption instead of
// switching synchronously, which is not valid while servicing an
// interrupt.
func (c *Cond) BroadcastISR() {
	k := c.k
	if k.intDepth == 0 {
		k.fatalf("BroadcastISR called outside interrupt context")
	}
	if k.listSplicePri(&k.ready, &c.waiting) {
		k.forceSchedule = true
	}
}

// Destroy checks that no thread is waiting; destroying a condition
// variable with waiters is fatal.
func (c *Cond) Destroy() {
	k := c.k
	k.enter()
	if c.waiting.head != noThread {
		k.fatalf("Destroy of a condition variable with waiting threads")
	}
	k.leave()
}
