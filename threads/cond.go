package threads

import (
	"time"

	"kestrel/kernel"
)

// Cond wraps a kernel condition variable behind the C11 surface. The
// zero value is unusable; call Init first.
type Cond struct {
	cond *kernel.Cond
}

// Init creates the underlying kernel condition variable.
func (c *Cond) Init() Result {
	c.cond = sys().NewCond()
	return Success
}

// Wait blocks until the condition is signaled, releasing and
// re-acquiring the mutex around the wait.
func (c *Cond) Wait(m *Mutex) Result {
	c.cond.Wait(m.mu)
	return Success
}

// TimedWait is Wait bounded by an absolute deadline. It returns
// TimedOut if the deadline passes first; the mutex is re-held either
// way.
func (c *Cond) TimedWait(m *Mutex, deadline time.Time) Result {
	if !c.cond.WaitTimeout(m.mu, ticksUntil(sys(), deadline)) {
		return TimedOut
	}
	return Success
}

// Signal wakes one waiter.
func (c *Cond) Signal() Result {
	c.cond.Signal()
	return Success
}

// Broadcast wakes every waiter.
func (c *Cond) Broadcast() Result {
	c.cond.Broadcast()
	return Success
}

// Destroy releases the condition variable resources.
func (c *Cond) Destroy() {
	c.cond.Destroy()
	c.cond = nil
}
