package kernel

// Semaphore is a counting semaphore built on a mutex and a condition
// variable.
type Semaphore struct {
	k     *Kernel
	mu    *Mutex
	cond  *Cond
	count int
}

// NewSemaphore creates a semaphore with the given initial count. A
// negative count is fatal.
func (k *Kernel) NewSemaphore(count int) *Semaphore {
	if count < 0 {
		k.fatalf("NewSemaphore: invalid count %d", count)
	}
	return &Semaphore{
		k:     k,
		mu:    k.NewMutex(MutexStandard),
		cond:  k.NewCond(),
		count: count,
	}
}

// Wait decrements the semaphore, blocking while the count is zero.
func (s *Semaphore) Wait() {
	s.mu.Lock()
	for s.count == 0 {
		s.cond.Wait(s.mu)
	}
	s.count--
	s.mu.Unlock()
}

// TryWait decrements the semaphore if it can do so within the given
// number of ticks, reporting whether it did. Zero ticks makes it a
// pure non-blocking attempt.
func (s *Semaphore) TryWait(ticks uint32) bool {
	k := s.k
	if !s.mu.TryLock(ticks) {
		return false
	}
	if s.count > 0 {
		s.count--
		s.mu.Unlock()
		return true
	}
	if ticks == 0 {
		s.mu.Unlock()
		return false
	}
	if k.clock == nil {
		k.fatalf("Semaphore.TryWait requires a clock")
	}
	deadline := k.clock.Ticks() + uint64(ticks)
	for s.count == 0 {
		now := k.clock.Ticks()
		if now >= deadline {
			s.mu.Unlock()
			return false
		}
		s.cond.WaitTimeout(s.mu, uint32(deadline-now))
	}
	s.count--
	s.mu.Unlock()
	return true
}

// Post increments the semaphore and wakes one waiter.
func (s *Semaphore) Post() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	s.cond.Signal()
}

// Count returns the current count.
func (s *Semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Destroy releases the semaphore's primitives. Destroying a semaphore
// with blocked threads is fatal.
func (s *Semaphore) Destroy() {
	s.cond.Destroy()
	s.mu.Destroy()
}
