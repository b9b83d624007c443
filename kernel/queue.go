package kernel

// Queue is a bounded FIFO for passing values between threads. Put
// blocks while the queue is full and Get blocks while it is empty,
// both release the calling thread to the scheduler rather than
// spinning.
type Queue struct {
	k        *Kernel
	mu       *Mutex
	notEmpty *Cond
	notFull  *Cond
	slots    []any
	head     int
	count    int
}

// NewQueue creates a queue holding at most size values. A non-positive
// size is fatal.
func (k *Kernel) NewQueue(size int) *Queue {
	if size <= 0 {
		k.fatalf("NewQueue: invalid size %d", size)
	}
	return &Queue{
		k:        k,
		mu:       k.NewMutex(MutexStandard),
		notEmpty: k.NewCond(),
		notFull:  k.NewCond(),
		slots:    make([]any, size),
	}
}

// Put appends v, blocking while the queue is full.
func (q *Queue) Put(v any) {
	q.mu.Lock()
	for q.count == len(q.slots) {
		q.notFull.Wait(q.mu)
	}
	q.slots[(q.head+q.count)%len(q.slots)] = v
	q.count++
	q.mu.Unlock()
	q.notEmpty.Signal()
}

// TryPut appends v only if the queue has room, reporting whether it
// did.
func (q *Queue) TryPut(v any) bool {
	q.mu.Lock()
	if q.count == len(q.slots) {
		q.mu.Unlock()
		return false
	}
	q.slots[(q.head+q.count)%len(q.slots)] = v
	q.count++
	q.mu.Unlock()
	q.notEmpty.Signal()
	return true
}

// Get removes and returns the oldest value, blocking while the queue
// is empty.
func (q *Queue) Get() any {
	q.mu.Lock()
	for q.count == 0 {
		q.notEmpty.Wait(q.mu)
	}
	v := q.slots[q.head]
	q.slots[q.head] = nil
	q.head = (q.head + 1) % len(q.slots)
	q.count--
	q.mu.Unlock()
	q.notFull.Signal()
	return v
}

// TryGet removes and returns the oldest value if there is one.
func (q *Queue) TryGet() (any, bool) {
	q.mu.Lock()
	if q.count == 0 {
		q.mu.Unlock()
		return nil, false
	}
	v := q.slots[q.head]
	q.slots[q.head] = nil
	q.head = (q.head + 1) % len(q.slots)
	q.count--
	q.mu.Unlock()
	q.notFull.Signal()
	return v, true
}

// Peek returns the oldest value without removing it.
func (q *Queue) Peek() (any, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return nil, false
	}
	return q.slots[q.head], true
}

// Count returns the number of queued values.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Size returns the queue capacity.
func (q *Queue) Size() int { return len(q.slots) }

// Empty reports whether the queue holds no values.
func (q *Queue) Empty() bool { return q.Count() == 0 }

// Full reports whether the queue is at capacity.
func (q *Queue) Full() bool { return q.Count() == len(q.slots) }

// Destroy releases the queue's primitives. Destroying a queue with
// blocked threads is fatal.
func (q *Queue) Destroy() {
	q.notEmpty.Destroy()
	q.notFull.Destroy()
	q.mu.Destroy()
	q.slots = nil
}
