package kernel

import "runtime"

const (
	// flagZombie marks a dead detached thread awaiting reclamation.
	flagZombie uint8 = 1 << iota
	// flagInList marks membership in a wait or ready list. Sleeping
	// and joining threads also carry it: they are not threaded on a
	// list, but something (a timer, the target's exit) is registered
	// to wake them, which is what the flag really means.
	flagInList
	// flagDetached marks a thread that nobody will join.
	flagDetached
	// flagWaitForJoin marks a non-detached thread that exited and is
	// holding its result for a future join.
	flagWaitForJoin
	// flagSuspended makes the dispatcher park the thread aside until
	// Resume.
	flagSuspended
)

const (
	mainStackSize = 0x10000
	idleStackSize = 4096
)

// shadowState is per-thread kernel state mirrored into globals while
// the thread runs.
type shadowState struct {
	intDepth int
}

type resumeReason uint8

const (
	resumeDispatch resumeReason = iota
	resumeKilled
)

// Thread is a kernel thread control block. Create one with Kernel.New;
// the kernel schedules it until it exits, at which point it is
// reclaimed either lazily (detached) or by Join.
type Thread struct {
	k    *Kernel
	id   tid
	name string
	pri  Pri

	flags uint8
	next  tid // intrusive link, shared across ready/wait lists

	entry func(arg any) int
	arg   any

	joiner       tid
	joinedResult int

	// resume is the context token: the thread's goroutine parks on it
	// and the dispatcher signals it to hand over the CPU (and the
	// scheduler mask).
	resume chan resumeReason

	shadow shadowState

	stackBlock []byte // guard + stack, one allocation, freed once
	stackSize  int
	freed      bool
}

// New creates a thread and inserts it into the ready list. The stack
// size must be a multiple of 8. If the new thread's priority is >= the
// creator's, the creator yields immediately, so the new thread runs
// before New returns.
//
// Allocation failure is reported as ErrOutOfMemory; it is the only
// error New can return.
func (k *Kernel) New(name string, stackSize int, pri Pri, entry func(arg any) int, arg any) (*Thread, error) {
	if stackSize <= 0 || stackSize%8 != 0 {
		k.fatalf("thread %q stack size %d is not a positive multiple of 8", name, stackSize)
	}
	block := k.alloc.Alloc(stackGuard + stackSize)
	if block == nil {
		return nil, ErrOutOfMemory
	}
	writeStackGuard(block)

	t := &Thread{
		k:          k,
		name:       name,
		pri:        pri,
		entry:      entry,
		arg:        arg,
		joiner:     noThread,
		next:       noThread,
		resume:     make(chan resumeReason, 1),
		stackBlock: block,
		stackSize:  stackSize,
	}

	k.enter()
	t.id = k.addToArena(t)
	k.count++
	k.listAddPri(&k.ready, t)
	go k.boot(t)
	k.debugf("created %s[%d] pri=%d", t.name, t.id, t.pri)

	// Preserve the invariant that a higher-or-equal-priority thread is
	// scheduled as soon as it becomes ready.
	if t.pri >= k.cur.pri {
		k.yieldLocked()
	}
	k.leave()
	return t, nil
}

// boot runs on the thread's goroutine: it waits for the first dispatch,
// invokes the user entry and exits the thread with its return value.
func (k *Kernel) boot(t *Thread) {
	if <-t.resume == resumeKilled {
		return
	}
	// First dispatch: the dispatcher handed us the scheduler mask.
	k.debugf("booting %s[%d]", t.name, t.id)
	k.mu.Unlock()

	res := t.entry(t.arg)
	k.debugf("thread end: %s[%d] res=%d", t.name, t.id, res)
	k.Exit(res)
}

// Name returns the thread name.
func (t *Thread) Name() string { return t.name }

// Pri returns the thread priority.
func (t *Thread) Pri() Pri {
	t.k.enter()
	pri := t.pri
	t.k.leave()
	return pri
}

// Stack returns the thread's stack buffer (excluding the guard area),
// usable as scratch storage belonging to the thread.
func (t *Thread) Stack() []byte {
	return t.stackBlock[stackGuard:]
}

// Exit terminates the calling thread with the given result. It does not
// return.
func (k *Kernel) Exit(res int) {
	k.enter()
	k.killLocked(k.cur, res)
	// killLocked switched away for good; unwind the goroutine.
	runtime.Goexit()
}

// Kill terminates a thread with the given result, as if it had called
// Exit. Killing a thread that is blocked on a primitive or holds
// resources is undefined and unsafe: there is no cleanup hook.
func (t *Thread) Kill(res int) {
	k := t.k
	k.enter()
	self := t == k.cur
	k.killLocked(t, res)
	if self {
		runtime.Goexit()
	}
	k.leave()
}

func (k *Kernel) killLocked(t *Thread, res int) {
	if t.flags&(flagZombie|flagWaitForJoin) != 0 {
		k.fatalf("thread %q killed twice", t.name)
	}
	k.debugf("killing %s[%d] flags=%x", t.name, t.id, t.flags)
	k.count--

	if t.flags&flagDetached != 0 {
		// A parked thread may be enqueued on a list we have no back
		// reference to, so it cannot be freed here. Mark it zombie;
		// the dispatcher reclaims it the next time it comes up.
		t.flags |= flagZombie
		if t != k.cur {
			// If it is parked in a scheduler-owned list we can reap
			// it right away.
			if k.listRemove(&k.ready, t) || k.listRemove(&k.stash, t) {
				k.freeThread(t)
				t.resume <- resumeKilled
			}
		}
	} else {
		if t != k.cur {
			// A dead thread's composed context is discarded: if it is
			// parked in a scheduler-owned list, unwind its goroutine.
			if k.listRemove(&k.ready, t) || k.listRemove(&k.stash, t) {
				t.resume <- resumeKilled
			}
		}
		t.flags |= flagWaitForJoin
		t.joinedResult = res
		if t.joiner != noThread {
			// Hand the result to the waiting joiner and wake it. The
			// joiner frees the TCB once it resumes.
			j := k.thread(t.joiner)
			j.joinedResult = res
			j.flags &^= flagInList
			k.listAddPri(&k.ready, j)
		}
	}

	// A thread killing itself just forces a context switch: the
	// scheduler disposes of it immediately.
	if t == k.cur {
		k.reschedule(trapVoluntary)
	}
}

// Join blocks until the thread exits and returns its result, freeing
// its storage. If the thread already exited, the stored result is
// returned without blocking. Joining a detached thread is fatal; only
// one joiner is supported.
func (t *Thread) Join() int {
	k := t.k
	k.enter()
	if t.flags&flagDetached != 0 {
		k.fatalf("cannot join the detached thread %q", t.name)
	}

	if t.flags&flagWaitForJoin != 0 {
		res := t.joinedResult
		k.freeThread(t)
		k.leave()
		return res
	}

	if t.joiner != noThread {
		k.fatalf("thread %q is already joined by %q", t.name, k.thread(t.joiner).name)
	}
	cur := k.cur
	t.joiner = cur.id
	// The joiner is not threaded on any list, but the target's exit is
	// registered to wake it.
	cur.flags |= flagInList
	k.reschedule(trapVoluntary)

	res := cur.joinedResult
	k.freeThread(t)
	k.leave()
	return res
}

// TryJoin is the non-blocking Join: it succeeds only if the thread has
// already exited.
func (t *Thread) TryJoin() (int, bool) {
	k := t.k
	k.enter()
	if t.flags&flagDetached != 0 {
		k.fatalf("cannot join the detached thread %q", t.name)
	}
	if t.flags&flagWaitForJoin == 0 {
		k.leave()
		return 0, false
	}
	res := t.joinedResult
	k.freeThread(t)
	k.leave()
	return res, true
}

// Detach marks the thread as never-joined: its storage is reclaimed
// lazily after it exits. Detaching a thread that already exited (its
// result would be orphaned) or detaching twice is fatal.
func (t *Thread) Detach() {
	k := t.k
	k.enter()
	if t.flags&flagWaitForJoin != 0 {
		k.fatalf("cannot detach thread %q: it already exited", t.name)
	}
	if t.flags&flagDetached != 0 {
		k.fatalf("thread %q is already detached", t.name)
	}
	t.flags |= flagDetached
	k.leave()
}

// Suspend makes the dispatcher skip the thread until Resume. A running
// thread keeps running until its next context switch.
func (t *Thread) Suspend() {
	k := t.k
	k.enter()
	t.flags |= flagSuspended
	k.leave()
}

// Resume clears the suspension and, if the dispatcher had parked the
// thread aside, makes it runnable again.
func (t *Thread) Resume() {
	k := t.k
	k.enter()
	t.flags &^= flagSuspended
	if k.listRemove(&k.stash, t) {
		k.listAddPri(&k.ready, t)
	}
	k.leave()
}

// SetPri changes the thread priority. User-settable priorities are
// non-negative. The caller yields if the change makes a ready thread
// eligible to run.
func (t *Thread) SetPri(pri Pri) {
	k := t.k
	if pri < 0 {
		k.fatalf("thread priority cannot be negative")
	}
	k.enter()
	t.pri = pri
	k.yieldLocked()
	k.leave()
}

// Yield forces a context switch if a ready thread has priority >= the
// current one; otherwise switching would be a no-op and it returns
// immediately.
func (k *Kernel) Yield() {
	k.enter()
	k.yieldLocked()
	k.leave()
}

func (k *Kernel) yieldLocked() {
	if t := k.listHead(&k.ready); t != nil && t.pri >= k.cur.pri {
		k.debugf("yielding: %s[%d]", k.cur.name, k.cur.id)
		k.listAddPri(&k.ready, k.cur)
		k.reschedule(trapVoluntary)
	}
}

// Sleep blocks the calling thread for the given number of ticks. The
// wakeup runs from the timer interrupt and requests deferred
// preemption.
func (k *Kernel) Sleep(ticks uint32) {
	k.enter()
	if k.timers == nil {
		k.fatalf("Sleep requires a timer service")
	}
	t := k.cur
	k.debugf("sleeping %d ticks: %s[%d]", ticks, t.name, t.id)
	k.timers.After(ticks, func() {
		k.Interrupt(func() {
			k.debugf("sleep finished: %s[%d]", t.name, t.id)
			t.flags &^= flagInList
			k.listAddPri(&k.ready, t)
			k.forceSchedule = true
		})
	})
	// Not threaded on a list, but the timer is registered to wake us.
	t.flags |= flagInList
	k.reschedule(trapVoluntary)
	k.leave()
}

// freeThread releases a TCB and its stack block. Freeing twice is
// fatal.
func (k *Kernel) freeThread(t *Thread) {
	if t.freed {
		k.fatalf("thread %q freed twice", t.name)
	}
	k.debugf("freeing %s[%d]", t.name, t.id)
	t.freed = true
	k.alloc.Free(t.stackBlock)
	k.threads[t.id] = nil
	k.freeIDs = append(k.freeIDs, t.id)
}
