package kernel

import (
	"encoding/binary"
	"runtime"
)

// trapKind discriminates the two ways a thread enters the scheduler: an
// explicit voluntary trap (yield, blocking on a primitive) or forced
// preemption requested from interrupt context.
type trapKind uint8

const (
	trapVoluntary trapKind = iota
	trapForced
)

const (
	stackGuard  = 64
	stackCookie = uint64(0xBAADC0DEFEEDFACE)
)

func writeStackGuard(block []byte) {
	for off := 0; off+8 <= stackGuard; off += 8 {
		binary.LittleEndian.PutUint64(block[off:], stackCookie)
	}
}

// checkStack validates the thread's stack guard. A corrupted guard is a
// stack overflow: a programming error, fatal by design.
func (k *Kernel) checkStack(t *Thread) {
	if t.stackBlock == nil {
		return
	}
	for off := 0; off+8 <= stackGuard; off += 8 {
		if binary.LittleEndian.Uint64(t.stackBlock[off:]) != stackCookie {
			k.fatalf("stack overflow in thread %q: stack guard is corrupted", t.name)
		}
	}
}

// reschedule is the scheduler entry point: it parks the current thread
// according to its flags and hands the CPU (and the scheduler mask) to
// the best ready thread.
//
// For a voluntary trap the outgoing thread must already be registered
// on a wait list, otherwise it could never be scheduled again; a forced
// preemption means it is still runnable and goes back into the ready
// list. If it exited instead, control is handed over and the call
// returns immediately so the caller can unwind its goroutine; in every
// other case reschedule blocks until the thread is dispatched again.
func (k *Kernel) reschedule(trap trapKind) {
	out := k.cur
	exiting := false

	k.checkStack(out)
	switch {
	case out.flags&flagZombie != 0:
		if out.flags&flagInList != 0 {
			k.fatalf("zombie %q is still in a list", out.name)
		}
		if out.flags&flagDetached == 0 {
			k.fatalf("zombie %q is not detached", out.name)
		}
		k.debugf("reaping zombie: %s[%d]", out.name, out.id)
		k.freeThread(out)
		exiting = true

	case out.flags&flagWaitForJoin != 0:
		// A non-detached thread that exited. Leave it alone: ownership
		// has moved to a future Join, which frees it.
		if out.flags&flagInList != 0 {
			k.fatalf("exited thread %q is still in a list", out.name)
		}
		if out.flags&flagDetached != 0 {
			k.fatalf("thread %q waits for a joiner but is detached", out.name)
		}
		exiting = true

	default:
		if trap == trapVoluntary {
			// An explicit trap must have registered a wakeup first,
			// otherwise the thread would be lost. The scheduler is
			// corrupted if this does not hold.
			if out.flags&flagInList == 0 {
				k.fatalf("voluntary switch by %q with no wakeup registered", out.name)
			}
		} else {
			if out.flags&flagInList != 0 {
				k.fatalf("preempted thread %q is already in a list", out.name)
			}
			k.listAddPri(&k.ready, out)
		}
		// Park the globals mirrored for this thread.
		out.shadow.intDepth = k.intDepth
	}

	next := k.dispatch()
	k.cur = next
	k.intDepth = next.shadow.intDepth
	if next == out {
		return
	}
	k.debugf("switching to %s[%d]", next.name, next.id)

	// Hand the CPU to the incoming thread. Ownership of the scheduler
	// mask transfers with it.
	next.resume <- resumeDispatch
	if exiting {
		return
	}
	if <-out.resume == resumeKilled {
		// Reaped while parked. The mask belongs to the dispatcher;
		// just unwind.
		runtime.Goexit()
	}
}

// dispatch pops ready threads until it finds a dispatchable one. The
// idle thread guarantees the list is never empty.
func (k *Kernel) dispatch() *Thread {
	for {
		t := k.listPop(&k.ready)
		if t == nil {
			k.fatalf("ready list is empty: the idle thread is gone")
		}
		if t.flags&flagZombie != 0 {
			// Killed while parked; it is off every list now, so this
			// is the safe moment to reclaim it.
			k.freeThread(t)
			t.resume <- resumeKilled
			continue
		}
		if t.flags&flagWaitForJoin != 0 {
			k.fatalf("exited thread %q reached the dispatcher", t.name)
		}
		if t.flags&flagSuspended != 0 {
			k.listAddPri(&k.stash, t)
			continue
		}
		return t
	}
}

// idleLoop is the body of the idle thread: the lowest-priority thread,
// always alive, so the ready list is never empty. It runs only when
// every other thread is blocked, and gives the CPU away as soon as an
// interrupt makes another thread ready.
func (k *Kernel) idleLoop(any) int {
	for {
		// Drain a stale poke from a wakeup we already acted on.
		select {
		case <-k.idlePoke:
		default:
		}

		k.enter()
		runnable := k.listHead(&k.ready) != nil
		if runnable {
			k.yieldLocked()
		}
		k.leave()

		if !runnable {
			<-k.idlePoke
		}
	}
}
