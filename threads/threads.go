// Package threads is a thin standard-library-shaped layer over the
// kernel scheduler, modeled on the C11 threads API: result codes
// instead of fatal asserts where C11 allows failure, durations and
// deadlines instead of raw ticks. It operates on the running kernel,
// so kernel.Init must have been called.
package threads

import (
	"time"

	"kestrel/kernel"
)

// Result is the C11-style status code of a wrapper operation.
type Result int

const (
	Success  Result = 0
	NoMem    Result = -1
	TimedOut Result = -2
	Busy     Result = -3
	Error    Result = -999
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case NoMem:
		return "out of memory"
	case TimedOut:
		return "timed out"
	case Busy:
		return "busy"
	default:
		return "error"
	}
}

// DefaultStackSize is the stack size used by Create.
const DefaultStackSize = 4 * 1024

func sys() *kernel.Kernel {
	k := kernel.Running()
	if k == nil {
		panic("threads: kernel is not running")
	}
	return k
}

// Thread is a handle to a kernel thread.
type Thread struct {
	th *kernel.Thread
}

// Create starts an unnamed priority-0 thread with the default stack.
func Create(fn func(arg any) int, arg any) (Thread, Result) {
	return CreateEx("<unnamed>", DefaultStackSize, 0, fn, arg)
}

// CreateEx starts a thread with an explicit name, stack size and
// priority.
func CreateEx(name string, stackSize int, pri kernel.Pri, fn func(arg any) int, arg any) (Thread, Result) {
	th, err := sys().New(name, stackSize, pri, fn, arg)
	if err != nil {
		return Thread{}, NoMem
	}
	return Thread{th: th}, Success
}

// Current returns the calling thread.
func Current() Thread {
	return Thread{th: sys().Current()}
}

// Equal reports whether two handles name the same thread.
func Equal(a, b Thread) bool { return a.th == b.th }

// Join waits for the thread to exit and returns its result.
func (t Thread) Join() (int, Result) {
	return t.th.Join(), Success
}

// Detach marks the thread as never-joined.
func (t Thread) Detach() Result {
	t.th.Detach()
	return Success
}

// Exit terminates the calling thread. It does not return.
func Exit(res int) {
	sys().Exit(res)
}

// Yield offers the CPU to any ready thread of priority >= the caller's.
func Yield() {
	sys().Yield()
}

// Sleep blocks the calling thread for at least the given duration,
// rounded to kernel ticks.
func Sleep(d time.Duration) {
	k := sys()
	k.Sleep(durationToTicks(k, d))
}

func durationToTicks(k *kernel.Kernel, d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	ticks := uint64(d) * k.Clock().TickRate() / uint64(time.Second)
	if ticks == 0 {
		ticks = 1
	}
	return uint32(ticks)
}

// ticksUntil converts an absolute deadline into relative ticks at call
// time. A deadline in the past yields 0, turning timed operations into
// non-blocking attempts.
func ticksUntil(k *kernel.Kernel, deadline time.Time) uint32 {
	return durationToTicks(k, time.Until(deadline))
}
