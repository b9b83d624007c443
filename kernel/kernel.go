// Package kernel implements a minimal preemptive, priority-based
// multithreading kernel modeled after single-core embedded targets.
//
// Threads are cooperative goroutines multiplexed onto a single logical
// CPU: at any moment exactly one thread's user code is running.
// Rescheduling happens through explicit traps (yield, blocking on a
// primitive) or through deferred preemption requested from interrupt
// context. All scheduler state is protected by a single mask, the
// software analog of disabling maskable interrupts.
package kernel

import (
	"errors"
	"fmt"
	"sync"
)

// Pri is a thread priority. User threads use values >= 0; higher values
// are scheduled first. PriIdle is reserved for the kernel idle thread.
type Pri int8

// PriIdle is the reserved priority of the idle thread, lower than any
// user priority.
const PriIdle Pri = -128

// ErrOutOfMemory is returned by New when the thread stack cannot be
// allocated. It is the only recoverable error in the kernel: every
// other misuse is fatal.
var ErrOutOfMemory = errors.New("kernel: out of memory")

// Clock is a monotonic tick source.
type Clock interface {
	// Ticks returns the current tick count.
	Ticks() uint64
	// TickRate returns the number of ticks per second.
	TickRate() uint64
}

// Timer is a one-shot timer registration that can be canceled.
type Timer interface {
	// Stop cancels the timer. Stopping an elapsed timer is a no-op.
	Stop()
}

// TimerService provides cancelable one-shot timers. The callback runs
// in an arbitrary goroutine; the kernel wraps it in its own interrupt
// entry before it touches scheduler state.
type TimerService interface {
	After(ticks uint32, fn func()) Timer
}

// Allocator provides the heap for thread stack blocks. Each block is
// allocated once at thread creation and freed exactly once when the
// thread is reclaimed.
type Allocator interface {
	Alloc(n int) []byte
	Free(b []byte)
}

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
}

// Config carries the kernel collaborators.
type Config struct {
	// Clock is the monotonic tick source. Required by the semaphore
	// timed wait and the threads wrapper; the core scheduler does not
	// read it.
	Clock Clock
	// Timers provides one-shot timers for Sleep and the timed
	// lock/wait variants. Using those operations without a timer
	// service is fatal.
	Timers TimerService
	// Alloc is the stack allocator. Nil selects the built-in heap
	// allocator.
	Alloc Allocator
	// Log receives debug traces when Debug is set.
	Log Logger
	// Debug enables scheduler trace logging.
	Debug bool
}

// Kernel is the scheduler: the current thread, the priority-sorted
// ready list, the idle thread and the live-thread count. It owns every
// thread control block for the lifetime between Init and Close.
type Kernel struct {
	mu sync.Mutex // the interrupt mask: guards all scheduler state

	clock  Clock
	timers TimerService
	alloc  Allocator
	log    Logger
	debug  bool

	threads []*Thread // TCB arena, indexed by tid
	freeIDs []tid

	cur   *Thread
	main  *Thread
	idle  *Thread
	ready thList // runnable threads, priority sorted
	stash thList // suspended threads parked by the dispatcher
	count int    // live threads, including main and idle

	// Deferred preemption requested from interrupt context.
	forceSchedule  bool
	preemptPending bool

	intDepth  int    // interrupt nesting depth, mirrored per-thread
	irqEvents uint64 // bumped once per interrupt dispatch

	irqConds    [NumLines]*Cond
	irqHandlers [NumLines][]func()

	idlePoke chan struct{}
	dead     bool
}

var (
	initMu  sync.Mutex
	running *Kernel
)

// Init brings up the kernel: the calling goroutine becomes the
// permanent "main" thread (priority 0, detached) and the idle thread is
// created. Init is idempotent; a second call returns the live kernel.
func Init(cfg Config) *Kernel {
	initMu.Lock()
	if running != nil {
		k := running
		initMu.Unlock()
		return k
	}

	k := &Kernel{
		clock:    cfg.Clock,
		timers:   cfg.Timers,
		alloc:    cfg.Alloc,
		log:      cfg.Log,
		debug:    cfg.Debug,
		ready:    newThList(),
		stash:    newThList(),
		idlePoke: make(chan struct{}, 1),
	}
	if k.alloc == nil {
		k.alloc = heapAllocator{}
	}
	for i := range k.irqConds {
		k.irqConds[i] = &Cond{k: k, waiting: newThList()}
	}

	// Convert the calling goroutine into the main thread. Main cannot
	// be joined.
	main := &Thread{
		k:      k,
		name:   "main",
		pri:    0,
		flags:  flagDetached,
		joiner: noThread,
		next:   noThread,
		resume: make(chan resumeReason, 1),
	}
	main.stackBlock = k.alloc.Alloc(stackGuard + mainStackSize)
	main.stackSize = mainStackSize
	writeStackGuard(main.stackBlock)
	main.id = k.addToArena(main)
	k.main = main
	k.cur = main
	k.count = 1

	running = k
	initMu.Unlock()

	idle, err := k.New("idle", idleStackSize, PriIdle, k.idleLoop, nil)
	if err != nil {
		k.fatalf("cannot allocate the idle thread: %v", err)
	}
	idle.Detach()
	k.idle = idle
	return k
}

// Running returns the live kernel, or nil before Init (or after Close).
func Running() *Kernel {
	initMu.Lock()
	k := running
	initMu.Unlock()
	return k
}

// Close tears down the kernel. It must be called from the main thread
// after every user thread has exited; anything else is fatal. The idle
// thread is killed and reclaimed here.
func (k *Kernel) Close() {
	k.enter()
	if k.idle == nil {
		k.fatalf("kernel is not running")
	}
	if k.cur != k.main {
		k.fatalf("Close must be called from the main thread, not %q", k.cur.name)
	}

	// Kill the idle thread. It is parked in the ready list (main is
	// running), so it can be reaped synchronously.
	idle := k.idle
	k.count--
	if !k.listRemove(&k.ready, idle) {
		k.fatalf("idle thread not parked in the ready list")
	}
	k.freeThread(idle)
	idle.resume <- resumeKilled
	k.idle = nil

	if k.count != 1 {
		k.fatalf("Close with %d threads still alive", k.count-1)
	}

	k.cur = nil
	k.forceSchedule = false
	k.preemptPending = false
	k.freeThread(k.main)

	initMu.Lock()
	if running == k {
		running = nil
	}
	initMu.Unlock()
	k.leave()
}

// Current returns the running thread.
func (k *Kernel) Current() *Thread {
	k.enter()
	t := k.cur
	k.leave()
	return t
}

// Count returns the number of live threads, including main and idle.
func (k *Kernel) Count() int {
	k.enter()
	n := k.count
	k.leave()
	return n
}

// Clock returns the configured tick source (possibly nil).
func (k *Kernel) Clock() Clock { return k.clock }

// Checkpoint is an explicit preemption point. A thread running a long
// computation without kernel calls can invoke it periodically so that
// deferred preemption requested by interrupts takes effect.
func (k *Kernel) Checkpoint() {
	k.enter()
	k.leave()
}

// enter masks interrupts for a thread-context kernel entry and consumes
// any preemption deferred by an interrupt, the analog of running the
// scheduler on the interrupt-return path.
func (k *Kernel) enter() {
	k.mu.Lock()
	if k.preemptPending && k.cur != nil {
		k.preemptPending = false
		k.reschedule(trapForced)
	}
}

// leave unmasks interrupts.
func (k *Kernel) leave() {
	k.mu.Unlock()
}

func (k *Kernel) debugf(format string, args ...any) {
	if k.debug && k.log != nil {
		k.log.WriteLineString("[kernel] " + fmt.Sprintf(format, args...))
	}
}

type heapAllocator struct{}

func (heapAllocator) Alloc(n int) []byte { return make([]byte, n) }
func (heapAllocator) Free([]byte)        {}
