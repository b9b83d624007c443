package kernel

// Line identifies a maskable interrupt line.
type Line uint8

const (
	// LineTimer is raised by the one-shot timer service.
	LineTimer Line = iota
	// LineVBlank is raised once per display refresh.
	LineVBlank
	// LineAudio is raised when the audio buffer drains.
	LineAudio
	// LineSerial is raised on serial transfer completion.
	LineSerial
	// LineDMA is raised on DMA transfer completion.
	LineDMA
	// LineSoft is free for software use.
	LineSoft

	// NumLines is the number of interrupt lines.
	NumLines = 6
)

// Handle registers a handler for an interrupt line. Handlers run in
// interrupt context: they may wake threads and request deferred
// preemption (Cond.BroadcastISR), but must not block or switch
// synchronously.
func (k *Kernel) Handle(line Line, fn func()) {
	k.enter()
	k.irqHandlers[line] = append(k.irqHandlers[line], fn)
	k.leave()
}

// Raise dispatches one hardware interrupt on the given line: the global
// interrupt-event counter advances, the line's handlers run, waiters on
// the line wake, and any requested preemption is consumed on the
// interrupt-return path.
func (k *Kernel) Raise(line Line) {
	k.Interrupt(func() {
		for _, fn := range k.irqHandlers[line] {
			fn()
		}
		if k.listSplicePri(&k.ready, &k.irqConds[line].waiting) {
			k.forceSchedule = true
		}
	})
}

// Interrupt runs fn in interrupt context: interrupts are masked, the
// interrupt nesting depth and the event counter advance, and when the
// outermost interrupt returns any preemption requested by fn (or by the
// threads it woke) is consumed.
//
// The actual register swap never happens inside a handler: a switch is
// only requested here and performed by the scheduler entry point, at
// the running thread's next kernel entry, or immediately if the idle
// thread holds the CPU.
func (k *Kernel) Interrupt(fn func()) {
	k.mu.Lock()
	k.intDepth++
	k.irqEvents++
	fn()
	k.intDepth--

	if k.forceSchedule && k.intDepth == 0 {
		k.forceSchedule = false
		if k.cur == k.idle {
			// The idle thread never holds the CPU against anyone:
			// poke it off right away.
			select {
			case k.idlePoke <- struct{}{}:
			default:
			}
		} else {
			k.preemptPending = true
		}
	}
	k.mu.Unlock()
}

// IntDepth returns the current interrupt nesting depth. Diagnostic.
func (k *Kernel) IntDepth() int {
	k.mu.Lock()
	d := k.intDepth
	k.mu.Unlock()
	return d
}
