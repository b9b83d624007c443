package kernel

// IRQWait observes interrupts on one line without losing events that
// fire between deciding to wait and actually blocking. BeginWaitIRQ
// snapshots the global interrupt counter; Wait only blocks if no
// interrupt has been dispatched since the snapshot.
type IRQWait struct {
	k      *Kernel
	line   Line
	events uint64
}

// BeginWaitIRQ arms a waiter on the given interrupt line. Call it
// before performing the work whose completion the interrupt announces,
// then call Wait.
func (k *Kernel) BeginWaitIRQ(line Line) *IRQWait {
	if line >= NumLines {
		k.fatalf("BeginWaitIRQ: invalid interrupt line %d", line)
	}
	w := &IRQWait{k: k, line: line}
	k.enter()
	w.events = k.irqEvents
	k.leave()
	return w
}

// Wait blocks until an interrupt has been dispatched since the last
// snapshot, then re-arms for the next one. If one already fired, Wait
// returns immediately.
func (w *IRQWait) Wait() {
	k := w.k
	k.enter()
	if k.irqEvents == w.events {
		k.irqConds[w.line].waitLocked(nil)
	}
	w.events = k.irqEvents
	k.leave()
}
