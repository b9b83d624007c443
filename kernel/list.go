package kernel

// tid is an index into the kernel's TCB arena. It doubles as the
// stable, domain-independent identity used for owner and waiter
// comparisons: lists and the mutex owner field store tids, and the
// arena lookup is the single translation step back to a *Thread.
type tid int16

// noThread is the nil tid.
const noThread tid = -1

// thList is an intrusive singly-linked thread list. The link lives in
// the TCB (Thread.next), so a thread can be a member of at most one
// list at a time; flagInList tracks membership and every mutation
// asserts it.
type thList struct {
	head tid
}

func newThList() thList { return thList{head: noThread} }

func (k *Kernel) addToArena(t *Thread) tid {
	if n := len(k.freeIDs); n > 0 {
		id := k.freeIDs[n-1]
		k.freeIDs = k.freeIDs[:n-1]
		k.threads[id] = t
		return id
	}
	k.threads = append(k.threads, t)
	return tid(len(k.threads) - 1)
}

// thread translates a tid into its TCB.
func (k *Kernel) thread(id tid) *Thread {
	if id == noThread {
		return nil
	}
	return k.threads[id]
}

// listHead peeks the head of a list without popping it.
func (k *Kernel) listHead(l *thList) *Thread {
	return k.thread(l.head)
}

// listAddPri inserts a thread into a priority-sorted list. The
// insertion point is after every entry of priority >= the thread's, so
// equal priorities stay FIFO.
func (k *Kernel) listAddPri(l *thList, t *Thread) {
	if t.flags&flagInList != 0 {
		k.fatalf("thread %q is already in a list", t.name)
	}
	t.flags |= flagInList

	prev := noThread
	cur := l.head
	for cur != noThread && k.threads[cur].pri >= t.pri {
		prev = cur
		cur = k.threads[cur].next
	}
	t.next = cur
	if prev == noThread {
		l.head = t.id
	} else {
		k.threads[prev].next = t.id
	}
}

// listPop removes and returns the head of a list (the highest-priority
// thread, if the list is sorted), or nil.
func (k *Kernel) listPop(l *thList) *Thread {
	t := k.thread(l.head)
	if t == nil {
		return nil
	}
	if t.flags&flagInList == 0 {
		k.fatalf("thread %q popped from a list it is not flagged in", t.name)
	}
	t.flags &^= flagInList
	l.head = t.next
	t.next = noThread
	return t
}

// listRemove removes a specific thread from a list, reporting whether
// it was found.
func (k *Kernel) listRemove(l *thList, t *Thread) bool {
	prev := noThread
	cur := l.head
	for cur != noThread && cur != t.id {
		prev = cur
		cur = k.threads[cur].next
	}
	if cur == noThread {
		return false
	}
	if prev == noThread {
		l.head = t.next
	} else {
		k.threads[prev].next = t.next
	}
	t.next = noThread
	t.flags &^= flagInList
	return true
}

// listSplicePri moves every thread from src into dst, preserving
// priority order. Both lists must already be sorted. It reports whether
// any moved thread has priority >= the current thread's, in which case
// the caller should yield.
func (k *Kernel) listSplicePri(dst, src *thList) bool {
	highpri := false
	for {
		t := k.listPop(src)
		if t == nil {
			return highpri
		}
		if t.pri >= k.cur.pri {
			highpri = true
		}
		k.listAddPri(dst, t)
	}
}
