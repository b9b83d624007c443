package kernel

import (
	"testing"
	"time"
)

func TestIRQEventBeforeWaitReturnsImmediately(t *testing.T) {
	k := newTestKernel(t)

	w := k.BeginWaitIRQ(LineSoft)
	k.Raise(LineSoft)
	// The interrupt already fired: Wait must not block (there is no
	// other thread to wake us, so blocking here would hang the test).
	w.Wait()
	k.Close()
}

func TestIRQWaitBlocksUntilRaise(t *testing.T) {
	k := newTestKernel(t)

	w := k.BeginWaitIRQ(LineVBlank)
	time.AfterFunc(20*time.Millisecond, func() { k.Raise(LineVBlank) })
	start := time.Now()
	w.Wait()
	if waited := time.Since(start); waited < 10*time.Millisecond {
		t.Fatalf("expected Wait to block until the interrupt, returned after %v", waited)
	}

	// The snapshot was refreshed: the next Wait blocks for a fresh
	// interrupt again.
	time.AfterFunc(20*time.Millisecond, func() { k.Raise(LineVBlank) })
	start = time.Now()
	w.Wait()
	if waited := time.Since(start); waited < 10*time.Millisecond {
		t.Fatalf("expected the re-armed Wait to block, returned after %v", waited)
	}
	k.Close()
}

func TestHandlersRunOnRaise(t *testing.T) {
	k := newTestKernel(t)

	fired := 0
	depth := 0
	k.Handle(LineSerial, func() {
		fired++
		depth = k.intDepth
	})

	k.Raise(LineSerial)
	k.Raise(LineSerial)

	if fired != 2 {
		t.Fatalf("expected the handler to run twice, got %d", fired)
	}
	if depth != 1 {
		t.Fatalf("expected the handler to run at interrupt depth 1, got %d", depth)
	}
	if got := k.IntDepth(); got != 0 {
		t.Fatalf("expected depth 0 outside interrupt context, got %d", got)
	}
	k.Close()
}

func TestRaiseWakesHigherPriorityWaiter(t *testing.T) {
	k := newTestKernel(t)

	woken := false
	th, err := k.New("dma", 4096, 1, func(any) int {
		w := k.BeginWaitIRQ(LineDMA)
		w.Wait()
		woken = true
		return 0
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if woken {
		t.Fatal("expected the waiter to block before the interrupt")
	}

	k.Raise(LineDMA)
	k.Checkpoint()
	if !woken {
		t.Fatal("expected the interrupt to wake the waiter")
	}
	th.Join()
	k.Close()
}

func TestInvalidLineIsFatal(t *testing.T) {
	k := newTestKernel(t)
	expectFatal(t, "invalid interrupt line", func() { k.BeginWaitIRQ(NumLines) })
}
