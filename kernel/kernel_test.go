package kernel

import (
	"strings"
	"testing"
	"time"
)

// testClock ticks at 1 kHz of wall time.
type testClock struct{ start time.Time }

func (c testClock) Ticks() uint64    { return uint64(time.Since(c.start) / time.Millisecond) }
func (c testClock) TickRate() uint64 { return 1000 }

type testTimer struct{ t *time.Timer }

func (t testTimer) Stop() { t.t.Stop() }

// testTimers maps one tick to one millisecond.
type testTimers struct{}

func (testTimers) After(ticks uint32, fn func()) Timer {
	return testTimer{time.AfterFunc(time.Duration(ticks)*time.Millisecond, fn)}
}

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	k := Init(Config{Clock: testClock{start: time.Now()}, Timers: testTimers{}})
	t.Cleanup(func() {
		initMu.Lock()
		running = nil
		initMu.Unlock()
	})
	return k
}

// expectFatal runs fn and checks that it panics with a FatalError whose
// message contains substr.
func expectFatal(t *testing.T, substr string, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected a fatal error containing %q, got none", substr)
		}
		fe, ok := r.(*FatalError)
		if !ok {
			t.Fatalf("expected a *FatalError, got %T: %v", r, r)
		}
		if !strings.Contains(fe.Info.Msg, substr) {
			t.Fatalf("expected fatal message containing %q, got %q", substr, fe.Info.Msg)
		}
	}()
	fn()
}

func TestInitConvertsCallerToMain(t *testing.T) {
	k := newTestKernel(t)
	defer k.Close()

	cur := k.Current()
	if cur.Name() != "main" {
		t.Fatalf("expected current thread %q, got %q", "main", cur.Name())
	}
	if cur.Pri() != 0 {
		t.Fatalf("expected main priority 0, got %d", cur.Pri())
	}
	if got := k.Count(); got != 2 {
		t.Fatalf("expected 2 live threads (main and idle), got %d", got)
	}
	if len(cur.Stack()) != mainStackSize {
		t.Fatalf("expected main stack of %d bytes, got %d", mainStackSize, len(cur.Stack()))
	}
}

func TestInitIsIdempotent(t *testing.T) {
	k := newTestKernel(t)
	defer k.Close()

	if k2 := Init(Config{}); k2 != k {
		t.Fatal("expected the second Init to return the running kernel")
	}
}

func TestCloseAllowsReinit(t *testing.T) {
	k := newTestKernel(t)
	k.Close()

	k2 := Init(Config{Clock: testClock{start: time.Now()}, Timers: testTimers{}})
	if k2 == k {
		t.Fatal("expected a fresh kernel after Close")
	}
	if got := k2.Count(); got != 2 {
		t.Fatalf("expected 2 live threads after reinit, got %d", got)
	}
	k2.Close()
}

func TestCloseWithLiveThreadsIsFatal(t *testing.T) {
	k := newTestKernel(t)

	block := k.NewSemaphore(0)
	th, err := k.New("straggler", 4096, 0, func(any) int {
		block.Wait()
		return 0
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = th

	expectFatal(t, "still alive", func() { k.Close() })
}

func TestFatalHandlerReceivesDiagnostics(t *testing.T) {
	k := newTestKernel(t)

	var got FatalInfo
	SetFatalHandler(func(info FatalInfo) { got = info })
	defer SetFatalHandler(nil)

	expectFatal(t, "stack size", func() {
		k.New("bad", 100, 0, func(any) int { return 0 }, nil)
	})
	if got.Thread != "main" {
		t.Fatalf("expected the fatal to name thread %q, got %q", "main", got.Thread)
	}
	if len(got.Stack) == 0 {
		t.Fatal("expected a captured stack trace")
	}
}

func TestSuspendParksThreadUntilResume(t *testing.T) {
	k := newTestKernel(t)

	var beats int
	th, err := k.New("beat", 4096, 0, func(any) int {
		for {
			beats++
			k.Yield()
		}
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	n := beats
	if n == 0 {
		t.Fatal("expected the thread to run before New returned")
	}

	th.Suspend()
	k.Yield()
	k.Yield()
	if beats != n {
		t.Fatalf("expected a suspended thread to stay parked, beats went %d -> %d", n, beats)
	}

	th.Resume()
	k.Yield()
	if beats != n+1 {
		t.Fatalf("expected one beat after Resume, got %d (was %d)", beats, n)
	}

	th.Kill(0)
	if got := th.Join(); got != 0 {
		t.Fatalf("expected kill result 0, got %d", got)
	}
	k.Close()
}

func TestCheckpointConsumesDeferredPreemption(t *testing.T) {
	k := newTestKernel(t)

	woke := false
	th, err := k.New("waker", 4096, 1, func(any) int {
		k.Sleep(5)
		woke = true
		return 0
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !woke {
		if time.Now().After(deadline) {
			t.Fatal("expected the sleeper to preempt the main thread at a checkpoint")
		}
		time.Sleep(time.Millisecond)
		k.Checkpoint()
	}

	if got := th.Join(); got != 0 {
		t.Fatalf("expected join result 0, got %d", got)
	}
	k.Close()
}
