package threads

import (
	"testing"
	"time"

	"kestrel/kernel"
)

type hostClock struct{ start time.Time }

func (c hostClock) Ticks() uint64    { return uint64(time.Since(c.start) / time.Millisecond) }
func (c hostClock) TickRate() uint64 { return 1000 }

type hostTimer struct{ t *time.Timer }

func (t hostTimer) Stop() { t.t.Stop() }

type hostTimers struct{}

func (hostTimers) After(ticks uint32, fn func()) kernel.Timer {
	return hostTimer{time.AfterFunc(time.Duration(ticks)*time.Millisecond, fn)}
}

func setup(t *testing.T) *kernel.Kernel {
	t.Helper()
	k := kernel.Init(kernel.Config{Clock: hostClock{start: time.Now()}, Timers: hostTimers{}})
	t.Cleanup(func() {
		if kernel.Running() == k {
			k.Close()
		}
	})
	return k
}

func TestCreateJoinRoundTrip(t *testing.T) {
	setup(t)

	th, res := Create(func(arg any) int { return arg.(int) + 1 }, 41)
	if res != Success {
		t.Fatalf("expected success, got %s", res)
	}
	got, res := th.Join()
	if res != Success {
		t.Fatalf("expected join success, got %s", res)
	}
	if got != 42 {
		t.Fatalf("expected result 42, got %d", got)
	}
}

func TestCreateExNamesThread(t *testing.T) {
	setup(t)

	ran := false
	th, res := CreateEx("worker", 8192, 2, func(any) int {
		cur := Current()
		if cur.th.Name() != "worker" {
			t.Errorf("expected thread name %q, got %q", "worker", cur.th.Name())
		}
		ran = true
		return 0
	}, nil)
	if res != Success {
		t.Fatalf("expected success, got %s", res)
	}
	if !ran {
		t.Fatal("expected the higher-priority thread to run before CreateEx returned")
	}
	th.Join()
}

func TestEqualComparesHandles(t *testing.T) {
	setup(t)

	var inside Thread
	th, res := CreateEx("self", 4096, 1, func(any) int {
		inside = Current()
		return 0
	}, nil)
	if res != Success {
		t.Fatalf("expected success, got %s", res)
	}
	if !Equal(inside, th) {
		t.Fatal("expected Current inside the thread to equal its handle")
	}
	if Equal(inside, Current()) {
		t.Fatal("expected distinct threads to compare unequal")
	}
	th.Join()
}

func TestSleepConvertsDuration(t *testing.T) {
	setup(t)

	start := time.Now()
	Sleep(30 * time.Millisecond)
	if waited := time.Since(start); waited < 20*time.Millisecond {
		t.Fatalf("expected Sleep to block for the duration, returned after %v", waited)
	}
}

func TestTimedLockHonorsDeadline(t *testing.T) {
	setup(t)

	var mu Mutex
	mu.Init(Plain | Timed)
	mu.Lock()

	var quick, timed Result
	var waited time.Duration
	th, cres := CreateEx("prober", 4096, 1, func(any) int {
		quick = mu.TryLock()
		start := time.Now()
		timed = mu.TimedLock(start.Add(30 * time.Millisecond))
		waited = time.Since(start)
		return 0
	}, nil)
	if cres != Success {
		t.Fatalf("expected success, got %s", cres)
	}
	th.Join()

	if quick != Busy {
		t.Fatalf("expected TryLock on a held mutex to return %s, got %s", Busy, quick)
	}
	if timed != Busy {
		t.Fatalf("expected the timed lock to fail with %s, got %s", Busy, timed)
	}
	if waited < 20*time.Millisecond {
		t.Fatalf("expected the timed lock to wait out its deadline, returned after %v", waited)
	}
	mu.Unlock()
	mu.Destroy()
}

func TestTimedWaitTimesOut(t *testing.T) {
	setup(t)

	var mu Mutex
	var cond Cond
	mu.Init(Plain)
	cond.Init()

	mu.Lock()
	res := cond.TimedWait(&mu, time.Now().Add(30*time.Millisecond))
	if res != TimedOut {
		t.Fatalf("expected %s, got %s", TimedOut, res)
	}
	mu.Unlock()
	cond.Destroy()
	mu.Destroy()
}

func TestCondSignalAcrossThreads(t *testing.T) {
	setup(t)

	var mu Mutex
	var cond Cond
	mu.Init(Plain)
	cond.Init()

	ready := false
	th, res := CreateEx("waiter", 4096, 1, func(any) int {
		mu.Lock()
		for !ready {
			cond.Wait(&mu)
		}
		mu.Unlock()
		return 0
	}, nil)
	if res != Success {
		t.Fatalf("expected success, got %s", res)
	}

	mu.Lock()
	ready = true
	cond.Signal()
	mu.Unlock()

	if _, res := th.Join(); res != Success {
		t.Fatalf("expected join success, got %s", res)
	}
	cond.Destroy()
	mu.Destroy()
}
