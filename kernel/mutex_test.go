package kernel

import (
	"reflect"
	"testing"
	"time"
)

func TestMutexHandsOverToBlockedThread(t *testing.T) {
	k := newTestKernel(t)
	mu := k.NewMutex(MutexStandard)

	var order []string
	mu.Lock()
	th, err := k.New("contender", 4096, 1, func(any) int {
		mu.Lock()
		order = append(order, "contender")
		mu.Unlock()
		return 0
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	order = append(order, "owner")
	mu.Unlock()

	want := []string{"owner", "contender"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("expected order %v, got %v", want, order)
	}
	th.Join()
	mu.Destroy()
	k.Close()
}

func TestMutexWakesWaitersInPriorityOrder(t *testing.T) {
	k := newTestKernel(t)
	mu := k.NewMutex(MutexStandard)

	var order []int
	body := func(arg any) int {
		mu.Lock()
		order = append(order, arg.(int))
		mu.Unlock()
		return 0
	}

	mu.Lock()
	var ths []*Thread
	for _, pri := range []Pri{1, 3, 2} {
		th, err := k.New("w", 4096, pri, body, int(pri))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		ths = append(ths, th)
	}
	mu.Unlock()

	want := []int{3, 2, 1}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("expected wakeup order %v, got %v", want, order)
	}
	for _, th := range ths {
		th.Join()
	}
	mu.Destroy()
	k.Close()
}

func TestRecursiveMutexCountsDepth(t *testing.T) {
	k := newTestKernel(t)
	mu := k.NewMutex(MutexRecursive)

	mu.Lock()
	mu.Lock()
	if !mu.TryLock(0) {
		t.Fatal("expected the owner to re-acquire a recursive mutex")
	}

	acquired := false
	mu.Unlock()
	mu.Unlock()
	th, err := k.New("contender", 4096, 1, func(any) int {
		mu.Lock()
		acquired = true
		mu.Unlock()
		return 0
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if acquired {
		t.Fatal("expected the mutex to stay held until the last unlock")
	}
	mu.Unlock()
	if !acquired {
		t.Fatal("expected the last unlock to release the mutex")
	}
	th.Join()
	mu.Destroy()
	k.Close()
}

func TestTryLockWithoutWaiting(t *testing.T) {
	k := newTestKernel(t)
	mu := k.NewMutex(MutexStandard)

	mu.Lock()
	got := true
	th, err := k.New("prober", 4096, 1, func(any) int {
		got = mu.TryLock(0)
		return 0
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got {
		t.Fatal("expected TryLock(0) to fail on a held mutex")
	}
	th.Join()
	mu.Unlock()
	mu.Destroy()
	k.Close()
}

func TestTryLockTimesOut(t *testing.T) {
	k := newTestKernel(t)
	mu := k.NewMutex(MutexStandard)

	mu.Lock()
	var got bool
	var waited time.Duration
	th, err := k.New("prober", 4096, 1, func(any) int {
		start := time.Now()
		got = mu.TryLock(30)
		waited = time.Since(start)
		return 0
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	th.Join()
	if got {
		t.Fatal("expected TryLock to time out")
	}
	if waited < 20*time.Millisecond {
		t.Fatalf("expected TryLock to wait for the timeout, returned after %v", waited)
	}
	mu.Unlock()
	mu.Destroy()
	k.Close()
}

func TestTryLockAcquiresWhenReleased(t *testing.T) {
	k := newTestKernel(t)
	mu := k.NewMutex(MutexStandard)

	mu.Lock()
	var got bool
	th, err := k.New("prober", 4096, 1, func(any) int {
		got = mu.TryLock(10_000)
		if got {
			mu.Unlock()
		}
		return 0
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mu.Unlock()
	th.Join()
	if !got {
		t.Fatal("expected TryLock to acquire the released mutex before its timeout")
	}
	mu.Destroy()
	k.Close()
}

func TestNonRecursiveRelockIsFatal(t *testing.T) {
	k := newTestKernel(t)
	mu := k.NewMutex(MutexStandard)
	mu.Lock()
	expectFatal(t, "locked twice", func() { mu.Lock() })
}

func TestUnlockByNonOwnerIsFatal(t *testing.T) {
	k := newTestKernel(t)
	mu := k.NewMutex(MutexStandard)
	expectFatal(t, "Unlock", func() { mu.Unlock() })
}

func TestDestroyLockedMutexIsFatal(t *testing.T) {
	k := newTestKernel(t)
	mu := k.NewMutex(MutexStandard)
	mu.Lock()
	expectFatal(t, "Destroy", func() { mu.Destroy() })
}
