package kernel

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"
)

// FatalInfo describes an unrecoverable kernel error: a broken
// invariant, a corrupted stack guard, or misuse of a primitive.
type FatalInfo struct {
	Thread string
	Msg    string
	Stack  []byte
}

// FatalError is the panic value raised for unrecoverable errors.
type FatalError struct {
	Info FatalInfo
}

func (e *FatalError) Error() string {
	return "kernel: " + e.Info.Msg
}

var fatalHandler atomic.Value // func(FatalInfo)

// SetFatalHandler installs a process-wide hook invoked before the
// kernel panics with a FatalError. It must not panic.
func SetFatalHandler(fn func(FatalInfo)) {
	fatalHandler.Store(fn)
}

// fatalf tears the kernel down. The kernel is marked dead and the
// package singleton is cleared so a fresh Init is possible after the
// FatalError panic has been recovered.
func (k *Kernel) fatalf(format string, args ...any) {
	info := FatalInfo{
		Msg:   fmt.Sprintf(format, args...),
		Stack: debug.Stack(),
	}
	if k.cur != nil {
		info.Thread = k.cur.name
	}
	if !k.dead {
		k.dead = true
		if k.log != nil {
			k.log.WriteLineString("kernel fatal: " + info.Msg)
		}
		initMu.Lock()
		if running == k {
			running = nil
		}
		initMu.Unlock()
		if v := fatalHandler.Load(); v != nil {
			if fn, ok := v.(func(FatalInfo)); ok && fn != nil {
				fn(info)
			}
		}
	}
	panic(&FatalError{Info: info})
}
