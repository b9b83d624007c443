package hal

import (
	"time"

	"kestrel/kernel"
)

// tickRate is the host tick frequency: one tick per millisecond.
const tickRate = 1000

// HostTime is the host tick source and one-shot timer service, backed
// by the wall clock. It satisfies the kernel's Clock and TimerService
// collaborators.
type HostTime struct {
	start time.Time
}

// NewHostTime starts a tick counter at zero.
func NewHostTime() *HostTime {
	return &HostTime{start: time.Now()}
}

// Ticks returns the number of ticks elapsed since construction.
func (t *HostTime) Ticks() uint64 {
	return uint64(time.Since(t.start) / (time.Second / tickRate))
}

// TickRate returns the tick frequency in Hz.
func (t *HostTime) TickRate() uint64 { return tickRate }

// HostTimer is a cancelable one-shot registration.
type HostTimer struct {
	t *time.Timer
}

// Stop cancels the timer. Stopping an elapsed timer is a no-op.
func (t HostTimer) Stop() { t.t.Stop() }

// After schedules fn once after the given number of ticks. fn runs on
// its own goroutine, the host analog of an interrupt context.
func (t *HostTime) After(ticks uint32, fn func()) kernel.Timer {
	d := time.Duration(ticks) * (time.Second / tickRate)
	return HostTimer{t: time.AfterFunc(d, fn)}
}
