package hal

import (
	"fmt"
	"os"
	"sync"
)

// Host bundles the host implementations of the kernel collaborators.
type Host struct {
	logger *hostLogger
	time   *HostTime
	fb     *hostFramebuffer
}

// New returns a host HAL with a framebuffer of the given size.
func New(width, height int) *Host {
	return &Host{
		logger: &hostLogger{w: os.Stdout},
		time:   NewHostTime(),
		fb:     newHostFramebuffer(width, height),
	}
}

func (h *Host) Logger() Logger           { return h.logger }
func (h *Host) Time() *HostTime          { return h.time }
func (h *Host) Framebuffer() Framebuffer { return h.fb }

type hostLogger struct {
	mu sync.Mutex
	w  *os.File
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}
