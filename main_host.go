package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/hajimehoshi/ebiten/v2"

	"kestrel/app"
	"kestrel/hal"
	"kestrel/kernel"
)

var errShutdown = errors.New("kernel shut down")

func main() {
	headless := flag.Bool("headless", false, "run without a window")
	frames := flag.Int("frames", 600, "number of frames to run")
	debug := flag.Bool("debug", false, "enable kernel trace logging")
	flag.Parse()

	h := hal.New(320, 240)

	// The kernel and its threads live on their own goroutine family;
	// the program main goroutine plays the display hardware, feeding
	// vertical interrupts into the kernel once per frame.
	var sys *app.System
	ready := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		k := kernel.Init(kernel.Config{
			Clock:  h.Time(),
			Timers: h.Time(),
			Log:    h.Logger(),
			Debug:  *debug,
		})
		s, err := app.New(k, h.Framebuffer(), h.Logger(), app.Config{})
		if err != nil {
			ready <- err
			return
		}
		sys = s
		ready <- nil
		s.Run(*frames)
		k.Close()
	}()
	if err := <-ready; err != nil {
		fmt.Fprintln(os.Stderr, "kestrel:", err)
		os.Exit(1)
	}

	onFrame := func() error {
		select {
		case <-done:
			if *headless {
				return errShutdown
			}
			return ebiten.Termination
		default:
		}
		return sys.Frame()
	}

	var err error
	if *headless {
		err = h.RunHeadless(context.Background(), hal.HeadlessConfig{Hz: 60}, onFrame)
		if errors.Is(err, errShutdown) {
			err = nil
		}
	} else {
		err = h.RunWindow("Kestrel", onFrame)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "kestrel:", err)
		os.Exit(1)
	}
	<-done
}
