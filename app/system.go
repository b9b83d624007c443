// Package app is the demo system: sensor threads of different
// priorities push samples through a bounded kernel queue, a renderer
// thread waits for the vertical interrupt and draws the sample history
// into the framebuffer, and a watchdog thread periodically logs the
// scheduler state.
package app

import (
	"fmt"
	"image/color"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"kestrel/hal"
	"kestrel/kernel"
)

var (
	colorBG    = color.RGBA{R: 0x06, G: 0x08, B: 0x10, A: 0xff}
	colorFG    = color.RGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}
	colorDim   = color.RGBA{R: 0x88, G: 0x88, B: 0x88, A: 0xff}
	laneColors = []color.RGBA{
		{R: 0x4a, G: 0xdf, B: 0x6a, A: 0xff},
		{R: 0xff, G: 0xdd, B: 0x66, A: 0xff},
	}
)

type sensor struct {
	name     string
	pri      kernel.Pri
	interval uint32 // ticks between samples
}

var sensors = []sensor{
	{name: "sensor-a", pri: 2, interval: 8},
	{name: "sensor-b", pri: 1, interval: 13},
}

type sample struct {
	lane  int
	value int
}

// Config tunes the demo system.
type Config struct {
	QueueSize int // sample queue capacity
	History   int // samples kept per lane for the chart
}

// System wires the demo threads to a framebuffer.
type System struct {
	k    *kernel.Kernel
	fb   hal.Framebuffer
	d    *fbDisplay
	log  hal.Logger
	font tinyfont.Fonter

	q      *kernel.Queue
	frames *kernel.Semaphore
	stop   bool

	history  [][]int // renderer-owned chart state, one slice per lane
	produced []int
	dropped  int
	drawn    uint64

	threads []*kernel.Thread
}

// New builds the system and starts its threads. The caller must be the
// kernel main thread.
func New(k *kernel.Kernel, fb hal.Framebuffer, log hal.Logger, cfg Config) (*System, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.History <= 0 {
		cfg.History = 48
	}

	s := &System{
		k:        k,
		fb:       fb,
		d:        newFBDisplay(fb),
		log:      log,
		font:     &proggy.TinySZ8pt7b,
		q:        k.NewQueue(cfg.QueueSize),
		frames:   k.NewSemaphore(0),
		history:  make([][]int, len(sensors)),
		produced: make([]int, len(sensors)),
	}
	for i := range s.history {
		s.history[i] = make([]int, cfg.History)
	}

	// The renderer outranks the sensors so a queued frame never waits
	// behind sample production.
	renderer, err := k.New("renderer", 32*1024, 3, s.renderLoop, nil)
	if err != nil {
		return nil, err
	}
	s.threads = append(s.threads, renderer)

	for i, sn := range sensors {
		th, err := k.New(sn.name, 8*1024, sn.pri, s.sensorLoop, i)
		if err != nil {
			return nil, err
		}
		s.threads = append(s.threads, th)
	}

	watchdog, err := k.New("watchdog", 8*1024, 0, s.watchdogLoop, nil)
	if err != nil {
		return nil, err
	}
	s.threads = append(s.threads, watchdog)
	return s, nil
}

// Frame raises the vertical interrupt. It is the per-refresh hook for
// the window or headless pump and is safe to call from any goroutine:
// it enters the kernel through the interrupt path only.
func (s *System) Frame() error {
	s.k.Raise(kernel.LineVBlank)
	return nil
}

// Run blocks on the kernel main thread until the renderer has drawn
// the given number of frames, then stops and joins every system
// thread. The frame pump must keep running until Run returns.
func (s *System) Run(frames int) {
	for i := 0; i < frames; i++ {
		s.frames.Wait()
	}

	s.stop = true
	for _, th := range s.threads {
		th.Join()
	}
	s.frames.Destroy()
	s.q.Destroy()
}

func (s *System) sensorLoop(arg any) int {
	lane := arg.(int)
	sn := sensors[lane]
	t := 0
	for !s.stop {
		s.k.Sleep(sn.interval)
		t++
		// A sensor never waits for the renderer: on a full queue the
		// sample is dropped.
		if s.q.TryPut(sample{lane: lane, value: wave(lane, t)}) {
			s.produced[lane]++
		} else {
			s.dropped++
		}
	}
	return 0
}

// wave generates a deterministic per-lane sawtooth-ish series in
// [4, 60].
func wave(lane, t int) int {
	step := 5 + 3*lane
	v := (t * step) % 112
	if v > 56 {
		v = 112 - v
	}
	return 4 + v
}

func (s *System) renderLoop(any) int {
	w := s.k.BeginWaitIRQ(kernel.LineVBlank)
	for !s.stop {
		w.Wait()
		for {
			v, ok := s.q.TryGet()
			if !ok {
				break
			}
			smp := v.(sample)
			lane := s.history[smp.lane]
			copy(lane, lane[1:])
			lane[len(lane)-1] = smp.value
		}
		s.draw()
		s.drawn++
		s.frames.Post()
	}
	return 0
}

func (s *System) watchdogLoop(any) int {
	for !s.stop {
		s.k.Sleep(250)
		if s.stop {
			break
		}
		s.log.WriteLineString(fmt.Sprintf(
			"watchdog: threads=%d queue=%d/%d drawn=%d",
			s.k.Count(), s.q.Count(), s.q.Size(), s.drawn))
	}
	return 0
}

func (s *System) draw() {
	s.fb.ClearRGB(colorBG.R, colorBG.G, colorBG.B)

	tinyfont.WriteLine(s.d, s.font, 8, 14, "kestrel thread monitor", colorFG)
	tinyfont.WriteLine(s.d, s.font, 8, 28, fmt.Sprintf(
		"threads %d  queue %d/%d  frame %d",
		s.k.Count(), s.q.Count(), s.q.Size(), s.drawn), colorDim)

	// One bar chart band per lane.
	bandH := (s.fb.Height() - 40) / len(s.history)
	for lane, hist := range s.history {
		base := 40 + lane*bandH + (bandH - 14)
		c := laneColors[lane%len(laneColors)]
		barW := (s.fb.Width() - 16) / len(hist)
		if barW < 1 {
			barW = 1
		}
		for i, v := range hist {
			if v <= 0 {
				continue
			}
			h := v * (bandH - 14) / 60
			if h < 1 {
				h = 1
			}
			s.d.FillRectangle(int16(8+i*barW), int16(base-h), int16(barW-1), int16(h), c)
		}
		tinyfont.WriteLine(s.d, s.font, 8, int16(base+10), fmt.Sprintf(
			"%s pri=%d n=%d", sensors[lane].name, sensors[lane].pri, s.produced[lane]), colorDim)
	}
	if s.dropped > 0 {
		tinyfont.WriteLine(s.d, s.font, 8, int16(s.fb.Height()-4), fmt.Sprintf(
			"dropped %d", s.dropped), colorDim)
	}
	s.d.Display()
}
