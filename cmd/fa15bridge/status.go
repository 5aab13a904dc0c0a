package main

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	statusRefresh = 100 * time.Millisecond
	eraseLine     = "\r\033[K"
)

// startupSteps are the phases bridge.Run reports before frames start flowing.
var startupSteps = []string{"Connecting", "Reading device state", "Subscribing"}

var spinner = []rune{'|', '/', '-', '\\'}

// StatusLine keeps one redrawn stderr line up to date while the bridge connects or a scan runs.
// Its Phase method is the progress callback handed to bridge.Run and scanner.Scan.
// Reaching a terminal phase, or calling Stop, erases the line and prints the closing
// message registered for that phase, if any.
type StatusLine struct {
	out    io.Writer
	title  string
	steps  []string
	window time.Duration     // scan window counted down; zero counts elapsed time up
	finals map[string]string // terminal phase -> closing message

	mu      sync.Mutex
	phase   string
	began   time.Time
	tick    int
	started bool
	stopped bool

	quit   chan struct{}
	exited chan struct{}
}

// NewBridgeStatus follows the bridge start-up: connect, read the device state, subscribe.
func NewBridgeStatus(out io.Writer, address string) *StatusLine {
	return &StatusLine{
		out:   out,
		title: "Bridge " + address,
		steps: startupSteps,
		phase: startupSteps[0],
		finals: map[string]string{
			"Running": fmt.Sprintf("Streaming frames from %s\n", address),
			"Failed":  "",
		},
	}
}

// NewScanStatus counts down the scan window until the scanner starts processing results.
func NewScanStatus(out io.Writer, title string, window time.Duration) *StatusLine {
	return &StatusLine{
		out:    out,
		title:  title,
		window: window,
		phase:  "Scanning",
		finals: map[string]string{"Processing results": ""},
	}
}

// Start draws the first line and begins refreshing it. Further calls are no-ops.
func (s *StatusLine) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.began = time.Now()
	s.quit = make(chan struct{})
	s.exited = make(chan struct{})
	fmt.Fprint(s.out, s.line(0))

	go s.refresh()
}

func (s *StatusLine) refresh() {
	defer close(s.exited)
	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.mu.Lock()
			if !s.stopped {
				s.tick++
				fmt.Fprint(s.out, s.line(time.Since(s.began)))
			}
			s.mu.Unlock()
		}
	}
}

// Phase records the phase just entered. Safe for concurrent use.
func (s *StatusLine) Phase(phase string) {
	s.mu.Lock()
	s.phase = phase
	msg, final := s.finals[phase]
	s.mu.Unlock()

	if final {
		s.finish(msg)
	}
}

// Stop erases the line. Safe to call more than once.
func (s *StatusLine) Stop() {
	s.finish("")
}

func (s *StatusLine) finish(msg string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	if !started {
		return
	}
	close(s.quit)
	<-s.exited
	fmt.Fprint(s.out, eraseLine+msg)
}

// line renders the status for the given time since Start. Callers hold s.mu.
func (s *StatusLine) line(elapsed time.Duration) string {
	step := s.phase
	for i, name := range s.steps {
		if name == s.phase {
			step = fmt.Sprintf("[%d/%d] %s", i+1, len(s.steps), s.phase)
			break
		}
	}

	var clock string
	if s.window > 0 {
		left := s.window - elapsed
		if left < 0 {
			left = 0
		}
		clock = fmt.Sprintf("%ds left", int(left.Seconds()+0.5))
	} else {
		clock = fmt.Sprintf("%ds", int(elapsed.Seconds()))
	}

	return fmt.Sprintf("\r%c %s: %s, %s\033[K", spinner[s.tick%len(spinner)], s.title, step, clock)
}
