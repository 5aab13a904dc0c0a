// Package transmit periodically serializes the state snapshot and writes it to the output sink.
package transmit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/srg/fa15bridge/internal/frame"
	"github.com/srg/fa15bridge/internal/groutine"
	"github.com/srg/fa15bridge/internal/metrics"
	"github.com/srg/fa15bridge/internal/scoring"
)

// State is the lifecycle state of a Transmitter.
type State uint32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// ErrSinkWrite matches every *SinkWriteError via errors.Is.
var ErrSinkWrite = errors.New("sink write failed")

// ErrAlreadyRunning is returned by Run on a transmitter that is already running.
var ErrAlreadyRunning = errors.New("transmitter is already running")

// SinkWriteError reports a frame the sink did not accept.
type SinkWriteError struct {
	Frame frame.Frame
	Err   error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("write frame %s: %v", e.Frame, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

// Is allows errors.Is(err, ErrSinkWrite)
func (e *SinkWriteError) Is(target error) bool { return target == ErrSinkWrite }

// Reader is the read side of the state store.
type Reader interface {
	Read() scoring.DeviceState
}

type snapshotter interface {
	Snapshot() (scoring.DeviceState, uint64)
}

// Options configures a Transmitter.
type Options struct {
	Interval time.Duration `default:"1s"`
	Logger   *logrus.Logger
	Metrics  *metrics.Metrics
	// OnFrame, if set, is called after every successful write.
	OnFrame func(frame.Frame)
}

// Stats counts transmitter activity.
type Stats struct {
	FramesSent uint64
	Failures   uint64
}

// Transmitter writes one frame per interval for as long as it runs.
type Transmitter struct {
	reader  Reader
	sink    io.Writer
	opts    Options
	logger  *logrus.Logger
	state   atomic.Uint32
	sent    atomic.Uint64
	failed  atomic.Uint64
	failing bool // Tick is not safe for concurrent use
}

// New creates an idle transmitter. A nil opts uses the defaults.
func New(reader Reader, sink io.Writer, opts *Options) *Transmitter {
	var o Options
	if opts != nil {
		o = *opts
	}
	defaults.SetDefaults(&o)
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	logger := o.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Transmitter{reader: reader, sink: sink, opts: o, logger: logger}
}

// State returns the current lifecycle state.
func (t *Transmitter) State() State {
	return State(t.state.Load())
}

// Interval returns the configured tick interval.
func (t *Transmitter) Interval() time.Duration {
	return t.opts.Interval
}

// Stats returns a snapshot of the counters.
func (t *Transmitter) Stats() Stats {
	return Stats{FramesSent: t.sent.Load(), Failures: t.failed.Load()}
}

// Run transmits at every tick until ctx is cancelled, then returns ctx.Err().
// The first frame is sent one interval after Run starts. Sink failures never stop the loop.
func (t *Transmitter) Run(ctx context.Context) error {
	if !t.state.CompareAndSwap(uint32(Idle), uint32(Running)) {
		return ErrAlreadyRunning
	}
	defer t.state.Store(uint32(Idle))

	t.logger.WithField("interval", t.opts.Interval).Debug("Transmitter started")

	ticker := time.NewTicker(t.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.WithFields(logrus.Fields{
				"sent":     t.sent.Load(),
				"failures": t.failed.Load(),
			}).Debug("Transmitter stopped")
			return ctx.Err()
		case <-ticker.C:
			t.safeTick(ctx)
		}
	}
}

func (t *Transmitter) safeTick(ctx context.Context) {
	var err error
	defer func() {
		if err != nil {
			t.failed.Add(1)
			t.opts.Metrics.SinkError()
		}
	}()
	defer groutine.Recover(ctx, t.logger, &err)
	err = t.Tick()
}

// Tick reads the current state, encodes it and writes one frame.
func (t *Transmitter) Tick() error {
	state, version := t.read()
	f := frame.Encode(state)

	n, err := t.sink.Write(f.Bytes())
	if err == nil && n != frame.Size {
		err = io.ErrShortWrite
	}
	if err != nil {
		werr := &SinkWriteError{Frame: f, Err: err}
		t.reportFailure(werr)
		return werr
	}

	if t.failing {
		t.failing = false
		t.logger.Info("Frame writes recovered")
	}
	t.sent.Add(1)
	t.opts.Metrics.FrameSent(version)
	t.logger.WithFields(logrus.Fields{
		"frame":   f.String(),
		"version": version,
	}).Trace("Frame sent")

	if t.opts.OnFrame != nil {
		t.opts.OnFrame(f)
	}
	return nil
}

// reportFailure logs the first failure of a run of failures at warning level and the rest at debug.
func (t *Transmitter) reportFailure(err error) {
	entry := t.logger.WithError(err)
	if t.failing {
		entry.Debug("Frame write failed")
		return
	}
	t.failing = true
	entry.Warn("Frame write failed")
}

func (t *Transmitter) read() (scoring.DeviceState, uint64) {
	if s, ok := t.reader.(snapshotter); ok {
		return s.Snapshot()
	}
	return t.reader.Read(), 0
}
