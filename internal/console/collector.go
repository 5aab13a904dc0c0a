// Package console renders scoring events for the operator without slowing down the dispatcher.
//
// The dispatcher pushes records into an overlapped ring buffer (the oldest records are dropped when the
// console falls behind) and a drainer goroutine writes them out.
package console

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"

	"github.com/srg/fa15bridge/internal/dispatch"
	"github.com/srg/fa15bridge/internal/frame"
)

const (
	// DefaultBufferSize is the default number of records held between drains.
	DefaultBufferSize uint32 = 256

	// MaxBufferSize guards against accidental misconfiguration.
	MaxBufferSize uint32 = 64 * 1024
)

// Source tells where a record came from.
type Source uint8

const (
	SourceBLE Source = iota
	SourceFrame
)

// Record is one line (or block of lines) of console output.
type Record struct {
	At      time.Time
	Source  Source
	Label   string // characteristic name, or the UUID for unknown characteristics
	Text    string
	Failed  bool
	Unknown bool
}

// CollectorMetrics counts collector activity. Fields are read and written atomically.
type CollectorMetrics struct {
	Pushed      int64
	Overwritten int64
	Errors      int64
}

// Collector buffers records from concurrent producers.
// All methods are safe for concurrent use.
type Collector struct {
	buffer  mpmc.RichOverlappedRingBuffer[Record]
	metrics CollectorMetrics
}

// NewCollector creates a collector holding up to bufferSize records.
func NewCollector(bufferSize uint32) (*Collector, error) {
	if bufferSize == 0 {
		return nil, fmt.Errorf("buffer size must be > 0")
	}
	if bufferSize > MaxBufferSize {
		return nil, fmt.Errorf("buffer size %d exceeds maximum %d", bufferSize, MaxBufferSize)
	}
	return &Collector{
		buffer: mpmc.NewOverlappedRingBuffer[Record](bufferSize),
	}, nil
}

// Observe implements dispatch.Observer.
func (c *Collector) Observe(ev dispatch.Event) {
	r := Record{
		At:     ev.At,
		Source: SourceBLE,
		Label:  ev.Kind.String(),
		Text:   ev.Display,
	}
	if !ev.Known() {
		r.Label = ev.UUID
		r.Unknown = true
	}
	if ev.Err != nil {
		r.Failed = true
		r.Text = fmt.Sprintf("%v (%s)", ev.Err, ev.Display)
	}
	c.Push(r)
}

// ObserveFrame records a transmitted frame followed by its match, priority and card summary.
func (c *Collector) ObserveFrame(f frame.Frame) {
	c.Push(Record{At: time.Now(), Source: SourceFrame, Label: "frame", Text: f.Spaced() + "  " + f.State().Summary()})
}

// Push enqueues r, dropping the oldest record when the buffer is full.
func (c *Collector) Push(r Record) {
	overwritten, err := c.buffer.EnqueueM(r)
	if err != nil {
		atomic.AddInt64(&c.metrics.Errors, 1)
		return
	}
	atomic.AddInt64(&c.metrics.Overwritten, int64(overwritten))
	atomic.AddInt64(&c.metrics.Pushed, 1)
}

// Drain passes every buffered record to fn in FIFO order and returns how many were drained.
func (c *Collector) Drain(fn func(Record)) (int, error) {
	n := 0
	for !c.buffer.IsEmpty() {
		r, err := c.buffer.Dequeue()
		if err != nil {
			atomic.AddInt64(&c.metrics.Errors, 1)
			return n, fmt.Errorf("buffer dequeue error: %w", err)
		}
		fn(r)
		n++
	}
	return n, nil
}

// Metrics returns a copy of the counters.
func (c *Collector) Metrics() CollectorMetrics {
	return CollectorMetrics{
		Pushed:      atomic.LoadInt64(&c.metrics.Pushed),
		Overwritten: atomic.LoadInt64(&c.metrics.Overwritten),
		Errors:      atomic.LoadInt64(&c.metrics.Errors),
	}
}
