package testutils

import (
	"errors"
	"sync"
	"time"
)

// ErrInjected is returned by RecordingSink for writes it was told to fail.
var ErrInjected = errors.New("injected write failure")

// RecordingSink is an output sink that keeps every successful write.
type RecordingSink struct {
	mu       sync.Mutex
	writes   [][]byte
	failNext int
	failAll  bool
	closed   bool
	notify   chan struct{}
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{notify: make(chan struct{}, 1)}
}

// FailNext makes the next n writes fail with ErrInjected.
func (s *RecordingSink) FailNext(n int) {
	s.mu.Lock()
	s.failNext = n
	s.mu.Unlock()
}

// FailAll makes every write fail until called with false.
func (s *RecordingSink) FailAll(fail bool) {
	s.mu.Lock()
	s.failAll = fail
	s.mu.Unlock()
}

func (s *RecordingSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return 0, ErrInjected
	}
	if s.failNext > 0 {
		s.failNext--
		return 0, ErrInjected
	}
	s.writes = append(s.writes, append([]byte(nil), p...))
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return len(p), nil
}

func (s *RecordingSink) Name() string { return "recording" }

func (s *RecordingSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Writes returns a copy of everything written so far.
func (s *RecordingSink) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	copy(out, s.writes)
	return out
}

// Closed reports whether Close was called.
func (s *RecordingSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// WaitWrites blocks until at least n writes were recorded or timeout expires, and returns them.
func (s *RecordingSink) WaitWrites(n int, timeout time.Duration) [][]byte {
	deadline := time.After(timeout)
	for {
		w := s.Writes()
		if len(w) >= n {
			return w
		}
		select {
		case <-s.notify:
		case <-deadline:
			return w
		case <-time.After(5 * time.Millisecond):
		}
	}
}
