package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/srg/fa15bridge/internal/device"
)

// FakeSession is an in-memory device.Session. Characteristic values are served to Read,
// and Emit delivers notifications to the subscribed handler.
type FakeSession struct {
	mu         sync.Mutex
	address    string
	values     map[string][]byte
	readErrs   map[string]error
	handler    device.NotificationHandler
	subscribed []string
	subErr     error
	closed     bool

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// NewFakeSession returns an open session for address.
func NewFakeSession(address string) *FakeSession {
	return &FakeSession{
		address:  address,
		values:   make(map[string][]byte),
		readErrs: make(map[string]error),
		done:     make(chan struct{}),
	}
}

// WithValue sets the value returned by Read for uuid.
func (s *FakeSession) WithValue(uuid string, value []byte) *FakeSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[device.NormalizeUUID(uuid)] = value
	return s
}

// WithReadError makes Read fail for uuid.
func (s *FakeSession) WithReadError(uuid string, err error) *FakeSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := device.NormalizeUUID(uuid)
	s.values[key] = nil
	s.readErrs[key] = err
	return s
}

// WithSubscribeError makes Subscribe fail.
func (s *FakeSession) WithSubscribeError(err error) *FakeSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subErr = err
	return s
}

func (s *FakeSession) Address() string { return s.address }

func (s *FakeSession) Has(uuid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[device.NormalizeUUID(uuid)]
	return ok
}

func (s *FakeSession) Read(uuid string, _ time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, device.ErrNotConnected
	}
	key := device.NormalizeUUID(uuid)
	if err := s.readErrs[key]; err != nil {
		return nil, err
	}
	v, ok := s.values[key]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{uuid}}
	}
	return append([]byte(nil), v...), nil
}

func (s *FakeSession) Subscribe(uuids []string, handler device.NotificationHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subErr != nil {
		return s.subErr
	}
	s.handler = handler
	s.subscribed = device.NormalizeUUIDs(uuids)
	return nil
}

// Subscribed returns the normalized UUIDs passed to Subscribe.
func (s *FakeSession) Subscribed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subscribed...)
}

// Emit delivers a notification as the BLE stack would. It reports false if nothing is subscribed.
func (s *FakeSession) Emit(uuid string, data []byte) bool {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return false
	}
	h(device.Notification{UUID: uuid, Data: data, At: time.Now()})
	return true
}

// Drop simulates the peripheral disconnecting.
func (s *FakeSession) Drop() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = device.ErrSessionLost
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *FakeSession) Done() <-chan struct{} { return s.done }

func (s *FakeSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *FakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// Closed reports whether Close was called.
func (s *FakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// FakeScanner replays a fixed list of advertisements.
type FakeScanner struct {
	Adverts []device.Advertisement
	Err     error
	Block   bool // wait for ctx cancellation after replaying
}

func (f *FakeScanner) Scan(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
	for _, a := range f.Adverts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		handler(a)
	}
	if f.Err != nil {
		return f.Err
	}
	if f.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}
