// Package store holds the single scoring snapshot shared by the dispatcher and the transmitter.
package store

import (
	"sync"

	"github.com/srg/fa15bridge/internal/scoring"
)

// Store serializes updates and snapshot reads of one DeviceState.
// Readers always observe a state produced by a whole number of applied updates.
type Store struct {
	mu      sync.RWMutex
	state   scoring.DeviceState
	version uint64
}

// New returns a store holding the zero state.
func New() *Store {
	return &Store{}
}

// Apply merges u into the current state as one atomic step.
func (s *Store) Apply(u scoring.Update) {
	s.mu.Lock()
	s.state = s.state.Apply(u)
	s.version++
	s.mu.Unlock()
}

// Read returns a copy of the current state.
func (s *Store) Read() scoring.DeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns the current state together with the number of updates applied to produce it.
func (s *Store) Snapshot() (scoring.DeviceState, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.version
}

// Version returns the number of updates applied since creation or the last Reset.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Reset zeroes the state and the version counter.
func (s *Store) Reset() {
	s.mu.Lock()
	s.state = scoring.DeviceState{}
	s.version = 0
	s.mu.Unlock()
}
