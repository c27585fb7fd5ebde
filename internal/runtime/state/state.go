// Package state holds a plugin's versioned state record.
package state

import "sync"

// Updater derives the next state from the committed one. It must not mutate
// maps or slices reachable from prev; copy them instead.
type Updater[S any] func(prev S) S

// Store is a single atomically updated state value. Reads never observe a
// partially applied update.
type Store[S any] struct {
	mu      sync.RWMutex
	value   S
	version uint64
}

// NewStore returns a store holding initial at version zero.
func NewStore[S any](initial S) *Store[S] {
	return &Store[S]{value: initial}
}

// Get returns the committed state. Safe from any goroutine.
func (s *Store[S]) Get() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Version returns how many updates have been committed.
func (s *Store[S]) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Update applies updater under the store lock, commits the result, and then
// calls after with the committed value outside the lock. after may be nil.
func (s *Store[S]) Update(updater Updater[S], after func(committed S)) S {
	s.mu.Lock()
	next := updater(s.value)
	s.value = next
	s.version++
	s.mu.Unlock()

	if after != nil {
		after(next)
	}
	return next
}

// Set replaces the state wholesale.
func (s *Store[S]) Set(next S) {
	s.Update(func(S) S { return next }, nil)
}
