package main

import (
	"sync"

	"morton.lopezb.com/internal/pds/morton"
)

// Store holds the named filters behind a coarse reader/writer lock.
//
// A Morton filter instance is a single-writer structure with no internal
// locking: concurrent readers are safe only while no writer is active. The
// store enforces exactly that contract for every filter at once: View
// runs under the shared read lock, Mutate under the exclusive write lock.
// A single RWMutex is enough here because filter operations are sub-
// microsecond; sharding the lock would buy nothing until well past the
// connection limit.
type Store struct {
	mu      sync.RWMutex
	filters map[string]*morton.Filter
}

func NewStore() *Store {
	return &Store{
		filters: make(map[string]*morton.Filter),
	}
}

// View runs fn with read access to the named filter. fn receives nil when
// the key does not exist. Lookups and diagnostics go through here.
func (s *Store) View(key string, fn func(f *morton.Filter)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.filters[key])
}

// Mutate runs fn with exclusive access to the named filter. fn receives nil
// when the key does not exist. Inserts, deletes, and resizes go through
// here.
func (s *Store) Mutate(key string, fn func(f *morton.Filter)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.filters[key])
}

// Create installs a new filter under key. It returns false when the key is
// already taken.
func (s *Store) Create(key string, f *morton.Filter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.filters[key]; exists {
		return false
	}
	s.filters[key] = f
	return true
}

// Drop removes the named filter. It returns false when the key does not
// exist.
func (s *Store) Drop(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.filters[key]; !exists {
		return false
	}
	delete(s.filters, key)
	return true
}

// Len returns the number of filters currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filters)
}
