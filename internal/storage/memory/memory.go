// Package memory provides an in-process cart Storage.
package memory

import (
	"context"
	"sync"
)

// Storage is a mutex-guarded map implementing store.Storage.
type Storage struct {
	mu       sync.RWMutex
	data     map[string]string
	writeErr error
	setCalls int
}

// New creates an empty in-memory storage.
func New() *Storage {
	return &Storage{data: make(map[string]string)}
}

// Get returns the value stored under key.
func (s *Storage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

// Set stores value under key. It fails with the error configured by
// FailWrites, if any.
func (s *Storage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls++
	if s.writeErr != nil {
		return s.writeErr
	}
	s.data[key] = value
	return nil
}

// FailWrites makes every subsequent Set return err. Pass nil to restore.
func (s *Storage) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// SetCalls returns how many times Set has been called.
func (s *Storage) SetCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.setCalls
}
