package ledger

import (
	"context"
	"fmt"
	"sync"
)

// StateMap is a minimal AccountStore over a map, for ledger tests that do not
// need full account metadata.
type StateMap struct {
	mu     sync.RWMutex
	states map[string]AccountState
}

// NewStateMap builds an empty state store.
func NewStateMap() *StateMap {
	return &StateMap{states: make(map[string]AccountState)}
}

// LoadState returns the stored state or ErrAccountNotFound.
func (s *StateMap) LoadState(_ context.Context, id string) (AccountState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	if !ok {
		return AccountState{}, ErrAccountNotFound
	}
	return st, nil
}

// StoreStates writes all states back, or none if any account is missing.
func (s *StateMap) StoreStates(_ context.Context, states ...AccountState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range states {
		if _, ok := s.states[st.ID]; !ok {
			return fmt.Errorf("store state: %w", ErrAccountNotFound)
		}
	}
	for _, st := range states {
		s.states[st.ID] = st
	}
	return nil
}

// Put seeds account state directly, bypassing the ledger. Test helper.
func (s *StateMap) Put(st AccountState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.ID] = st
}

// SeedEntry appends a raw entry to the in-memory log, bypassing the transfer
// path. Used to stage legacy rows in tests.
func (l *Memory) SeedEntry(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}
