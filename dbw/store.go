package dbw

import (
	"github.com/sasha-s/go-deadlock"
)

// Store maps identifiers to the last payload written for them.
// The lock is held only for the map operation itself, never across bus I/O.
type Store struct {
	mu      deadlock.RWMutex
	entries map[MessageID]Payload
	allowed map[MessageID]struct{} // nil means any valid identifier
}

// NewInboundStore returns an empty store accepting any standard identifier.
func NewInboundStore() *Store {
	return &Store{entries: make(map[MessageID]Payload)}
}

// NewOutboundStore returns a store fixed to the outbound command set and
// populated with the neutral defaults.
func NewOutboundStore() *Store {
	s := &Store{
		entries: defaultOutbound(),
		allowed: make(map[MessageID]struct{}),
	}
	for _, id := range OutboundIDs() {
		s.allowed[id] = struct{}{}
	}
	return s
}

// Set installs or overwrites the entry for id.
func (s *Store) Set(id MessageID, p Payload) error {
	if !id.Valid() {
		return ErrUnknownID
	}
	if s.allowed != nil {
		if _, ok := s.allowed[id]; !ok {
			return ErrUnknownID
		}
	}
	s.mu.Lock()
	s.entries[id] = p
	s.mu.Unlock()
	return nil
}

// Get returns the entry for id and whether it has ever been written.
func (s *Store) Get(id MessageID) (Payload, bool) {
	s.mu.RLock()
	p, ok := s.entries[id]
	s.mu.RUnlock()
	return p, ok
}

// Snapshot copies the store. The copy belongs to the caller.
func (s *Store) Snapshot() map[MessageID]Payload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[MessageID]Payload, len(s.entries))
	for id, p := range s.entries {
		out[id] = p
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
