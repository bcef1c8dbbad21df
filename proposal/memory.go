package proposal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// DefaultTTL is how long a proposal stays retrievable.
const DefaultTTL = 24 * time.Hour

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store. It keeps JSON encoded copies in a map
// guarded by an RWMutex, so callers never share memory with the store.
// Expired entries are dropped lazily on access and by Sweep.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store; ttl <= 0 selects DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

// Put stores (or overwrites) v under id and restarts its TTL.
func (s *MemoryStore) Put(_ context.Context, id string, v *Stored) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode proposal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = memoryEntry{data: data, expiresAt: s.now().Add(s.ttl)}
	return nil
}

// Get returns a copy of the proposal or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, id string) (*Stored, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if !s.now().Before(e.expiresAt) {
		s.mu.Lock()
		if cur, ok := s.entries[id]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(s.entries, id)
		}
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	var v Stored
	if err := json.Unmarshal(e.data, &v); err != nil {
		return nil, fmt.Errorf("decode proposal: %w", err)
	}
	return &v, nil
}

// Sweep removes expired entries and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Len returns the number of entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
