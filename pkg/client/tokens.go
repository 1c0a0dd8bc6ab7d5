package client

import "sync"

// TokenStore holds the caller's current token pair. Implementations must be
// safe for concurrent use.
type TokenStore interface {
	Load() TokenPair
	Store(TokenPair)
	Clear()
}

// MemoryTokenStore keeps tokens in process memory.
type MemoryTokenStore struct {
	mu   sync.RWMutex
	pair TokenPair
}

func NewMemoryTokenStore(pair TokenPair) *MemoryTokenStore {
	return &MemoryTokenStore{pair: pair}
}

func (s *MemoryTokenStore) Load() TokenPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair
}

func (s *MemoryTokenStore) Store(pair TokenPair) {
	s.mu.Lock()
	s.pair = pair
	s.mu.Unlock()
}

func (s *MemoryTokenStore) Clear() {
	s.Store(TokenPair{})
}
