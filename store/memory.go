package store

import "sync"

// MemoryStore implements CredentialStore in process memory.
// This is useful for testing but holds nothing across restarts.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
	user  []byte
}

// NewMemoryStore creates a new in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SaveToken persists the bearer token.
func (s *MemoryStore) SaveToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
	return nil
}

// Token returns the stored bearer token, or "" when absent.
func (s *MemoryStore) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token, nil
}

// SaveUser persists the serialized user profile.
func (s *MemoryStore) SaveUser(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = append([]byte(nil), data...)
	return nil
}

// User returns the stored serialized user, or nil when absent.
func (s *MemoryStore) User() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return nil, nil
	}
	return append([]byte(nil), s.user...), nil
}

// Clear removes the token and the user together.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.user = nil
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
