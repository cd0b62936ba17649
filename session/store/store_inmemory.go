package store

import "sync"

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps session state in process memory only. It is the
// default for tests and for short-lived tools that do not want tokens
// written to disk.
type InMemoryStore struct {
	mu       sync.RWMutex
	arts     Artifacts
	hasArts  bool
	pending  PendingLogin
	hasLogin bool
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) SaveArtifacts(a Artifacts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arts = a
	s.hasArts = true
	return nil
}

func (s *InMemoryStore) LoadArtifacts() (Artifacts, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.arts, s.hasArts, nil
}

func (s *InMemoryStore) SavePendingLogin(p PendingLogin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = p
	s.hasLogin = true
	return nil
}

func (s *InMemoryStore) LoadPendingLogin() (PendingLogin, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending, s.hasLogin, nil
}

func (s *InMemoryStore) ClearPendingLogin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = PendingLogin{}
	s.hasLogin = false
	return nil
}

func (s *InMemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arts = Artifacts{}
	s.hasArts = false
	s.pending = PendingLogin{}
	s.hasLogin = false
	return nil
}
