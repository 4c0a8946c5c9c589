package auth

import (
	"sync"
)

// MockStore is an in-memory SessionStore for tests.
type MockStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	// Errors returned by the matching operations when set
	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMockStore creates a new mock session store
func NewMockStore() *MockStore {
	return &MockStore{
		sessions: make(map[string]*Session),
	}
}

// Store saves a copy of the session
func (m *MockStore) Store(session *Session) error {
	if m.StoreError != nil {
		return m.StoreError
	}
	if session == nil || session.Domain == "" {
		return ErrInvalidSession
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := *session
	m.sessions[session.Domain] = &c
	return nil
}

// Retrieve returns a copy of the session of domain
func (m *MockStore) Retrieve(domain string) (*Session, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}
	if domain == "" {
		return nil, ErrInvalidSession
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[domain]
	if !ok {
		return nil, ErrSessionNotFound
	}
	c := *s
	return &c, nil
}

// List returns copies of all stored sessions
func (m *MockStore) List() ([]*Session, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		c := *s
		sessions = append(sessions, &c)
	}
	return sessions, nil
}

// Delete removes the session of domain
func (m *MockStore) Delete(domain string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[domain]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, domain)
	return nil
}

// Exists checks if a session for domain is stored
func (m *MockStore) Exists(domain string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.sessions[domain]
	return ok
}

// Count returns the number of stored sessions
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

// NewMockManager creates a Manager backed by a single mock store
func NewMockManager() (*Manager, *MockStore) {
	store := NewMockStore()
	return NewManagerWithStores(store), store
}
