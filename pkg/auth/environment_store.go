package auth

import (
	"os"
	"time"
)

// Environment variables read by EnvironmentStore.
const (
	SessionEnv       = "POSTGRAB_SESSION"
	SessionDomainEnv = "POSTGRAB_SESSION_DOMAIN"
)

// EnvironmentStore implements SessionStore using environment variables.
// Without POSTGRAB_SESSION_DOMAIN the session applies to every domain.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based session store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(session *Session) error {
	return ErrStoreUnavailable
}

// Retrieve gets the session from environment variables
func (e *EnvironmentStore) Retrieve(domain string) (*Session, error) {
	value := os.Getenv(SessionEnv)
	if value == "" {
		return nil, ErrSessionNotFound
	}
	if only := os.Getenv(SessionDomainEnv); only != "" {
		if domain != "" && NormalizeDomain(only) != domain {
			return nil, ErrSessionNotFound
		}
		domain = NormalizeDomain(only)
	}
	if domain == "" {
		domain = "default"
	}

	return &Session{
		Domain:       domain,
		Value:        value,
		LastModified: time.Now(),
	}, nil
}

// List returns a single session if the environment provides one
func (e *EnvironmentStore) List() ([]*Session, error) {
	session, err := e.Retrieve("")
	if err != nil {
		return []*Session{}, nil
	}
	return []*Session{session}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(domain string) error {
	return ErrStoreUnavailable
}

// Exists checks if an environment session applies to domain
func (e *EnvironmentStore) Exists(domain string) bool {
	_, err := e.Retrieve(domain)
	return err == nil
}
