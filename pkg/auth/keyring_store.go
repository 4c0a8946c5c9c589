package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "postgrab"
	keyringPrefix  = "session_"
	keyringIndex   = "domains"
)

// KeyringStore implements SessionStore using the system keychain. The
// keychain cannot enumerate entries, so the stored domains are kept in an
// index entry of their own.
type KeyringStore struct{}

// NewKeyringStore creates a new keyring-based session store
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Store saves the session to the system keychain
func (k *KeyringStore) Store(session *Session) error {
	if session == nil || session.Domain == "" {
		return ErrInvalidSession
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := keyring.Set(keyringService, keyringPrefix+session.Domain, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return k.updateIndex(func(domains map[string]bool) { domains[session.Domain] = true })
}

// Retrieve gets the session of domain from the system keychain
func (k *KeyringStore) Retrieve(domain string) (*Session, error) {
	if domain == "" {
		return nil, ErrInvalidSession
	}

	data, err := keyring.Get(keyringService, keyringPrefix+domain)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// List returns the sessions named in the index
func (k *KeyringStore) List() ([]*Session, error) {
	domains, err := k.index()
	if err != nil {
		return nil, err
	}
	sessions := make([]*Session, 0, len(domains))
	for domain := range domains {
		if s, err := k.Retrieve(domain); err == nil {
			sessions = append(sessions, s)
		}
	}
	return sessions, nil
}

// Delete removes the session of domain from the system keychain
func (k *KeyringStore) Delete(domain string) error {
	if domain == "" {
		return ErrInvalidSession
	}

	if err := keyring.Delete(keyringService, keyringPrefix+domain); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return k.updateIndex(func(domains map[string]bool) { delete(domains, domain) })
}

// Exists checks if a session exists in the keychain
func (k *KeyringStore) Exists(domain string) bool {
	if domain == "" {
		return false
	}
	_, err := keyring.Get(keyringService, keyringPrefix+domain)
	return err == nil
}

func (k *KeyringStore) index() (map[string]bool, error) {
	domains := make(map[string]bool)
	data, err := keyring.Get(keyringService, keyringIndex)
	if errors.Is(err, keyring.ErrNotFound) {
		return domains, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring index: %w", err)
	}
	var list []string
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, fmt.Errorf("failed to parse keyring index: %w", err)
	}
	for _, d := range list {
		domains[d] = true
	}
	return domains, nil
}

func (k *KeyringStore) updateIndex(update func(map[string]bool)) error {
	domains, err := k.index()
	if err != nil {
		return err
	}
	update(domains)
	list := make([]string, 0, len(domains))
	for d := range domains {
		list = append(list, d)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, keyringIndex, string(data)); err != nil {
		return fmt.Errorf("failed to write keyring index: %w", err)
	}
	return nil
}
