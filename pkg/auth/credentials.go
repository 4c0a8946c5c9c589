package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Session is the API session cookie of one site.
type Session struct {
	Domain       string    `json:"domain"`
	Value        string    `json:"value"`
	UserAgent    string    `json:"user_agent,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// SessionStore is the interface for storing and retrieving sessions
type SessionStore interface {
	// Store saves the session of its domain
	Store(session *Session) error

	// Retrieve gets the session of a domain
	Retrieve(domain string) (*Session, error)

	// List returns all stored sessions
	List() ([]*Session, error)

	// Delete removes the session of a domain
	Delete(domain string) error

	// Exists checks if a session exists for a domain
	Exists(domain string) bool
}

// NormalizeDomain reduces a URL or host to a lower-case host name.
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	return strings.TrimPrefix(d, "www.")
}

// Manager handles session storage with fallback mechanisms
type Manager struct {
	stores []SessionStore
}

// NewManager creates a manager trying the system keyring, then an encrypted
// file in the config directory, then the environment.
func NewManager() (*Manager, error) {
	var stores []SessionStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "sessions.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager over the given stores, tried in
// order.
func NewManagerWithStores(stores ...SessionStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves the session using the first store that accepts it
func (m *Manager) Store(session *Session) error {
	if session == nil || session.Domain == "" {
		return errors.New("domain is required")
	}
	if session.Value == "" {
		return errors.New("session value is required")
	}
	session.Domain = NormalizeDomain(session.Domain)
	session.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(session)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store session: %w", lastErr)
	}
	return errors.New("no available session stores")
}

// Retrieve gets the session of domain from the first store that has it
func (m *Manager) Retrieve(domain string) (*Session, error) {
	domain = NormalizeDomain(domain)
	for _, store := range m.stores {
		if session, err := store.Retrieve(domain); err == nil && session != nil {
			return session, nil
		}
	}
	return nil, fmt.Errorf("%w for %s", ErrSessionNotFound, domain)
}

// List returns the most recent session per domain across all stores,
// sorted by domain.
func (m *Manager) List() ([]*Session, error) {
	byDomain := make(map[string]*Session)
	for _, store := range m.stores {
		sessions, err := store.List()
		if err != nil {
			continue
		}
		for _, s := range sessions {
			if existing, ok := byDomain[s.Domain]; !ok || s.LastModified.After(existing.LastModified) {
				byDomain[s.Domain] = s
			}
		}
	}

	result := make([]*Session, 0, len(byDomain))
	for _, s := range byDomain {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Domain < result[j].Domain })
	return result, nil
}

// Delete removes the session of domain from all stores
func (m *Manager) Delete(domain string) error {
	domain = NormalizeDomain(domain)
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(domain); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete session: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w for %s", ErrSessionNotFound, domain)
	}
	return nil
}

// ConfigDir returns the per-user configuration directory, creating it.
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "postgrab")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "postgrab")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "postgrab")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "postgrab")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// Sanitize returns a copy of session with the cookie value masked
func Sanitize(session *Session) *Session {
	if session == nil {
		return nil
	}
	c := *session
	c.Value = maskString(c.Value)
	return &c
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSession   = errors.New("invalid session")
	ErrStoreUnavailable = errors.New("session store unavailable")
)
