package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"postgrab/pkg/logger"
	"postgrab/pkg/storage"
)

// Version is the checkpoint file format version.
const Version = 1

// ErrCorrupt is wrapped by Load when the checkpoint file cannot be decoded.
var ErrCorrupt = errors.New("checkpoint is corrupt")

// Checkpoint records which posts of an address have been fully handled.
type Checkpoint struct {
	Address        string               `json:"address"`
	Creator        string               `json:"creator"`
	RunID          string               `json:"run_id"`
	CompletedPosts map[string]time.Time `json:"completed_posts"`
	TotalPosts     int                  `json:"total_posts"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
	Version        int                  `json:"version"`

	mu sync.Mutex
}

// IsCompleted reports whether postID was finished by an earlier run.
func (c *Checkpoint) IsCompleted(postID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.CompletedPosts[postID]
	return ok
}

// CompletedCount returns the number of completed posts.
func (c *Checkpoint) CompletedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.CompletedPosts)
}

func (c *Checkpoint) marshal() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.UpdatedAt = time.Now()
	return json.MarshalIndent(c, "", "  ")
}

// Manager loads and saves the checkpoint of one address.
type Manager struct {
	fs             afero.Fs
	checkpointPath string
	logger         logger.Logger
	mu             sync.Mutex
}

// NewManager creates a manager for the checkpoint named key under dir. An
// empty dir selects <data dir>/checkpoints.
func NewManager(fs afero.Fs, dir, key string) (*Manager, error) {
	if dir == "" {
		dataDir, err := DataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = filepath.Join(dataDir, "checkpoints")
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &Manager{
		fs:             fs,
		checkpointPath: filepath.Join(dir, Key(key)+".checkpoint.json"),
		logger:         logger.GetLogger().WithField("component", "checkpoint"),
	}, nil
}

// Key turns an address into a file-name safe checkpoint key.
func Key(address string) string {
	address = strings.TrimPrefix(address, "https://")
	address = strings.TrimPrefix(address, "http://")
	key := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return '_'
	}, strings.Trim(address, "/"))
	if key == "" {
		return "_"
	}
	return key
}

// Path returns the checkpoint file path.
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create starts a fresh checkpoint for address and saves it.
func (m *Manager) Create(address, creator, runID string) (*Checkpoint, error) {
	now := time.Now()
	cp := &Checkpoint{
		Address:        address,
		Creator:        creator,
		RunID:          runID,
		CompletedPosts: make(map[string]time.Time),
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        Version,
	}
	if err := m.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"address": address,
		"path":    m.checkpointPath,
	})
	return cp, nil
}

// Load reads the checkpoint. It returns nil, nil when none exists.
func (m *Manager) Load() (*Checkpoint, error) {
	data, err := afero.ReadFile(m.fs, m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if cp.Version > Version {
		return nil, fmt.Errorf("checkpoint version %d is newer than supported version %d", cp.Version, Version)
	}
	if cp.CompletedPosts == nil {
		cp.CompletedPosts = make(map[string]time.Time)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"address":   cp.Address,
		"completed": len(cp.CompletedPosts),
		"updated":   cp.UpdatedAt,
	})
	return &cp, nil
}

// LoadOrCreate resumes the existing checkpoint, or creates one. The run id
// of a resumed checkpoint is replaced with runID. A corrupt checkpoint is
// kept as a .backup file and replaced by a fresh one.
func (m *Manager) LoadOrCreate(address, creator, runID string) (*Checkpoint, error) {
	cp, err := m.Load()
	if errors.Is(err, ErrCorrupt) {
		m.logger.WithError(err).Warn("Checkpoint unreadable, starting over")
		if err := m.Backup(); err != nil {
			return nil, err
		}
		return m.Create(address, creator, runID)
	}
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return m.Create(address, creator, runID)
	}
	cp.RunID = runID
	return cp, nil
}

// Save writes the checkpoint atomically.
func (m *Manager) Save(cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := cp.marshal()
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := storage.WriteFileAtomic(m.fs, m.checkpointPath, data); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"address":   cp.Address,
		"completed": cp.CompletedCount(),
	})
	return nil
}

// MarkCompleted records postID as done and saves the checkpoint. It is safe
// to call from several workers.
func (m *Manager) MarkCompleted(cp *Checkpoint, postID string) error {
	cp.mu.Lock()
	cp.CompletedPosts[postID] = time.Now()
	cp.mu.Unlock()
	return m.Save(cp)
}

// SetTotal records the number of posts the crawler found.
func (m *Manager) SetTotal(cp *Checkpoint, total int) error {
	cp.mu.Lock()
	cp.TotalPosts = total
	cp.mu.Unlock()
	return m.Save(cp)
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := m.fs.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	m.logger.Info("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	ok, err := afero.Exists(m.fs, m.checkpointPath)
	return err == nil && ok
}

// Backup copies the checkpoint next to itself with a .backup suffix.
func (m *Manager) Backup() error {
	if !m.Exists() {
		return nil
	}
	data, err := afero.ReadFile(m.fs, m.checkpointPath)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint for backup: %w", err)
	}
	if err := storage.WriteFileAtomic(m.fs, m.checkpointPath+".backup", data); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}

	m.logger.Debug("Checkpoint backed up")
	return nil
}

// DataDirectory returns the per-user data directory for the current OS.
func DataDirectory() (string, error) {
	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			return filepath.Join(xdgDataHome, "postgrab"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", "postgrab"), nil
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "postgrab"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		return filepath.Join(appData, "postgrab"), nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}
