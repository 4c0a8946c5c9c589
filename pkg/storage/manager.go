package storage

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// Manager owns the output directory of a run: it maps attachment URLs to
// destination paths and makes sure no two transfers share a destination.
type Manager struct {
	fs        afero.Fs
	outputDir string
	claimed   map[string]string
	mu        sync.Mutex
}

// NewManager creates the output directory (recursively) and returns a
// Manager for it.
func NewManager(fs afero.Fs, outputDir string) (*Manager, error) {
	if outputDir == "" {
		outputDir = "."
	}
	if err := fs.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{
		fs:        fs,
		outputDir: outputDir,
		claimed:   make(map[string]string),
	}, nil
}

// FileName derives a local file name from an attachment URL: its last
// non-empty path segment, unescaped. fallback is used when the URL has none.
func FileName(rawURL, fallback string) string {
	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(strings.TrimRight(u.Path, "/"))
	}
	if name == "" || name == "." || name == "/" {
		name = fallback
	}
	return sanitize(name)
}

func sanitize(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}

// Claim reserves the destination for rawURL. It returns false when another
// transfer of this run already holds that destination, including a repeat of
// the same URL.
func (m *Manager) Claim(rawURL, fallback string) (string, bool) {
	dest := filepath.Join(m.outputDir, FileName(rawURL, fallback))

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.claimed[dest]; taken {
		return dest, false
	}
	m.claimed[dest] = rawURL
	return dest, true
}

// Owner returns the URL holding dest, if any.
func (m *Manager) Owner(dest string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.claimed[dest]
	return u, ok
}

// WriteFileAtomic writes data to name through a temporary file and rename,
// so readers never observe a partial file.
func (m *Manager) WriteFileAtomic(name string, data []byte) error {
	return WriteFileAtomic(m.fs, name, data)
}

// WriteFileAtomic writes data to name on fs through a temporary file.
func WriteFileAtomic(fs afero.Fs, name string, data []byte) error {
	if err := fs.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := name + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0644); err != nil {
		fs.Remove(tmp)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := fs.Rename(tmp, name); err != nil {
		fs.Remove(tmp)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// ClaimedCount returns the number of destinations claimed so far.
func (m *Manager) ClaimedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.claimed)
}
