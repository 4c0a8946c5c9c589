package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// AppendFailedLog appends urls to path, one per line, creating the file if
// needed. The file can be fed back to `postgrab retry`.
func AppendFailedLog(fs afero.Fs, path string, urls []string) error {
	if path == "" || len(urls) == 0 {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open failure log: %w", err)
	}
	if _, err := f.WriteString(strings.Join(urls, "\n") + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("failed to write failure log: %w", err)
	}
	return f.Close()
}

// StatusLog records the final status of every file of a run, one line per
// file, in <dir>/<date>_<creator>.log.
type StatusLog struct {
	mu   sync.Mutex
	file afero.File
	path string
}

// StatusLogName returns the file name used for creator's status log on day.
func StatusLogName(creator string, day time.Time) string {
	if creator == "" {
		creator = "post"
	}
	return fmt.Sprintf("%s_%s.log", day.Format("2006-01-02"), creator)
}

// OpenStatusLog opens (appending) the status log for creator.
func OpenStatusLog(fs afero.Fs, dir, creator string, day time.Time) (*StatusLog, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, StatusLogName(creator, day))
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open status log: %w", err)
	}
	return &StatusLog{file: f, path: path}, nil
}

// Record writes one line. It is safe for concurrent use.
func (l *StatusLog) Record(postURL, file, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := fmt.Fprintf(l.file, "Post URL: %s, File: %s, Status: %s\n", postURL, file, status)
	return err
}

func (l *StatusLog) Path() string {
	return l.path
}

func (l *StatusLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
