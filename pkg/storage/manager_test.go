package storage

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerCreatesDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	m, err := NewManager(fs, "out/nested/creator")
	require.NoError(t, err)

	ok, err := afero.DirExists(fs, "out/nested/creator")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "out/nested/creator", m.OutputDir())
}

func TestFileName(t *testing.T) {
	tests := []struct {
		url, fallback, want string
	}{
		{"https://n1.kemono.su/data/aa/bb/abcdef.jpg", "x", "abcdef.jpg"},
		{"https://n1.kemono.su/data/aa/bb/abcdef.jpg?f=Cover.jpg", "x", "abcdef.jpg"},
		{"https://n1.kemono.su/data/aa/bb/my%20file.png", "x", "my file.png"},
		{"https://n1.kemono.su/", "fallback.bin", "fallback.bin"},
		{"https://n1.kemono.su", "a/b.bin", "a_b.bin"},
		{"https://n1.kemono.su/", "", "_"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileName(tt.url, tt.fallback), tt.url)
	}
}

func TestClaimRefusesDuplicateDestination(t *testing.T) {
	m, err := NewManager(afero.NewMemMapFs(), "out")
	require.NoError(t, err)

	dest, ok := m.Claim("https://n1.kemono.su/data/aa/bb/same.jpg", "")
	require.True(t, ok)
	assert.Equal(t, filepath.Join("out", "same.jpg"), dest)

	again, ok := m.Claim("https://n2.kemono.su/data/cc/dd/same.jpg", "")
	assert.False(t, ok)
	assert.Equal(t, dest, again)

	owner, found := m.Owner(dest)
	assert.True(t, found)
	assert.Equal(t, "https://n1.kemono.su/data/aa/bb/same.jpg", owner)
	assert.Equal(t, 1, m.ClaimedCount())
}

func TestClaimConcurrent(t *testing.T) {
	m, err := NewManager(afero.NewMemMapFs(), "out")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := m.Claim("https://n1.kemono.su/data/x/y/race.mp4", ""); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, granted)
}

func TestWriteFileAtomic(t *testing.T) {
	fs := afero.NewMemMapFs()
	m, err := NewManager(fs, "out")
	require.NoError(t, err)

	require.NoError(t, m.WriteFileAtomic("out/state/list.txt", []byte("one\n")))
	require.NoError(t, m.WriteFileAtomic("out/state/list.txt", []byte("two\n")))

	data, err := afero.ReadFile(fs, "out/state/list.txt")
	require.NoError(t, err)
	assert.Equal(t, "two\n", string(data))

	exists, err := afero.Exists(fs, "out/state/list.txt.tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}
