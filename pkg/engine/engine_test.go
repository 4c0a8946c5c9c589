package engine

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"postgrab/pkg/address"
	"postgrab/pkg/api"
	"postgrab/pkg/crawler"
	errs "postgrab/pkg/errors"
	"postgrab/pkg/logger"
	"postgrab/pkg/media"
	"postgrab/pkg/progress"
	"postgrab/pkg/transfer"
)

// fakeSite serves a creator listing, post metadata and files the way the
// API does.
type fakeSite struct {
	srv   *httptest.Server
	files map[string][]byte
	posts map[string]string

	mu       sync.Mutex
	postHits map[string]int
	listHits int
}

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()
	s := &fakeSite{
		files:    make(map[string][]byte),
		posts:    make(map[string]string),
		postHits: make(map[string]int),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)

	s.files["/data/aa/a.jpg"] = bytes.Repeat([]byte("A"), 300)
	s.files["/data/bb/clip.mp4"] = bytes.Repeat([]byte("V"), 500)
	s.files["/data/cc/b.png"] = bytes.Repeat([]byte("B"), 70)

	s.posts["1"] = fmt.Sprintf(`{
		"post": {"id": "1", "title": "first"},
		"attachments": [
			{"server": %[1]q, "name": "a.jpg", "path": "/aa/a.jpg"},
			{"server": %[1]q, "name": "clip.mp4", "path": "/bb/clip.mp4"}
		],
		"previews": [{"type": "thumbnail", "server": %[1]q, "name": "a.jpg", "path": "/aa/a.jpg"}]
	}`, s.srv.URL)
	s.posts["2"] = fmt.Sprintf(`{
		"post": {"id": "2"},
		"attachments": [
			{"server": %[1]q, "name": "b.png", "path": "/cc/b.png"},
			{"server": null, "name": "lost.zip", "path": "/dd/lost.zip"}
		]
	}`, s.srv.URL)
	return s
}

func (s *fakeSite) handle(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	switch {
	case strings.HasPrefix(p, "/data/"):
		data, ok := s.files[p]
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, path.Base(p), time.Time{}, bytes.NewReader(data))

	case strings.Contains(p, "/post/"):
		id := path.Base(p)
		s.mu.Lock()
		s.postHits[id]++
		s.mu.Unlock()
		body, ok := s.posts[id]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(body))

	case p == "/api/v1/patreon/user/1":
		s.mu.Lock()
		s.listHits++
		s.mu.Unlock()
		if r.URL.Query().Get("o") == "0" {
			w.Write([]byte(`[{"id": "1", "title": "first"}, {"id": 2}, {"id": "3"}]`))
			return
		}
		w.Write([]byte("[]"))

	default:
		http.NotFound(w, r)
	}
}

func (s *fakeSite) hits(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.postHits[id]
}

func (s *fakeSite) address(t *testing.T, rel string) address.Address {
	t.Helper()
	addr, err := address.ParseWithSuffixes(s.srv.URL+rel, []string{"127.0.0.1"})
	require.NoError(t, err)
	return addr
}

func testOptions(fs afero.Fs, log logger.Logger) Options {
	return Options{
		OutputDir:    "out",
		Concurrency:  2,
		Retries:      0,
		WriteRetries: 1,
		StatusLogDir: "logs",
		Crawler: crawler.Options{
			EmptyThreshold: 10,
			Confirmations:  1,
			RateLimitDelay: time.Millisecond,
		},
		Transfer: transfer.Options{
			RateLimitDelay: time.Millisecond,
			ErrorDelay:     time.Millisecond,
			ReconnectDelay: time.Millisecond,
		},
		Fs:     fs,
		Logger: log,
	}
}

func newEngine(opts Options) *Engine {
	client := api.NewClient(api.Options{Logger: opts.Logger})
	return New(client, opts)
}

func TestRunDownloadsEveryPost(t *testing.T) {
	site := newFakeSite(t)
	fs := afero.NewMemMapFs()
	log := logger.NewTestLogger()
	opts := testOptions(fs, log)
	opts.Verbose = true
	opts.FailedLog = "failed.txt"
	rec := &progress.Recorder{}
	opts.Progress = rec

	rep, err := newEngine(opts).Run(context.Background(), site.address(t, "/patreon/user/1"))
	require.NoError(t, err)

	assert.Equal(t, uint64(3), rep.SuccessCount)
	assert.Equal(t, uint64(870), rep.TotalBytes)
	assert.ElementsMatch(t, []string{site.srv.URL + "/data/aa/a.jpg", "/dd/lost.zip"}, rep.Skipped)
	assert.Equal(t, []string{site.srv.URL + "/patreon/user/1/post/3"}, rep.Failed)

	for name, size := range map[string]int{"a.jpg": 300, "clip.mp4": 500, "b.png": 70} {
		data, err := afero.ReadFile(fs, "out/"+name)
		require.NoError(t, err, name)
		assert.Len(t, data, size, name)
	}

	failed, err := afero.ReadFile(fs, "failed.txt")
	require.NoError(t, err)
	assert.Equal(t, site.srv.URL+"/patreon/user/1/post/3\n", string(failed))

	assert.ElementsMatch(t, []string{"1", "2", "3"}, rec.Posts())

	logs, err := afero.ReadDir(fs, "logs")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, strings.HasSuffix(logs[0].Name(), "_1.log"))
	status, err := afero.ReadFile(fs, "logs/"+logs[0].Name())
	require.NoError(t, err)
	assert.Contains(t, string(status), "File: b.png, Status: success")
	assert.Contains(t, string(status), "File: 3, Status: failed")

	assert.True(t, log.HasMessage("Destination already taken in this run"))
}

func TestRunImageOnlySkipsVideo(t *testing.T) {
	site := newFakeSite(t)
	fs := afero.NewMemMapFs()
	opts := testOptions(fs, logger.NewTestLogger())
	opts.Filter = media.ImageOnly

	rep, err := newEngine(opts).Run(context.Background(), site.address(t, "/patreon/user/1"))
	require.NoError(t, err)

	assert.Equal(t, uint64(2), rep.SuccessCount)
	assert.Contains(t, rep.Skipped, site.srv.URL+"/data/bb/clip.mp4")
	exists, err := afero.Exists(fs, "out/clip.mp4")
	require.NoError(t, err)
	assert.False(t, exists, "filtered files are never opened")
}

func TestRunResumesPartialFile(t *testing.T) {
	site := newFakeSite(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "out/clip.mp4", bytes.Repeat([]byte("V"), 200), 0644))

	rep, err := newEngine(testOptions(fs, logger.NewTestLogger())).Run(context.Background(), site.address(t, "/patreon/user/1"))
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, "out/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, site.files["/data/bb/clip.mp4"], data)
	assert.Equal(t, uint64(870-200), rep.TotalBytes)
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	site := newFakeSite(t)
	fs := afero.NewMemMapFs()
	opts := testOptions(fs, logger.NewTestLogger())
	addr := site.address(t, "/patreon/user/1")

	_, err := newEngine(opts).Run(context.Background(), addr)
	require.NoError(t, err)
	rep, err := newEngine(opts).Run(context.Background(), addr)
	require.NoError(t, err)

	assert.Equal(t, uint64(3), rep.SuccessCount)
	assert.Zero(t, rep.TotalBytes)
	data, err := afero.ReadFile(fs, "out/a.jpg")
	require.NoError(t, err)
	assert.Len(t, data, 300)
}

func TestRunCheckpointSkipsCompletedPosts(t *testing.T) {
	site := newFakeSite(t)
	fs := afero.NewMemMapFs()
	opts := testOptions(fs, logger.NewTestLogger())
	opts.Checkpoint = true
	opts.CheckpointDir = "state"
	addr := site.address(t, "/patreon/user/1")

	_, err := newEngine(opts).Run(context.Background(), addr)
	require.NoError(t, err)
	rep, err := newEngine(opts).Run(context.Background(), addr)
	require.NoError(t, err)

	assert.Equal(t, 1, site.hits("1"))
	assert.Equal(t, 1, site.hits("2"))
	assert.Equal(t, 2, site.hits("3"), "failed posts are retried")
	assert.Zero(t, rep.SuccessCount)
	assert.Len(t, rep.Failed, 1)
}

func TestRunSinglePost(t *testing.T) {
	site := newFakeSite(t)
	fs := afero.NewMemMapFs()
	opts := testOptions(fs, logger.NewTestLogger())
	opts.OutputDir = ""

	rep, err := newEngine(opts).Run(context.Background(), site.address(t, "/patreon/user/1/post/2"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), rep.SuccessCount)
	assert.Equal(t, []string{"/dd/lost.zip"}, rep.Skipped)
	assert.Zero(t, site.listHits, "a post address needs no listing")

	exists, err := afero.Exists(fs, "2/b.png")
	require.NoError(t, err)
	assert.True(t, exists, "default output directory is named after the post")
}

func TestRunCrawlFailureIsFatal(t *testing.T) {
	site := newFakeSite(t)
	addr := site.address(t, "/patreon/user/1")
	site.srv.Close()

	rep, err := newEngine(testOptions(afero.NewMemMapFs(), logger.NewTestLogger())).Run(context.Background(), addr)
	require.Error(t, err)
	assert.Nil(t, rep)
	assert.True(t, errs.IsFatal(err))
}

func TestRunWarnsOnLowDiskSpace(t *testing.T) {
	site := newFakeSite(t)
	log := logger.NewTestLogger()
	opts := testOptions(afero.NewMemMapFs(), log)
	opts.MinFreeSpaceMB = 10

	e := newEngine(opts)
	e.freeSpace = func(string) (uint64, error) { return 1024, nil }
	_, err := e.Run(context.Background(), site.address(t, "/patreon/user/1/post/2"))
	require.NoError(t, err)

	assert.True(t, log.HasMessage("Low disk space"))
}

func TestRunCancelled(t *testing.T) {
	site := newFakeSite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngine(testOptions(afero.NewMemMapFs(), logger.NewTestLogger())).Run(ctx, site.address(t, "/patreon/user/1"))
	assert.ErrorIs(t, err, context.Canceled)
}
