package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"postgrab/pkg/api"
	errs "postgrab/pkg/errors"
	"postgrab/pkg/logger"
)

type fakeSource struct {
	bodies []string
	err    error
	calls  int
}

func (f *fakeSource) GetPost(ctx context.Context, url string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	i := f.calls - 1
	if i >= len(f.bodies) {
		i = len(f.bodies) - 1
	}
	return []byte(f.bodies[i]), nil
}

func newFetcher(src PostSource, parseRetries int) *Fetcher {
	return New(src, Options{
		Domain:          "https://kemono.su",
		ParseRetries:    parseRetries,
		ParseRetryDelay: time.Millisecond,
		Logger:          logger.NewTestLogger(),
	})
}

const postBody = `{
	"post": {"id": "1", "file": {"name": "cover.png", "path": "/c0/ve/cover.png"}},
	"attachments": [
		{"server": "https://n1.kemono.su", "name": "one.mp4", "path": "/aa/bb/1111.mp4"},
		{"server": null, "name": "two.zip", "path": "/cc/dd/2222.zip"},
		{"server": "https://n2.kemono.su", "name": "three.jpg", "path": "/ee/ff/3333.jpg"}
	],
	"previews": [
		{"type": "thumbnail", "server": "https://n3.kemono.su", "name": "p.png", "path": "/11/22/4444.png"},
		{"type": "embed", "server": "https://n3.kemono.su", "name": "", "path": null}
	]
}`

func TestFetchOrdersAttachmentsThenPreviews(t *testing.T) {
	res, err := newFetcher(&fakeSource{bodies: []string{postBody}}, 0).Fetch(context.Background(), "https://kemono.su/api/v1/x/user/1/post/1")
	require.NoError(t, err)

	assert.Equal(t, []Attachment{
		{URL: "https://n1.kemono.su/data/aa/bb/1111.mp4", Name: "one.mp4"},
		{URL: "https://n2.kemono.su/data/ee/ff/3333.jpg", Name: "three.jpg"},
		{URL: "https://n3.kemono.su/data/11/22/4444.png", Name: "p.png"},
	}, res.Attachments)
	assert.Equal(t, []string{"/cc/dd/2222.zip", "post 1 preview #1"}, res.Skipped)
}

func TestFetchFallsBackToPostFile(t *testing.T) {
	body := `{"post": {"id": 5, "file": {"name": "only.gif", "path": "/ab/cd/only.gif"}}, "attachments": [], "previews": []}`
	res, err := newFetcher(&fakeSource{bodies: []string{body}}, 0).Fetch(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, []Attachment{{URL: "https://kemono.su/data/ab/cd/only.gif", Name: "only.gif"}}, res.Attachments)
	assert.Empty(t, res.Skipped)
}

func TestFetchEmptyPost(t *testing.T) {
	res, err := newFetcher(&fakeSource{bodies: []string{`{"post": {"id": "9"}}`}}, 0).Fetch(context.Background(), "u")
	require.NoError(t, err)
	assert.Empty(t, res.Attachments)
	assert.Empty(t, res.Skipped)
}

func TestFetchTransportFailure(t *testing.T) {
	src := &fakeSource{err: errs.Wrap(errs.ErrorTypeNetwork, errors.New("giving up after 4 attempt(s)"), "u")}
	_, err := newFetcher(src, 3).Fetch(context.Background(), "u")

	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeAttachmentFetch))
	assert.False(t, errs.IsFatal(err))
	assert.Equal(t, 1, src.calls, "transport retries belong to the source")
}

func TestFetchParseRetry(t *testing.T) {
	src := &fakeSource{bodies: []string{"<html>", postBody}}
	res, err := newFetcher(src, 1).Fetch(context.Background(), "u")
	require.NoError(t, err)
	assert.Len(t, res.Attachments, 3)
	assert.Equal(t, 2, src.calls)
}

func TestFetchParseRetryExhausted(t *testing.T) {
	src := &fakeSource{bodies: []string{"<html>"}}
	_, err := newFetcher(src, 2).Fetch(context.Background(), "u")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeAttachmentFetch))
	assert.Equal(t, 3, src.calls)
}

func TestResolveNameFallsBackToPathBase(t *testing.T) {
	server, p := "https://n1.kemono.su", "/aa/bb/hash.webm"
	res := Resolve(&api.PostResponse{Attachments: []api.FileRef{{Server: &server, Path: &p}}}, "")
	require.Len(t, res.Attachments, 1)
	assert.Equal(t, "hash.webm", res.Attachments[0].Name)
}
