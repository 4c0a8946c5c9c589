package engine

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"postgrab/pkg/logger"
)

func TestRedownload(t *testing.T) {
	site := newFakeSite(t)
	fs := afero.NewMemMapFs()
	list := strings.Join([]string{
		"#" + site.srv.URL + "/data/aa/a.jpg",
		site.srv.URL + "/data/bb/clip.mp4",
		site.srv.URL + "/data/zz/missing.bin",
		"",
		site.srv.URL + "/patreon/user/1/post/2",
	}, "\n")
	require.NoError(t, afero.WriteFile(fs, "failed.txt", []byte(list), 0644))

	opts := testOptions(fs, logger.NewTestLogger())
	opts.OutputDir = "retry"
	rep, err := newEngine(opts).Redownload(context.Background(), "failed.txt", []string{"127.0.0.1"})
	require.NoError(t, err)

	assert.Equal(t, uint64(2), rep.SuccessCount)
	assert.Equal(t, uint64(570), rep.TotalBytes)
	assert.Equal(t, []string{site.srv.URL + "/data/zz/missing.bin"}, rep.Failed)
	assert.Equal(t, []string{"/dd/lost.zip"}, rep.Skipped)

	data, err := afero.ReadFile(fs, "failed.txt")
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"#" + site.srv.URL + "/data/aa/a.jpg",
		"#" + site.srv.URL + "/data/bb/clip.mp4",
		site.srv.URL + "/data/zz/missing.bin",
		"",
		"#" + site.srv.URL + "/patreon/user/1/post/2",
	}, "\n"), string(data))

	exists, err := afero.Exists(fs, "retry/a.jpg")
	require.NoError(t, err)
	assert.False(t, exists, "commented lines are not downloaded")
	clip, err := afero.ReadFile(fs, "retry/clip.mp4")
	require.NoError(t, err)
	assert.Len(t, clip, 500)
}

func TestRedownloadMissingList(t *testing.T) {
	_, err := newEngine(testOptions(afero.NewMemMapFs(), logger.NewTestLogger())).
		Redownload(context.Background(), "nope.txt", nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadList(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "# done\nhttps://c.example.su/data/a.jpg\n\n"
	require.NoError(t, afero.WriteFile(fs, "list.txt", []byte(content), 0644))

	got, err := readList(newEngine(testOptions(fs, logger.NewTestLogger())), "list.txt")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}
