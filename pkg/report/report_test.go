package report

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTally(t *testing.T) {
	var tl Tally
	tl.AddSuccess(100)
	tl.AddSuccess(0)
	tl.AddSuccess(-1)
	tl.AddSkipped("a.mp4")
	tl.AddFailed("https://kemono.su/patreon/user/1/post/2")

	assert.Equal(t, uint64(3), tl.Success)
	assert.Equal(t, uint64(100), tl.Bytes)
	assert.Equal(t, 5, tl.Files())
}

func TestMergeIsOrderIndependent(t *testing.T) {
	a := Tally{Bytes: 10, Success: 1, Skipped: []string{"s1"}}
	b := Tally{Bytes: 5, Success: 2, Failed: []string{"f1"}}

	var ab, ba Report
	ab.Merge(a)
	ab.Merge(b)
	ba.Merge(b)
	ba.Merge(a)

	assert.Equal(t, ab.TotalBytes, ba.TotalBytes)
	assert.Equal(t, ab.SuccessCount, ba.SuccessCount)
	assert.ElementsMatch(t, ab.Skipped, ba.Skipped)
	assert.ElementsMatch(t, ab.Failed, ba.Failed)
	assert.Equal(t, uint64(15), ab.TotalBytes)
}

func TestCloneIsDeep(t *testing.T) {
	r := Report{Skipped: []string{"x"}}
	c := r.Clone()
	c.Skipped[0] = "y"
	assert.Equal(t, "x", r.Skipped[0])
}

func TestReportSize(t *testing.T) {
	r := Report{TotalBytes: 3 * 1024 * 1024, SuccessCount: 2}
	assert.Contains(t, r.Size(), "MB")
	assert.Contains(t, r.String(), "2 files")
}

func TestCollectorConcurrentSubmit(t *testing.T) {
	c := NewCollector(4)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				var tl Tally
				tl.AddSuccess(2)
				if i%5 == 0 {
					tl.AddFailed(fmt.Sprintf("w%d-%d", w, i))
				}
				c.Submit(tl)
			}
		}(w)
	}
	wg.Wait()
	r := c.Close()

	assert.Equal(t, uint64(200), r.SuccessCount)
	assert.Equal(t, uint64(400), r.TotalBytes)
	assert.Len(t, r.Failed, 40)
	assert.Equal(t, r, c.Snapshot(), "snapshot after close is the final report")
}

func TestCollectorSnapshotWhileRunning(t *testing.T) {
	c := NewCollector(0)
	c.Submit(Tally{Success: 1, Bytes: 7})
	snap := c.Snapshot()
	assert.Equal(t, uint64(1), snap.SuccessCount)

	c.Submit(Tally{Skipped: []string{"thumb.png"}})
	r := c.Close()
	assert.Equal(t, []string{"thumb.png"}, r.Skipped)
	assert.Empty(t, snap.Skipped)
}

func TestAppendFailedLog(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, AppendFailedLog(fs, "logs/failed.txt", []string{"u1", "u2"}))
	require.NoError(t, AppendFailedLog(fs, "logs/failed.txt", []string{"u3"}))
	require.NoError(t, AppendFailedLog(fs, "logs/failed.txt", nil))
	require.NoError(t, AppendFailedLog(fs, "", []string{"ignored"}))

	data, err := afero.ReadFile(fs, "logs/failed.txt")
	require.NoError(t, err)
	assert.Equal(t, "u1\nu2\nu3\n", string(data))
}

func TestStatusLog(t *testing.T) {
	fs := afero.NewMemMapFs()
	day := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	l, err := OpenStatusLog(fs, "out", "12345", day)
	require.NoError(t, err)
	assert.Equal(t, "out/2024-03-09_12345.log", l.Path())

	require.NoError(t, l.Record("https://kemono.su/patreon/user/12345/post/1", "a.jpg", "success"))
	require.NoError(t, l.Record("https://kemono.su/patreon/user/12345/post/1", "b.mp4", "failed"))
	require.NoError(t, l.Close())

	data, err := afero.ReadFile(fs, l.Path())
	require.NoError(t, err)
	assert.Equal(t,
		"Post URL: https://kemono.su/patreon/user/12345/post/1, File: a.jpg, Status: success\n"+
			"Post URL: https://kemono.su/patreon/user/12345/post/1, File: b.mp4, Status: failed\n",
		string(data))

	assert.Equal(t, "2024-03-09_post.log", StatusLogName("", day))
}
