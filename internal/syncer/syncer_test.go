package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/tangle/internal/apperr"
	"github.com/starford/tangle/internal/graph"
	"github.com/starford/tangle/internal/models"
	"github.com/starford/tangle/internal/testutil"
)

func ms(v int64) time.Time { return time.UnixMilli(v) }

func TestSync_DirtyNoteNothingNewer(t *testing.T) {
	remote := testutil.NewMemRemote(0)
	c := graph.NewCollection(models.Note{ID: "a", Title: "A", Content: "x", UpdatedAt: ms(100), Dirty: true})

	// Simulate a remote that never returns anything newer by stamping in the past.
	r := New(remoteWithoutEcho{remote})
	next, rep, err := r.Sync(context.Background(), c)
	require.NoError(t, err)

	a, _ := next.Get("a")
	assert.False(t, a.Dirty)
	assert.Equal(t, "x", a.Content)
	assert.Equal(t, ms(100), a.UpdatedAt)
	assert.Equal(t, 1, rep.Uploaded)
	assert.Equal(t, 1, rep.Acked)
	assert.Equal(t, int64(100), rep.Watermark)
}

// remoteWithoutEcho hides every remote record from Download.
type remoteWithoutEcho struct{ *testutil.MemRemote }

func (remoteWithoutEcho) Download(context.Context, int64) ([]models.RemoteNote, error) {
	return nil, nil
}

func TestSync_Idempotent(t *testing.T) {
	remote := testutil.NewMemRemote(1000)
	c := graph.RecomputeLinks(graph.NewCollection(
		models.Note{ID: "a", Title: "A", Content: "[[B]] #t", UpdatedAt: ms(10), Dirty: true},
		models.Note{ID: "b", Title: "B", UpdatedAt: ms(20), Dirty: true},
	))
	r := New(remote)

	first, rep1, err := r.Sync(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 2, rep1.Uploaded)
	assert.Empty(t, first.Dirty())

	second, rep2, err := r.Sync(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, 0, rep2.Uploaded)
	assert.Equal(t, 0, rep2.Applied)
	assert.Equal(t, first.Notes(), second.Notes())
	assert.Len(t, remote.Uploads(), 2)
}

func TestMerge_EqualTimestampKeepsLocal(t *testing.T) {
	local := graph.NewCollection(models.Note{ID: "1", Title: "Local", UpdatedAt: ms(50), Dirty: true})
	ex := &Exchange{remote: []models.RemoteNote{{ID: "1", Title: "Remote", UpdatedAt: 50}}}

	next, rep := ex.Apply(local)
	n, _ := next.Get("1")
	assert.Equal(t, "Local", n.Title)
	assert.True(t, n.Dirty)
	assert.Equal(t, 0, rep.Applied)
}

func TestMerge_NewerRemoteWins(t *testing.T) {
	local := graph.NewCollection(models.Note{ID: "1", Title: "Local", UpdatedAt: ms(50), Dirty: true})
	ex := &Exchange{remote: []models.RemoteNote{{ID: "1", Title: "Remote", Content: "#r", UpdatedAt: 51}}}

	next, rep := ex.Apply(local)
	n, _ := next.Get("1")
	assert.Equal(t, "Remote", n.Title)
	assert.Equal(t, []string{"r"}, n.Tags)
	assert.False(t, n.Dirty)
	assert.Equal(t, ms(51), n.UpdatedAt)
	assert.Equal(t, 1, rep.Applied)
}

func TestMerge_ConcurrentEditStaysDirty(t *testing.T) {
	ex := &Exchange{acked: map[string]time.Time{"1": ms(50)}}
	edited := graph.NewCollection(models.Note{ID: "1", UpdatedAt: ms(60), Dirty: true})

	next, rep := ex.Apply(edited)
	n, _ := next.Get("1")
	assert.True(t, n.Dirty)
	assert.Equal(t, 0, rep.Acked)
}

func TestSync_UploadFailureKeepsDirtyAndContinues(t *testing.T) {
	remote := testutil.NewMemRemote(1000)
	remote.FailUpload = func(id string) error {
		if id == "bad" {
			return apperr.ErrTransport
		}
		return nil
	}
	c := graph.NewCollection(
		models.Note{ID: "bad", Title: "Bad", UpdatedAt: ms(1), Dirty: true},
		models.Note{ID: "good", Title: "Good", UpdatedAt: ms(2), Dirty: true},
	)

	next, rep, err := New(remote).Sync(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Uploaded)
	assert.Equal(t, 1, rep.UploadFailed)

	bad, _ := next.Get("bad")
	assert.True(t, bad.Dirty)
	good, _ := next.Get("good")
	assert.False(t, good.Dirty)
}

func TestSync_UnauthorizedAborts(t *testing.T) {
	remote := testutil.NewMemRemote(0)
	remote.FailUpload = testutil.Unauthorized
	c := graph.NewCollection(models.Note{ID: "a", UpdatedAt: ms(1), Dirty: true})

	next, _, err := New(remote).Sync(context.Background(), c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
	assert.Same(t, c, next)
}

func TestSync_DownloadFailureLeavesCollection(t *testing.T) {
	remote := testutil.NewMemRemote(0)
	remote.FailDownload = apperr.ErrTransport
	c := graph.NewCollection(models.Note{ID: "a", UpdatedAt: ms(1), Dirty: true})

	next, rep, err := New(remote).Sync(context.Background(), c)
	require.ErrorIs(t, err, apperr.ErrTransport)
	assert.Same(t, c, next)
	assert.Equal(t, 1, rep.Uploaded)
	// The upload itself already happened.
	assert.Equal(t, []string{"a"}, remote.Uploads())
}

func TestSync_TombstonePropagatesAndIsSwept(t *testing.T) {
	remote := testutil.NewMemRemote(1000)
	remote.Put(models.RemoteNote{ID: "x", Title: "X"})

	c := graph.NewCollection(models.Note{ID: "x", Title: "X", UpdatedAt: ms(1), Deleted: true, Dirty: true})
	next, rep, err := New(remote).Sync(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 0, next.Len())
	assert.Equal(t, 1, rep.Swept)

	stored, _ := remote.Get("x")
	assert.Equal(t, 1, stored.Deleted)
}

func TestSync_IdleRoundAfterSweepDownloadsNothing(t *testing.T) {
	remote := testutil.NewMemRemote(1000)
	remote.Put(models.RemoteNote{ID: "ghost", Title: "Ghost", Deleted: 1})

	c := graph.NewCollection(
		models.Note{ID: "a", Title: "A", UpdatedAt: ms(1)},
		models.Note{ID: "x", Title: "X", UpdatedAt: ms(2), Deleted: true, Dirty: true},
	)
	r := New(remote)
	first, rep1, err := r.Sync(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, 1, rep1.Swept)
	assert.Equal(t, 2, rep1.Downloaded)
	assert.Equal(t, 1, first.Len())

	x, _ := remote.Get("x")
	assert.Equal(t, x.UpdatedAt, first.Watermark().UnixMilli())

	second, rep2, err := r.Sync(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, 0, rep2.Downloaded)
	assert.Equal(t, 0, rep2.Uploaded)
	assert.Equal(t, x.UpdatedAt, rep2.Watermark)
	assert.Equal(t, x.UpdatedAt, second.Watermark().UnixMilli())
}

func TestSync_RemoteTombstoneRemovesLocal(t *testing.T) {
	remote := testutil.NewMemRemote(1000)
	remote.Put(models.RemoteNote{ID: "x", Title: "X", Deleted: 1})
	remote.Put(models.RemoteNote{ID: "ghost", Title: "Ghost", Deleted: 1})

	c := graph.RecomputeLinks(graph.NewCollection(
		models.Note{ID: "a", Title: "A", Content: "[[X]]", UpdatedAt: ms(1)},
		models.Note{ID: "x", Title: "X", UpdatedAt: ms(1)},
	))
	next, _, err := New(remote).Sync(context.Background(), c)
	require.NoError(t, err)

	_, ok := next.Get("x")
	assert.False(t, ok)
	_, ok = next.Get("ghost")
	assert.False(t, ok)
	a, _ := next.Get("a")
	assert.Empty(t, a.Links)
}

func TestSync_RemoteNoteAddedAndLinked(t *testing.T) {
	remote := testutil.NewMemRemote(1000)
	remote.Put(models.RemoteNote{ID: "r", Title: "Remote", Content: "see [[Local]] #shared"})

	c := graph.NewCollection(models.Note{ID: "l", Title: "Local", UpdatedAt: ms(5)})
	next, rep, err := New(remote, WithUploadConcurrency(4)).Sync(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Applied)

	r, ok := next.Get("r")
	require.True(t, ok)
	assert.Equal(t, []string{"l"}, r.Links)
	assert.Equal(t, []string{"shared"}, r.Tags)
	assert.Equal(t, "r", next.Notes()[0].ID)
}
