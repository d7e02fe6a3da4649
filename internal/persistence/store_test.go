package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/tlplay/internal/config"
	"github.com/mantonx/tlplay/internal/ioerrors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(config.PersistenceConfig{
		DataDir:      dir,
		DatabasePath: filepath.Join(dir, "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGetSettingsCreatesSingletonRow(t *testing.T) {
	store := newTestStore(t)

	first, err := store.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first.ID)

	second, err := store.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestSaveWindowGeometryRoundTrips(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveWindowGeometry(10, 20, 1920, 1080, true))

	settings, err := store.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, 10, settings.WindowX)
	assert.Equal(t, 20, settings.WindowY)
	assert.Equal(t, 1920, settings.WindowWidth)
	assert.Equal(t, 1080, settings.WindowHeight)
	assert.True(t, settings.WindowMaximized)
}

func TestSaveRawSettingsRoundTrips(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveRawSettings(`{"Performance/VideoRequestCount":16}`))

	settings, err := store.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, `{"Performance/VideoRequestCount":16}`, settings.RawJSON)
}

func TestAddRecentFileOrdersMostRecentFirst(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.AddRecentFile("/media/a.otio"))
	require.NoError(t, store.AddRecentFile("/media/b.otio"))

	files, err := store.RecentFiles(10)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "/media/b.otio", files[0].Path)
	assert.Equal(t, "/media/a.otio", files[1].Path)
}

func TestAddRecentFileReopenMovesToFront(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.AddRecentFile("/media/a.otio"))
	require.NoError(t, store.AddRecentFile("/media/b.otio"))
	require.NoError(t, store.AddRecentFile("/media/a.otio"))

	files, err := store.RecentFiles(10)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "/media/a.otio", files[0].Path)
}

func TestAddRecentFileEvictsOldestBeyondLimit(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < MaxRecentFiles+5; i++ {
		require.NoError(t, store.AddRecentFile(filepath.Join("/media", string(rune('a'+i))+".otio")))
	}

	files, err := store.RecentFiles(0)
	require.NoError(t, err)
	assert.Len(t, files, MaxRecentFiles)
}

func TestResumePositionNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.ResumePosition("/media/missing.otio")
	require.Error(t, err)
	kind, ok := ioerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ioerrors.KindNotFound, kind)
}

func TestSaveResumePositionRoundTrips(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveResumePosition("/media/timeline.otio", 42.5))

	pos, err := store.ResumePosition("/media/timeline.otio")
	require.NoError(t, err)
	assert.InDelta(t, 42.5, pos, 0.0001)
}

func TestSaveResumePositionOverwrites(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveResumePosition("/media/timeline.otio", 10))
	require.NoError(t, store.SaveResumePosition("/media/timeline.otio", 20))

	pos, err := store.ResumePosition("/media/timeline.otio")
	require.NoError(t, err)
	assert.InDelta(t, 20, pos, 0.0001)
}
