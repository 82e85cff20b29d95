package relay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instabridge/pkg/state"
)

func TestCleanupMediaClearsLastRunFiles(t *testing.T) {
	e := newEnv(t, "")
	file := filepath.Join(e.media.Dir(), "post_1.jpg")
	require.NoError(t, os.WriteFile(file, make([]byte, 2048), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(e.media.Dir(), "old"), 0755))

	st := state.New()
	st.MarkSent("default", "post:1")
	st.Finalize(testNow.Add(-time.Hour), []string{file}, "New from Instagram:\npost: latest")
	e.saveState(st)

	report, err := e.orchestrator().CleanupMedia()
	require.NoError(t, err)
	assert.Equal(t, 2, report.Removed)
	assert.Equal(t, int64(2048), report.Freed)

	entries, err := os.ReadDir(e.media.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	after := e.states.Load()
	assert.Empty(t, after.LastRunFiles)
	assert.Equal(t, "New from Instagram:\npost: latest", after.LastRunCaption)
	assert.True(t, after.HasSent("default", "post:1"))
	assert.Contains(t, e.out.String(), "Cleaned media: 2 entries, 2.0 kB freed")
}

func TestCleanupMediaWithoutStateWritesNothing(t *testing.T) {
	e := newEnv(t, "")

	report, err := e.orchestrator().CleanupMedia()
	require.NoError(t, err)
	assert.Zero(t, report.Removed)
	assert.Nil(t, e.stateBytes())
}
