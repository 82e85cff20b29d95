package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instabridge/pkg/content"
	"instabridge/pkg/logger"
)

type countingSource struct {
	calls map[string]int
	fail  map[string]bool
}

func newCountingSource() *countingSource {
	return &countingSource{calls: map[string]int{}, fail: map[string]bool{}}
}

func (s *countingSource) item(kind content.Kind, id string) *content.Item {
	return content.New(kind, id, "", "", 1, content.AudienceUnknown, func(ctx context.Context, dir string) ([]string, error) {
		s.calls[id]++
		if s.fail[id] {
			return nil, errors.New("media gone")
		}
		p := filepath.Join(dir, id+".jpg")
		if err := os.WriteFile(p, []byte("12345"), 0644); err != nil {
			return nil, err
		}
		return []string{p}, nil
	})
}

func TestQueueDownloadsEachItemOnce(t *testing.T) {
	src := newCountingSource()
	a := src.item(content.KindPost, "1")
	b := src.item(content.KindStory, "2")

	var notified []string
	q := NewQueue(t.TempDir(), logger.NewNopLogger(), WithNotify(func(r Result) { notified = append(notified, r.ItemID) }))

	results, err := q.Run(context.Background(), []*content.Item{a, b, a, b, a})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, 1, src.calls["1"])
	assert.Equal(t, 1, src.calls["2"])
	assert.Equal(t, []string{"post:1", "story:2"}, notified)
	assert.Equal(t, int64(5), results[0].Bytes)
}

func TestQueueContinuesAfterFailure(t *testing.T) {
	src := newCountingSource()
	src.fail["1"] = true
	bad := src.item(content.KindPost, "1")
	good := src.item(content.KindPost, "2")

	results, err := NewQueue(t.TempDir(), logger.NewNopLogger()).Run(context.Background(), []*content.Item{bad, good})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.False(t, results[0].OK())
	assert.Error(t, results[0].Err)
	assert.True(t, results[1].OK())

	paths := Paths(results)
	assert.NotContains(t, paths, "post:1")
	assert.Len(t, paths["post:2"], 1)
	assert.Len(t, AllPaths(results), 1)
}

func TestQueueStopsOnCancel(t *testing.T) {
	src := newCountingSource()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := NewQueue(t.TempDir(), logger.NewNopLogger()).Run(ctx, []*content.Item{src.item(content.KindPost, "1")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
	assert.Zero(t, src.calls["1"])
}
