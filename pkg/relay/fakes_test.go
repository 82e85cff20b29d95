package relay

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"instabridge/pkg/content"
	errs "instabridge/pkg/errors"
	"instabridge/pkg/logger"
	"instabridge/pkg/settings"
	"instabridge/pkg/state"
	"instabridge/pkg/storage"
	"instabridge/pkg/ui"
)

var testNow = time.Unix(1700000000, 0)

type fakeSource struct {
	latest  *content.Item
	posts   []*content.Item
	stories []*content.Item

	authErr  error
	fetchErr error

	latestCalls int
	sinceCalls  []float64
}

func (s *fakeSource) Authenticate(ctx context.Context, username, password string) error {
	return s.authErr
}

func (s *fakeSource) FetchLatestPost(ctx context.Context) (*content.Item, error) {
	s.latestCalls++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.latest, nil
}

func (s *fakeSource) FetchPostsSince(ctx context.Context, since float64, max int) ([]*content.Item, error) {
	s.sinceCalls = append(s.sinceCalls, since)
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []*content.Item
	for _, p := range s.posts {
		if p.CreatedTS > since && len(out) < max {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeSource) FetchActiveStories(ctx context.Context) ([]*content.Item, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.stories, nil
}

type delivery struct {
	target  Target
	files   []string
	caption string
}

type fakeChannel struct {
	opened    int
	closed    int
	addressed []Target
	delivered []delivery

	// failFor makes every delivery to the named target fail
	failFor map[string]error
	// closeSessionOnce fails the first delivery with a closed session
	closeSessionOnce bool
	// onDeliver runs after a successful delivery is recorded
	onDeliver func(n int)
}

func (c *fakeChannel) Open(ctx context.Context) error {
	c.opened++
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed++
	return nil
}

func (c *fakeChannel) Address(ctx context.Context, target Target) error {
	c.addressed = append(c.addressed, target)
	return nil
}

func (c *fakeChannel) DeliverBatch(ctx context.Context, target Target, files []string, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closeSessionOnce {
		c.closeSessionOnce = false
		return errs.SessionClosed("browser went away", nil)
	}
	if err := c.failFor[target.Name]; err != nil {
		return err
	}
	c.delivered = append(c.delivered, delivery{target: target, files: files, caption: caption})
	if c.onDeliver != nil {
		c.onDeliver(len(c.delivered))
	}
	return nil
}

func (c *fakeChannel) SendText(ctx context.Context, target Target, text string) error {
	return nil
}

// deliveredTo returns the captions sent to a target, in order
func (c *fakeChannel) deliveredTo(name string) []string {
	var out []string
	for _, d := range c.delivered {
		if d.target.Name == name {
			out = append(out, d.caption)
		}
	}
	return out
}

type testEnv struct {
	t         *testing.T
	dir       string
	source    *fakeSource
	channel   *fakeChannel
	states    *state.Store
	settings  *settings.Store
	media     *storage.Manager
	out       *bytes.Buffer
	downloads map[string]int
	failing   map[string]bool
}

func newEnv(t *testing.T, settingsJSON string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	media, err := storage.NewManager(filepath.Join(dir, "media"))
	require.NoError(t, err)

	e := &testEnv{
		t:         t,
		dir:       dir,
		source:    &fakeSource{},
		channel:   &fakeChannel{failFor: map[string]error{}},
		states:    state.NewStore(filepath.Join(dir, "state.json"), logger.NewNopLogger()),
		settings:  settings.NewStore(filepath.Join(dir, "settings.json"), logger.NewNopLogger()),
		media:     media,
		out:       &bytes.Buffer{},
		downloads: map[string]int{},
		failing:   map[string]bool{},
	}
	if settingsJSON != "" {
		require.NoError(t, os.WriteFile(e.settings.Path(), []byte(settingsJSON), 0644))
	}
	return e
}

func (e *testEnv) orchestrator() *Orchestrator {
	return New(Deps{
		Source:   e.source,
		Channel:  e.channel,
		State:    e.states,
		Settings: e.settings,
		Media:    e.media,
	}, Options{
		Username:       "me",
		Password:       "secret",
		ContentContact: Target{Name: "Mom", Phone: "49151"},
	},
		WithLogger(logger.NewNopLogger()),
		WithNarrator(ui.NewConsole(e.out, false)),
		WithClock(func() time.Time { return testNow }),
	)
}

func (e *testEnv) run(req RunRequest) *Report {
	e.t.Helper()
	report, err := e.orchestrator().Run(context.Background(), req)
	require.NoError(e.t, err)
	return report
}

// item builds an item whose download writes one file named after its id
func (e *testEnv) item(kind content.Kind, nativeID string, age time.Duration, audience content.Audience, caption string) *content.Item {
	created := float64(testNow.Add(-age).Unix())
	if age < 0 {
		created = 0
	}
	id := content.MakeID(kind, nativeID)
	return content.New(kind, nativeID, "Item", caption, created, audience, func(ctx context.Context, dir string) ([]string, error) {
		e.downloads[id]++
		if e.failing[id] {
			return nil, errs.New(errs.ErrorTypeNetwork, "cdn unavailable")
		}
		p := filepath.Join(dir, string(kind)+"_"+nativeID+".jpg")
		return []string{p}, os.WriteFile(p, []byte(id), 0644)
	})
}

func (e *testEnv) stateBytes() []byte {
	e.t.Helper()
	data, err := os.ReadFile(e.states.Path())
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(e.t, err)
	return data
}

func (e *testEnv) saveState(st *state.DeliveryState) {
	e.t.Helper()
	require.NoError(e.t, e.states.Save(st))
}
