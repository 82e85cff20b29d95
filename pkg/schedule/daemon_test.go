package schedule

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "instabridge/pkg/errors"
	"instabridge/pkg/logger"
	"instabridge/pkg/relay"
	"instabridge/pkg/settings"
)

type recordingRunner struct {
	mu   sync.Mutex
	reqs []relay.RunRequest
	err  error
}

func (r *recordingRunner) Run(ctx context.Context, req relay.RunRequest) (*relay.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	if r.err != nil {
		return nil, r.err
	}
	return &relay.Report{RunID: "test"}, nil
}

func (r *recordingRunner) recipients() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, req := range r.reqs {
		out = append(out, req.RecipientID)
	}
	return out
}

type recordingNarrator struct {
	mu    sync.Mutex
	lines []string
}

func (n *recordingNarrator) add(kind, format string, args []interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lines = append(n.lines, kind+": "+fmt.Sprintf(format, args...))
}

func (n *recordingNarrator) Step(f string, a ...interface{})    { n.add("step", f, a) }
func (n *recordingNarrator) Success(f string, a ...interface{}) { n.add("ok", f, a) }
func (n *recordingNarrator) Warn(f string, a ...interface{})    { n.add("warn", f, a) }
func (n *recordingNarrator) Error(f string, a ...interface{})   { n.add("error", f, a) }

func (n *recordingNarrator) has(line string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, l := range n.lines {
		if l == line {
			return true
		}
	}
	return false
}

func newStore(t *testing.T, doc *settings.Document) *settings.Store {
	t.Helper()
	store := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"), logger.NewNopLogger())
	require.NoError(t, store.Save(doc))
	return store
}

func twoRecipients() *settings.Document {
	off := false
	return &settings.Document{
		Schedule: settings.DefaultSchedule(),
		Recipients: []settings.Recipient{
			{ID: "a", DisplayName: "Alice", ContactName: "Alice", Enabled: true, SendPosts: true},
			{ID: "b", DisplayName: "Bob", ContactName: "Bob", Enabled: true, SendPosts: true, ScheduleEnabled: &off},
		},
	}
}

func jobNames(d *Daemon) map[string]bool {
	names := map[string]bool{}
	for _, j := range d.Jobs() {
		names[j.Name] = true
	}
	return names
}

func startDaemon(t *testing.T, runner Runner, store *settings.Store, opts ...Option) *Daemon {
	t.Helper()
	opts = append([]Option{WithLogger(logger.NewNopLogger())}, opts...)
	d, err := NewDaemon(Config{Backoff: 10 * time.Millisecond, UnfollowDay: time.Sunday}, runner, store, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(ctx))
	t.Cleanup(func() {
		cancel()
		_ = d.Stop()
	})
	return d
}

func TestDaemonRegistersEnabledRecipients(t *testing.T) {
	runner := &recordingRunner{}
	d := startDaemon(t, runner, newStore(t, twoRecipients()))

	names := jobNames(d)
	assert.True(t, names["a"])
	assert.False(t, names["b"], "schedule disabled")
	assert.False(t, names["unfollow-check"], "no unfollow check registered")

	require.Eventually(t, func() bool {
		for _, j := range d.Jobs() {
			if !j.NextRun.After(time.Now()) {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDaemonRunsRecipientJob(t *testing.T) {
	runner := &recordingRunner{}
	d := startDaemon(t, runner, newStore(t, twoRecipients()))

	require.NoError(t, d.RunNow("a"))
	require.Eventually(t, func() bool {
		return len(runner.recipients()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a"}, runner.recipients())

	assert.Error(t, d.RunNow("nope"))
}

func TestDaemonReportsFailedRun(t *testing.T) {
	runner := &recordingRunner{err: errs.New(errs.ErrorTypeAuth, "challenge required")}
	narrator := &recordingNarrator{}
	d := startDaemon(t, runner, newStore(t, twoRecipients()), WithNarrator(narrator))

	require.NoError(t, d.RunNow("a"))
	require.Eventually(t, func() bool {
		return narrator.has("error: Run for Alice failed: auth error: challenge required")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDaemonReloadFollowsSettings(t *testing.T) {
	store := newStore(t, twoRecipients())
	d := startDaemon(t, &recordingRunner{}, store)

	doc := twoRecipients()
	doc.Recipients[1].ScheduleEnabled = nil
	doc.Recipients[0].Enabled = false
	require.NoError(t, store.Save(doc))
	require.NoError(t, d.Reload())

	names := jobNames(d)
	assert.False(t, names["a"])
	assert.True(t, names["b"])
}

func TestDaemonUnfollowJob(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	check := func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil
	}
	d := startDaemon(t, &recordingRunner{}, newStore(t, twoRecipients()), WithUnfollowCheck(check))

	assert.True(t, jobNames(d)["unfollow-check"])
	require.NoError(t, d.RunNow("unfollow-check"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNoScheduledRecipientsWarns(t *testing.T) {
	narrator := &recordingNarrator{}
	startDaemon(t, &recordingRunner{}, newStore(t, &settings.Document{Schedule: settings.DefaultSchedule()}), WithNarrator(narrator))
	assert.True(t, narrator.has("warn: No recipients with enabled schedules."))
}
