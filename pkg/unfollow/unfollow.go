package unfollow

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	errs "instabridge/pkg/errors"
	"instabridge/pkg/logger"
	"instabridge/pkg/metrics"
	"instabridge/pkg/relay"
)

// AlertHeader opens the unfollow message
const AlertHeader = "Unfollow alert:"

// Followers lists the account's current followers as id to username
type Followers interface {
	Followers(ctx context.Context) (map[int64]string, error)
}

// Snapshot is the on-disk follower list of the previous check
type Snapshot struct {
	TS        float64           `json:"ts"`
	Followers map[string]string `json:"followers"`
}

// Lost is a follower present in the previous snapshot but gone now
type Lost struct {
	ID       int64
	Username string
}

// Checker compares the follower list against the last snapshot
type Checker struct {
	source  Followers
	path    string
	logger  logger.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// Option customizes a Checker
type Option func(*Checker)

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(c *Checker) {
		c.logger = l
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(r metrics.Recorder) Option {
	return func(c *Checker) {
		c.metrics = r
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		c.now = now
	}
}

// NewChecker creates a checker keeping its snapshot at path
func NewChecker(source Followers, path string, opts ...Option) *Checker {
	c := &Checker{
		source:  source,
		path:    path,
		logger:  logger.GetLogger(),
		metrics: metrics.NoopRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check fetches the current followers, returns the ones lost since the
// previous snapshot ordered by id, and replaces the snapshot. The first
// check only records a snapshot.
func (c *Checker) Check(ctx context.Context) ([]Lost, error) {
	current, err := c.source.Followers(ctx)
	if err != nil {
		return nil, err
	}

	previous := c.Load()
	var lost []Lost
	for idStr, username := range previous.Followers {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		if _, ok := current[id]; !ok {
			lost = append(lost, Lost{ID: id, Username: username})
		}
	}
	sort.Slice(lost, func(i, j int) bool { return lost[i].ID < lost[j].ID })

	next := Snapshot{
		TS:        float64(c.now().UnixNano()) / float64(time.Second),
		Followers: make(map[string]string, len(current)),
	}
	for id, username := range current {
		next.Followers[strconv.FormatInt(id, 10)] = username
	}
	if err := c.save(next); err != nil {
		return nil, err
	}

	c.metrics.IncUnfollows(len(lost))
	c.logger.InfoWithFields("Unfollow check complete", map[string]interface{}{
		"followers": len(current),
		"previous":  len(previous.Followers),
		"lost":      len(lost),
	})
	return lost, nil
}

// Load reads the last snapshot. A missing or corrupt file is an empty snapshot.
func (c *Checker) Load() Snapshot {
	empty := Snapshot{Followers: map[string]string{}}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return empty
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.WarnWithFields("Follower snapshot invalid, starting over", map[string]interface{}{
			"path":  c.path,
			"error": err.Error(),
		})
		return empty
	}
	if snap.Followers == nil {
		snap.Followers = map[string]string{}
	}
	return snap
}

func (c *Checker) save(snap Snapshot) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return errs.Wrap(errs.ErrorTypeState, err, "failed to encode follower snapshot")
	}

	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errs.Wrap(errs.ErrorTypeState, err, "failed to create snapshot directory")
		}
	}
	tempPath := c.path + ".tmp"
	if err := os.WriteFile(tempPath, buf.Bytes(), 0644); err != nil {
		os.Remove(tempPath)
		return errs.Wrap(errs.ErrorTypeState, err, "failed to write follower snapshot")
	}
	if err := os.Rename(tempPath, c.path); err != nil {
		os.Remove(tempPath)
		return errs.Wrap(errs.ErrorTypeState, err, "failed to replace follower snapshot")
	}
	return nil
}

// Usernames returns the usernames of lost followers in order
func Usernames(lost []Lost) []string {
	out := make([]string, 0, len(lost))
	for _, l := range lost {
		out = append(out, l.Username)
	}
	return out
}

// FormatAlert renders the message sent to the report contact
func FormatAlert(lost []Lost) string {
	lines := []string{AlertHeader}
	for _, l := range lost {
		lines = append(lines, "- "+l.Username)
	}
	return strings.Join(lines, "\n")
}

// Notify sends the alert to target over its own channel session. Nothing is
// sent when no follower was lost.
func Notify(ctx context.Context, ch relay.Channel, target relay.Target, lost []Lost) error {
	if len(lost) == 0 {
		return nil
	}
	if err := ch.Open(ctx); err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Address(ctx, target); err != nil {
		return err
	}
	return ch.SendText(ctx, target, FormatAlert(lost))
}
