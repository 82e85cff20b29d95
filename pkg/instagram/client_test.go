package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instabridge/pkg/content"
	errs "instabridge/pkg/errors"
	"instabridge/pkg/logger"
	"instabridge/pkg/ratelimit"
	"instabridge/pkg/retry"
)

const testUserID = 4242

// fakeInstagram serves the private API endpoints the client uses
type fakeInstagram struct {
	t      *testing.T
	server *httptest.Server

	mu        sync.Mutex
	hits      map[string]int
	feed      []map[string]interface{}
	stories   []map[string]interface{}
	followers [][]map[string]interface{}
	// failures maps a path to the statuses returned before it succeeds
	failures   map[string][]int
	retryAfter string
	loginBody  string
	loginCode  int
}

func newFakeInstagram(t *testing.T) *fakeInstagram {
	f := &fakeInstagram{
		t:        t,
		hits:     map[string]int{},
		failures: map[string][]int{},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeInstagram) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeInstagram) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	if codes := f.failures[r.URL.Path]; len(codes) > 0 {
		f.failures[r.URL.Path] = codes[1:]
		if f.retryAfter != "" {
			w.Header().Set("Retry-After", f.retryAfter)
		}
		f.mu.Unlock()
		w.WriteHeader(codes[0])
		_, _ = w.Write([]byte(`{"message":"try later","status":"fail"}`))
		return
	}
	f.mu.Unlock()

	authed := r.Header.Get("Authorization") == "Bearer IGT:2:token"

	switch {
	case r.URL.Path == LoginEndpoint:
		require.NoError(f.t, r.ParseForm())
		if f.loginCode != 0 {
			w.WriteHeader(f.loginCode)
			_, _ = w.Write([]byte(f.loginBody))
			return
		}
		assert.True(f.t, strings.HasPrefix(r.PostForm.Get("enc_password"), "#PWD_INSTAGRAM:0:"))
		assert.True(f.t, strings.HasSuffix(r.PostForm.Get("enc_password"), ":secret"))
		w.Header().Set("ig-set-authorization", "Bearer IGT:2:token")
		writeJSON(w, map[string]interface{}{
			"logged_in_user": map[string]interface{}{"pk": testUserID, "username": r.PostForm.Get("username")},
			"status":         "ok",
		})
	case !authed:
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"login_required","status":"fail"}`))
	case r.URL.Path == CurrentUserEndpoint:
		writeJSON(w, map[string]interface{}{"user": map[string]interface{}{"pk": testUserID, "username": "me"}})
	case r.URL.Path == UserFeedPath(testUserID):
		n := len(f.feed)
		if c := r.URL.Query().Get("count"); c != "" {
			fmt.Sscanf(c, "%d", &n)
		}
		if n > len(f.feed) {
			n = len(f.feed)
		}
		writeJSON(w, map[string]interface{}{"items": f.feed[:n], "status": "ok"})
	case r.URL.Path == ReelsMediaEndpoint:
		assert.Equal(f.t, fmt.Sprint(testUserID), r.URL.Query().Get("reel_ids"))
		writeJSON(w, map[string]interface{}{
			"reels": map[string]interface{}{fmt.Sprint(testUserID): map[string]interface{}{"items": f.stories}},
		})
	case r.URL.Path == FollowersPath(testUserID):
		page := 0
		if id := r.URL.Query().Get("max_id"); id != "" {
			fmt.Sscanf(id, "page%d", &page)
		}
		resp := map[string]interface{}{"users": f.followers[page]}
		if page+1 < len(f.followers) {
			resp["next_max_id"] = fmt.Sprintf("page%d", page+1)
		}
		writeJSON(w, resp)
	case strings.HasPrefix(r.URL.Path, "/cdn/"):
		_, _ = w.Write([]byte("bytes of " + r.URL.Path))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeInstagram) photo(pk, takenAt int64, caption string) map[string]interface{} {
	m := map[string]interface{}{
		"pk":         pk,
		"taken_at":   takenAt,
		"media_type": MediaTypePhoto,
		"image_versions2": map[string]interface{}{"candidates": []map[string]interface{}{
			{"url": f.server.URL + fmt.Sprintf("/cdn/%d_small.jpg", pk), "width": 320},
			{"url": f.server.URL + fmt.Sprintf("/cdn/%d_big.jpg?stp=1", pk), "width": 1080},
		}},
	}
	if caption != "" {
		m["caption"] = map[string]interface{}{"text": caption}
	}
	return m
}

func testRetry() *retry.Config {
	return &retry.Config{
		MaxAttempts:      3,
		BaseDelay:        time.Millisecond,
		MaxDelay:         2 * time.Millisecond,
		MaxJitter:        time.Millisecond,
		MaxRateLimitWait: 50 * time.Millisecond,
		Logger:           logger.NewNopLogger(),
	}
}

func (f *fakeInstagram) client(t *testing.T, sessionFile string) *Client {
	return NewClient(Config{BaseURL: f.server.URL, SessionFile: sessionFile},
		WithLimiter(ratelimit.Unlimited{}),
		WithRetry(testRetry()),
		WithLogger(logger.NewNopLogger()),
	)
}

func (f *fakeInstagram) loggedIn(t *testing.T) *Client {
	c := f.client(t, "")
	require.NoError(t, c.Authenticate(context.Background(), "me", "secret"))
	return c
}

func TestAuthenticateAndSaveSession(t *testing.T) {
	f := newFakeInstagram(t)
	sessionFile := filepath.Join(t.TempDir(), "ig_session.json")

	c := f.client(t, sessionFile)
	require.NoError(t, c.Authenticate(context.Background(), "me", "secret"))
	assert.Equal(t, int64(testUserID), c.userID())
	assert.FileExists(t, sessionFile)

	// A second client reuses the saved session instead of logging in
	again := f.client(t, sessionFile)
	require.NoError(t, again.Authenticate(context.Background(), "me", "secret"))
	assert.Equal(t, 1, f.count(LoginEndpoint))
	assert.Equal(t, 1, f.count(CurrentUserEndpoint))
}

func TestAuthenticateRejectedSessionLogsInAgain(t *testing.T) {
	f := newFakeInstagram(t)
	sessionFile := filepath.Join(t.TempDir(), "ig_session.json")
	stale := `{"user_id": 4242, "username": "me", "authorization": "Bearer IGT:2:expired", "device_id": "android-abc"}`
	require.NoError(t, os.WriteFile(sessionFile, []byte(stale), 0600))

	c := f.client(t, sessionFile)
	require.NoError(t, c.Authenticate(context.Background(), "me", "secret"))

	assert.Equal(t, 1, f.count(LoginEndpoint))
	data, err := os.ReadFile(sessionFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Bearer IGT:2:token")
	assert.Contains(t, string(data), "android-abc", "the device id survives a re-login")
}

func TestAuthenticateFailures(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
		want errs.ErrorType
	}{
		{"bad password", 400, `{"message":"The password you entered is incorrect.","error_type":"bad_password"}`, errs.ErrorTypeAuth},
		{"challenge", 400, `{"message":"challenge_required","challenge":{"url":"https://x"}}`, errs.ErrorTypeAuth},
		{"plain 400", 400, `{"message":"something odd"}`, errs.ErrorTypeAuth},
		{"spam", 400, `{"message":"Please wait a few minutes","spam":true}`, errs.ErrorTypeRateLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeInstagram(t)
			f.loginCode = tt.code
			f.loginBody = tt.body

			err := f.client(t, "").Authenticate(context.Background(), "me", "secret")
			require.Error(t, err)
			assert.Equal(t, tt.want, errs.TypeOf(err))
		})
	}
}

func TestAuthenticateNeedsCredentials(t *testing.T) {
	f := newFakeInstagram(t)
	err := f.client(t, "").Authenticate(context.Background(), "", "")
	assert.True(t, errs.Is(err, errs.ErrorTypeConfiguration))
	assert.NotEmpty(t, errs.Remediation(err))
	assert.Zero(t, f.count(LoginEndpoint))
}

func TestFetchBeforeLogin(t *testing.T) {
	f := newFakeInstagram(t)
	_, err := f.client(t, "").FetchActiveStories(context.Background())
	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
}

func TestFetchLatestPost(t *testing.T) {
	f := newFakeInstagram(t)
	f.feed = []map[string]interface{}{
		f.photo(300, 1700000300, "  sunset  "),
		f.photo(200, 1700000200, ""),
	}
	c := f.loggedIn(t)

	item, err := c.FetchLatestPost(context.Background())
	require.NoError(t, err)
	require.NotNil(t, item)

	assert.Equal(t, "post:300", item.ID)
	assert.Equal(t, "Latest post", item.Title)
	assert.Equal(t, "sunset", item.Caption)
	assert.Equal(t, float64(1700000300), item.CreatedTS)
	assert.Equal(t, content.AudienceUnknown, item.Audience)

	dir := t.TempDir()
	paths, err := item.Download(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "post_300.jpg")}, paths)
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "bytes of /cdn/300_big.jpg", string(data), "the widest rendition is downloaded")
}

func TestFetchLatestPostEmptyFeed(t *testing.T) {
	f := newFakeInstagram(t)
	item, err := f.loggedIn(t).FetchLatestPost(context.Background())
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestFetchPostsSince(t *testing.T) {
	f := newFakeInstagram(t)
	f.feed = []map[string]interface{}{
		f.photo(3, 300, ""),
		f.photo(2, 200, ""),
		f.photo(1, 100, ""),
	}
	c := f.loggedIn(t)

	items, err := c.FetchPostsSince(context.Background(), 200, 10)
	require.NoError(t, err)
	require.Len(t, items, 1, "posts taken exactly at the cutoff are excluded")
	assert.Equal(t, "post:3", items[0].ID)
	assert.Equal(t, "Post", items[0].Title)

	items, err = c.FetchPostsSince(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestFetchActiveStories(t *testing.T) {
	f := newFakeInstagram(t)
	yes, no := true, false
	s1 := f.photo(11, 500, "")
	s1["is_close_friends"] = yes
	s2 := f.photo(12, 100, "hi")
	s2["is_close_friends"] = no
	s3 := f.photo(13, 300, "")
	s3["audience"] = "besties_CLOSE_friends"
	s4 := f.photo(14, 400, "")
	s4["media_type"] = MediaTypeVideo
	s4["video_versions"] = []map[string]interface{}{{"url": f.server.URL + "/cdn/14.mp4", "width": 720}}
	f.stories = []map[string]interface{}{s1, s2, s3, s4}
	c := f.loggedIn(t)

	items, err := c.FetchActiveStories(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 4)

	var ids []string
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"story:12", "story:13", "story:14", "story:11"}, ids, "stories are chronological")
	assert.Equal(t, content.AudienceNormal, items[0].Audience)
	assert.Equal(t, content.AudienceCloseFriends, items[1].Audience)
	assert.Equal(t, content.AudienceUnknown, items[2].Audience)
	assert.Equal(t, content.AudienceCloseFriends, items[3].Audience)

	paths, err := items[2].Download(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ".mp4", filepath.Ext(paths[0]))
}

func TestAlbumDownloadsEveryChild(t *testing.T) {
	f := newFakeInstagram(t)
	album := map[string]interface{}{
		"pk":         77,
		"taken_at":   1,
		"media_type": MediaTypeAlbum,
		"carousel_media": []map[string]interface{}{
			f.photo(771, 0, ""),
			{"pk": 772, "media_type": MediaTypeVideo, "video_versions": []map[string]interface{}{{"url": f.server.URL + "/cdn/772.mp4", "width": 1}}},
		},
	}
	f.feed = []map[string]interface{}{album}
	c := f.loggedIn(t)

	item, err := c.FetchLatestPost(context.Background())
	require.NoError(t, err)
	dir := t.TempDir()
	paths, err := item.Download(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "post_77_1.jpg"),
		filepath.Join(dir, "post_77_2.mp4"),
	}, paths)
}

func TestMediaWithoutURLsFailsDownload(t *testing.T) {
	f := newFakeInstagram(t)
	f.feed = []map[string]interface{}{{"pk": 5, "taken_at": 1, "media_type": MediaTypePhoto}}
	c := f.loggedIn(t)

	item, err := c.FetchLatestPost(context.Background())
	require.NoError(t, err)
	_, err = item.Download(context.Background(), t.TempDir())
	assert.True(t, errs.Is(err, errs.ErrorTypeDownload))
}

func TestFollowersPagesThrough(t *testing.T) {
	f := newFakeInstagram(t)
	f.followers = [][]map[string]interface{}{
		{{"pk": 1, "username": "ann"}, {"pk": 2, "username": "ben"}},
		{{"pk": 3, "username": "cat"}, {"pk": 0, "username": "ghost"}},
	}
	c := f.loggedIn(t)

	got, err := c.Followers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{1: "ann", 2: "ben", 3: "cat"}, got)
	assert.Equal(t, 2, f.count(FollowersPath(testUserID)))
}

func TestServerErrorsAreRetried(t *testing.T) {
	f := newFakeInstagram(t)
	f.failures[ReelsMediaEndpoint] = []int{502, 503}
	c := f.loggedIn(t)

	_, err := c.FetchActiveStories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, f.count(ReelsMediaEndpoint))
}

func TestRateLimitHonoursRetryAfter(t *testing.T) {
	f := newFakeInstagram(t)
	f.failures[ReelsMediaEndpoint] = []int{429}
	f.retryAfter = "120"
	c := f.loggedIn(t)

	_, err := c.FetchActiveStories(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeRateLimit))
	assert.Equal(t, 120*time.Second, errs.RetryAfter(err))
	assert.Equal(t, 1, f.count(ReelsMediaEndpoint), "a long wait is surfaced, not slept through")
}

func TestRateLimitWithoutHintDefaultsToTenMinutes(t *testing.T) {
	f := newFakeInstagram(t)
	f.failures[ReelsMediaEndpoint] = []int{429}
	c := f.loggedIn(t)

	_, err := c.FetchActiveStories(context.Background())
	assert.Equal(t, 600*time.Second, errs.RetryAfter(err))
}

func TestNotFoundIsNotRetried(t *testing.T) {
	f := newFakeInstagram(t)
	f.failures[ReelsMediaEndpoint] = []int{404}
	c := f.loggedIn(t)

	_, err := c.FetchActiveStories(context.Background())
	assert.True(t, errs.Is(err, errs.ErrorTypeNotFound))
	assert.Equal(t, 1, f.count(ReelsMediaEndpoint))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("soon"))
	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	assert.Greater(t, parseRetryAfter(future), 58*time.Minute)
}

func TestLimiterIsConsultedPerCall(t *testing.T) {
	f := newFakeInstagram(t)
	counting := &countingLimiter{}
	c := NewClient(Config{BaseURL: f.server.URL},
		WithLimiter(counting),
		WithRetry(testRetry()),
		WithLogger(logger.NewNopLogger()),
	)
	require.NoError(t, c.Authenticate(context.Background(), "me", "secret"))
	_, err := c.FetchActiveStories(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, counting.waits)
}

type countingLimiter struct {
	waits int
}

func (l *countingLimiter) Allow() bool { return true }
func (l *countingLimiter) Wait(ctx context.Context) error {
	l.waits++
	return nil
}
func (l *countingLimiter) Reset() {}
