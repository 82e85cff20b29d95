package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	errs "instabridge/pkg/errors"
)

// session is what a login leaves behind
type session struct {
	UserID        int64     `json:"user_id"`
	Username      string    `json:"username"`
	Authorization string    `json:"authorization"`
	DeviceID      string    `json:"device_id"`
	SavedAt       time.Time `json:"saved_at"`
}

// Authenticate reuses a saved session when it still works, otherwise logs in
// with username and password and saves the new session.
func (c *Client) Authenticate(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return errs.Configuration("Instagram credentials missing", "set IG_USERNAME and IG_PASSWORD or run `instabridge auth login`")
	}

	if saved, ok := c.loadSession(); ok && strings.EqualFold(saved.Username, username) {
		c.setSession(saved)
		err := c.verifySession(ctx)
		if err == nil {
			c.logger.InfoWithFields("Reusing saved Instagram session", map[string]interface{}{
				"username": username,
			})
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.WithError(err).Warn("Saved Instagram session rejected, logging in again")
		c.setSession(session{DeviceID: saved.DeviceID})
	}

	if err := c.login(ctx, username, password); err != nil {
		return err
	}
	if err := c.saveSession(); err != nil {
		c.logger.WithError(err).Warn("Could not save Instagram session")
	}
	return nil
}

func (c *Client) login(ctx context.Context, username, password string) error {
	c.mu.Lock()
	if c.session.DeviceID == "" {
		c.session.DeviceID = "android-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	}
	deviceID := c.session.DeviceID
	c.mu.Unlock()

	form := url.Values{}
	form.Set("username", username)
	form.Set("enc_password", fmt.Sprintf("#PWD_INSTAGRAM:0:%d:%s", time.Now().Unix(), password))
	form.Set("device_id", deviceID)
	form.Set("guid", uuid.NewString())
	form.Set("login_attempt_count", "0")

	var resp loginResponse
	if err := c.postForm(ctx, LoginEndpoint, form, &resp); err != nil {
		if errs.Is(err, errs.ErrorTypeValidation) {
			return errs.Wrap(errs.ErrorTypeAuth, err, "login rejected")
		}
		return err
	}
	if resp.LoggedInUser.PK == 0 {
		return errs.New(errs.ErrorTypeAuth, "login answered without a user")
	}

	c.mu.Lock()
	c.session.UserID = resp.LoggedInUser.PK
	c.session.Username = resp.LoggedInUser.Username
	if c.session.Username == "" {
		c.session.Username = username
	}
	c.mu.Unlock()

	c.logger.InfoWithFields("Logged into Instagram", map[string]interface{}{
		"username": username,
		"user_id":  resp.LoggedInUser.PK,
	})
	return nil
}

func (c *Client) verifySession(ctx context.Context) error {
	q := url.Values{}
	q.Set("edit", "true")
	var resp currentUserResponse
	if err := c.getJSON(ctx, CurrentUserEndpoint, q, &resp); err != nil {
		return err
	}
	if resp.User.PK == 0 || resp.User.PK != c.userID() {
		return errs.New(errs.ErrorTypeAuth, "saved session belongs to another account")
	}
	return nil
}

// captureSession keeps the bearer token Instagram hands out on login
func (c *Client) captureSession(resp *http.Response) {
	auth := resp.Header.Get("ig-set-authorization")
	if auth == "" || strings.HasSuffix(auth, ":") {
		return
	}
	c.mu.Lock()
	c.session.Authorization = auth
	c.mu.Unlock()
}

func (c *Client) setSession(s session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *Client) loadSession() (session, bool) {
	if c.sessionFile == "" {
		return session{}, false
	}
	data, err := os.ReadFile(c.sessionFile)
	if err != nil {
		return session{}, false
	}
	var s session
	if err := json.Unmarshal(data, &s); err != nil || s.UserID == 0 {
		c.logger.WarnWithFields("Ignoring unreadable Instagram session file", map[string]interface{}{
			"path": c.sessionFile,
		})
		return session{}, false
	}
	return s, true
}

func (c *Client) saveSession() error {
	if c.sessionFile == "" {
		return nil
	}
	c.mu.RLock()
	s := c.session
	c.mu.RUnlock()
	s.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.sessionFile), 0700); err != nil {
		return err
	}
	tmp := c.sessionFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, c.sessionFile)
}
