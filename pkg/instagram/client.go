package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	errs "instabridge/pkg/errors"
	"instabridge/pkg/logger"
	"instabridge/pkg/ratelimit"
	"instabridge/pkg/retry"
)

// Config holds connection settings for the Instagram private API
type Config struct {
	BaseURL          string
	UserAgent        string
	Timeout          time.Duration
	MaxRetries       int
	MaxRateLimitWait time.Duration
	// SessionFile keeps the login between runs; empty disables persistence
	SessionFile string
}

// Client talks to the Instagram private API on behalf of one account
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	logger     logger.Logger
	limiter    ratelimit.Limiter
	retry      *retry.Config

	sessionFile string

	mu      sync.RWMutex
	session session
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, for tests
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLimiter sets the pacing applied before every API call
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithRetry sets the retry policy for API calls
func WithRetry(cfg *retry.Config) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client. Without WithLimiter it paces at the moderate profile.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	jar, _ := cookiejar.New(nil)
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout, Jar: jar},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		headers: map[string]string{
			"User-Agent":           cfg.UserAgent,
			"Accept":               "*/*",
			"Accept-Language":      "en-US",
			"X-IG-App-ID":          appID,
			"X-IG-Capabilities":    "3brTv10=",
			"X-IG-Connection-Type": "WIFI",
		},
		logger:      logger.GetLogger(),
		sessionFile: cfg.SessionFile,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.limiter == nil {
		c.limiter = ratelimit.NewHuman(ratelimit.Moderate)
	}
	if c.retry == nil {
		rc := retry.DefaultConfig()
		rc.MaxAttempts = cfg.MaxRetries + 1
		if cfg.MaxRateLimitWait > 0 {
			rc.MaxRateLimitWait = cfg.MaxRateLimitWait
		}
		rc.Logger = c.logger
		c.retry = rc
	}
	return c
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// doRequest sends req with the client headers and session authorization
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if auth := c.authorization(); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"path":   req.URL.Path,
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"path":     req.URL.Path,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "request failed")
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"path":     req.URL.Path,
		"status":   resp.StatusCode,
		"duration": duration,
	})
	return resp, nil
}

// call runs one API request under the limiter and retry policy and decodes
// the JSON answer into target. newReq is invoked per attempt.
func (c *Client) call(ctx context.Context, endpoint string, newReq func() (*http.Request, error), target interface{}) error {
	return retry.Do(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := newReq()
		if err != nil {
			return errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
		}
		resp, err := c.doRequest(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errs.Wrap(errs.ErrorTypeNetwork, err, "failed to read response body")
		}
		c.captureSession(resp)

		if err := c.checkResponse(endpoint, resp, body); err != nil {
			return err
		}
		if target == nil {
			return nil
		}
		if err := json.Unmarshal(body, target); err != nil {
			c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
				"endpoint":     endpoint,
				"status":       resp.StatusCode,
				"error":        err.Error(),
				"body_preview": preview(body),
			})
			return errs.Wrap(errs.ErrorTypeParsing, err, "failed to parse JSON")
		}
		return nil
	}, c.retry)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, target interface{}) error {
	return c.call(ctx, path, func() (*http.Request, error) {
		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}, target)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, target interface{}) error {
	return c.call(ctx, path, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
		return req, nil
	}, target)
}

// checkResponse maps a non-2xx answer to a typed error. Instagram reports
// challenges and expired sessions as 400s with a JSON message.
func (c *Client) checkResponse(endpoint string, resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	fields := map[string]interface{}{
		"endpoint": endpoint,
		"status":   resp.StatusCode,
		"message":  msg,
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || apiErr.Spam:
		wait := parseRetryAfter(resp.Header.Get("Retry-After"))
		logger.LogRateLimit(c.logger, endpoint, wait)
		return errs.RateLimited(msg, wait)
	case apiErr.requiresLogin():
		c.logger.WarnWithFields("Instagram wants a fresh login", fields)
		e := errs.New(errs.ErrorTypeAuth, msg)
		e.Code = resp.StatusCode
		return e
	case resp.StatusCode == http.StatusBadRequest:
		c.logger.WarnWithFields("Instagram rejected the request", fields)
		e := errs.New(errs.ErrorTypeValidation, msg)
		e.Code = resp.StatusCode
		return e
	default:
		c.logger.WarnWithFields("unexpected API status", fields)
		return errs.FromStatus(resp.StatusCode, msg)
	}
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. Zero means no usable hint.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// Download fetches a CDN URL. The caller closes the body.
func (c *Client) Download(ctx context.Context, mediaURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeDownload, err, "bad media URL")
	}
	resp, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errs.Newf(errs.ErrorTypeDownload, "media download returned %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (c *Client) userID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.UserID
}

func (c *Client) authorization() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.Authorization
}

// String identifies the client in logs without exposing the session
func (c *Client) String() string {
	return fmt.Sprintf("instagram(%s, user=%d)", c.baseURL, c.userID())
}
