package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	errs "instabridge/pkg/errors"
	"instabridge/pkg/logger"
	"instabridge/pkg/relay"
	"instabridge/pkg/retry"
)

// Bridge endpoints
const (
	SessionStartPath = "/session/start"
	SessionStopPath  = "/session/stop"
	ChatOpenPath     = "/chats/open"
	MediaPath        = "/messages/media"
	TextPath         = "/messages/text"
)

const (
	defaultLoginWait = 120 * time.Second
	stopTimeout      = 10 * time.Second
)

// Config holds the bridge connection settings
type Config struct {
	BridgeURL      string
	RequestTimeout time.Duration
	// LoginWait is how long the bridge may wait for a QR scan on start
	LoginWait time.Duration
}

// Client drives a WhatsApp Web bridge over HTTP. It implements relay.Channel.
type Client struct {
	baseURL    string
	httpClient *http.Client
	loginWait  time.Duration
	logger     logger.Logger
	retry      *retry.Config
}

var _ relay.Channel = (*Client)(nil)

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, for tests
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithRetry sets the retry policy used while the bridge comes up
func WithRetry(cfg *retry.Config) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// NewClient creates a bridge client
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	if cfg.LoginWait <= 0 {
		cfg.LoginWait = defaultLoginWait
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BridgeURL, "/"),
		httpClient: &http.Client{Timeout: cfg.RequestTimeout + cfg.LoginWait},
		loginWait:  cfg.LoginWait,
		logger:     logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry == nil {
		rc := retry.DefaultConfig()
		rc.Logger = c.logger
		c.retry = rc
	}
	return c
}

// Open starts the browser session, waiting for the QR login when needed.
// Connection failures are retried since the bridge may still be starting.
func (c *Client) Open(ctx context.Context) error {
	body := map[string]interface{}{"wait_login_seconds": int(c.loginWait / time.Second)}
	err := retry.Do(ctx, func() error {
		return c.postJSON(ctx, SessionStartPath, body, nil)
	}, c.retry)
	if err != nil {
		return err
	}
	c.logger.Info("WhatsApp session ready")
	return nil
}

// Close stops the browser session. It does not depend on the caller's context.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := c.postJSON(ctx, SessionStopPath, map[string]interface{}{}, nil); err != nil {
		if errs.Is(err, errs.ErrorTypeSessionClosed) {
			return nil
		}
		return err
	}
	return nil
}

// Address opens the target's chat, by contact name first and phone second
func (c *Client) Address(ctx context.Context, target relay.Target) error {
	if target.Name == "" && target.Phone == "" {
		return errs.New(errs.ErrorTypeValidation, "target has neither a contact name nor a phone")
	}
	err := c.postJSON(ctx, ChatOpenPath, chatRequest{Name: target.Name, Phone: target.Phone}, nil)
	if errs.Is(err, errs.ErrorTypeNotFound) {
		return errs.Wrap(errs.ErrorTypeSend, err, fmt.Sprintf("could not open chat with %s", target))
	}
	return err
}

// DeliverBatch uploads files as one message with caption on the first file
func (c *Client) DeliverBatch(ctx context.Context, target relay.Target, files []string, caption string) error {
	if len(files) == 0 {
		return errs.New(errs.ErrorTypeValidation, "nothing to send")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := writeFields(mw, [][2]string{
		{"name", target.Name},
		{"phone", target.Phone},
		{"caption", caption},
	}); err != nil {
		return err
	}
	for _, path := range files {
		if err := attach(mw, path); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return errs.Wrap(errs.ErrorTypeSend, err, "build upload")
	}

	start := time.Now()
	err := c.do(ctx, MediaPath, mw.FormDataContentType(), &buf, nil)
	c.logger.DebugWithFields("Media batch uploaded", map[string]interface{}{
		"target":   target.String(),
		"files":    len(files),
		"bytes":    buf.Len(),
		"duration": time.Since(start),
		"ok":       err == nil,
	})
	return err
}

// writeFields writes name/value pairs in order
func writeFields(mw *multipart.Writer, fields [][2]string) error {
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return errs.Wrap(errs.ErrorTypeSend, err, "build upload field "+f[0])
		}
	}
	return nil
}

func attach(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeSend, err, "media file missing")
	}
	defer f.Close()

	part, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return errs.Wrap(errs.ErrorTypeSend, err, "build upload")
	}
	if _, err := io.Copy(part, f); err != nil {
		return errs.Wrap(errs.ErrorTypeSend, err, "read "+filepath.Base(path))
	}
	return nil
}

// SendText sends a plain text message
func (c *Client) SendText(ctx context.Context, target relay.Target, text string) error {
	return c.postJSON(ctx, TextPath, textRequest{Name: target.Name, Phone: target.Phone, Text: text}, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, body, target interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeValidation, err, "encode request")
	}
	return c.do(ctx, path, "application/json", bytes.NewReader(data), target)
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.WarnWithFields("WhatsApp bridge unreachable", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return errs.Wrap(errs.ErrorTypeNetwork, err, "bridge unreachable")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeNetwork, err, "failed to read bridge response")
	}
	if err := classify(resp.StatusCode, payload); err != nil {
		c.logger.WarnWithFields("WhatsApp bridge reported a failure", map[string]interface{}{
			"path":   path,
			"status": resp.StatusCode,
			"error":  err.Error(),
		})
		return err
	}

	if target != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, target); err != nil {
			return errs.Wrap(errs.ErrorTypeParsing, err, "bridge response")
		}
	}
	return nil
}

// classify turns a bridge answer into a typed error. A closed browser
// session is reported as 410 or with the session_closed code.
func classify(status int, payload []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var eb errorBody
	_ = json.Unmarshal(payload, &eb)
	msg := eb.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status == http.StatusGone || eb.Error.Code == "session_closed":
		return errs.SessionClosed(msg, nil)
	case status == http.StatusNotFound || eb.Error.Code == "chat_not_found":
		e := errs.New(errs.ErrorTypeNotFound, msg)
		e.Code = status
		return e
	case status == http.StatusServiceUnavailable || eb.Error.Code == "not_ready":
		e := errs.New(errs.ErrorTypeNetwork, msg)
		e.Code = status
		return e
	case status == http.StatusBadRequest:
		e := errs.New(errs.ErrorTypeValidation, msg)
		e.Code = status
		return e
	default:
		e := errs.New(errs.ErrorTypeSend, msg)
		e.Code = status
		return e
	}
}

type chatRequest struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type textRequest struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Text  string `json:"text"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
