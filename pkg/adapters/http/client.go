package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/consult/internal/logging"
	"github.com/aretw0/consult/pkg/domain"
)

// SessionHeader carries the consultation id on every inference call.
const SessionHeader = "X-Session-ID"

// maxErrorBody bounds how much of an error response is kept for the message.
const maxErrorBody = 512

// Client implements ports.InferenceService over the consultation HTTP API.
//
// The service keeps its reasoning state in a server-side session, so the
// client keeps one cookie jar per consultation id in addition to sending the
// id and token explicitly.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger

	mu   sync.Mutex
	jars map[string]http.CookieJar
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithClientLogger configures a logger for the Client.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the service rooted at baseURL
// (e.g. http://localhost:8000/api).
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid service url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid service url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: logging.NewNop(),
		jars:   make(map[string]http.CookieJar),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start calls POST /consultation/start.
func (c *Client) Start(ctx context.Context, sess domain.ServiceSession, target string) (*domain.StartResponse, error) {
	var resp domain.StartResponse
	if err := c.do(ctx, sess, http.MethodPost, "/consultation/start", domain.StartRequest{VisaType: target}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Answer calls POST /consultation/answer.
func (c *Client) Answer(ctx context.Context, sess domain.ServiceSession, question string, value domain.Answer) (*domain.AnswerResponse, error) {
	var resp domain.AnswerResponse
	req := domain.AnswerRequest{Question: question, Answer: value}
	if err := c.do(ctx, sess, http.MethodPost, "/consultation/answer", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Back calls POST /consultation/back.
func (c *Client) Back(ctx context.Context, sess domain.ServiceSession) (*domain.BackResponse, error) {
	var resp domain.BackResponse
	if err := c.do(ctx, sess, http.MethodPost, "/consultation/back", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Trace calls GET /consultation/visualization.
func (c *Client) Trace(ctx context.Context, sess domain.ServiceSession) (*domain.TraceSnapshot, error) {
	var resp domain.TraceSnapshot
	if err := c.do(ctx, sess, http.MethodGet, "/consultation/visualization", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Forget drops the cookies kept for a consultation.
func (c *Client) Forget(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.jars, sessionID)
}

func (c *Client) jar(sessionID string) http.CookieJar {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jars[sessionID]
	if !ok {
		// cookiejar.New only fails with a non-nil PublicSuffixList.
		j, _ = cookiejar.New(nil)
		c.jars[sessionID] = j
	}
	return j
}

func (c *Client) do(ctx context.Context, sess domain.ServiceSession, method, path string, body, out any) error {
	u := c.base.JoinPath(path)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sess.ID != "" {
		req.Header.Set(SessionHeader, sess.ID)
	}
	if sess.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}

	jar := c.jar(sess.ID)
	for _, cookie := range jar.Cookies(u) {
		req.AddCookie(cookie)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %s %s: %w", domain.ErrServiceUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if cookies := resp.Cookies(); len(cookies) > 0 {
		jar.SetCookies(u, cookies)
	}

	c.logger.Debug("Inference call",
		"session_id", sess.ID, "method", method, "path", path,
		"status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode >= 300 {
		return statusError(method, path, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: malformed response: %w", domain.ErrServiceUnavailable, method, path, err)
	}
	return nil
}

func statusError(method, path string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := strings.TrimSpace(string(data))

	var payload struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Detail != "" {
		detail = payload.Detail
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s: %s", domain.ErrSessionNotFound, method, path, detail)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%s %s rejected (%d): %s", method, path, resp.StatusCode, detail)
	default:
		return fmt.Errorf("%w: %s %s returned %d: %s", domain.ErrServiceUnavailable, method, path, resp.StatusCode, detail)
	}
}
