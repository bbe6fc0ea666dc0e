package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPConfig configures the HTTP driver client.
type HTTPConfig struct {
	BaseURL        string
	ConnectTimeout time.Duration
	InvokeTimeout  time.Duration
	Capabilities   map[string]any
}

// HTTPClient implements Client over the driver's JSON/HTTP wire.
//
// Wire shape (uiautomator2-style):
//
//	POST   {base}/session                 -> {"sessionId": "..."}
//	DELETE {base}/session/{id}
//	POST   {base}/session/{id}/{op}       -> {"value": ...}
//	GET    {base}/session/{id}/health
//	GET    {base}/status
//
// Failures carry {"error": "...", "message": "..."} bodies.
type HTTPClient struct {
	cfg  HTTPConfig
	base *url.URL
	hc   *http.Client
}

func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("driver: base_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("driver: invalid base_url: %w", err)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.InvokeTimeout <= 0 {
		cfg.InvokeTimeout = 60 * time.Second
	}
	return &HTTPClient{
		cfg:  cfg,
		base: u,
		// Per-call deadlines come from contexts; the client itself has no
		// global timeout so slow UI operations aren't cut off twice.
		hc: &http.Client{},
	}, nil
}

func (c *HTTPClient) Connect(ctx context.Context) (Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	body := map[string]any{"capabilities": c.cfg.Capabilities}
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.do(ctx, http.MethodPost, "/session", body, "connect", &resp); err != nil {
		return Handle{}, err
	}
	if resp.SessionID == "" {
		return Handle{}, &Error{Op: "connect", Message: "driver returned empty session id"}
	}
	return Handle{ID: resp.SessionID, Created: time.Now()}, nil
}

func (c *HTTPClient) Disconnect(ctx context.Context, h Handle) error {
	if h.IsZero() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	return c.do(ctx, http.MethodDelete, "/session/"+url.PathEscape(h.ID), nil, "disconnect", nil)
}

func (c *HTTPClient) Invoke(ctx context.Context, h Handle, op string, args any) (Result, error) {
	if h.IsZero() {
		return Result{}, &Error{Op: op, Message: "no session"}
	}
	if strings.TrimSpace(op) == "" {
		return Result{}, errors.New("driver: operation name is required")
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.InvokeTimeout)
	defer cancel()

	var resp struct {
		Value json.RawMessage `json:"value"`
	}
	path := "/session/" + url.PathEscape(h.ID) + "/" + op
	if err := c.do(ctx, http.MethodPost, path, args, op, &resp); err != nil {
		return Result{}, err
	}
	return Result{Value: resp.Value}, nil
}

func (c *HTTPClient) Healthy(ctx context.Context, h Handle) bool {
	if h.IsZero() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := c.do(ctx, http.MethodGet, "/session/"+url.PathEscape(h.ID)+"/health", nil, "health", nil)
	return err == nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, op string, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("driver: marshal %s request: %w", op, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return fmt.Errorf("driver: build %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.hc.Do(req)
	if err != nil {
		// Transport failures (refused, reset, hung up) also feed the
		// session manager's crash matching, so keep the raw text.
		return &Error{Op: op, Message: err.Error()}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return &Error{Op: op, Message: "read response: " + err.Error()}
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		de := &Error{Op: op, Status: res.StatusCode, Message: strings.TrimSpace(string(raw))}
		var remote struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &remote) == nil && remote.Message != "" {
			de.Code = remote.Error
			de.Message = remote.Message
		}
		return de
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return &Error{Op: op, Status: res.StatusCode, Message: "decode response: " + err.Error()}
		}
	}
	return nil
}
