// Package backend is the HTTP collaborator of the mission console: task
// submission, voice chat, and the authoritative task list.
package backend

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

	"github.com/droidcore/mission/internal/wire"
	"github.com/droidcore/mission/pkg/logger"
)

const defaultTimeout = 30 * time.Second

// ErrTaskNotFound is returned by GetTask when the backend does not know the id.
var ErrTaskNotFound = errors.New("task not found")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, body)
}

// Client talks to the mission backend over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewClient returns a Client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// SubmitTask queues a task. The returned id is informational only and may be
// empty; the task record itself arrives later on the event channel.
func (c *Client) SubmitTask(ctx context.Context, payload wire.TaskPayload) (string, error) {
	if payload.Persona() == "" {
		return "", fmt.Errorf("submit task: missing persona")
	}
	var resp wire.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/task", payload, &resp); err != nil {
		return "", fmt.Errorf("submit task: %w", err)
	}
	logger.Debugf("Task queued: persona=%s id=%q status=%q", payload.Persona(), resp.TaskID, resp.Status)
	return resp.TaskID, nil
}

// Chat sends one voice utterance and returns the agent reply.
func (c *Client) Chat(ctx context.Context, sessionID, message string) (string, error) {
	req := wire.ChatRequest{SessionID: sessionID, Message: message}
	var resp wire.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat", req, &resp); err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	return resp.Response, nil
}

// ListTasks returns the backend's authoritative task list.
func (c *Client) ListTasks(ctx context.Context) ([]wire.TaskRecord, error) {
	var records []wire.TaskRecord
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &records); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return records, nil
}

// GetTask returns a single task record.
func (c *Client) GetTask(ctx context.Context, id string) (wire.TaskRecord, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &raw); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return wire.TaskRecord{}, ErrTaskNotFound
		}
		return wire.TaskRecord{}, fmt.Errorf("get task: %w", err)
	}

	var errResp wire.ErrorResponse
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error != "" {
		return wire.TaskRecord{}, fmt.Errorf("%w: %s", ErrTaskNotFound, errResp.Error)
	}
	var rec wire.TaskRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return wire.TaskRecord{}, fmt.Errorf("get task: decode: %w", err)
	}
	if rec.ID == "" {
		return wire.TaskRecord{}, ErrTaskNotFound
	}
	return rec, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	logger.Tracef("HTTP request: %s %s", method, c.baseURL+path)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	logger.Tracef("HTTP response: %s %s -> %s", method, path, resp.Status)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
