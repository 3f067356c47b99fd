// Package transport opens the backend event channel over WebSocket.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/droidcore/mission/internal/tasks"
	"github.com/droidcore/mission/pkg/logger"
	"github.com/gorilla/websocket"
)

// DefaultHandshakeTimeout bounds the WebSocket handshake when the caller's
// context carries no deadline.
const DefaultHandshakeTimeout = 10 * time.Second

// ErrClosed is returned by ReadMessage once the peer closed the channel
// normally.
var ErrClosed = errors.New("transport: channel closed")

// DialError describes a failed handshake.
type DialError struct {
	URL    string
	Status int
	Err    error
}

func (e *DialError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("dial %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("dial %s: %v", e.URL, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// Dialer dials the event channel. It implements tasks.Dialer.
type Dialer struct {
	url     string
	token   string
	timeout time.Duration
	ws      *websocket.Dialer
}

var _ tasks.Dialer = (*Dialer)(nil)

// Option configures a Dialer.
type Option func(*Dialer)

// WithToken sends token as a bearer Authorization header.
func WithToken(token string) Option {
	return func(d *Dialer) { d.token = token }
}

// WithHandshakeTimeout overrides DefaultHandshakeTimeout.
func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(d *Dialer) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDialer returns a Dialer for the given ws:// or wss:// URL.
func NewDialer(url string, opts ...Option) *Dialer {
	d := &Dialer{
		url:     url,
		timeout: DefaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.ws = &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.timeout,
	}
	return d
}

// URL returns the dialed endpoint.
func (d *Dialer) URL() string { return d.url }

// Dial implements tasks.Dialer.
func (d *Dialer) Dial(ctx context.Context) (tasks.Conn, error) {
	headers := make(http.Header)
	if d.token != "" {
		headers.Set("Authorization", "Bearer "+d.token)
	}

	dialCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	logger.Debugf("transport: dialing %s", d.url)
	ws, resp, err := d.ws.DialContext(dialCtx, d.url, headers)
	if err != nil {
		dialErr := &DialError{URL: d.url, Err: err}
		if resp != nil {
			dialErr.Status = resp.StatusCode
		}
		return nil, dialErr
	}
	return &Conn{ws: ws}, nil
}

// Conn is a receive-only event channel. It implements tasks.Conn.
type Conn struct {
	ws   *websocket.Conn
	once sync.Once
	err  error
}

var _ tasks.Conn = (*Conn)(nil)

// ReadMessage returns the next text frame. Binary frames are skipped; the
// channel carries JSON only.
func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, fmt.Errorf("%w: %v", ErrClosed, err)
			}
			return nil, err
		}
		if kind != websocket.TextMessage {
			logger.Debugf("transport: skipping frame type %d", kind)
			continue
		}
		return data, nil
	}
}

// Close sends a close frame and releases the connection. It is safe to call
// more than once.
func (c *Conn) Close() error {
	c.once.Do(func() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.err = c.ws.Close()
	})
	return c.err
}
