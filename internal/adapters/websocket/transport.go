package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ramppay/ramppay-sync-go/internal/adapters/config"
	"github.com/ramppay/ramppay-sync-go/internal/domain"
)

// Transport dials the backend's push channel over WebSocket. It implements
// domain.ChannelTransport; the channel manager owns everything above the
// dialed connection (reconnects, rooms, dispatch).
type Transport struct {
	logger         domain.Logger
	configProvider config.Provider
	credentials    domain.CredentialSource
}

// NewTransport creates a WebSocket transport. The credential source supplies
// the bearer attached to every handshake; it may return "" before login.
func NewTransport(cfgProvider config.Provider, credentials domain.CredentialSource, logger domain.Logger) *Transport {
	return &Transport{
		logger:         logger,
		configProvider: cfgProvider,
		credentials:    credentials,
	}
}

// Dial performs one handshake, bounded by the configured handshake timeout.
func (t *Transport) Dial(ctx context.Context) (domain.ChannelConn, error) {
	cfg := t.configProvider.Get().Channel

	dialURL, err := t.buildURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	handshakeTimeout := time.Duration(cfg.HandshakeTimeoutSeconds) * time.Second
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	wsConn, _, err := websocket.Dial(dialCtx, dialURL, &websocket.DialOptions{
		Subprotocols: []string{"json.v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	writeTimeout := time.Duration(cfg.WriteTimeoutSeconds) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &conn{ws: wsConn, writeTimeout: writeTimeout}, nil
}

// buildURL appends the bearer credential as a query parameter, matching the
// token handoff the backend expects on upgrade.
func (t *Transport) buildURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid channel url %q: %w", raw, err)
	}
	if bearer := t.credentials.Bearer(); bearer != "" {
		q := u.Query()
		q.Set("token", bearer)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// conn wraps one *websocket.Conn as a domain.ChannelConn.
type conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex // protects ws for writes and close
	closed bool
}

// ReadMessage returns the next data frame. A close frame from the server is
// mapped to domain.ServerCloseError so the channel manager can classify the
// disconnect. Control frames are consumed by the library and never surface.
func (c *conn) ReadMessage(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		if status := websocket.CloseStatus(err); status != -1 {
			var closeErr websocket.CloseError
			reason := ""
			if errors.As(err, &closeErr) {
				reason = closeErr.Reason
			}
			return nil, &domain.ServerCloseError{Code: status, Reason: reason}
		}
		return nil, err
	}
	return data, nil
}

// WriteJSON marshals v and writes it as a single text frame within the write
// timeout.
func (c *conn) WriteJSON(ctx context.Context, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal channel frame: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	return c.ws.Write(writeCtx, websocket.MessageText, payload)
}

// Close closes the underlying connection. Idempotent.
func (c *conn) Close(statusCode websocket.StatusCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.ws.Close(statusCode, reason)
}
