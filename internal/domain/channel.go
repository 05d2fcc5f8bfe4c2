package domain

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
)

// ConnectionState is the lifecycle state of the push channel.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ChannelConn is one established push-channel connection. Implementations
// wrap the concrete transport (coder/websocket in production, fakes in tests).
type ChannelConn interface {
	// ReadMessage blocks until the next data frame arrives or the connection
	// fails. Control frames are handled by the transport and never returned.
	ReadMessage(ctx context.Context) ([]byte, error)

	// WriteJSON marshals v and sends it as a single text frame, bounded by
	// the configured write timeout.
	WriteJSON(ctx context.Context, v interface{}) error

	// Close closes the connection with the given status code and reason.
	Close(statusCode websocket.StatusCode, reason string) error
}

// ChannelTransport establishes push-channel connections. Dial must apply the
// configured handshake timeout and attach the caller's credential.
type ChannelTransport interface {
	Dial(ctx context.Context) (ChannelConn, error)
}

// ServerCloseError reports that the server closed the connection with a close
// frame. The channel manager treats it as an abnormal disconnect and retries
// immediately instead of waiting out the backoff delay.
type ServerCloseError struct {
	Code   websocket.StatusCode
	Reason string
}

func (e *ServerCloseError) Error() string {
	return fmt.Sprintf("server closed connection: %d %s", e.Code, e.Reason)
}

// CredentialSource supplies the bearer credential attached to the push
// channel handshake. Implemented by the HTTP API client, which owns the
// current session.
type CredentialSource interface {
	Bearer() string
}
