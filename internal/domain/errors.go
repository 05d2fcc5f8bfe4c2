package domain

import (
	"errors"
	"fmt"
)

// ErrNoSession is returned by SessionStore.Load when no session is persisted.
var ErrNoSession = errors.New("no persisted session")

// TransportError wraps a push-channel handshake or read failure. It is never
// returned across the channel manager's public contract; callers observe
// connection-state transitions instead.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("channel transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FetchError is a pull-request failure. IsTimeout and IsNetworkError let
// callers produce differentiated user messaging ("server waking up" versus
// "check your connection").
type FetchError struct {
	Message        string
	IsTimeout      bool
	IsNetworkError bool
	Err            error
}

func (e *FetchError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NotFoundError means the requested transaction id does not exist server
// side. Surfaced as an explicit empty state, never retried.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return "resource not found"
	}
	return fmt.Sprintf("transaction %q not found", e.ID)
}

// AuthError is a 401 from any request. It is a global signal: local
// credential state is cleared and the session is torn down. Not locally
// recoverable.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("unauthorized (status %d)", e.Status)
}
