package application

import (
	"context"
	"sync"

	"github.com/ramppay/ramppay-sync-go/internal/domain"
	"github.com/ramppay/ramppay-sync-go/pkg/contextkeys"
)

// SessionBinding ties the channel manager's lifecycle to authentication
// state: no connection exists without an authenticated session, and no stale
// room membership survives a session change.
type SessionBinding struct {
	channel *ChannelManager
	logger  domain.Logger

	mu     sync.Mutex
	userID string
}

// NewSessionBinding creates a binding around the channel manager.
func NewSessionBinding(channel *ChannelManager, logger domain.Logger) *SessionBinding {
	return &SessionBinding{channel: channel, logger: logger}
}

// SetUser reacts to an authentication transition to the given user: connect
// the channel and join the user's room. The join is sequenced behind the
// connect by the channel manager's deferred-join behavior, so it can never
// race ahead of an incomplete handshake. A user switch without an
// intermediate logout leaves the old room before joining the new one.
func (b *SessionBinding) SetUser(ctx context.Context, userID string) {
	if userID == "" {
		b.ClearUser(ctx)
		return
	}
	ctx = context.WithValue(ctx, contextkeys.UserIDKey, userID)

	b.mu.Lock()
	previous := b.userID
	b.userID = userID
	b.mu.Unlock()

	if previous == userID {
		// Same session re-asserted; Connect below stays a no-op when live.
		b.channel.Connect(ctx)
		return
	}
	if previous != "" {
		b.logger.Warn(ctx, "User switch without intermediate logout, leaving previous room", "previous_user", previous)
		b.channel.LeaveRoom(ctx, previous)
	}

	b.logger.Info(ctx, "Session established, binding push channel to user room")
	b.channel.Connect(ctx)
	b.channel.JoinRoom(ctx, userID)
}

// ClearUser reacts to logout: leave the user room, then tear the channel
// down. Idempotent when no session is bound.
func (b *SessionBinding) ClearUser(ctx context.Context) {
	b.mu.Lock()
	previous := b.userID
	b.userID = ""
	b.mu.Unlock()

	if previous != "" {
		b.channel.LeaveRoom(ctx, previous)
	}
	b.channel.Disconnect()
	if previous != "" {
		b.logger.Info(ctx, "Session cleared, push channel torn down", "previous_user", previous)
	}
}

// CurrentUser returns the bound user id, or "" when logged out.
func (b *SessionBinding) CurrentUser() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.userID
}
