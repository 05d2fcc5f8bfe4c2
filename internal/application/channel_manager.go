package application

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ramppay/ramppay-sync-go/internal/adapters/config"
	"github.com/ramppay/ramppay-sync-go/internal/adapters/metrics"
	"github.com/ramppay/ramppay-sync-go/internal/domain"
	"github.com/ramppay/ramppay-sync-go/pkg/safego"
)

// EventConnectionState is the internal event published on every connection
// state transition. Data: {"state": "<state>"}.
const EventConnectionState = "connection_state"

// StateChangeData is the data of a connection_state event.
type StateChangeData struct {
	State string `json:"state"`
}

// ChannelManager owns the lifecycle of the one push-notification connection
// per running client: connect, automatic reconnect with backoff, room
// membership and event dispatch. It is the sole mutator of connection state.
// None of its methods return an error: transport failures are logged and
// become state transitions, so the rest of the system fails closed (no events
// delivered) rather than loud.
type ChannelManager struct {
	transport      domain.ChannelTransport
	logger         domain.Logger
	configProvider config.Provider
	registry       *listenerRegistry

	// stateEvents feeds a single dispatch goroutine so subscribers observe
	// state transitions in the order they happened.
	stateEvents chan json.RawMessage

	mu         sync.Mutex
	state      domain.ConnectionState
	conn       domain.ChannelConn
	room       string // bound room, survives reconnects; "" when none
	joinedRoom string // room actually joined on the current connection
	gen        uint64 // bumped by Connect/Disconnect to invalidate stale run loops
	runCancel  context.CancelFunc
}

// NewChannelManager creates a channel manager around the given transport.
func NewChannelManager(transport domain.ChannelTransport, cfgProvider config.Provider, logger domain.Logger) *ChannelManager {
	m := &ChannelManager{
		transport:      transport,
		logger:         logger,
		configProvider: cfgProvider,
		registry:       newListenerRegistry(),
		state:          domain.StateDisconnected,
		stateEvents:    make(chan json.RawMessage, 16),
	}
	safego.Execute(context.Background(), logger, "ChannelStateDispatch", func() {
		for data := range m.stateEvents {
			m.registry.dispatch(EventConnectionState, data)
		}
	})
	return m
}

// Connect establishes the push channel. Idempotent: when a connection is
// already live or being established this is a no-op. A terminal failed state
// is only left through this call. The supplied context bounds the whole
// connection lifetime, not just the handshake.
func (m *ChannelManager) Connect(ctx context.Context) {
	m.mu.Lock()
	switch m.state {
	case domain.StateConnecting, domain.StateConnected, domain.StateReconnecting:
		m.mu.Unlock()
		m.logger.Debug(ctx, "Connect called while channel already active, ignoring")
		return
	}
	m.gen++
	gen := m.gen
	if m.runCancel != nil {
		// A run loop that exited into the failed state leaves its cancel
		// behind; release the derived context before starting over.
		m.runCancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.runCancel = cancel
	m.setStateLocked(runCtx, domain.StateConnecting)
	m.mu.Unlock()

	safego.Execute(runCtx, m.logger, "ChannelRunLoop", func() {
		m.run(runCtx, gen)
	})
}

// Disconnect tears the channel down unconditionally and clears room
// membership. Idempotent when already disconnected.
func (m *ChannelManager) Disconnect() {
	ctx := context.Background()
	m.mu.Lock()
	m.gen++ // invalidate any in-flight run loop
	conn := m.conn
	cancel := m.runCancel
	m.conn = nil
	m.runCancel = nil
	m.room = ""
	m.joinedRoom = ""
	alreadyDown := m.state == domain.StateDisconnected
	m.setStateLocked(ctx, domain.StateDisconnected)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if err := conn.Close(websocket.StatusNormalClosure, "client disconnect"); err != nil {
			m.logger.Debug(ctx, "Error closing channel connection on disconnect", "error", err.Error())
		}
	}
	if !alreadyDown {
		m.logger.Info(ctx, "Push channel disconnected by client")
	}
}

// JoinRoom binds the manager to a user room and, when connected, sends the
// join frame. The binding survives reconnects: every successful reconnection
// reissues the join, because the transport does not preserve membership. When
// the transport is not yet connected the join is deferred and replayed once
// connection succeeds.
func (m *ChannelManager) JoinRoom(ctx context.Context, id string) {
	m.mu.Lock()
	m.room = id
	conn := m.conn
	needSend := m.state == domain.StateConnected && m.joinedRoom != id
	m.mu.Unlock()

	if conn != nil && needSend {
		m.sendJoin(ctx, conn, id)
	} else {
		m.logger.Debug(ctx, "Room join deferred until channel connects", "room", id)
	}
}

// LeaveRoom drops the room binding and, when connected, sends the leave
// frame. Leaving a room that is not bound is a no-op.
func (m *ChannelManager) LeaveRoom(ctx context.Context, id string) {
	m.mu.Lock()
	if m.room == id {
		m.room = ""
	}
	conn := m.conn
	wasJoined := m.joinedRoom == id
	if wasJoined {
		m.joinedRoom = ""
	}
	m.mu.Unlock()

	if conn != nil && wasJoined {
		if err := conn.WriteJSON(m.writeCtx(ctx), domain.NewLeaveMessage(id)); err != nil {
			m.logger.Warn(ctx, "Failed to send leave frame", "room", id, "error", err.Error())
		}
	}
}

// Subscribe registers a handler for a logical event name and returns the
// disposable handle that unregisters it.
func (m *ChannelManager) Subscribe(event string, handler EventHandler) *Subscription {
	return m.registry.add(event, handler)
}

// SubscribeState registers a handler for connection state transitions.
func (m *ChannelManager) SubscribeState(handler func(domain.ConnectionState)) *Subscription {
	return m.registry.add(EventConnectionState, func(data json.RawMessage) {
		var payload StateChangeData
		if err := json.Unmarshal(data, &payload); err != nil {
			return
		}
		handler(parseState(payload.State))
	})
}

// RemoveAllListeners clears every handler for one event name.
func (m *ChannelManager) RemoveAllListeners(event string) {
	m.registry.removeAll(event)
}

// ListenerCount reports how many handlers are registered for an event name.
func (m *ChannelManager) ListenerCount(event string) int {
	return m.registry.count(event)
}

// State returns the current connection state.
func (m *ChannelManager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *ChannelManager) stale(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen != m.gen
}

// run is the connection loop for one generation: dial, read until failure,
// reconnect per policy. It exits on explicit Disconnect (generation bump or
// context cancellation) or on entering the terminal failed state.
func (m *ChannelManager) run(ctx context.Context, gen uint64) {
	attempts := 0
	for {
		if ctx.Err() != nil || m.stale(gen) {
			return
		}

		conn, err := m.transport.Dial(ctx)
		if err != nil {
			terr := &domain.TransportError{Op: "dial", Err: err}
			m.logger.Warn(ctx, "Push channel handshake failed", "error", terr.Error(), "attempt", attempts+1)
			if m.backoffOrFail(ctx, gen, &attempts, false) {
				return
			}
			continue
		}

		room, ok := m.adoptConn(ctx, gen, conn)
		if !ok {
			_ = conn.Close(websocket.StatusNormalClosure, "superseded")
			return
		}
		attempts = 0
		m.logger.Info(ctx, "Push channel connected")

		// Membership is not preserved across a transport-level reconnect:
		// reissue the join exactly once per successful connection.
		if room != "" {
			m.sendJoin(ctx, conn, room)
		}

		connCtx, connCancel := context.WithCancel(ctx)
		m.startRejoinTimer(connCtx, gen, conn)
		readErr := m.readLoop(connCtx, conn)
		connCancel()

		m.mu.Lock()
		if gen != m.gen || ctx.Err() != nil {
			// Explicit disconnect already cleaned up.
			m.mu.Unlock()
			return
		}
		m.conn = nil
		m.joinedRoom = ""
		m.mu.Unlock()

		var serverClose *domain.ServerCloseError
		immediate := errors.As(readErr, &serverClose)
		if immediate {
			m.logger.Warn(ctx, "Server closed push channel, reconnecting immediately",
				"code", int(serverClose.Code), "reason", serverClose.Reason)
		} else if readErr != nil {
			m.logger.Warn(ctx, "Push channel read failed", "error", readErr.Error())
		}
		if m.backoffOrFail(ctx, gen, &attempts, immediate) {
			return
		}
	}
}

// backoffOrFail applies the reconnection policy after one failed attempt.
// Returns true when the loop must stop (terminal failed state or cancelled
// context). When immediate is set the delay is skipped, but the attempt still
// counts against the maximum.
func (m *ChannelManager) backoffOrFail(ctx context.Context, gen uint64, attempts *int, immediate bool) bool {
	cfg := m.configProvider.Get().Channel
	*attempts++
	metrics.IncrementReconnectAttempts()

	maxAttempts := cfg.ReconnectMaxAttempts
	if maxAttempts > 0 && *attempts >= maxAttempts {
		m.mu.Lock()
		if gen == m.gen {
			m.setStateLocked(ctx, domain.StateFailed)
		}
		m.mu.Unlock()
		m.logger.Error(ctx, "Push channel reconnection attempts exhausted, giving up until next explicit connect",
			"attempts", *attempts)
		return true
	}

	m.mu.Lock()
	if gen == m.gen {
		m.setStateLocked(ctx, domain.StateReconnecting)
	}
	m.mu.Unlock()

	if immediate {
		return false
	}

	delay := reconnectDelay(cfg, *attempts)
	m.logger.Info(ctx, "Scheduling push channel reconnect", "delay", delay.String(), "attempt", *attempts)
	select {
	case <-ctx.Done():
		return true
	case <-time.After(delay):
		return false
	}
}

// reconnectDelay doubles the initial delay per attempt, bounded by the
// configured maximum.
func reconnectDelay(cfg config.ChannelConfig, attempt int) time.Duration {
	initial := time.Duration(cfg.ReconnectInitialDelayMs) * time.Millisecond
	if initial <= 0 {
		initial = time.Second
	}
	max := time.Duration(cfg.ReconnectMaxDelayMs) * time.Millisecond
	if max <= 0 {
		max = 30 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// adoptConn installs a freshly dialed connection, unless the generation was
// superseded meanwhile. Returns the room to join and whether adoption held.
func (m *ChannelManager) adoptConn(ctx context.Context, gen uint64, conn domain.ChannelConn) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return "", false
	}
	m.conn = conn
	m.joinedRoom = ""
	m.setStateLocked(ctx, domain.StateConnected)
	return m.room, true
}

// readLoop decodes inbound frames and dispatches logical events until the
// connection fails or the context is cancelled.
func (m *ChannelManager) readLoop(ctx context.Context, conn domain.ChannelConn) error {
	for {
		data, err := conn.ReadMessage(ctx)
		if err != nil {
			return err
		}

		var msg domain.BaseMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			m.logger.Warn(ctx, "Discarding malformed channel frame", "error", err.Error())
			continue
		}

		switch msg.Type {
		case domain.MessageTypeReady:
			m.logger.Debug(ctx, "Push channel ready frame received")
		case domain.MessageTypeEvent:
			var payload domain.EventPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				m.logger.Warn(ctx, "Discarding event frame with malformed payload", "error", err.Error())
				continue
			}
			metrics.IncrementEventsReceived(payload.Event)
			m.registry.dispatch(payload.Event, payload.Data)
		case domain.MessageTypeError:
			m.logger.Warn(ctx, "Error frame received on push channel", "payload", string(msg.Payload))
		default:
			m.logger.Debug(ctx, "Ignoring unknown channel frame type", "type", msg.Type)
		}
	}
}

// startRejoinTimer periodically re-asserts room membership while the current
// connection lives. Join frames are fire-and-forget with no acknowledgement,
// so a lost join would otherwise silently starve the client of events.
// Disabled when the interval is zero.
func (m *ChannelManager) startRejoinTimer(connCtx context.Context, gen uint64, conn domain.ChannelConn) {
	interval := time.Duration(m.configProvider.Get().Channel.RejoinIntervalSeconds) * time.Second
	if interval <= 0 {
		return
	}
	safego.Execute(connCtx, m.logger, "ChannelRejoinTimer", func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-connCtx.Done():
				return
			case <-ticker.C:
				m.mu.Lock()
				room := m.room
				active := gen == m.gen && m.state == domain.StateConnected && m.conn == conn
				m.mu.Unlock()
				if active && room != "" {
					m.sendJoin(connCtx, conn, room)
				}
			}
		}
	})
}

// sendJoin sends a join frame. Write failures are logged, never surfaced: the
// read loop will notice a broken connection and drive the reconnect.
func (m *ChannelManager) sendJoin(ctx context.Context, conn domain.ChannelConn, room string) {
	if err := conn.WriteJSON(m.writeCtx(ctx), domain.NewJoinMessage(room)); err != nil {
		m.logger.Warn(ctx, "Failed to send join frame", "room", room, "error", err.Error())
		return
	}
	m.mu.Lock()
	m.joinedRoom = room
	m.mu.Unlock()
	metrics.IncrementRoomJoinsSent()
	m.logger.Info(ctx, "Joined user room", "room", room)
}

func (m *ChannelManager) writeCtx(ctx context.Context) context.Context {
	if ctx == nil || ctx.Err() != nil {
		return context.Background()
	}
	return ctx
}

// setStateLocked records a state transition and publishes it to subscribers.
// Caller holds m.mu; the dispatch itself happens on the state goroutine so a
// handler can call back into the manager without deadlocking, and transitions
// reach handlers in the order they occurred.
func (m *ChannelManager) setStateLocked(ctx context.Context, next domain.ConnectionState) {
	if m.state == next {
		return
	}
	prev := m.state
	m.state = next
	metrics.SetChannelState(int32(next))
	m.logger.Debug(ctx, "Push channel state transition", "from", prev.String(), "to", next.String())

	data, _ := json.Marshal(StateChangeData{State: next.String()})
	select {
	case m.stateEvents <- data:
	default:
		// The queue never fills in practice; blocking here while holding
		// m.mu could deadlock against a handler calling back in.
		m.logger.Warn(ctx, "State event queue full, dropping transition notification", "state", next.String())
	}
}

func parseState(s string) domain.ConnectionState {
	switch s {
	case "connecting":
		return domain.StateConnecting
	case "connected":
		return domain.StateConnected
	case "reconnecting":
		return domain.StateReconnecting
	case "failed":
		return domain.StateFailed
	default:
		return domain.StateDisconnected
	}
}
