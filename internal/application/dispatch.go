package application

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/ramppay/ramppay-sync-go/internal/adapters/metrics"
)

// EventHandler receives the raw data of one logical push event.
type EventHandler func(data json.RawMessage)

// Subscription is a disposable handle for one registered handler. Closing it
// is the only way to unregister; the token identity sidesteps the fact that
// func values are not comparable.
type Subscription struct {
	event string
	token string
	reg   *listenerRegistry
	once  sync.Once
}

// Event returns the logical event name this subscription listens to.
func (s *Subscription) Event() string {
	return s.event
}

// Close removes exactly this handler. Idempotent; closing a subscription that
// was already removed (e.g. via RemoveAllListeners) is a no-op. Removal is
// synchronous: once Close returns, the handler will not be invoked again by a
// subsequent dispatch.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.reg.remove(s.event, s.token)
	})
}

// listenerRegistry is the dispatch surface shared by the channel manager
// and every subscribing component. Handlers for one event name are keyed by
// subscription token so removing one never disturbs the others.
type listenerRegistry struct {
	mu       sync.Mutex
	handlers map[string]map[string]EventHandler
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{handlers: make(map[string]map[string]EventHandler)}
}

func (r *listenerRegistry) add(event string, handler EventHandler) *Subscription {
	sub := &Subscription{event: event, token: uuid.NewString(), reg: r}
	r.mu.Lock()
	byToken, ok := r.handlers[event]
	if !ok {
		byToken = make(map[string]EventHandler)
		r.handlers[event] = byToken
	}
	byToken[sub.token] = handler
	r.mu.Unlock()
	metrics.IncrementActiveSubscriptions()
	return sub
}

func (r *listenerRegistry) remove(event, token string) {
	r.mu.Lock()
	byToken, ok := r.handlers[event]
	if ok {
		if _, present := byToken[token]; present {
			delete(byToken, token)
			if len(byToken) == 0 {
				delete(r.handlers, event)
			}
			metrics.DecrementActiveSubscriptions()
		}
	}
	r.mu.Unlock()
}

func (r *listenerRegistry) removeAll(event string) {
	r.mu.Lock()
	if byToken, ok := r.handlers[event]; ok {
		for range byToken {
			metrics.DecrementActiveSubscriptions()
		}
		delete(r.handlers, event)
	}
	r.mu.Unlock()
}

// dispatch invokes every handler registered for the event. The handler set is
// snapshotted under the lock and invoked outside it, so a handler may close
// its own or another subscription for the same event mid-dispatch without
// corrupting the iteration; a handler removed mid-dispatch by a peer may
// still see this in-progress event, but never a later one.
func (r *listenerRegistry) dispatch(event string, data json.RawMessage) {
	r.mu.Lock()
	byToken := r.handlers[event]
	snapshot := make([]struct {
		token   string
		handler EventHandler
	}, 0, len(byToken))
	for token, handler := range byToken {
		snapshot = append(snapshot, struct {
			token   string
			handler EventHandler
		}{token, handler})
	}
	r.mu.Unlock()

	for _, entry := range snapshot {
		// Skip handlers removed by an earlier handler in this same dispatch.
		r.mu.Lock()
		_, alive := r.handlers[event][entry.token]
		r.mu.Unlock()
		if !alive {
			continue
		}
		entry.handler(data)
	}
}

func (r *listenerRegistry) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[event])
}
