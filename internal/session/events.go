package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrapeforge/scrapeforge/pkg/models"
)

// EventCallback receives session lifecycle events. Delivery is synchronous
// with the operation that produced the event.
type EventCallback func(models.SessionEvent)

type subscription struct {
	id        string
	sessionID string // empty subscribes to every session
	kinds     map[models.EventKind]struct{}
	callback  EventCallback
}

// Bus fans session lifecycle events out to subscribers. Events for one
// session are delivered in the order operations were invoked; there is no
// cross-session ordering. A panicking subscriber is recovered individually
// so it cannot break delivery to the others.
type Bus struct {
	mu   sync.RWMutex
	subs []*subscription
	log  *zap.SugaredLogger
}

// NewBus creates an event bus.
func NewBus(log *zap.SugaredLogger) *Bus {
	return &Bus{log: log.With("component", "events")}
}

// Subscribe registers a callback for the given session (empty for all) and
// event kinds (empty for all kinds). Returns the subscription id.
func (b *Bus) Subscribe(sessionID string, kinds []models.EventKind, callback EventCallback) string {
	sub := &subscription{
		id:        uuid.New().String(),
		sessionID: sessionID,
		callback:  callback,
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[models.EventKind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return sub.id
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers an event to every matching subscriber in registration
// order.
func (b *Bus) Publish(kind models.EventKind, sessionID string, payload map[string]any) {
	event := models.SessionEvent{
		ID:        uuid.New().String(),
		Kind:      kind,
		SessionID: sessionID,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	b.mu.RLock()
	subs := append([]*subscription(nil), b.subs...)
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.sessionID != "" && sub.sessionID != sessionID {
			continue
		}
		if sub.kinds != nil {
			if _, ok := sub.kinds[kind]; !ok {
				continue
			}
		}
		b.deliver(sub, event)
	}
}

func (b *Bus) deliver(sub *subscription, event models.SessionEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Warnw("subscriber panicked", "subscription", sub.id, "event", event.Kind, "panic", r)
		}
	}()
	sub.callback(event)
}

// Clear drops every subscription. Used at shutdown.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.subs = nil
	b.mu.Unlock()
}
