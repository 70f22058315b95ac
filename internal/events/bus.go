package events

import (
	"sync"

	"github.com/stumpline/cricket-live/internal/telemetry"
)

// Handler processes an event. Returning an error logs it but does not
// stop dispatch to later subscribers.
type Handler func(Event) error

// subscription pairs a handler with an optional match filter. An empty
// matchID receives every match's events of the subscribed type.
type subscription struct {
	matchID string
	h       Handler
}

// Bus is a synchronous in-process event bus.
// Subscribers are invoked in registration order on the publisher's
// goroutine. For async processing, handlers should send to their own
// channel/goroutine.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]subscription
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[EventType][]subscription),
	}
}

// Subscribe registers a handler for a given event type across all matches.
func (b *Bus) Subscribe(eventType EventType, h Handler) {
	b.subscribe(eventType, "", h)
}

// SubscribeMatch registers a handler that only sees one match's events,
// so a single-match consumer never filters in its own handler.
func (b *Bus) SubscribeMatch(eventType EventType, matchID string, h Handler) {
	b.subscribe(eventType, matchID, h)
}

func (b *Bus) subscribe(eventType EventType, matchID string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventType] = append(b.subs[eventType], subscription{matchID: matchID, h: h})
}

// Publish dispatches an event to the subscriptions for its type whose
// match filter admits it. Handler errors are logged; one bad handler
// never blocks the rest.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := b.subs[e.Type]
	b.mu.RUnlock()

	for _, s := range subs {
		if s.matchID != "" && s.matchID != e.MatchID {
			continue
		}
		if err := s.h(e); err != nil {
			telemetry.Warnf("events: %s handler: %v", e.Type, err)
		}
	}
}
