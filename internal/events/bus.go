package events

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/mantonx/shoebox/internal/logger"
)

const recentBufferSize = 100

// EventBus delivers events to subscribers and keeps a bounded buffer of
// recent events for inspection.
type EventBus interface {
	Publish(event Event)
	Subscribe(types []EventType, handler EventHandler) string
	Unsubscribe(id string)
	Recent(limit int) []Event
	Stats() EventStats
}

type subscription struct {
	id      string
	types   map[EventType]bool
	handler EventHandler
}

type eventBus struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	recent        []Event
	totalEvents   int64
	byType        map[string]int64
}

var (
	globalBus  EventBus
	globalOnce sync.Once
)

// GetGlobalEventBus returns the process-wide event bus.
func GetGlobalEventBus() EventBus {
	globalOnce.Do(func() {
		globalBus = NewEventBus()
	})
	return globalBus
}

// NewEventBus creates a new in-memory event bus.
func NewEventBus() EventBus {
	return &eventBus{
		subscriptions: make(map[string]*subscription),
		recent:        make([]Event, 0, recentBufferSize),
		byType:        make(map[string]int64),
	}
}

// Publish delivers an event to all matching subscribers synchronously.
// Handlers must not block; anything slow belongs in the handler's own
// goroutine.
func (eb *eventBus) Publish(event Event) {
	if event.ID == "" {
		event.ID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.Lock()
	eb.recent = append(eb.recent, event)
	if len(eb.recent) > recentBufferSize {
		eb.recent = eb.recent[1:]
	}
	eb.totalEvents++
	eb.byType[string(event.Type)]++

	var matching []*subscription
	for _, sub := range eb.subscriptions {
		if len(sub.types) == 0 || sub.types[event.Type] {
			matching = append(matching, sub)
		}
	}
	eb.mu.Unlock()

	for _, sub := range matching {
		eb.notify(sub, event)
	}
}

func (eb *eventBus) notify(sub *subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in event handler", "subscription_id", sub.id, "event_id", event.ID, "error", r)
		}
	}()
	sub.handler(event)
}

// Subscribe registers a handler for the given event types. An empty
// type list subscribes to everything.
func (eb *eventBus) Subscribe(types []EventType, handler EventHandler) string {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := &subscription{
		id:      fmt.Sprintf("sub-%s", generateEventID()),
		types:   make(map[EventType]bool, len(types)),
		handler: handler,
	}
	for _, t := range types {
		sub.types[t] = true
	}
	eb.subscriptions[sub.id] = sub
	return sub.id
}

// Unsubscribe removes a subscription.
func (eb *eventBus) Unsubscribe(id string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	delete(eb.subscriptions, id)
}

// Recent returns up to limit of the most recent events, newest last.
func (eb *eventBus) Recent(limit int) []Event {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if limit <= 0 || limit > len(eb.recent) {
		limit = len(eb.recent)
	}
	out := make([]Event, limit)
	copy(out, eb.recent[len(eb.recent)-limit:])
	return out
}

// Stats returns bus statistics.
func (eb *eventBus) Stats() EventStats {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	byType := make(map[string]int64, len(eb.byType))
	for k, v := range eb.byType {
		byType[k] = v
	}
	recent := make([]Event, len(eb.recent))
	copy(recent, eb.recent)

	return EventStats{
		TotalEvents:   eb.totalEvents,
		EventsByType:  byType,
		Subscriptions: len(eb.subscriptions),
		RecentEvents:  recent,
	}
}

func generateEventID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
