// Package events provides the in-process pub/sub channel between the
// background runner and streaming readers. Delivery is best effort: slow
// subscribers drop events rather than block a run.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event is one timestamped progress notification for a session.
type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	EventType string         `json:"event_type"`
	Agent     string         `json:"agent"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent creates an event for a session.
func NewEvent(sessionID, eventType, agent string, data map[string]any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		EventType: eventType,
		Agent:     agent,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// BusConfig holds configuration for the event bus.
type BusConfig struct {
	BufferSize     int           // Buffer size for subscriber channels
	PublishTimeout time.Duration // Timeout for publishing to subscribers
}

// DefaultBusConfig returns default bus configuration.
func DefaultBusConfig() *BusConfig {
	return &BusConfig{
		BufferSize:     256,
		PublishTimeout: 10 * time.Millisecond,
	}
}

// BusMetrics tracks event bus statistics.
type BusMetrics struct {
	EventsPublished   int64
	EventsDelivered   int64
	EventsDropped     int64
	SubscribersActive int64
}

type subscriber struct {
	sessionID string // empty = all sessions
	ch        chan *Event
	closed    bool
	mu        sync.Mutex
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// trySend delivers an event without ever blocking the publisher beyond the
// configured timeout.
func (s *subscriber) trySend(event *Event, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.ch <- event:
		return true
	case <-timer.C:
		return false
	}
}

// Bus fans progress events out to subscribers. A bus is injected where it is
// needed; there is no process-global instance.
type Bus struct {
	subs    []*subscriber
	mu      sync.RWMutex
	config  *BusConfig
	metrics BusMetrics
	closed  bool
}

// NewBus creates a bus.
func NewBus(config *BusConfig) *Bus {
	if config == nil {
		config = DefaultBusConfig()
	}
	return &Bus{config: config}
}

// Publish delivers an event to every matching subscriber.
func (b *Bus) Publish(event *Event) {
	if event == nil {
		return
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]*subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	atomic.AddInt64(&b.metrics.EventsPublished, 1)

	for _, sub := range subs {
		if sub.sessionID != "" && sub.sessionID != event.SessionID {
			continue
		}
		if sub.trySend(event, b.config.PublishTimeout) {
			atomic.AddInt64(&b.metrics.EventsDelivered, 1)
		} else {
			atomic.AddInt64(&b.metrics.EventsDropped, 1)
		}
	}
}

// Subscribe receives events for every session.
func (b *Bus) Subscribe() <-chan *Event {
	return b.subscribe("")
}

// SubscribeSession receives events for one session only.
func (b *Bus) SubscribeSession(sessionID string) <-chan *Event {
	return b.subscribe(sessionID)
}

func (b *Bus) subscribe(sessionID string) <-chan *Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan *Event)
		close(ch)
		return ch
	}

	sub := &subscriber{
		sessionID: sessionID,
		ch:        make(chan *Event, b.config.BufferSize),
	}
	b.subs = append(b.subs, sub)
	atomic.AddInt64(&b.metrics.SubscribersActive, 1)
	return sub.ch
}

// Unsubscribe removes a subscriber by its channel and closes it.
func (b *Bus) Unsubscribe(ch <-chan *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.ch == ch {
			sub.close()
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			atomic.AddInt64(&b.metrics.SubscribersActive, -1)
			return
		}
	}
}

// Metrics returns a snapshot of bus statistics.
func (b *Bus) Metrics() BusMetrics {
	return BusMetrics{
		EventsPublished:   atomic.LoadInt64(&b.metrics.EventsPublished),
		EventsDelivered:   atomic.LoadInt64(&b.metrics.EventsDelivered),
		EventsDropped:     atomic.LoadInt64(&b.metrics.EventsDropped),
		SubscribersActive: atomic.LoadInt64(&b.metrics.SubscribersActive),
	}
}

// Close shuts down the bus and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		sub.close()
	}
	b.subs = nil
}
