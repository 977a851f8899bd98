// Package events provides a small fan-out event bus so frontends can follow
// pane and mutation changes without polling.
package events

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rescale/dualpane/internal/constants"
)

// EventType identifies the kind of an event.
type EventType string

const (
	EventLog           EventType = "log"
	EventStatusMessage EventType = "status_message"

	// Mutation lifecycle
	EventMutationStarted   EventType = "mutation_started"
	EventMutationCompleted EventType = "mutation_completed"
	EventMutationFailed    EventType = "mutation_failed"
	EventMutationRejected  EventType = "mutation_rejected" // another mutation was in flight
)

// Event is implemented by everything published on the bus.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent carries the fields shared by all events.
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// NewBase returns a BaseEvent stamped with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// LogEvent mirrors a log line for frontends that show a log view.
type LogEvent struct {
	BaseEvent
	Level   zerolog.Level
	Message string
	Error   error
}

// StatusMessageEvent carries the text for a status bar.
type StatusMessageEvent struct {
	BaseEvent
	Message string
	IsError bool
}

// MutationEvent reports progress of a single upload, download, mkdir,
// rename or delete.
type MutationEvent struct {
	BaseEvent
	ID     string // unique per mutation
	Op     string // "upload", "download", "mkdir", "rename", "delete"
	Source string
	Target string
	Error  error
}

type subscription struct {
	types []EventType // empty matches every type
	ch    chan Event
}

func (s *subscription) matches(t EventType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// EventBus delivers published events to subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type EventBus struct {
	mu         sync.RWMutex
	subs       []*subscription
	bufferSize int
	closed     bool
	dropped    atomic.Int64
}

// NewEventBus creates a bus whose subscriptions buffer bufferSize events.
// Sizes outside (0, EventBusMaxBuffer] are clamped.
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	return &EventBus{bufferSize: min(bufferSize, constants.EventBusMaxBuffer)}
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given. The channel is closed by Unsubscribe or
// Close; subscribing to a closed bus yields a closed channel.
func (eb *EventBus) Subscribe(types ...EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan Event, eb.bufferSize)
	if eb.closed {
		close(ch)
		return ch
	}
	eb.subs = append(eb.subs, &subscription{types: types, ch: ch})
	return ch
}

// Unsubscribe removes and closes the subscription behind ch.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for i, s := range eb.subs {
		if s.ch == ch {
			close(s.ch)
			eb.subs = slices.Delete(eb.subs, i, i+1)
			return
		}
	}
}

// Publish delivers event to every matching subscriber. Publishing on a nil
// or closed bus is a no-op.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}
	for _, s := range eb.subs {
		if !s.matches(event.Type()) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			eb.dropped.Add(1)
		}
	}
}

// Close closes every subscription. It is safe to call more than once.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true
	for _, s := range eb.subs {
		close(s.ch)
	}
	eb.subs = nil
}

// Dropped returns how many deliveries were skipped because a subscriber
// was not keeping up.
func (eb *EventBus) Dropped() int64 {
	return eb.dropped.Load()
}

// PublishLog publishes a LogEvent.
func (eb *EventBus) PublishLog(level zerolog.Level, message string, err error) {
	eb.Publish(&LogEvent{
		BaseEvent: NewBase(EventLog),
		Level:     level,
		Message:   message,
		Error:     err,
	})
}

// PublishStatus publishes a status bar message.
func (eb *EventBus) PublishStatus(message string, isError bool) {
	eb.Publish(&StatusMessageEvent{
		BaseEvent: NewBase(EventStatusMessage),
		Message:   message,
		IsError:   isError,
	})
}
