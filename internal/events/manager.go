// Package events is the engine's publish/subscribe bus: the cycle
// orchestrator and its components publish lifecycle events, and the SSE
// dashboard stream and the notifier both subscribe to the subset they
// care about (§6 ambient ops, grounded on the teacher's events.Bus +
// EventData pattern).
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies the kind of event on the bus.
type EventType string

const (
	SignalDetected       EventType = "SIGNAL_DETECTED"
	SignalDeduplicated   EventType = "SIGNAL_DEDUPLICATED"
	SignalApproved       EventType = "SIGNAL_APPROVED"
	SignalRejected       EventType = "SIGNAL_REJECTED"
	ObservationCreated   EventType = "OBSERVATION_CREATED"
	ObservationTriggered EventType = "OBSERVATION_TRIGGERED"
	ObservationExpired   EventType = "OBSERVATION_EXPIRED"
	ObservationAbandoned EventType = "OBSERVATION_ABANDONED"
	HighVolEntered       EventType = "HIGH_VOL_ENTERED"
	HighVolFilled        EventType = "HIGH_VOL_FILLED"
	HighVolEvicted       EventType = "HIGH_VOL_EVICTED"
	OrderPlaced          EventType = "ORDER_PLACED"
	OrderFilled          EventType = "ORDER_FILLED"
	OrderFailed          EventType = "ORDER_FAILED"
	PositionOpened       EventType = "POSITION_OPENED"
	PositionClosed       EventType = "POSITION_CLOSED"
	StopLossUpdated      EventType = "STOP_LOSS_UPDATED"
	StopLossUpdateFailed EventType = "STOP_LOSS_UPDATE_FAILED"
	EmergencyFlat        EventType = "EMERGENCY_FLAT"
	AIReviewerUnavailable EventType = "AI_REVIEWER_UNAVAILABLE"
	CycleCompleted       EventType = "CYCLE_COMPLETED"
	ErrorOccurred        EventType = "ERROR_OCCURRED"
)

// Event is one message on the bus.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Component string                 `json:"component"`
}

// Handler receives events a subscriber asked for.
type Handler func(event *Event)

// Bus fans published events out to subscribers and logs every event
// structurally, matching the teacher's "log, then notify" order.
type Bus struct {
	log         zerolog.Logger
	mu          sync.RWMutex
	subscribers map[int]subscription
	nextID      int
}

type subscription struct {
	types   map[EventType]bool // nil = all types
	handler Handler
}

// NewBus creates a new event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		log:         log.With().Str("component", "events").Logger(),
		subscribers: make(map[int]subscription),
	}
}

// Subscribe registers handler for the given event types (nil/empty means
// all types) and returns an unsubscribe function.
func (b *Bus) Subscribe(types []EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	var filter map[EventType]bool
	if len(types) > 0 {
		filter = make(map[EventType]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}

	b.subscribers[id] = subscription{types: filter, handler: handler}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, id)
	}
}

// Emit publishes an event: logs it structurally, then fans it out to every
// subscriber whose filter matches.
func (b *Bus) Emit(eventType EventType, component string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Component: component,
	}

	eventJSON, _ := json.Marshal(event)
	b.log.Info().
		Str("event_type", string(eventType)).
		Str("component", component).
		RawJSON("event", eventJSON).
		Msg("event emitted")

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if sub.types != nil && !sub.types[eventType] {
			continue
		}
		sub.handler(event)
	}
}

// EmitError emits an ErrorOccurred event with the error message and
// arbitrary context attached.
func (b *Bus) EmitError(component string, err error, context map[string]interface{}) {
	data := map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	}
	b.Emit(ErrorOccurred, component, data)
}
