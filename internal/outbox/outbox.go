// Package outbox implements the transactional outbox: domain events are
// written in the same unit of work as the booking mutation, then shipped to
// Kafka by a background publisher. Consumers get at-least-once delivery.
package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Event is the envelope written to the outbox table. The Kafka topic name
// equals EventType, one event type per topic.
type Event struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// NewEvent stamps a fresh event id; the id doubles as the consumer-side
// dedupe key.
func NewEvent(aggregateType, aggregateID, eventType string, payload []byte) Event {
	return Event{
		EventID:       uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	}
}

// Record is an outbox row as read back by the publisher.
type Record struct {
	ID          int64
	Event
	Traceparent string
	Tracestate  string
	CreatedAt   time.Time
}
