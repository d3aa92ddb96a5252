// Package event defines the domain event model: payload contract, stream
// envelope, the stored record shape, the type registry and the upcaster chain.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Payload is implemented by every concrete domain event.
//
// EventName is the stable storage identifier for the event kind. It never
// changes, even when the Go type is renamed or moved.
// SchemaVersion is the version of the Go shape, i.e. the latest version the
// application understands for this kind.
type Payload interface {
	EventName() string
	SchemaVersion() int
}

// Envelope pairs a payload with its occurrence metadata. Aggregates emit
// envelopes; the store persists them; the bus dispatches them.
type Envelope struct {
	// EventID identifies this occurrence. Assigned once at emit time.
	EventID string
	// AggregateID is the stream the event belongs to.
	AggregateID string
	// StreamVersion is the 1-based position in the stream. Zero until the
	// event is persisted.
	StreamVersion int64
	// OccurredOn is when the aggregate produced the event.
	OccurredOn time.Time
	// Payload is the kind-specific immutable content.
	Payload Payload
}

// NewEnvelope wraps a freshly produced payload with occurrence metadata.
func NewEnvelope(aggregateID string, p Payload) Envelope {
	return Envelope{
		EventID:     uuid.NewString(),
		AggregateID: aggregateID,
		OccurredOn:  time.Now().UTC(),
		Payload:     p,
	}
}

// StoredRecord is the persisted representation of one event. Written only by
// the event store; immutable once recorded.
type StoredRecord struct {
	EventID       string    `db:"event_id"`
	AggregateID   string    `db:"aggregate_id"`
	StreamVersion int64     `db:"stream_version"`
	EventName     string    `db:"event_name"`
	SchemaVersion int       `db:"schema_version"`
	Payload       []byte    `db:"payload"`
	OccurredOn    time.Time `db:"occurred_on"`
	RecordedAt    time.Time `db:"recorded_at"`
}
