// Package analytics keeps a ClickHouse feed of every persisted event for
// reporting. It is a plain projection: rebuildable from the stream table,
// never read back into domain logic.
package analytics

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/outboxlab/eventgate/internal/event"
	"github.com/outboxlab/eventgate/internal/eventbus"
)

type Row struct {
	EventID       string    `db:"event_id" json:"event_id"`
	AggregateID   string    `db:"aggregate_id" json:"aggregate_id"`
	StreamVersion int64     `db:"stream_version" json:"stream_version"`
	EventName     string    `db:"event_name" json:"event_name"`
	OccurredOn    time.Time `db:"occurred_on" json:"occurred_on"`
}

type Repository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewRepository(ch *sqlx.DB) *Repository {
	return &Repository{ch: ch}
}

func (r *Repository) InsertEvent(ctx context.Context, env event.Envelope) error {
	const q = `
		INSERT INTO eventgate.events_feed
			(event_id, aggregate_id, stream_version, event_name, occurred_on)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.ch.ExecContext(ctx, q,
		env.EventID, env.AggregateID, env.StreamVersion, env.Payload.EventName(), env.OccurredOn,
	)
	return err
}

// ListRecent returns the newest rows, optionally filtered by event name.
func (r *Repository) ListRecent(ctx context.Context, eventName string, limit, offset int) ([]Row, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT event_id, aggregate_id, stream_version, event_name, occurred_on
		FROM eventgate.events_feed
	`
	var args []any
	if eventName != "" {
		q += " WHERE event_name = ?"
		args = append(args, eventName)
	}
	q += " ORDER BY occurred_on DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []Row
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// Subscriber adapts the repository to a post-commit event bus subscriber.
func Subscriber(repo *Repository) eventbus.Subscriber {
	return eventbus.SubscriberFunc{
		SubscriberName: "analytics",
		Fn:             repo.InsertEvent,
	}
}
