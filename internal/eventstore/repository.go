package eventstore

import (
	"context"

	"github.com/outboxlab/eventgate/internal/apperr"
	"github.com/outboxlab/eventgate/internal/event"
	"github.com/outboxlab/eventgate/internal/eventbus"
)

// Aggregate is the contract replayed aggregates implement. CurrentVersion is
// the count of events ever applied to the instance, including not-yet-saved
// ones sitting in the pending buffer.
type Aggregate interface {
	AggregateID() string
	CurrentVersion() int64
	PendingEvents() []event.Envelope
	ClearPending()
	Apply(env event.Envelope) error
}

// Repository loads aggregates by replaying their stream and saves them by
// appending the pending events with the replayed version as the concurrency
// token. It never mutates domain state itself.
type Repository[T Aggregate] struct {
	store *Store
	bus   *eventbus.Bus
	newFn func(id string) T
}

func NewRepository[T Aggregate](store *Store, bus *eventbus.Bus, newFn func(id string) T) *Repository[T] {
	return &Repository[T]{store: store, bus: bus, newFn: newFn}
}

// Get replays the full stream into a fresh instance. An empty stream is
// indistinguishable from "never existed" and fails with NotFound.
func (r *Repository[T]) Get(ctx context.Context, aggregateID string) (T, error) {
	var zero T

	envs, err := r.store.Events(ctx, aggregateID)
	if err != nil {
		return zero, err
	}
	if len(envs) == 0 {
		return zero, apperr.New(apperr.KindNotFound, "aggregate stream is empty",
			"aggregate_id", aggregateID)
	}

	agg := r.newFn(aggregateID)
	for _, env := range envs {
		if err := agg.Apply(env); err != nil {
			return zero, err
		}
	}
	return agg, nil
}

// Save appends the pending events with expectedVersion = currentVersion minus
// the pending count, dispatches them post-commit in stream order, then clears
// the buffer. A no-op when nothing is pending, so repeated saves are safe.
func (r *Repository[T]) Save(ctx context.Context, agg T) error {
	pending := agg.PendingEvents()
	if len(pending) == 0 {
		return nil
	}

	expectedVersion := agg.CurrentVersion() - int64(len(pending))
	if err := r.store.Append(ctx, agg.AggregateID(), pending, expectedVersion); err != nil {
		return err
	}

	err := r.bus.DispatchAll(ctx, pending)
	agg.ClearPending()
	return err
}
