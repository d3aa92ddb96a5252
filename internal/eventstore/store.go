// Package eventstore persists aggregate state as append-only event streams
// with optimistic concurrency control and read-time schema upcasting.
package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/outboxlab/eventgate/internal/apperr"
	"github.com/outboxlab/eventgate/internal/event"
	"github.com/outboxlab/eventgate/internal/metrics"
)

// Store is the event store. It serializes envelopes into stored records on
// append and rebuilds latest-schema envelopes on read, delegating durability
// and the version compare to its Storage.
type Store struct {
	storage  Storage
	registry *event.Registry
	chain    *event.UpcasterChain
	hooks    []AppendHook
}

func New(storage Storage, registry *event.Registry, chain *event.UpcasterChain) *Store {
	return &Store{
		storage:  storage,
		registry: registry,
		chain:    chain,
	}
}

// RegisterTxHook adds a hook that runs inside every append transaction.
// Wiring happens at startup, before any append.
func (s *Store) RegisterTxHook(hooks ...AppendHook) {
	s.hooks = append(s.hooks, hooks...)
}

// Append persists the envelopes with strictly increasing stream versions
// starting at expectedVersion+1. expectedVersion must equal the stream length
// the caller last observed; a mismatch fails with ConcurrencyConflict and
// writes nothing. Stream versions are assigned onto the given envelopes.
func (s *Store) Append(ctx context.Context, aggregateID string, envs []event.Envelope, expectedVersion int64) error {
	if len(envs) == 0 {
		return nil
	}
	if expectedVersion < 0 {
		return fmt.Errorf("event store: negative expected version %d for %s", expectedVersion, aggregateID)
	}

	now := time.Now().UTC()
	records := make([]event.StoredRecord, len(envs))
	for i, env := range envs {
		payload, err := json.Marshal(env.Payload)
		if err != nil {
			return fmt.Errorf("event store: marshal %s: %w", env.Payload.EventName(), err)
		}
		envs[i].StreamVersion = expectedVersion + int64(i) + 1
		records[i] = event.StoredRecord{
			EventID:       env.EventID,
			AggregateID:   aggregateID,
			StreamVersion: envs[i].StreamVersion,
			EventName:     env.Payload.EventName(),
			SchemaVersion: env.Payload.SchemaVersion(),
			Payload:       payload,
			OccurredOn:    env.OccurredOn,
			RecordedAt:    now,
		}
	}

	if err := s.storage.Append(ctx, aggregateID, expectedVersion, records, s.hooks); err != nil {
		if apperr.IsKind(err, apperr.KindConcurrencyConflict) {
			metrics.ConcurrencyConflictsTotal.Inc()
		}
		metrics.AppendsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.AppendsTotal.WithLabelValues("ok").Inc()
	return nil
}

// Events returns the full stream for the aggregate, ascending by stream
// version, each payload upcast to the latest schema. An aggregate with zero
// events yields an empty slice; callers decide whether that means NotFound.
func (s *Store) Events(ctx context.Context, aggregateID string) ([]event.Envelope, error) {
	return s.EventsFromVersion(ctx, aggregateID, 1)
}

// EventsFromVersion returns the stream starting at fromVersion, used for
// incremental catch-up.
func (s *Store) EventsFromVersion(ctx context.Context, aggregateID string, fromVersion int64) ([]event.Envelope, error) {
	records, err := s.storage.Load(ctx, aggregateID, fromVersion)
	if err != nil {
		return nil, err
	}

	envs := make([]event.Envelope, 0, len(records))
	for _, rec := range records {
		env, err := s.decode(rec)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, nil
}

func (s *Store) decode(rec event.StoredRecord) (event.Envelope, error) {
	latest, ok := s.registry.LatestVersion(rec.EventName)
	if !ok {
		return event.Envelope{}, fmt.Errorf("event store: unregistered event name %q at %s@%d",
			rec.EventName, rec.AggregateID, rec.StreamVersion)
	}

	payload, err := s.chain.Upcast(rec.EventName, rec.SchemaVersion, latest, rec.Payload)
	if err != nil {
		return event.Envelope{}, err
	}

	p, err := s.registry.Decode(rec.EventName, payload)
	if err != nil {
		return event.Envelope{}, err
	}

	return event.Envelope{
		EventID:       rec.EventID,
		AggregateID:   rec.AggregateID,
		StreamVersion: rec.StreamVersion,
		OccurredOn:    rec.OccurredOn,
		Payload:       p,
	}, nil
}
