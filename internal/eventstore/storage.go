package eventstore

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/outboxlab/eventgate/internal/event"
)

// AppendHook runs inside the append transaction, after the event rows are
// written and before commit. It is how subscribers that must be atomic with
// the state change (outbox writes) join the transaction.
//
// tx is the open transaction for SQL-backed storage. The in-memory storage
// passes nil; hook implementations treat a nil tx as "use your own atomic
// write".
type AppendHook func(ctx context.Context, tx *sqlx.Tx, records []event.StoredRecord) error

// Storage persists the append-only stream table. Implementations own the
// atomicity of the version check: the compare against expectedVersion and the
// inserts must be a single isolated unit with respect to concurrent appenders.
type Storage interface {
	// Append writes the records if the stream's current max version equals
	// expectedVersion, invoking each hook inside the same unit of work.
	// On a version mismatch it fails with apperr.KindConcurrencyConflict and
	// writes nothing.
	Append(ctx context.Context, aggregateID string, expectedVersion int64, records []event.StoredRecord, hooks []AppendHook) error

	// Load returns the stream records with StreamVersion >= fromVersion in
	// ascending stream order. An unknown aggregate yields an empty slice.
	Load(ctx context.Context, aggregateID string, fromVersion int64) ([]event.StoredRecord, error)
}
