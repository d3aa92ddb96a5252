package eventstore

import (
	"context"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/outboxlab/eventgate/internal/apperr"
	"github.com/outboxlab/eventgate/internal/event"
)

// MemoryStorage keeps streams in process memory. Used by tests and local
// development; it honors the same version-compare contract as MySQLStorage.
// Hooks receive a nil tx and are expected to perform their own atomic writes.
type MemoryStorage struct {
	mu      sync.Mutex
	streams map[string][]event.StoredRecord
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{streams: make(map[string][]event.StoredRecord)}
}

func (s *MemoryStorage) Append(ctx context.Context, aggregateID string, expectedVersion int64, records []event.StoredRecord, hooks []AppendHook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := int64(len(s.streams[aggregateID]))
	if current != expectedVersion {
		return apperr.New(apperr.KindConcurrencyConflict, "stream version mismatch",
			"aggregate_id", aggregateID, "expected", expectedVersion, "actual", current)
	}

	// Hooks run before the stream mutates so a hook failure leaves the
	// stream unchanged, matching the SQL rollback behavior.
	var nilTx *sqlx.Tx
	for _, hook := range hooks {
		if err := hook(ctx, nilTx, records); err != nil {
			return err
		}
	}

	s.streams[aggregateID] = append(s.streams[aggregateID], records...)
	return nil
}

func (s *MemoryStorage) Load(ctx context.Context, aggregateID string, fromVersion int64) ([]event.StoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []event.StoredRecord
	for _, rec := range s.streams[aggregateID] {
		if rec.StreamVersion >= fromVersion {
			out = append(out, rec)
		}
	}
	return out, nil
}
