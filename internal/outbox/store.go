package outbox

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// HandleFunc processes one claimed entry and returns it with the outcome
// recorded (status, attempts, last_error, sent_at).
type HandleFunc func(ctx context.Context, e Entry) Entry

// Store is the durable outbox table.
type Store interface {
	// Save inserts the entry. If tx is non-nil the insert joins that
	// transaction (the transactional-outbox write path). A duplicate
	// (event_id, recipient_email, email_type) is a successful no-op.
	Save(ctx context.Context, tx *sqlx.Tx, e Entry) error

	// Update persists status, attempts, last_error and sent_at. Nothing else
	// about an entry ever changes.
	Update(ctx context.Context, e Entry) error

	// FindPending returns up to limit pending entries, oldest first.
	FindPending(ctx context.Context, limit int) ([]Entry, error)

	// ClaimPending atomically claims up to limit pending entries FIFO, calls
	// handle for each, and persists the returned entry. Entries claimed by
	// one caller are invisible to concurrent claimants, so at most one
	// processor is sending a given entry at a time.
	ClaimPending(ctx context.Context, limit int, handle HandleFunc) error

	// FindByEventID lists the entries a domain event produced (audit).
	FindByEventID(ctx context.Context, eventID string) ([]Entry, error)

	// CountByStatus reports row counts per status (observability).
	CountByStatus(ctx context.Context) (map[Status]int64, error)

	// OldestPending returns the oldest pending entry, or nil when none.
	OldestPending(ctx context.Context) (*Entry, error)
}
