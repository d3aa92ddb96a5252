package eventstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/outboxlab/eventgate/internal/apperr"
	"github.com/outboxlab/eventgate/internal/event"
)

const mysqlErrDuplicateEntry = 1062

// MySQLStorage persists streams in the `events` table. The version compare
// and the inserts run in one transaction; the row lock taken by the MAX query
// serializes concurrent appenders on the same aggregate. The unique key on
// (aggregate_id, stream_version) is a backstop only: a duplicate-key failure
// is evidence of a lost race and is reported as a ConcurrencyConflict, never
// as a generic storage error.
type MySQLStorage struct {
	db *sqlx.DB
}

func NewMySQLStorage(db *sqlx.DB) *MySQLStorage {
	return &MySQLStorage{db: db}
}

func (s *MySQLStorage) Append(ctx context.Context, aggregateID string, expectedVersion int64, records []event.StoredRecord, hooks []AppendHook) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(err, apperr.KindStorageUnavailable, "begin append transaction",
			"aggregate_id", aggregateID)
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	err = tx.QueryRowxContext(ctx,
		`SELECT COALESCE(MAX(stream_version), 0) FROM events WHERE aggregate_id = ? FOR UPDATE`,
		aggregateID,
	).Scan(&current)
	if err != nil {
		return apperr.Wrap(err, apperr.KindStorageUnavailable, "read current stream version",
			"aggregate_id", aggregateID)
	}

	if current != expectedVersion {
		return apperr.New(apperr.KindConcurrencyConflict, "stream version mismatch",
			"aggregate_id", aggregateID, "expected", expectedVersion, "actual", current)
	}

	if err := s.insertRecords(ctx, tx, records); err != nil {
		if isDuplicateKey(err) {
			return apperr.Wrap(err, apperr.KindConcurrencyConflict, "lost append race",
				"aggregate_id", aggregateID, "expected", expectedVersion)
		}
		return apperr.Wrap(err, apperr.KindStorageUnavailable, "insert stream records",
			"aggregate_id", aggregateID)
	}

	for _, hook := range hooks {
		if err := hook(ctx, tx, records); err != nil {
			return fmt.Errorf("append hook: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(err, apperr.KindStorageUnavailable, "commit append transaction",
			"aggregate_id", aggregateID)
	}
	return nil
}

func (s *MySQLStorage) insertRecords(ctx context.Context, tx *sqlx.Tx, records []event.StoredRecord) error {
	var sb strings.Builder
	args := make([]any, 0, len(records)*8)

	sb.WriteString(`INSERT INTO events
		(event_id, aggregate_id, stream_version, event_name, schema_version, payload, occurred_on, recorded_at)
		VALUES `)
	for i, rec := range records {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			rec.EventID, rec.AggregateID, rec.StreamVersion, rec.EventName,
			rec.SchemaVersion, rec.Payload, rec.OccurredOn, rec.RecordedAt,
		)
	}

	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return err
}

func (s *MySQLStorage) Load(ctx context.Context, aggregateID string, fromVersion int64) ([]event.StoredRecord, error) {
	const q = `
		SELECT event_id, aggregate_id, stream_version, event_name, schema_version, payload, occurred_on, recorded_at
		FROM events
		WHERE aggregate_id = ? AND stream_version >= ?
		ORDER BY stream_version ASC
	`
	var records []event.StoredRecord
	if err := s.db.SelectContext(ctx, &records, q, aggregateID, fromVersion); err != nil {
		return nil, apperr.Wrap(err, apperr.KindStorageUnavailable, "load stream",
			"aggregate_id", aggregateID, "from_version", fromVersion)
	}
	return records, nil
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry
}
