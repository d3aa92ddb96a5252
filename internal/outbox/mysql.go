package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/outboxlab/eventgate/internal/apperr"
)

const selectColumns = `id, event_id, email_type, recipient_email, recipient_name,
	subject, html_body, text_body, status, attempts, last_error, created_at, sent_at`

// MySQLStore is the sqlx-backed outbox table.
type MySQLStore struct {
	db *sqlx.DB
}

func NewMySQLStore(db *sqlx.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// withTx runs fn in the provided tx, or starts a new transaction when tx is nil.
func (s *MySQLStore) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	t, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}

	return t.Commit()
}

// Save inserts the entry. ON DUPLICATE KEY UPDATE id = id turns a retry of
// the same (event_id, recipient_email, email_type) into a no-op.
func (s *MySQLStore) Save(ctx context.Context, tx *sqlx.Tx, e Entry) error {
	const q = `
		INSERT INTO email_outbox
			(id, event_id, email_type, recipient_email, recipient_name,
			 subject, html_body, text_body, status, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending', 0, NOW(6))
		ON DUPLICATE KEY UPDATE id = id
	`
	return s.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			e.ID, e.EventID, e.EmailType, e.RecipientEmail, e.RecipientName,
			e.Subject, e.HTMLBody, e.TextBody,
		)
		return err
	})
}

func (s *MySQLStore) Update(ctx context.Context, e Entry) error {
	const q = `
		UPDATE email_outbox
		SET status = ?, attempts = ?, last_error = ?, sent_at = ?
		WHERE id = ?
	`
	_, err := s.db.ExecContext(ctx, q, e.Status.String(), e.Attempts, e.LastError, e.SentAt, e.ID)
	return err
}

func (s *MySQLStore) FindPending(ctx context.Context, limit int) ([]Entry, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM email_outbox
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, selectColumns)

	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, q, limit); err != nil {
		return nil, err
	}
	return entries, nil
}

// ClaimPending locks a FIFO batch of pending rows with SKIP LOCKED so that
// concurrent processor instances never hold the same entry, runs the handler
// for each, and writes the outcomes before committing.
func (s *MySQLStore) ClaimPending(ctx context.Context, limit int, handle HandleFunc) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(err, apperr.KindStorageUnavailable, "begin claim transaction")
	}
	defer func() { _ = tx.Rollback() }()

	q := fmt.Sprintf(`
		SELECT %s FROM email_outbox
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT ?
		FOR UPDATE SKIP LOCKED
	`, selectColumns)

	var entries []Entry
	if err := tx.SelectContext(ctx, &entries, q, limit); err != nil {
		return apperr.Wrap(err, apperr.KindStorageUnavailable, "claim pending entries")
	}

	const upd = `
		UPDATE email_outbox
		SET status = ?, attempts = ?, last_error = ?, sent_at = ?
		WHERE id = ?
	`
	for _, e := range entries {
		done := handle(ctx, e)
		if _, err := tx.ExecContext(ctx, upd,
			done.Status.String(), done.Attempts, done.LastError, done.SentAt, done.ID,
		); err != nil {
			return apperr.Wrap(err, apperr.KindStorageUnavailable, "record entry outcome",
				"entry_id", e.ID)
		}
	}

	return tx.Commit()
}

func (s *MySQLStore) FindByEventID(ctx context.Context, eventID string) ([]Entry, error) {
	q := fmt.Sprintf(`SELECT %s FROM email_outbox WHERE event_id = ? ORDER BY created_at ASC`, selectColumns)

	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, q, eventID); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *MySQLStore) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT status, COUNT(*) FROM email_outbox GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int64)
	for rows.Next() {
		var st string
		var n int64
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[Status(st)] = n
	}
	return counts, rows.Err()
}

func (s *MySQLStore) OldestPending(ctx context.Context) (*Entry, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM email_outbox
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, selectColumns)

	var e Entry
	err := s.db.GetContext(ctx, &e, q)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
