// Package outbox implements the transactional outbox: durable outbound email
// rows written in the same transaction as the domain event that causes them,
// and the processor that drains them.
package outbox

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

func (s Status) String() string { return string(s) }

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusSent || s == StatusFailed
}

// Entry is one outbound email. Created alongside the triggering domain event;
// afterwards only the processor touches it (status, attempts, last_error,
// sent_at) and it is never deleted, serving as the audit trail.
//
// Idempotence rests on the unique key (event_id, recipient_email, email_type):
// re-dispatching the same domain event enqueues exactly one row.
type Entry struct {
	ID             string     `db:"id"`
	EventID        string     `db:"event_id"`
	EmailType      string     `db:"email_type"`
	RecipientEmail string     `db:"recipient_email"`
	RecipientName  *string    `db:"recipient_name"`
	Subject        string     `db:"subject"`
	HTMLBody       string     `db:"html_body"`
	TextBody       *string    `db:"text_body"`
	Status         Status     `db:"status"`
	Attempts       int        `db:"attempts"`
	LastError      *string    `db:"last_error"`
	CreatedAt      time.Time  `db:"created_at"`
	SentAt         *time.Time `db:"sent_at"`
}
