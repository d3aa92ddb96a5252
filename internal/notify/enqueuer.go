// Package notify maps persisted domain events to outbox email entries. The
// mapping runs inside the append transaction, so the email row and the event
// that caused it are created atomically or not at all.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/outboxlab/eventgate/internal/domain/user"
	"github.com/outboxlab/eventgate/internal/event"
	"github.com/outboxlab/eventgate/internal/eventstore"
	"github.com/outboxlab/eventgate/internal/mailer"
	"github.com/outboxlab/eventgate/internal/outbox"
)

// Enqueuer renders and inserts outbox entries for the events that carry an
// email policy. Events without one pass through untouched.
type Enqueuer struct {
	registry *event.Registry
	renderer *mailer.Renderer
	store    outbox.Store
}

func NewEnqueuer(registry *event.Registry, renderer *mailer.Renderer, store outbox.Store) *Enqueuer {
	return &Enqueuer{registry: registry, renderer: renderer, store: store}
}

// Hook exposes the enqueuer as an append hook for the event store.
func (e *Enqueuer) Hook() eventstore.AppendHook {
	return e.onAppend
}

func (e *Enqueuer) onAppend(ctx context.Context, tx *sqlx.Tx, records []event.StoredRecord) error {
	for _, rec := range records {
		// Records are written at the latest schema, so the registry decodes
		// them directly.
		p, err := e.registry.Decode(rec.EventName, rec.Payload)
		if err != nil {
			return fmt.Errorf("enqueue for %s: %w", rec.EventName, err)
		}
		if err := e.enqueueFor(ctx, tx, rec.EventID, p); err != nil {
			return err
		}
	}
	return nil
}

func (e *Enqueuer) enqueueFor(ctx context.Context, tx *sqlx.Tx, eventID string, p event.Payload) error {
	switch p := p.(type) {
	case user.Registered:
		name := strings.TrimSpace(p.FirstName + " " + p.LastName)
		var recipientName *string
		if name != "" {
			recipientName = &name
		}
		return e.save(ctx, tx, eventID, mailer.TypeWelcome, p.Email, recipientName, map[string]any{
			"first_name": p.FirstName,
			"email":      p.Email,
		})

	case user.EmailChanged:
		// The notice goes to the old address: the one the account owner
		// still controls if the change was hostile.
		return e.save(ctx, tx, eventID, mailer.TypeEmailChangedNotice, p.OldEmail, nil, map[string]any{
			"old_email": p.OldEmail,
			"new_email": p.NewEmail,
		})

	case user.PasswordChanged:
		return e.save(ctx, tx, eventID, mailer.TypePasswordChangedAlert, p.Email, nil, map[string]any{})
	}
	return nil
}

func (e *Enqueuer) save(ctx context.Context, tx *sqlx.Tx, eventID, emailType, to string, toName *string, data map[string]any) error {
	rendered, err := e.renderer.Render(emailType, data)
	if err != nil {
		return err
	}

	return e.store.Save(ctx, tx, outbox.Entry{
		ID:             uuid.NewString(),
		EventID:        eventID,
		EmailType:      emailType,
		RecipientEmail: to,
		RecipientName:  toName,
		Subject:        rendered.Subject,
		HTMLBody:       rendered.HTML,
		TextBody:       rendered.Text,
	})
}
