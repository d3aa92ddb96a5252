package outbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func entry(id, eventID, recipient, emailType string, createdAt time.Time) Entry {
	return Entry{
		ID:             id,
		EventID:        eventID,
		EmailType:      emailType,
		RecipientEmail: recipient,
		Subject:        "subject",
		HTMLBody:       "<p>body</p>",
		Status:         StatusPending,
		CreatedAt:      createdAt,
	}
}

func TestSaveIsIdempotentOnEventRecipientType(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Save(ctx, nil, entry("a", "ev-1", "x@example.com", "welcome", now)))
	require.NoError(t, s.Save(ctx, nil, entry("b", "ev-1", "x@example.com", "welcome", now)))

	rows, err := s.FindByEventID(ctx, "ev-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "a", rows[0].ID)

	// Same event, different type: a distinct row.
	require.NoError(t, s.Save(ctx, nil, entry("c", "ev-1", "x@example.com", "password_changed_alert", now)))
	rows, err = s.FindByEventID(ctx, "ev-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestFindPendingIsFIFOAndBounded(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		e := entry(fmt.Sprintf("id-%d", i), fmt.Sprintf("ev-%d", i), "x@example.com", "welcome",
			base.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.Save(ctx, nil, e))
	}

	got, err := s.FindPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "id-0", got[0].ID)
	require.Equal(t, "id-1", got[1].ID)
}

func TestFindPendingExcludesSentAndFailed(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Save(ctx, nil, entry("a", "ev-1", "x@example.com", "welcome", now)))
	require.NoError(t, s.Save(ctx, nil, entry("b", "ev-2", "x@example.com", "welcome", now.Add(time.Second))))
	require.NoError(t, s.Save(ctx, nil, entry("c", "ev-3", "x@example.com", "welcome", now.Add(2*time.Second))))

	sentAt := now
	require.NoError(t, s.Update(ctx, Entry{ID: "a", Status: StatusSent, SentAt: &sentAt}))
	require.NoError(t, s.Update(ctx, Entry{ID: "b", Status: StatusFailed, Attempts: 5}))

	got, err := s.FindPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "c", got[0].ID)
}

func TestClaimPendingAppliesHandlerOutcome(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Save(ctx, nil, entry("a", "ev-1", "x@example.com", "welcome", now)))
	require.NoError(t, s.Save(ctx, nil, entry("b", "ev-2", "x@example.com", "welcome", now.Add(time.Second))))

	err := s.ClaimPending(ctx, 10, func(ctx context.Context, e Entry) Entry {
		if e.ID == "a" {
			e.Status = StatusSent
			sentAt := now
			e.SentAt = &sentAt
			return e
		}
		e.Attempts++
		msg := "relay refused"
		e.LastError = &msg
		return e
	})
	require.NoError(t, err)

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), counts[StatusSent])
	require.Equal(t, int64(1), counts[StatusPending])

	rows, err := s.FindByEventID(ctx, "ev-2")
	require.NoError(t, err)
	require.Equal(t, 1, rows[0].Attempts)
	require.NotNil(t, rows[0].LastError)
}

func TestOldestPending(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	oldest, err := s.OldestPending(ctx)
	require.NoError(t, err)
	require.Nil(t, oldest)

	base := time.Now().UTC()
	require.NoError(t, s.Save(ctx, nil, entry("new", "ev-1", "x@example.com", "welcome", base.Add(time.Minute))))
	require.NoError(t, s.Save(ctx, nil, entry("old", "ev-2", "x@example.com", "welcome", base)))

	oldest, err = s.OldestPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, oldest)
	require.Equal(t, "old", oldest.ID)
}
