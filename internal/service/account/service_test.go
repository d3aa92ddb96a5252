package account

import (
	"context"
	"testing"

	"github.com/outboxlab/eventgate/internal/apperr"
	"github.com/outboxlab/eventgate/internal/domain/user"
	"github.com/outboxlab/eventgate/internal/event"
	"github.com/outboxlab/eventgate/internal/eventbus"
	"github.com/outboxlab/eventgate/internal/eventstore"
	"github.com/outboxlab/eventgate/internal/mailer"
	"github.com/outboxlab/eventgate/internal/notify"
	"github.com/outboxlab/eventgate/internal/outbox"
	"github.com/stretchr/testify/require"
)

// newTestService wires the full in-memory command path: event store with the
// outbox hook, post-commit bus, replay repository.
func newTestService(t *testing.T) (*Service, *outbox.MemoryStore) {
	t.Helper()

	reg := event.NewRegistry()
	chain := event.NewUpcasterChain()
	require.NoError(t, user.RegisterTypes(reg, chain))

	renderer := mailer.NewRenderer()
	require.NoError(t, mailer.RegisterDefaultTemplates(renderer))

	outboxStore := outbox.NewMemoryStore()
	store := eventstore.New(eventstore.NewMemoryStorage(), reg, chain)
	store.RegisterTxHook(notify.NewEnqueuer(reg, renderer, outboxStore).Hook())

	return New(user.NewRepository(store, eventbus.New())), outboxStore
}

func TestRegisterCreatesStreamAndWelcomeMail(t *testing.T) {
	svc, outboxStore := newTestService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, "jane@example.com", "Jane", "Doe")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	u, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "jane@example.com", u.Email())
	require.Equal(t, int64(1), u.CurrentVersion())

	counts, err := outboxStore.CountByStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), counts[outbox.StatusPending])
}

func TestRegisterInvalidEmailWritesNothing(t *testing.T) {
	svc, outboxStore := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "not-an-email", "Jane", "Doe")
	require.ErrorIs(t, err, user.ErrInvalidEmail)

	counts, err := outboxStore.CountByStatus(ctx)
	require.NoError(t, err)
	require.Zero(t, counts[outbox.StatusPending])
}

func TestGetUnknownUserIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "no-such-id")
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestChangeEmailFullRoundTrip(t *testing.T) {
	svc, outboxStore := newTestService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, "old@example.com", "Jane", "Doe")
	require.NoError(t, err)

	require.NoError(t, svc.ChangeEmail(ctx, id, "new@example.com"))

	u, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "new@example.com", u.Email())
	require.Equal(t, int64(2), u.CurrentVersion())

	// welcome + change notice
	counts, err := outboxStore.CountByStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), counts[outbox.StatusPending])
}

func TestChangeEmailToSameAddressPersistsNothing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, "jane@example.com", "Jane", "Doe")
	require.NoError(t, err)

	require.NoError(t, svc.ChangeEmail(ctx, id, "JANE@example.com"))

	u, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(1), u.CurrentVersion())
}

// flakyStorage loses the append race a scripted number of times before
// delegating to the real storage.
type flakyStorage struct {
	inner     *eventstore.MemoryStorage
	conflicts int
}

func (s *flakyStorage) Append(ctx context.Context, aggregateID string, expectedVersion int64, records []event.StoredRecord, hooks []eventstore.AppendHook) error {
	if s.conflicts > 0 {
		s.conflicts--
		return apperr.New(apperr.KindConcurrencyConflict, "stream version mismatch",
			"aggregate_id", aggregateID, "expected", expectedVersion)
	}
	return s.inner.Append(ctx, aggregateID, expectedVersion, records, hooks)
}

func (s *flakyStorage) Load(ctx context.Context, aggregateID string, fromVersion int64) ([]event.StoredRecord, error) {
	return s.inner.Load(ctx, aggregateID, fromVersion)
}

func TestCommandRetriesOnConcurrencyConflict(t *testing.T) {
	reg := event.NewRegistry()
	chain := event.NewUpcasterChain()
	require.NoError(t, user.RegisterTypes(reg, chain))

	flaky := &flakyStorage{inner: eventstore.NewMemoryStorage()}
	store := eventstore.New(flaky, reg, chain)
	svc := New(user.NewRepository(store, eventbus.New()))
	ctx := context.Background()

	id, err := svc.Register(ctx, "jane@example.com", "Jane", "Doe")
	require.NoError(t, err)

	// Two lost races, then success: within the retry budget.
	flaky.conflicts = 2
	require.NoError(t, svc.ChangeEmail(ctx, id, "new@example.com"))

	u, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "new@example.com", u.Email())

	// More conflicts than the budget: the conflict surfaces.
	flaky.conflicts = maxConflictRetries
	err = svc.ChangePassword(ctx, id)
	require.True(t, apperr.IsKind(err, apperr.KindConcurrencyConflict))
}

func TestChangePasswordEnqueuesAlert(t *testing.T) {
	svc, outboxStore := newTestService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, "jane@example.com", "Jane", "Doe")
	require.NoError(t, err)
	require.NoError(t, svc.ChangePassword(ctx, id))

	pending, err := outboxStore.FindPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	var alert *outbox.Entry
	for i := range pending {
		if pending[i].EmailType == mailer.TypePasswordChangedAlert {
			alert = &pending[i]
		}
	}
	require.NotNil(t, alert)
	require.Equal(t, "jane@example.com", alert.RecipientEmail)
}
