package eventstore

import (
	"context"
	"testing"

	"github.com/outboxlab/eventgate/internal/apperr"
	"github.com/outboxlab/eventgate/internal/event"
	"github.com/outboxlab/eventgate/internal/eventbus"
	"github.com/stretchr/testify/require"
)

// tallyAgg counts opened/closed events; the minimal replayable aggregate.
type tallyAgg struct {
	id      string
	version int64
	pending []event.Envelope

	open int
}

func newTally(id string) *tallyAgg { return &tallyAgg{id: id} }

func (a *tallyAgg) AggregateID() string             { return a.id }
func (a *tallyAgg) CurrentVersion() int64           { return a.version }
func (a *tallyAgg) PendingEvents() []event.Envelope { return a.pending }
func (a *tallyAgg) ClearPending()                   { a.pending = nil }

func (a *tallyAgg) Apply(env event.Envelope) error {
	switch env.Payload.(type) {
	case taskOpened:
		a.open++
	case taskClosed:
		a.open--
	}
	a.version++
	return nil
}

func (a *tallyAgg) raise(p event.Payload) {
	env := event.NewEnvelope(a.id, p)
	_ = a.Apply(env)
	a.pending = append(a.pending, env)
}

func newTestRepo(t *testing.T) (*Repository[*tallyAgg], *eventbus.Bus) {
	t.Helper()
	store, _ := newTestStore(t)
	bus := eventbus.New()
	return NewRepository(store, bus, newTally), bus
}

func TestRepositoryGetEmptyStreamIsNotFound(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.Get(context.Background(), "missing")
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestRepositorySaveThenGetReplaysState(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	a := newTally("t-10")
	a.raise(taskOpened{TaskID: "t-10", Title: "a", Priority: "low"})
	a.raise(taskOpened{TaskID: "t-10", Title: "b", Priority: "low"})
	a.raise(taskClosed{TaskID: "t-10"})
	require.NoError(t, repo.Save(ctx, a))
	require.Empty(t, a.PendingEvents())

	got, err := repo.Get(ctx, "t-10")
	require.NoError(t, err)
	require.Equal(t, int64(3), got.CurrentVersion())
	require.Equal(t, 1, got.open)
}

func TestRepositorySaveWithoutPendingIsIdempotent(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	a := newTally("t-11")
	a.raise(taskOpened{TaskID: "t-11", Title: "a", Priority: "low"})
	require.NoError(t, repo.Save(ctx, a))

	// Nothing pending: must not touch the store or conflict.
	require.NoError(t, repo.Save(ctx, a))
	require.NoError(t, repo.Save(ctx, a))

	got, err := repo.Get(ctx, "t-11")
	require.NoError(t, err)
	require.Equal(t, int64(1), got.CurrentVersion())
}

func TestRepositorySaveDispatchesInStreamOrder(t *testing.T) {
	repo, bus := newTestRepo(t)
	ctx := context.Background()

	var order []int64
	bus.Subscribe(eventbus.SubscriberFunc{
		SubscriberName: "recorder",
		Fn: func(ctx context.Context, env event.Envelope) error {
			order = append(order, env.StreamVersion)
			return nil
		},
	})

	a := newTally("t-12")
	a.raise(taskOpened{TaskID: "t-12", Title: "a", Priority: "low"})
	a.raise(taskClosed{TaskID: "t-12"})
	require.NoError(t, repo.Save(ctx, a))

	require.Equal(t, []int64{1, 2}, order)
}

func TestRepositoryStaleInstanceConflictsOnSave(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	a := newTally("t-13")
	a.raise(taskOpened{TaskID: "t-13", Title: "a", Priority: "low"})
	require.NoError(t, repo.Save(ctx, a))

	// Two replicas of the same stream; the second save must lose.
	first, err := repo.Get(ctx, "t-13")
	require.NoError(t, err)
	second, err := repo.Get(ctx, "t-13")
	require.NoError(t, err)

	first.raise(taskClosed{TaskID: "t-13"})
	require.NoError(t, repo.Save(ctx, first))

	second.raise(taskClosed{TaskID: "t-13"})
	err = repo.Save(ctx, second)
	require.True(t, apperr.IsKind(err, apperr.KindConcurrencyConflict))
}
