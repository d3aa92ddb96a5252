package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/outboxlab/eventgate/internal/apperr"
	"github.com/outboxlab/eventgate/internal/event"
	"github.com/stretchr/testify/require"
)

type taskOpened struct {
	TaskID   string `json:"task_id"`
	Title    string `json:"title"`
	Priority string `json:"priority"`
}

func (taskOpened) EventName() string  { return "task.opened" }
func (taskOpened) SchemaVersion() int { return 2 }

type taskClosed struct {
	TaskID string `json:"task_id"`
}

func (taskClosed) EventName() string  { return "task.closed" }
func (taskClosed) SchemaVersion() int { return 1 }

// v1 had no priority field; the upcaster defaults it.
func upcastTaskOpenedV1(payload []byte) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, err
	}
	m["priority"] = "normal"
	return json.Marshal(m)
}

func newTestStore(t *testing.T) (*Store, *MemoryStorage) {
	t.Helper()

	reg := event.NewRegistry()
	require.NoError(t, reg.Register(taskOpened{}, taskClosed{}))

	chain := event.NewUpcasterChain()
	require.NoError(t, chain.Register("task.opened", 1, upcastTaskOpenedV1))

	storage := NewMemoryStorage()
	return New(storage, reg, chain), storage
}

func TestAppendAssignsContiguousStreamVersions(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	envs := []event.Envelope{
		event.NewEnvelope("t-1", taskOpened{TaskID: "t-1", Title: "first", Priority: "high"}),
		event.NewEnvelope("t-1", taskClosed{TaskID: "t-1"}),
	}
	require.NoError(t, store.Append(ctx, "t-1", envs, 0))
	require.Equal(t, int64(1), envs[0].StreamVersion)
	require.Equal(t, int64(2), envs[1].StreamVersion)

	more := []event.Envelope{
		event.NewEnvelope("t-1", taskOpened{TaskID: "t-1", Title: "reopened", Priority: "low"}),
	}
	require.NoError(t, store.Append(ctx, "t-1", more, 2))

	got, err := store.Events(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, env := range got {
		require.Equal(t, int64(i+1), env.StreamVersion)
	}
}

func TestAppendStaleExpectedVersionConflictsAndWritesNothing(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first := []event.Envelope{event.NewEnvelope("t-2", taskOpened{TaskID: "t-2", Title: "a", Priority: "normal"})}
	require.NoError(t, store.Append(ctx, "t-2", first, 0))

	stale := []event.Envelope{event.NewEnvelope("t-2", taskClosed{TaskID: "t-2"})}
	err := store.Append(ctx, "t-2", stale, 0)
	require.True(t, apperr.IsKind(err, apperr.KindConcurrencyConflict))

	got, err := store.Events(ctx, "t-2")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestAppendRaceExactlyOneWriterWins(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	seed := []event.Envelope{event.NewEnvelope("t-3", taskOpened{TaskID: "t-3", Title: "a", Priority: "normal"})}
	require.NoError(t, store.Append(ctx, "t-3", seed, 0))

	// Two writers that both observed version 1.
	a := []event.Envelope{event.NewEnvelope("t-3", taskClosed{TaskID: "t-3"})}
	b := []event.Envelope{event.NewEnvelope("t-3", taskClosed{TaskID: "t-3"})}

	errA := store.Append(ctx, "t-3", a, 1)
	errB := store.Append(ctx, "t-3", b, 1)

	require.NoError(t, errA)
	require.True(t, apperr.IsKind(errB, apperr.KindConcurrencyConflict))

	got, err := store.Events(ctx, "t-3")
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestEventsUpcastsStoredPayloadsOnRead(t *testing.T) {
	store, storage := newTestStore(t)
	ctx := context.Background()

	// A record written before the priority field existed.
	v1 := event.StoredRecord{
		EventID:       "e-old",
		AggregateID:   "t-4",
		StreamVersion: 1,
		EventName:     "task.opened",
		SchemaVersion: 1,
		Payload:       []byte(`{"task_id":"t-4","title":"legacy"}`),
		OccurredOn:    time.Now().UTC(),
		RecordedAt:    time.Now().UTC(),
	}
	require.NoError(t, storage.Append(ctx, "t-4", 0, []event.StoredRecord{v1}, nil))

	got, err := store.Events(ctx, "t-4")
	require.NoError(t, err)
	require.Len(t, got, 1)

	opened, ok := got[0].Payload.(taskOpened)
	require.True(t, ok)
	require.Equal(t, "legacy", opened.Title)
	require.Equal(t, "normal", opened.Priority)
}

func TestEventsFromVersionSkipsHistory(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	envs := []event.Envelope{
		event.NewEnvelope("t-5", taskOpened{TaskID: "t-5", Title: "a", Priority: "low"}),
		event.NewEnvelope("t-5", taskClosed{TaskID: "t-5"}),
		event.NewEnvelope("t-5", taskOpened{TaskID: "t-5", Title: "b", Priority: "low"}),
	}
	require.NoError(t, store.Append(ctx, "t-5", envs, 0))

	got, err := store.EventsFromVersion(ctx, "t-5", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(3), got[0].StreamVersion)
}

func TestFailingHookAbortsAppend(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("outbox insert failed")

	store.RegisterTxHook(func(ctx context.Context, tx *sqlx.Tx, records []event.StoredRecord) error {
		return boom
	})

	envs := []event.Envelope{event.NewEnvelope("t-6", taskOpened{TaskID: "t-6", Title: "a", Priority: "low"})}
	require.ErrorIs(t, store.Append(ctx, "t-6", envs, 0), boom)

	got, err := store.Events(ctx, "t-6")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestHookSeesRecordsWithAssignedVersions(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var seen []event.StoredRecord
	store.RegisterTxHook(func(ctx context.Context, tx *sqlx.Tx, records []event.StoredRecord) error {
		seen = append(seen, records...)
		return nil
	})

	envs := []event.Envelope{
		event.NewEnvelope("t-7", taskOpened{TaskID: "t-7", Title: "a", Priority: "low"}),
		event.NewEnvelope("t-7", taskClosed{TaskID: "t-7"}),
	}
	require.NoError(t, store.Append(ctx, "t-7", envs, 0))

	require.Len(t, seen, 2)
	require.Equal(t, int64(1), seen[0].StreamVersion)
	require.Equal(t, "task.opened", seen[0].EventName)
	require.Equal(t, 2, seen[0].SchemaVersion)
	require.Equal(t, int64(2), seen[1].StreamVersion)
}

func TestAppendNothingIsNoOp(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Append(context.Background(), "t-8", nil, 0))
}
