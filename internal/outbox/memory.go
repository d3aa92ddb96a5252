package outbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// MemoryStore is the in-process outbox used by tests and local development.
// It enforces the same idempotence key and FIFO semantics as MySQLStore.
// Claiming holds the store lock for the whole batch, which trivially gives
// the at-most-one-sender guarantee.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry // by ID
	byKey   map[string]string // idempotence key -> ID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
		byKey:   make(map[string]string),
	}
}

func idemKey(e Entry) string {
	return e.EventID + "\x00" + e.RecipientEmail + "\x00" + e.EmailType
}

func (s *MemoryStore) Save(ctx context.Context, tx *sqlx.Tx, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byKey[idemKey(e)]; ok {
		return nil
	}

	e.Status = StatusPending
	e.Attempts = 0
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	cp := e
	s.entries[e.ID] = &cp
	s.byKey[idemKey(e)] = e.ID
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[e.ID]
	if !ok {
		return nil
	}
	cur.Status = e.Status
	cur.Attempts = e.Attempts
	cur.LastError = e.LastError
	cur.SentAt = e.SentAt
	return nil
}

func (s *MemoryStore) FindPending(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked(limit), nil
}

func (s *MemoryStore) pendingLocked(limit int) []Entry {
	var out []Entry
	for _, e := range s.entries {
		if e.Status == StatusPending {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryStore) ClaimPending(ctx context.Context, limit int, handle HandleFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.pendingLocked(limit) {
		done := handle(ctx, e)
		cur := s.entries[e.ID]
		cur.Status = done.Status
		cur.Attempts = done.Attempts
		cur.LastError = done.LastError
		cur.SentAt = done.SentAt
	}
	return nil
}

func (s *MemoryStore) FindByEventID(ctx context.Context, eventID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for _, e := range s.entries {
		if e.EventID == eventID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[Status]int64)
	for _, e := range s.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) OldestPending(ctx context.Context) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.pendingLocked(1)
	if len(pending) == 0 {
		return nil, nil
	}
	return &pending[0], nil
}
