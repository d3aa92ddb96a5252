// Package account exposes the command surface over the User aggregate:
// load, apply the command, save, retrying the whole command when the
// append loses a concurrency race.
package account

import (
	"context"

	"github.com/outboxlab/eventgate/internal/apperr"
	"github.com/outboxlab/eventgate/internal/domain/user"
	"github.com/outboxlab/eventgate/internal/eventstore"
	"github.com/outboxlab/eventgate/internal/util"
)

// maxConflictRetries bounds the reload-and-retry loop. Conflicts on the same
// user stream are rare; three tries is plenty before surfacing the conflict.
const maxConflictRetries = 3

type Service struct {
	users *eventstore.Repository[*user.User]
}

func New(users *eventstore.Repository[*user.User]) *Service {
	return &Service{users: users}
}

// Register creates a new user stream and returns the generated ID.
func (s *Service) Register(ctx context.Context, email, firstName, lastName string) (string, error) {
	u := user.New(util.NewID())
	if err := u.Register(email, firstName, lastName); err != nil {
		return "", err
	}
	if err := s.users.Save(ctx, u); err != nil {
		return "", err
	}
	return u.AggregateID(), nil
}

// Get loads the user by replaying its stream.
func (s *Service) Get(ctx context.Context, id string) (*user.User, error) {
	return s.users.Get(ctx, id)
}

// ChangeEmail reloads and reapplies the command when a concurrent writer wins
// the append race.
func (s *Service) ChangeEmail(ctx context.Context, id, newEmail string) error {
	return s.retryOnConflict(ctx, id, func(u *user.User) error {
		return u.ChangeEmail(newEmail)
	})
}

func (s *Service) ChangePassword(ctx context.Context, id string) error {
	return s.retryOnConflict(ctx, id, func(u *user.User) error {
		return u.ChangePassword()
	})
}

func (s *Service) retryOnConflict(ctx context.Context, id string, command func(*user.User) error) error {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		u, err := s.users.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := command(u); err != nil {
			return err
		}
		err = s.users.Save(ctx, u)
		if err == nil {
			return nil
		}
		if !apperr.IsKind(err, apperr.KindConcurrencyConflict) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
