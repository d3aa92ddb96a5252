// Package user holds the event-sourced User aggregate and its events.
package user

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/outboxlab/eventgate/internal/event"
	"github.com/outboxlab/eventgate/internal/eventbus"
	"github.com/outboxlab/eventgate/internal/eventstore"
)

var (
	ErrAlreadyRegistered = errors.New("user already registered")
	ErrNotRegistered     = errors.New("user not registered")
	ErrInvalidEmail      = errors.New("invalid email address")
)

// User is rebuilt from its stream on every command and discarded afterwards;
// it is never cached across commands. All mutation happens in Apply, driven
// by events the command methods produce.
type User struct {
	id      string
	version int64
	pending []event.Envelope

	registered   bool
	email        string
	firstName    string
	lastName     string
	registeredAt time.Time
}

func New(id string) *User {
	return &User{id: id}
}

// NewRepository builds the replay/save repository for users.
func NewRepository(store *eventstore.Store, bus *eventbus.Bus) *eventstore.Repository[*User] {
	return eventstore.NewRepository(store, bus, New)
}

func (u *User) AggregateID() string           { return u.id }
func (u *User) CurrentVersion() int64         { return u.version }
func (u *User) PendingEvents() []event.Envelope { return u.pending }
func (u *User) ClearPending()                 { u.pending = nil }

func (u *User) Registered() bool        { return u.registered }
func (u *User) Email() string           { return u.email }
func (u *User) FirstName() string       { return u.firstName }
func (u *User) LastName() string        { return u.lastName }
func (u *User) RegisteredAt() time.Time { return u.registeredAt }

// Register starts the stream. Registering an already-registered user is a
// domain error, not an event.
func (u *User) Register(email, firstName, lastName string) error {
	if u.registered {
		return ErrAlreadyRegistered
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if !validEmail(email) {
		return ErrInvalidEmail
	}

	return u.raise(Registered{
		UserID:       u.id,
		Email:        email,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		RegisteredAt: time.Now().UTC(),
	})
}

// ChangeEmail is a no-op when the address is unchanged: no event, nothing to
// persist.
func (u *User) ChangeEmail(newEmail string) error {
	if !u.registered {
		return ErrNotRegistered
	}
	newEmail = strings.TrimSpace(strings.ToLower(newEmail))
	if !validEmail(newEmail) {
		return ErrInvalidEmail
	}
	if newEmail == u.email {
		return nil
	}

	return u.raise(EmailChanged{
		UserID:   u.id,
		OldEmail: u.email,
		NewEmail: newEmail,
	})
}

func (u *User) ChangePassword() error {
	if !u.registered {
		return ErrNotRegistered
	}
	return u.raise(PasswordChanged{UserID: u.id, Email: u.email})
}

// Apply folds one event into the in-memory state and advances the version.
// Used both for replay and for freshly raised events.
func (u *User) Apply(env event.Envelope) error {
	switch p := env.Payload.(type) {
	case Registered:
		u.registered = true
		u.email = p.Email
		u.firstName = p.FirstName
		u.lastName = p.LastName
		u.registeredAt = p.RegisteredAt
	case EmailChanged:
		u.email = p.NewEmail
	case PasswordChanged:
		// state unaffected; the event exists for the audit trail and mail policy
	default:
		return fmt.Errorf("user: unexpected event %T at %s@%d", env.Payload, env.AggregateID, env.StreamVersion)
	}

	u.version++
	return nil
}

func (u *User) raise(p event.Payload) error {
	env := event.NewEnvelope(u.id, p)
	if err := u.Apply(env); err != nil {
		return err
	}
	u.pending = append(u.pending, env)
	return nil
}

func validEmail(s string) bool {
	at := strings.Index(s, "@")
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t")
}
