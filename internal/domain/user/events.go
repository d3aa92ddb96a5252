package user

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/outboxlab/eventgate/internal/event"
)

// Stable storage names. These never change, even when the Go types move.
const (
	EventRegistered      = "user.registered"
	EventEmailChanged    = "user.email_changed"
	EventPasswordChanged = "user.password_changed"
)

// Registered is schema v2 of user.registered. v1 carried a single `name`
// field; the v1→v2 upcaster splits it.
type Registered struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	RegisteredAt time.Time `json:"registered_at"`
}

func (Registered) EventName() string  { return EventRegistered }
func (Registered) SchemaVersion() int { return 2 }

type EmailChanged struct {
	UserID   string `json:"user_id"`
	OldEmail string `json:"old_email"`
	NewEmail string `json:"new_email"`
}

func (EmailChanged) EventName() string  { return EventEmailChanged }
func (EmailChanged) SchemaVersion() int { return 1 }

// PasswordChanged intentionally carries no credential material; the email is
// there so the alert can be addressed without a read model.
type PasswordChanged struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func (PasswordChanged) EventName() string  { return EventPasswordChanged }
func (PasswordChanged) SchemaVersion() int { return 1 }

// RegisterTypes wires the user event shapes and their upcasters into the
// given registry and chain. Called once at startup.
func RegisterTypes(reg *event.Registry, chain *event.UpcasterChain) error {
	if err := reg.Register(Registered{}, EmailChanged{}, PasswordChanged{}); err != nil {
		return err
	}
	return chain.Register(EventRegistered, 1, upcastRegisteredV1)
}

// upcastRegisteredV1 rewrites the v1 `name` field into first/last. Shipped
// and frozen; a further shape change gets its own v2 upcaster.
func upcastRegisteredV1(payload []byte) ([]byte, error) {
	var v1 map[string]any
	if err := json.Unmarshal(payload, &v1); err != nil {
		return nil, err
	}

	name, _ := v1["name"].(string)
	first, last := splitName(name)
	delete(v1, "name")
	v1["first_name"] = first
	v1["last_name"] = last

	return json.Marshal(v1)
}

func splitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	parts := strings.SplitN(name, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}
