package event

import (
	"fmt"
	"sync"

	"github.com/outboxlab/eventgate/internal/apperr"
)

// UpcastFunc transforms a serialized payload from one schema version to the
// next. It must be a pure function of the payload.
type UpcastFunc func(payload []byte) ([]byte, error)

// UpcasterChain holds single-step payload transforms keyed by
// (eventName, fromVersion). Upcast applies them repeatedly until the payload
// reaches the requested target version, so a V1 event flows V1→V2→V3 without
// any transform knowing about more than one step.
//
// A shipped upcaster is never edited; changing the shape again means adding a
// new upcaster for the next version.
type UpcasterChain struct {
	mu    sync.RWMutex
	steps map[upcastKey]UpcastFunc
}

type upcastKey struct {
	eventName   string
	fromVersion int
}

func NewUpcasterChain() *UpcasterChain {
	return &UpcasterChain{steps: make(map[upcastKey]UpcastFunc)}
}

// Register adds the transform producing the fromVersion+1 shape of eventName.
// Duplicate registration is a wiring bug.
func (c *UpcasterChain) Register(eventName string, fromVersion int, fn UpcastFunc) error {
	if fn == nil {
		return fmt.Errorf("upcaster chain: nil transform for %s@%d", eventName, fromVersion)
	}
	if fromVersion < 1 {
		return fmt.Errorf("upcaster chain: from version must be >= 1, got %s@%d", eventName, fromVersion)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := upcastKey{eventName: eventName, fromVersion: fromVersion}
	if _, ok := c.steps[key]; ok {
		return fmt.Errorf("upcaster chain: duplicate transform for %s@%d", eventName, fromVersion)
	}
	c.steps[key] = fn
	return nil
}

// Upcast evolves payload from fromVersion to targetVersion. A payload already
// at the target is returned unchanged. A stored version with no transform
// path to the target is a configuration error and fails loudly rather than
// passing stale data through.
func (c *UpcasterChain) Upcast(eventName string, fromVersion, targetVersion int, payload []byte) ([]byte, error) {
	if fromVersion == targetVersion {
		return payload, nil
	}
	if fromVersion > targetVersion {
		return nil, apperr.New(apperr.KindUpcastConfiguration,
			"stored schema version is newer than the registered shape",
			"event_name", eventName, "stored_version", fromVersion, "latest_version", targetVersion)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	current := fromVersion
	for current < targetVersion {
		fn, ok := c.steps[upcastKey{eventName: eventName, fromVersion: current}]
		if !ok {
			return nil, apperr.New(apperr.KindUpcastConfiguration,
				"no upcaster registered for stored schema version",
				"event_name", eventName, "stored_version", fromVersion,
				"stuck_at", current, "latest_version", targetVersion)
		}
		next, err := fn(payload)
		if err != nil {
			return nil, fmt.Errorf("upcast %s@%d: %w", eventName, current, err)
		}
		payload = next
		current++
	}
	return payload, nil
}
