package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// Registry maps stable event names to the concrete payload type they
// deserialize into. Registration is explicit and happens at startup; there is
// no scanning or reflection-based discovery beyond the registered prototypes.
type Registry struct {
	mu    sync.RWMutex
	types map[string]registration
}

type registration struct {
	typ    reflect.Type
	latest int
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]registration)}
}

// Register records the prototypes as the authoritative shapes for their event
// names. Registering the same name twice is a wiring bug and returns an error.
func (r *Registry) Register(prototypes ...Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range prototypes {
		name := p.EventName()
		if name == "" {
			return fmt.Errorf("event registry: empty event name for %T", p)
		}
		if _, ok := r.types[name]; ok {
			return fmt.Errorf("event registry: duplicate registration for %q", name)
		}
		if p.SchemaVersion() < 1 {
			return fmt.Errorf("event registry: %q schema version must be >= 1", name)
		}
		t := reflect.TypeOf(p)
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		r.types[name] = registration{typ: t, latest: p.SchemaVersion()}
	}
	return nil
}

// Decode unmarshals a payload at the latest schema version into its Go type.
func (r *Registry) Decode(eventName string, data []byte) (Payload, error) {
	r.mu.RLock()
	reg, ok := r.types[eventName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("event registry: unknown event name %q", eventName)
	}

	v := reflect.New(reg.typ)
	if err := json.Unmarshal(data, v.Interface()); err != nil {
		return nil, fmt.Errorf("event registry: decode %q: %w", eventName, err)
	}
	return v.Elem().Interface().(Payload), nil
}

// LatestVersion returns the registered schema version for an event name.
func (r *Registry) LatestVersion(eventName string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.types[eventName]
	return reg.latest, ok
}
