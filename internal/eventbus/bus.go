// Package eventbus fans newly persisted events out to in-process subscribers.
package eventbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/outboxlab/eventgate/internal/event"
	"github.com/outboxlab/eventgate/internal/logger"
	"go.uber.org/zap"
)

// Subscriber reacts to a persisted domain event after the owning transaction
// has committed. Subscribers must tolerate at-least-once delivery.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, env event.Envelope) error
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc struct {
	SubscriberName string
	Fn             func(ctx context.Context, env event.Envelope) error
}

func (s SubscriberFunc) Name() string { return s.SubscriberName }

func (s SubscriberFunc) Handle(ctx context.Context, env event.Envelope) error {
	return s.Fn(ctx, env)
}

// Bus dispatches events sequentially, in event order, to every subscriber.
// Subscriber ordering for one aggregate therefore matches stream order.
type Bus struct {
	subs []Subscriber
}

func New() *Bus {
	return &Bus{}
}

// Subscribe registers a post-commit subscriber. Not safe to call after
// dispatching begins; wiring happens at startup.
func (b *Bus) Subscribe(subs ...Subscriber) {
	b.subs = append(b.subs, subs...)
}

// Dispatch delivers one event to all subscribers in registration order. A
// failing subscriber does not stop delivery to the rest; all failures are
// joined into the returned error so nothing is silently swallowed.
func (b *Bus) Dispatch(ctx context.Context, env event.Envelope) error {
	var errs []error
	for _, sub := range b.subs {
		if err := sub.Handle(ctx, env); err != nil {
			logger.Log.Error("event dispatch failed",
				zap.String("subscriber", sub.Name()),
				zap.String("event_name", env.Payload.EventName()),
				zap.String("aggregate_id", env.AggregateID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("subscriber %s: %w", sub.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// DispatchAll delivers events one by one in the given order.
func (b *Bus) DispatchAll(ctx context.Context, envs []event.Envelope) error {
	var errs []error
	for _, env := range envs {
		if err := b.Dispatch(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
