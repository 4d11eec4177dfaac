package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Topic constants for domain events emitted by the settlement flows.
const (
	TopicOrderCreated  = "order.created"
	TopicOrderPaid     = "order.paid"
	TopicPaymentFailed = "payment.failed"
)

// Event is one occurrence on an order aggregate.
type Event struct {
	Topic      string
	OrderID    string
	Payload    map[string]any
	OccurredAt time.Time
}

// Notifier reacts to emitted events (logging, counters, downstream fanout).
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Bus fans domain events out to the configured notifiers. Emission happens
// after the owning transaction commits; a notifier failure never unwinds
// settled state, it is only logged by the caller.
type Bus struct {
	Now       func() time.Time
	Notifiers []Notifier
}

// Emit dispatches the event to all notifiers, returning the first failure.
func (b *Bus) Emit(ctx context.Context, topic, orderID string, payload map[string]any) error {
	if b == nil {
		return nil
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return errors.New("events: topic is required")
	}
	evt := Event{Topic: topic, OrderID: orderID, Payload: payload, OccurredAt: b.now()}
	var firstErr error
	for _, n := range b.Notifiers {
		if err := n.Notify(ctx, evt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *Bus) now() time.Time {
	if b != nil && b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// LogNotifier writes each event to the structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, evt Event) error {
	n.Logger.Info().
		Str("topic", evt.Topic).
		Str("order_id", evt.OrderID).
		Fields(evt.Payload).
		Msg("domain event")
	return nil
}
