// Package events delivers committed sale transitions to subscribers: the
// journal, in-process websocket subscribers and NATS JetStream.
package events

import (
	"context"
	"errors"
	"fmt"

	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/observability"
)

// Sink receives events after their transition has committed.
type Sink interface {
	Publish(ctx context.Context, e *domain.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e *domain.Event) error

// Publish implements Sink.
func (f SinkFunc) Publish(ctx context.Context, e *domain.Event) error {
	return f(ctx, e)
}

// Nop discards events.
type Nop struct{}

// Publish implements Sink.
func (Nop) Publish(context.Context, *domain.Event) error { return nil }

// Named attaches a metrics label to a sink.
type Named struct {
	Name string
	Sink Sink
}

// Fanout delivers every event to all sinks. A failing sink does not stop
// delivery to the others; all failures are joined.
type Fanout []Named

// Publish implements Sink.
func (f Fanout) Publish(ctx context.Context, e *domain.Event) error {
	var errs []error
	for _, n := range f {
		err := n.Sink.Publish(ctx, e)
		observability.RecordEventPublished(n.Name, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name, err))
		}
	}
	return errors.Join(errs...)
}
