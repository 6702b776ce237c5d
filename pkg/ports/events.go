package ports

import (
	"context"
	"time"

	"github.com/aretw0/forge/pkg/domain"
)

// Event is a notification about a durable mutation.
type Event struct {
	ID            string
	Type          domain.EventType
	Slug          string
	CorrelationID string
	Timestamp     time.Time
	Data          any
}

// EventPublisher delivers events to interested parties.
// Publishing happens after the mutation; failures never undo it.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

type correlationKey struct{}

// WithCorrelationID tags ctx so that events published while serving it share id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id set by WithCorrelationID, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
