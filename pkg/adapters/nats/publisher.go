// Package nats publishes forge events on a NATS subject hierarchy.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/forge/pkg/ports"
	backend "github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the root of every subject.
const DefaultSubjectPrefix = "forge.component"

// Source identifies forge in envelopes.
const Source = "forge"

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// Envelope is the wire format of a published event.
type Envelope struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Data          any       `json:"data,omitempty"`
}

// Publisher implements ports.EventPublisher. It connects on first use.
type Publisher struct {
	url    string
	prefix string
	dial   func(url string) (Conn, error)

	mu   sync.Mutex
	conn Conn
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithSubjectPrefix replaces DefaultSubjectPrefix.
func WithSubjectPrefix(prefix string) Option {
	return func(p *Publisher) {
		p.prefix = strings.TrimSuffix(prefix, ".")
	}
}

// New creates a publisher for the server at url.
func New(url string, opts ...Option) *Publisher {
	p := &Publisher{
		url:    url,
		prefix: DefaultSubjectPrefix,
		dial: func(url string) (Conn, error) {
			return backend.Connect(url,
				backend.Name("forge"),
				backend.MaxReconnects(5),
				backend.ReconnectWait(time.Second),
			)
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromConn creates a publisher over an existing connection.
func NewFromConn(conn Conn, opts ...Option) *Publisher {
	p := New("", opts...)
	p.conn = conn
	return p
}

func (p *Publisher) connection() (Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return p.conn, nil
	}
	conn, err := p.dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", p.url, err)
	}
	p.conn = conn
	return conn, nil
}

// Subject returns the subject an event for slug of type t is published on.
func (p *Publisher) Subject(slug, eventType string) string {
	return p.prefix + "." + slug + "." + eventType
}

// Publish sends event as a JSON envelope.
func (p *Publisher) Publish(ctx context.Context, event ports.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Envelope{
		ID:            event.ID,
		Type:          string(event.Type),
		Source:        Source,
		Timestamp:     event.Timestamp.UTC(),
		CorrelationID: event.CorrelationID,
		Data:          event.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}
	conn, err := p.connection()
	if err != nil {
		return err
	}
	if err := conn.Publish(p.Subject(event.Slug, string(event.Type)), data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}

// Close closes the connection if one was opened.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	return nil
}
