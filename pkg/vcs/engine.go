// Package vcs implements version control for component documents.
//
// Every branch is an append-only log of immutable versions plus a movable
// head pointer. Mutations never take in-process locks: a commit claims the
// next sequence slot with an insert-if-absent and then moves the pointer
// with a compare-and-swap, so concurrent writers in different processes
// serialize at the store.
package vcs

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/observability"
	"github.com/aretw0/forge/pkg/scanner"
	"github.com/aretw0/forge/pkg/store"
	"github.com/google/uuid"
)

// Engine is the version control engine.
type Engine struct {
	store   *store.Store
	scanner *scanner.Scanner
	logger  *slog.Logger
	metrics *observability.Metrics
	hooks   domain.LifecycleHooks
	now     func() time.Time
	newID   func() string
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithScanner enables content scanning before commits.
func WithScanner(s *scanner.Scanner) Option {
	return func(e *Engine) {
		e.scanner = s
	}
}

// WithMetrics records commit and merge outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLifecycleHooks registers callbacks invoked after each durable mutation.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine over st.
func New(st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store: st,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e
}

func (e *Engine) timestamp() time.Time {
	return e.now().UTC()
}

func (e *Engine) emit(ctx context.Context, t domain.EventType, actor string, comp domain.Component, v *domain.Version, b *domain.Branch, details map[string]any) {
	e.hooks.Emit(ctx, &domain.MutationEvent{
		Timestamp: e.timestamp(),
		Type:      t,
		Actor:     actor,
		Component: comp,
		Version:   v,
		Branch:    b,
		Details:   details,
	})
}

// component loads a live (non-archived) component by id.
func (e *Engine) component(ctx context.Context, id string) (domain.Component, error) {
	comp, err := e.store.ComponentByID(ctx, id)
	if err != nil {
		return domain.Component{}, err
	}
	if comp.Archived {
		return domain.Component{}, &domain.ValidationError{Field: "component", Reason: "component " + comp.Slug + " is archived"}
	}
	return comp, nil
}
