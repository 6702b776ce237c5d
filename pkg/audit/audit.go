// Package audit keeps an append-only trail of forge mutations.
//
// Entries live in the same key-value store as the versions, under the
// "audit/" prefix, keyed by a time-ordered UUIDv7 so a reverse scan yields
// newest first.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/observability"
	"github.com/aretw0/forge/pkg/ports"
	"github.com/google/uuid"
)

const prefix = "audit/"

// DefaultQueryLimit bounds Query when no limit is given.
const DefaultQueryLimit = 100

// Entry is one audited mutation.
type Entry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Actor      string         `json:"actor,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter narrows Query. Zero values match everything.
type Filter struct {
	Action   string
	EntityID string
	Actor    string
	Slug     string
	Limit    int
}

func (f Filter) match(e Entry) bool {
	return (f.Action == "" || e.Action == f.Action) &&
		(f.EntityID == "" || e.EntityID == f.EntityID) &&
		(f.Actor == "" || e.Actor == f.Actor) &&
		(f.Slug == "" || e.Details["slug"] == f.Slug)
}

// Trail records and queries audit entries.
type Trail struct {
	kv      ports.KVStore
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Option configures the Trail.
type Option func(*Trail)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trail) {
		t.logger = logger
	}
}

// WithMetrics counts failed audit writes.
func WithMetrics(m *observability.Metrics) Option {
	return func(t *Trail) {
		t.metrics = m
	}
}

// New creates a trail over kv.
func New(kv ports.KVStore, opts ...Option) *Trail {
	t := &Trail{kv: kv, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return t
}

// Record appends e, filling ID and CreatedAt when empty.
func (t *Trail) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return Entry{}, fmt.Errorf("failed to generate audit id: %w", err)
		}
		e.ID = id.String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode audit entry: %w", err)
	}
	ok, err := t.kv.InsertIfAbsent(ctx, prefix+e.ID, data)
	if err != nil {
		return Entry{}, domain.Unavailable(err)
	}
	if !ok {
		return Entry{}, fmt.Errorf("audit entry %s: %w", e.ID, domain.ErrConflict)
	}
	return e, nil
}

// Query returns matching entries, newest first.
func (t *Trail) Query(ctx context.Context, f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	opts := ports.ScanOptions{Reverse: true}
	unfiltered := f.Action == "" && f.EntityID == "" && f.Actor == ""
	if unfiltered {
		opts.Limit = limit
	}
	kvs, err := t.kv.Scan(ctx, prefix, opts)
	if err != nil {
		return nil, domain.Unavailable(err)
	}

	out := make([]Entry, 0, min(limit, len(kvs)))
	for _, kv := range kvs {
		var e Entry
		if err := json.Unmarshal(kv.Value, &e); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", kv.Key, err)
		}
		if !f.match(e) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Hooks returns lifecycle hooks that audit every mutation. A failed write is
// logged and counted; the mutation itself already happened and stands.
func (t *Trail) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnMutation: func(ctx context.Context, ev *domain.MutationEvent) {
			if _, err := t.Record(ctx, FromEvent(ev)); err != nil {
				t.logger.ErrorContext(ctx, "audit write failed", "action", ev.Type, "slug", ev.Component.Slug, "err", err)
				t.metrics.HookFailed("audit")
			}
		},
	}
}

// FromEvent maps a mutation to the entry describing it.
func FromEvent(ev *domain.MutationEvent) Entry {
	e := Entry{
		Action:    string(ev.Type),
		Actor:     ev.Actor,
		CreatedAt: ev.Timestamp,
		Details:   map[string]any{"slug": ev.Component.Slug},
	}
	for k, v := range ev.Details {
		e.Details[k] = v
	}

	switch {
	case strings.HasPrefix(string(ev.Type), "version.") && ev.Version != nil:
		e.EntityType = "version"
		e.EntityID = ev.Version.ID
		e.Details["branch"] = ev.Version.Branch
		e.Details["sequence"] = ev.Version.Sequence
	case strings.HasPrefix(string(ev.Type), "branch.") && ev.Branch != nil:
		e.EntityType = "branch"
		e.EntityID = ev.Component.ID + "/" + ev.Branch.Name
		e.Details["status"] = string(ev.Branch.Status)
	default:
		e.EntityType = "component"
		e.EntityID = ev.Component.ID
	}
	return e
}
