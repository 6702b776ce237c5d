// Package registry manages component registration and metadata.
package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/store"
	"github.com/aretw0/forge/pkg/vcs"
	"github.com/google/uuid"
)

// Registry manages the available components.
type Registry struct {
	store  *store.Store
	vcs    *vcs.Engine
	logger *slog.Logger
	hooks  domain.LifecycleHooks
	now    func() time.Time
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithLifecycleHooks registers callbacks invoked after each durable mutation.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Registry) {
		r.hooks = hooks
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates a registry sharing st with the version engine.
func NewRegistry(st *store.Store, engine *vcs.Engine, opts ...Option) *Registry {
	r := &Registry{
		store: st,
		vcs:   engine,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// RegisterRequest describes a new component. Document, when set, becomes
// version 1 on the main branch.
type RegisterRequest struct {
	Slug        string      `validate:"required,slug"`
	Kind        domain.Kind `validate:"required,kind"`
	Name        string      `validate:"max=200"`
	Description string      `validate:"max=2000"`
	Tags        []string    `validate:"max=32,dive,required,max=64"`
	Document    *domain.Document
	Author      string
	Message     string
}

// Register creates a component and its main branch.
//
// If the initial commit fails the component stays registered and is returned
// together with the commit error.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (domain.Component, *domain.Version, error) {
	if err := domain.Validate(req); err != nil {
		return domain.Component{}, nil, err
	}
	if req.Document != nil {
		if err := domain.ValidateDocument(*req.Document); err != nil {
			return domain.Component{}, nil, err
		}
	}

	now := r.now().UTC()
	comp := domain.Component{
		ID:          uuid.NewString(),
		Slug:        req.Slug,
		Kind:        req.Kind,
		Name:        req.Name,
		Description: req.Description,
		Tags:        normalizeTags(req.Tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if comp.Name == "" {
		comp.Name = comp.Slug
	}

	// The branch goes first: it is keyed by the fresh id, so a lost slug race
	// leaves nothing reachable behind.
	if err := r.store.CreateBranch(ctx, domain.Branch{
		ComponentID: comp.ID,
		Name:        domain.DefaultBranch,
		Status:      domain.BranchActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		return domain.Component{}, nil, err
	}
	if err := r.store.CreateComponent(ctx, comp); err != nil {
		return domain.Component{}, nil, err
	}

	r.logger.InfoContext(ctx, "registry.registered", "slug", comp.Slug, "kind", comp.Kind, "id", comp.ID)
	r.hooks.Emit(ctx, &domain.MutationEvent{
		Timestamp: now,
		Type:      domain.EventComponentRegistered,
		Actor:     req.Author,
		Component: comp,
	})

	if req.Document == nil {
		return comp, nil, nil
	}
	message := req.Message
	if message == "" {
		message = "initial version"
	}
	empty := ""
	v, err := r.vcs.Commit(ctx, vcs.CommitRequest{
		ComponentID:    comp.ID,
		Branch:         domain.DefaultBranch,
		Document:       *req.Document,
		Message:        message,
		Author:         req.Author,
		ExpectedParent: &empty,
	})
	if err != nil {
		return comp, nil, fmt.Errorf("component %q registered but initial commit failed: %w", comp.Slug, err)
	}
	return comp, &v, nil
}

// Get returns a component by slug, including archived ones.
func (r *Registry) Get(ctx context.Context, slug string) (domain.Component, error) {
	return r.store.ComponentBySlug(ctx, slug)
}

// Lookup returns a live component; archived components are not found.
func (r *Registry) Lookup(ctx context.Context, slug string) (domain.Component, error) {
	comp, err := r.store.ComponentBySlug(ctx, slug)
	if err != nil {
		return domain.Component{}, err
	}
	if comp.Archived {
		return domain.Component{}, fmt.Errorf("%w: %q is archived", domain.ErrComponentNotFound, slug)
	}
	return comp, nil
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Kind            domain.Kind
	Tag             string
	Search          string
	IncludeArchived bool
}

func (f Filter) match(c domain.Component) bool {
	if c.Archived && !f.IncludeArchived {
		return false
	}
	if f.Kind != "" && c.Kind != f.Kind {
		return false
	}
	if f.Tag != "" && !c.HasTag(strings.ToLower(f.Tag)) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		hay := strings.ToLower(c.Slug + "\n" + c.Name + "\n" + c.Description)
		if !strings.Contains(hay, q) {
			return false
		}
	}
	return true
}

// List returns matching components ordered by slug.
func (r *Registry) List(ctx context.Context, f Filter) ([]domain.Component, error) {
	all, err := r.store.ListComponents(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Component, 0, len(all))
	for _, c := range all {
		if f.match(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// UpdateRequest changes component metadata. Nil fields are left alone.
// The slug and kind are immutable.
type UpdateRequest struct {
	Name        *string  `validate:"omitempty,max=200"`
	Description *string  `validate:"omitempty,max=2000"`
	Tags        []string `validate:"omitempty,max=32,dive,required,max=64"`
	Actor       string
}

// Update applies req to a live component.
func (r *Registry) Update(ctx context.Context, slug string, req UpdateRequest) (domain.Component, error) {
	if err := domain.Validate(req); err != nil {
		return domain.Component{}, err
	}
	comp, err := r.store.UpdateComponent(ctx, slug, func(c *domain.Component) error {
		if c.Archived {
			return &domain.ValidationError{Field: "slug", Reason: fmt.Sprintf("component %q is archived", slug)}
		}
		if req.Name != nil {
			c.Name = *req.Name
		}
		if req.Description != nil {
			c.Description = *req.Description
		}
		if req.Tags != nil {
			c.Tags = normalizeTags(req.Tags)
		}
		c.UpdatedAt = r.now().UTC()
		return nil
	})
	if err != nil {
		return domain.Component{}, err
	}

	r.logger.InfoContext(ctx, "registry.updated", "slug", slug)
	r.hooks.Emit(ctx, &domain.MutationEvent{
		Timestamp: comp.UpdatedAt,
		Type:      domain.EventComponentUpdated,
		Actor:     req.Actor,
		Component: comp,
	})
	return comp, nil
}

// Archive soft-deletes a component. Its versions remain addressable.
// Archiving twice is a no-op.
func (r *Registry) Archive(ctx context.Context, slug, actor string) (domain.Component, error) {
	changed := false
	comp, err := r.store.UpdateComponent(ctx, slug, func(c *domain.Component) error {
		changed = !c.Archived
		if changed {
			c.Archived = true
			c.UpdatedAt = r.now().UTC()
		}
		return nil
	})
	if err != nil || !changed {
		return comp, err
	}

	r.logger.InfoContext(ctx, "registry.archived", "slug", slug)
	r.hooks.Emit(ctx, &domain.MutationEvent{
		Timestamp: comp.UpdatedAt,
		Type:      domain.EventComponentArchived,
		Actor:     actor,
		Component: comp,
	})
	return comp, nil
}

func normalizeTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
