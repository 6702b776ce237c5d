// Package compose assembles versioned components into a single prompt.
//
// A composition resolves one persona, then skills, then constraints,
// concatenates their sections in that order and substitutes {{name}}
// placeholders. The returned manifest pins every resolved version so the
// same output can be reproduced later with Replay.
package compose

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/observability"
	"golang.org/x/sync/errgroup"
)

// DefaultTokenLimit is the budget used when none is configured.
const DefaultTokenLimit = 8192

// Resolver picks the version of a component to compose.
// ResolveVersion loads an exact version of slug, wherever it lives.
type Resolver interface {
	Resolve(ctx context.Context, slug, branch string, strategy domain.ResolveStrategy, pin int64) (domain.Component, domain.Version, error)
	ResolveVersion(ctx context.Context, slug, versionID string) (domain.Component, domain.Version, error)
}

// Resolution selects versions. Pins force the pinned strategy for the
// listed slugs regardless of Strategy.
type Resolution struct {
	Strategy domain.ResolveStrategy
	Branch   string
	Pins     map[string]int64
}

// Request is a composition request.
type Request struct {
	Persona            string
	Skills             []string
	Constraints        []string
	Variables          map[string]string
	Resolution         Resolution
	EnforceTokenBudget bool
}

// Result is a composed prompt. Document holds the substituted sections in
// output order; Rendered is their contents joined by blank lines.
type Result struct {
	Rendered string
	Document domain.Document
	Manifest domain.Manifest
}

// Engine composes prompts. It never writes.
type Engine struct {
	resolver   Resolver
	logger     *slog.Logger
	metrics    *observability.Metrics
	tokenLimit int
	now        func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics records composition outcomes and latency.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTokenLimit sets the estimated-token budget.
func WithTokenLimit(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.tokenLimit = limit
		}
	}
}

// WithClock overrides time.Now for manifest timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates a composition engine.
func New(resolver Resolver, opts ...Option) *Engine {
	e := &Engine{
		resolver:   resolver,
		tokenLimit: DefaultTokenLimit,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e
}

// slot is one position in the precedence order. entry is set on replay.
type slot struct {
	slug  string
	role  domain.Kind
	entry *domain.ManifestEntry
}

type resolved struct {
	slot
	component domain.Component
	version   domain.Version
}

type resolveFunc func(ctx context.Context, sl slot) (domain.Component, domain.Version, error)

// Compose resolves and assembles a request.
func (e *Engine) Compose(ctx context.Context, req Request) (res Result, err error) {
	start := time.Now()
	defer func() { e.metrics.ComposeObserved(time.Since(start), err) }()

	if strings.TrimSpace(req.Persona) == "" {
		return Result{}, &domain.ValidationError{Field: "persona", Reason: "a persona is required"}
	}
	branch := req.Resolution.Branch
	if branch == "" {
		branch = domain.DefaultBranch
	}

	slots := make([]slot, 0, 1+len(req.Skills)+len(req.Constraints))
	slots = append(slots, slot{slug: req.Persona, role: domain.KindPersona})
	for _, s := range req.Skills {
		slots = append(slots, slot{slug: s, role: domain.KindSkill})
	}
	for _, s := range req.Constraints {
		slots = append(slots, slot{slug: s, role: domain.KindConstraint})
	}

	parts, err := e.resolveAll(ctx, slots, func(ctx context.Context, sl slot) (domain.Component, domain.Version, error) {
		strategy, pin := req.Resolution.Strategy, int64(0)
		if p, ok := req.Resolution.Pins[sl.slug]; ok {
			strategy, pin = domain.ResolvePinned, p
		}
		return e.resolver.Resolve(ctx, sl.slug, branch, strategy, pin)
	})
	if err != nil {
		return Result{}, err
	}
	return e.finish(ctx, parts, branch, req.Variables, req.EnforceTokenBudget)
}

// Replay recomposes a manifest from its recorded versions and variables. The
// rendered output is byte-identical to the original. Entries are loaded by
// version id, so a component that was read through a branch's base version
// replays from that same version. Entries without an id fall back to their
// branch and sequence.
func (e *Engine) Replay(ctx context.Context, m domain.Manifest) (res Result, err error) {
	start := time.Now()
	defer func() { e.metrics.ComposeObserved(time.Since(start), err) }()

	var persona, skills, constraints []slot
	for i := range m.Components {
		entry := &m.Components[i]
		sl := slot{slug: entry.Slug, role: entry.Kind, entry: entry}
		switch entry.Kind {
		case domain.KindPersona:
			persona = append(persona, sl)
		case domain.KindSkill:
			skills = append(skills, sl)
		case domain.KindConstraint:
			constraints = append(constraints, sl)
		default:
			return Result{}, &domain.ValidationError{Field: "components", Reason: fmt.Sprintf("unexpected role %q for %q", entry.Kind, entry.Slug)}
		}
	}
	if len(persona) != 1 {
		return Result{}, &domain.ValidationError{Field: "components", Reason: fmt.Sprintf("manifest needs exactly one persona, has %d", len(persona))}
	}
	slots := append(append(persona, skills...), constraints...)

	parts, err := e.resolveAll(ctx, slots, func(ctx context.Context, sl slot) (domain.Component, domain.Version, error) {
		if sl.entry.VersionID != "" {
			return e.resolver.ResolveVersion(ctx, sl.slug, sl.entry.VersionID)
		}
		return e.resolver.Resolve(ctx, sl.slug, sl.entry.Branch, domain.ResolvePinned, sl.entry.Sequence)
	})
	if err != nil {
		return Result{}, err
	}

	branch := m.Branch
	if branch == "" {
		branch = domain.DefaultBranch
	}
	return e.finish(ctx, parts, branch, m.Variables, false)
}

// resolveAll resolves every slot concurrently and keeps precedence order.
func (e *Engine) resolveAll(ctx context.Context, slots []slot, resolve resolveFunc) ([]resolved, error) {
	parts := make([]resolved, len(slots))
	g, gctx := errgroup.WithContext(ctx)
	for i, sl := range slots {
		g.Go(func() error {
			comp, v, err := resolve(gctx, sl)
			if err != nil {
				return fmt.Errorf("failed to resolve %s %q: %w", sl.role, sl.slug, err)
			}
			parts[i] = resolved{slot: sl, component: comp, version: v}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

func (e *Engine) finish(ctx context.Context, parts []resolved, branch string, vars map[string]string, enforce bool) (Result, error) {
	res, err := e.assemble(parts, vars)
	if err != nil {
		return Result{}, err
	}
	res.Manifest.Branch = branch

	limit := e.tokenLimit
	if res.Manifest.EstimatedTokens > limit {
		if enforce {
			return Result{}, fmt.Errorf("%w: %d estimated tokens, limit %d", domain.ErrTokenBudgetExceeded, res.Manifest.EstimatedTokens, limit)
		}
		res.Manifest.Warnings = append(res.Manifest.Warnings, fmt.Sprintf("estimated %d tokens exceeds the budget of %d", res.Manifest.EstimatedTokens, limit))
	}
	res.Manifest.ComposedAt = e.now().UTC()

	e.logger.InfoContext(ctx, "compose.assembled",
		"persona", parts[0].slug,
		"branch", branch,
		"components", len(parts),
		"tokens", res.Manifest.EstimatedTokens,
		"warnings", len(res.Manifest.Warnings),
	)
	return res, nil
}
