// Package resolver decides which version of a component counts as current.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/ports"
	"github.com/aretw0/forge/pkg/vcs"
	"golang.org/x/sync/errgroup"
)

// rateLookups caps concurrent calls to the usage source.
const rateLookups = 8

// Components finds live components by slug.
type Components interface {
	Lookup(ctx context.Context, slug string) (domain.Component, error)
}

// Candidate is a version with its reported success rate.
type Candidate struct {
	Version domain.Version
	Rate    float64
}

// TieBreaker reports whether a should win over b when their rates are equal.
type TieBreaker func(a, b Candidate) bool

// MostRecent prefers the later CreatedAt, then the higher sequence.
func MostRecent(a, b Candidate) bool {
	if !a.Version.CreatedAt.Equal(b.Version.CreatedAt) {
		return a.Version.CreatedAt.After(b.Version.CreatedAt)
	}
	return a.Version.Sequence > b.Version.Sequence
}

// Resolver implements the latest, pinned and best_performing strategies.
type Resolver struct {
	components Components
	vcs        *vcs.Engine
	usage      ports.UsageSource
	tie        TieBreaker
	logger     *slog.Logger
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithUsageSource enables best_performing resolution.
func WithUsageSource(src ports.UsageSource) Option {
	return func(r *Resolver) {
		r.usage = src
	}
}

// WithTieBreaker replaces MostRecent as the tie policy.
func WithTieBreaker(tie TieBreaker) Option {
	return func(r *Resolver) {
		r.tie = tie
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a resolver.
func New(components Components, engine *vcs.Engine, opts ...Option) *Resolver {
	r := &Resolver{
		components: components,
		vcs:        engine,
		tie:        MostRecent,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Resolve picks a version of slug on branch. pin is only used by the pinned
// strategy. An empty strategy means latest.
func (r *Resolver) Resolve(ctx context.Context, slug, branch string, strategy domain.ResolveStrategy, pin int64) (domain.Component, domain.Version, error) {
	if branch == "" {
		branch = domain.DefaultBranch
	}
	if strategy == "" {
		strategy = domain.ResolveLatest
	}
	if !strategy.Valid() {
		return domain.Component{}, domain.Version{}, &domain.ValidationError{Field: "strategy", Reason: fmt.Sprintf("unknown resolution strategy %q", strategy)}
	}

	comp, err := r.components.Lookup(ctx, slug)
	if err != nil {
		return domain.Component{}, domain.Version{}, err
	}

	var v domain.Version
	switch strategy {
	case domain.ResolveLatest:
		v, err = r.vcs.Head(ctx, comp.ID, branch)
		if errors.Is(err, domain.ErrBranchNotFound) {
			err = fmt.Errorf("%w: %q has no branch %q: %w", domain.ErrComponentNotFound, slug, branch, err)
		}
	case domain.ResolvePinned:
		if pin < 1 {
			return comp, domain.Version{}, &domain.ValidationError{Field: "pin", Reason: fmt.Sprintf("pinned resolution of %q needs a sequence", slug)}
		}
		v, err = r.vcs.GetVersion(ctx, comp.ID, branch, pin)
	case domain.ResolveBestPerforming:
		v, err = r.bestPerforming(ctx, comp, branch)
	}
	if err != nil {
		return comp, domain.Version{}, err
	}
	return comp, v, nil
}

// ResolveVersion returns the version with id versionID, which must belong to
// slug. The version may live on any branch.
func (r *Resolver) ResolveVersion(ctx context.Context, slug, versionID string) (domain.Component, domain.Version, error) {
	comp, err := r.components.Lookup(ctx, slug)
	if err != nil {
		return domain.Component{}, domain.Version{}, err
	}
	v, err := r.vcs.GetVersionByID(ctx, versionID)
	if err != nil {
		return comp, domain.Version{}, err
	}
	if v.ComponentID != comp.ID {
		return comp, domain.Version{}, fmt.Errorf("%w: %s does not belong to %q", domain.ErrVersionNotFound, versionID, slug)
	}
	return comp, v, nil
}

func (r *Resolver) bestPerforming(ctx context.Context, comp domain.Component, branch string) (domain.Version, error) {
	if r.usage == nil {
		return domain.Version{}, fmt.Errorf("%w: no usage source configured", domain.ErrInsufficientData)
	}

	var versions []domain.Version
	for v, err := range r.vcs.Walk(ctx, comp.ID, branch, vcs.MaxHistoryLimit) {
		if err != nil {
			return domain.Version{}, err
		}
		versions = append(versions, v)
	}

	rates := make([]float64, len(versions))
	known := make([]bool, len(versions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rateLookups)
	for i, v := range versions {
		g.Go(func() error {
			rate, ok, err := r.usage.SuccessRate(gctx, comp.ID, v.ID)
			if err != nil {
				return domain.Unavailable(err)
			}
			rates[i], known[i] = rate, ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Version{}, err
	}

	var (
		best  Candidate
		found bool
	)
	for i, v := range versions {
		if !known[i] {
			continue
		}
		c := Candidate{Version: v, Rate: rates[i]}
		if !found || c.Rate > best.Rate || (c.Rate == best.Rate && r.tie(c, best)) {
			best, found = c, true
		}
	}
	if !found {
		return domain.Version{}, fmt.Errorf("%w: no usage signal for %q on branch %q", domain.ErrInsufficientData, comp.Slug, branch)
	}

	r.logger.DebugContext(ctx, "resolver.best_performing",
		"slug", comp.Slug,
		"branch", branch,
		"sequence", best.Version.Sequence,
		"rate", best.Rate,
		"candidates", len(versions),
	)
	return best.Version, nil
}
