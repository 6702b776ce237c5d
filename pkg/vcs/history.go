package vcs

import (
	"context"
	"fmt"
	"iter"

	"github.com/aretw0/forge/pkg/differ"
	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/store"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// HistoryOptions bounds one page of history.
// BeforeSequence is exclusive; zero starts at the head.
type HistoryOptions struct {
	Limit          int
	BeforeSequence int64
}

// HistoryPage is one page of versions, highest sequence first.
// NextBefore is the token for the following page, or zero at the end.
type HistoryPage struct {
	Versions   []domain.Version
	NextBefore int64
}

// History lists versions on a branch newest first. Only versions up to the
// branch head are visible, so an in-flight commit never shows up early.
func (e *Engine) History(ctx context.Context, componentID, branch string, opts HistoryOptions) (HistoryPage, error) {
	snap, err := e.branch(ctx, componentID, branch)
	if err != nil {
		return HistoryPage{}, err
	}

	limit := opts.Limit
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	before := snap.HeadSequence + 1
	if opts.BeforeSequence > 0 && opts.BeforeSequence < before {
		before = opts.BeforeSequence
	}
	if before <= 1 {
		return HistoryPage{Versions: []domain.Version{}}, nil
	}

	versions, err := e.store.Versions(ctx, snap.ComponentID, snap.Name, before, limit)
	if err != nil {
		return HistoryPage{}, err
	}

	page := HistoryPage{Versions: versions}
	if len(versions) == limit {
		if last := versions[len(versions)-1].Sequence; last > 1 {
			page.NextBefore = last
		}
	}
	return page, nil
}

// Walk iterates over the whole history of a branch, newest first, fetching
// pageSize versions at a time. Iteration stops at the first error.
func (e *Engine) Walk(ctx context.Context, componentID, branch string, pageSize int) iter.Seq2[domain.Version, error] {
	return func(yield func(domain.Version, error) bool) {
		opts := HistoryOptions{Limit: pageSize}
		for {
			page, err := e.History(ctx, componentID, branch, opts)
			if err != nil {
				yield(domain.Version{}, err)
				return
			}
			for _, v := range page.Versions {
				if !yield(v, nil) {
					return
				}
			}
			if page.NextBefore == 0 {
				return
			}
			opts.BeforeSequence = page.NextBefore
		}
	}
}

// GetVersion returns the version at seq on a branch.
func (e *Engine) GetVersion(ctx context.Context, componentID, branch string, seq int64) (domain.Version, error) {
	snap, err := e.branch(ctx, componentID, branch)
	if err != nil {
		return domain.Version{}, err
	}
	if seq < 1 || seq > snap.HeadSequence {
		return domain.Version{}, fmt.Errorf("%w: %s@%d", domain.ErrVersionNotFound, snap.Name, seq)
	}
	return e.store.Version(ctx, snap.ComponentID, snap.Name, seq)
}

// GetVersionByID returns a version by its opaque id.
func (e *Engine) GetVersionByID(ctx context.Context, id string) (domain.Version, error) {
	v, err := e.store.VersionByID(ctx, id)
	if err != nil {
		return domain.Version{}, err
	}
	snap, err := e.store.LoadBranch(ctx, v.ComponentID, v.Branch)
	if err != nil {
		return domain.Version{}, err
	}
	if v.Sequence > snap.HeadSequence {
		return domain.Version{}, fmt.Errorf("%w: id %s", domain.ErrVersionNotFound, id)
	}
	return v, nil
}

// Head returns the version a branch points at. A branch that has not been
// committed to yet points at its base version on the source branch.
func (e *Engine) Head(ctx context.Context, componentID, branch string) (domain.Version, error) {
	snap, err := e.branch(ctx, componentID, branch)
	if err != nil {
		return domain.Version{}, err
	}
	return e.head(ctx, snap.Branch)
}

func (e *Engine) head(ctx context.Context, b domain.Branch) (domain.Version, error) {
	switch {
	case b.HeadSequence > 0:
		return e.store.Version(ctx, b.ComponentID, b.Name, b.HeadSequence)
	case b.HeadVersionID != "":
		return e.store.VersionByID(ctx, b.HeadVersionID)
	default:
		return domain.Version{}, fmt.Errorf("%w: branch %q has no versions", domain.ErrVersionNotFound, b.Name)
	}
}

// headDocument is the document at the branch head, or an empty document for
// a branch with no versions at all.
func (e *Engine) headDocument(ctx context.Context, b domain.Branch) (domain.Document, error) {
	if b.HeadVersionID == "" {
		return domain.Document{}, nil
	}
	v, err := e.head(ctx, b)
	if err != nil {
		return domain.Document{}, err
	}
	return v.Document, nil
}

// Diff compares two versions of the same branch.
func (e *Engine) Diff(ctx context.Context, componentID, branch string, fromSeq, toSeq int64) (domain.DocumentDiff, error) {
	from, err := e.GetVersion(ctx, componentID, branch, fromSeq)
	if err != nil {
		return domain.DocumentDiff{}, err
	}
	to, err := e.GetVersion(ctx, componentID, branch, toSeq)
	if err != nil {
		return domain.DocumentDiff{}, err
	}
	return differ.Diff(from.Document, to.Document), nil
}

// branch checks that the component exists, archived or not, and loads the branch.
func (e *Engine) branch(ctx context.Context, componentID, name string) (store.BranchSnapshot, error) {
	if name == "" {
		name = domain.DefaultBranch
	}
	if _, err := e.store.ComponentByID(ctx, componentID); err != nil {
		return store.BranchSnapshot{}, err
	}
	return e.store.LoadBranch(ctx, componentID, name)
}
