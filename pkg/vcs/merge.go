package vcs

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/forge/pkg/differ"
	"github.com/aretw0/forge/pkg/domain"
)

// MergeRequest folds Source into Target.
type MergeRequest struct {
	ComponentID string
	Source      string
	Target      string
	Strategy    domain.MergeStrategy
	Author      string
}

// MergeResult reports what a merge did. Version is nil when the target was
// left unchanged. Changes is the diff from the target head to the source head.
type MergeResult struct {
	Version *domain.Version
	Changes domain.DocumentDiff
	Merged  bool
}

// MergeBranch merges the source branch into the target.
//
// When the heads are identical, or with the ours strategy, the source is only
// marked merged. theirs commits the source document onto the target.
// section_merge takes each key from whichever side changed it since the
// common base and fails with a *domain.MergeConflictError when both did.
// manual always fails with the full diff. A failed merge leaves the target
// untouched.
func (e *Engine) MergeBranch(ctx context.Context, req MergeRequest) (res MergeResult, err error) {
	defer func() { e.metrics.MergeObserved(req.Strategy, err) }()

	if !req.Strategy.Valid() {
		return MergeResult{}, &domain.ValidationError{Field: "strategy", Reason: fmt.Sprintf("unknown merge strategy %q", req.Strategy)}
	}
	if req.Target == "" {
		req.Target = domain.DefaultBranch
	}
	if req.Source == req.Target {
		return MergeResult{}, &domain.ValidationError{Field: "source", Reason: "cannot merge a branch into itself"}
	}

	comp, err := e.component(ctx, req.ComponentID)
	if err != nil {
		return MergeResult{}, err
	}
	src, err := e.store.LoadBranch(ctx, comp.ID, req.Source)
	if err != nil {
		return MergeResult{}, err
	}
	tgt, err := e.store.LoadBranch(ctx, comp.ID, req.Target)
	if err != nil {
		return MergeResult{}, err
	}
	for _, b := range []domain.Branch{src.Branch, tgt.Branch} {
		if !b.IsActive() {
			return MergeResult{}, &domain.ValidationError{Field: "branch", Reason: fmt.Sprintf("branch %q is %s", b.Name, b.Status)}
		}
	}

	theirs, err := e.headDocument(ctx, src.Branch)
	if err != nil {
		return MergeResult{}, err
	}
	ours, err := e.headDocument(ctx, tgt.Branch)
	if err != nil {
		return MergeResult{}, err
	}

	res.Changes = differ.Diff(ours, theirs)
	merged := ours

	if !res.Changes.IsEmpty() {
		switch req.Strategy {
		case domain.MergeOurs:
		case domain.MergeTheirs:
			merged = theirs
		case domain.MergeSectionMerge:
			base, err := e.mergeBase(ctx, src.Branch, tgt.Branch)
			if err != nil {
				return MergeResult{}, err
			}
			var conflicts []domain.Conflict
			merged, conflicts = differ.Merge3(base, ours, theirs)
			if len(conflicts) > 0 {
				e.logger.InfoContext(ctx, "vcs.merge_conflict", "slug", comp.Slug, "source", src.Name, "target", tgt.Name, "conflicts", len(conflicts))
				return res, &domain.MergeConflictError{Strategy: req.Strategy, Conflicts: conflicts, Changes: res.Changes}
			}
		case domain.MergeManual:
			return res, &domain.MergeConflictError{Strategy: req.Strategy, Changes: res.Changes}
		}
	}

	// Claim the source before touching the target. A merged branch rejects
	// commits, so the source cannot move while the target is written.
	b, err := e.store.UpdateBranch(ctx, comp.ID, src.Name, func(b *domain.Branch) error {
		if b.HeadVersionID != src.HeadVersionID {
			return fmt.Errorf("%w: source branch %q advanced during merge", domain.ErrStaleParent, b.Name)
		}
		if !b.IsActive() {
			return &domain.ValidationError{Field: "branch", Reason: fmt.Sprintf("branch %q is %s", b.Name, b.Status)}
		}
		b.Status = domain.BranchMerged
		b.UpdatedAt = e.timestamp()
		return nil
	})
	if err != nil {
		return res, err
	}

	if !merged.Equal(ours) {
		parent := tgt.HeadVersionID
		v, err := e.Commit(ctx, CommitRequest{
			ComponentID:    comp.ID,
			Branch:         tgt.Name,
			Document:       merged,
			Message:        fmt.Sprintf("merge %s into %s (%s)", src.Name, tgt.Name, req.Strategy),
			Author:         req.Author,
			ExpectedParent: &parent,
		})
		if err != nil {
			return res, errors.Join(err, e.reopen(ctx, comp, src.Name))
		}
		res.Version = &v
	}
	res.Merged = true

	details := map[string]any{"strategy": string(req.Strategy), "target": tgt.Name}
	if res.Version != nil {
		details["version_id"] = res.Version.ID
	}
	e.logger.InfoContext(ctx, "vcs.branch_merged",
		"slug", comp.Slug,
		"source", src.Name,
		"target", tgt.Name,
		"strategy", req.Strategy,
		"committed", res.Version != nil,
	)
	e.emit(ctx, domain.EventBranchMerged, req.Author, comp, res.Version, &b, details)
	return res, nil
}

// reopen returns a claimed source branch to active after the target commit
// failed.
func (e *Engine) reopen(ctx context.Context, comp domain.Component, name string) error {
	_, err := e.store.UpdateBranch(ctx, comp.ID, name, func(b *domain.Branch) error {
		if b.Status != domain.BranchMerged {
			return nil
		}
		b.Status = domain.BranchActive
		b.UpdatedAt = e.timestamp()
		return nil
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "vcs.merge_reopen_failed", "slug", comp.Slug, "branch", name, "err", err)
		return fmt.Errorf("failed to reopen source branch %q: %w", name, err)
	}
	return nil
}

// mergeBase is the document both sides diverged from: the source's fork
// point, else the target's, else nothing.
func (e *Engine) mergeBase(ctx context.Context, src, tgt domain.Branch) (domain.Document, error) {
	id := src.BaseVersionID
	if id == "" {
		id = tgt.BaseVersionID
	}
	if id == "" {
		return domain.Document{}, nil
	}
	v, err := e.store.VersionByID(ctx, id)
	if err != nil {
		return domain.Document{}, fmt.Errorf("failed to load merge base %s: %w", id, err)
	}
	return v.Document, nil
}
