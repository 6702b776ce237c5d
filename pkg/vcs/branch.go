package vcs

import (
	"context"
	"fmt"

	"github.com/aretw0/forge/pkg/domain"
)

// Rollback commits a new version whose document equals the target version's.
// History is never rewritten; the rollback is a forward commit on the
// target's branch.
func (e *Engine) Rollback(ctx context.Context, componentID, targetVersionID, author string) (domain.Version, error) {
	target, err := e.GetVersionByID(ctx, targetVersionID)
	if err != nil {
		return domain.Version{}, err
	}
	if target.ComponentID != componentID {
		return domain.Version{}, fmt.Errorf("%w: id %s does not belong to component %s", domain.ErrVersionNotFound, targetVersionID, componentID)
	}

	return e.commit(ctx, CommitRequest{
		ComponentID: componentID,
		Branch:      target.Branch,
		Document:    target.Document,
		Message:     fmt.Sprintf("rollback to version %d", target.Sequence),
		Author:      author,
	}, domain.EventVersionRolledBack, map[string]any{
		"target_version_id": target.ID,
		"target_sequence":   target.Sequence,
	})
}

// GetBranch returns a branch record.
func (e *Engine) GetBranch(ctx context.Context, componentID, name string) (domain.Branch, error) {
	snap, err := e.branch(ctx, componentID, name)
	if err != nil {
		return domain.Branch{}, err
	}
	return snap.Branch, nil
}

// ListBranches returns every branch of a component, whatever its status.
func (e *Engine) ListBranches(ctx context.Context, componentID string) ([]domain.Branch, error) {
	if _, err := e.store.ComponentByID(ctx, componentID); err != nil {
		return nil, err
	}
	return e.store.ListBranches(ctx, componentID)
}

// CreateBranch forks newName from the current head of fromBranch. Both the
// base and the head of the new branch start at that version; the first
// commit on the new branch gets sequence 1.
func (e *Engine) CreateBranch(ctx context.Context, componentID, newName, fromBranch, author string) (domain.Branch, error) {
	if fromBranch == "" {
		fromBranch = domain.DefaultBranch
	}
	if err := domain.ValidateBranchName(newName); err != nil {
		return domain.Branch{}, err
	}
	comp, err := e.component(ctx, componentID)
	if err != nil {
		return domain.Branch{}, err
	}
	src, err := e.store.LoadBranch(ctx, comp.ID, fromBranch)
	if err != nil {
		return domain.Branch{}, err
	}

	now := e.timestamp()
	b := domain.Branch{
		ComponentID:   comp.ID,
		Name:          newName,
		HeadVersionID: src.HeadVersionID,
		BaseVersionID: src.HeadVersionID,
		Status:        domain.BranchActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.CreateBranch(ctx, b); err != nil {
		return domain.Branch{}, err
	}

	e.logger.InfoContext(ctx, "vcs.branch_created", "slug", comp.Slug, "branch", newName, "from", fromBranch, "base_version_id", b.BaseVersionID)
	e.emit(ctx, domain.EventBranchCreated, author, comp, nil, &b, map[string]any{"from": fromBranch})
	return b, nil
}

// AbandonBranch retires an active branch. Abandoned is terminal; the
// branch and its versions stay readable.
func (e *Engine) AbandonBranch(ctx context.Context, componentID, name, author string) (domain.Branch, error) {
	if name == domain.DefaultBranch {
		return domain.Branch{}, &domain.ValidationError{Field: "branch", Reason: "the default branch cannot be abandoned"}
	}
	comp, err := e.component(ctx, componentID)
	if err != nil {
		return domain.Branch{}, err
	}

	b, err := e.store.UpdateBranch(ctx, comp.ID, name, func(b *domain.Branch) error {
		if !b.IsActive() {
			return &domain.ValidationError{Field: "branch", Reason: fmt.Sprintf("branch %q is %s", b.Name, b.Status)}
		}
		b.Status = domain.BranchAbandoned
		b.UpdatedAt = e.timestamp()
		return nil
	})
	if err != nil {
		return domain.Branch{}, err
	}

	e.logger.InfoContext(ctx, "vcs.branch_abandoned", "slug", comp.Slug, "branch", name)
	e.emit(ctx, domain.EventBranchAbandoned, author, comp, nil, &b, nil)
	return b, nil
}
