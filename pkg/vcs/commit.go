package vcs

import (
	"context"
	"fmt"

	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/store"
)

// maxAdvanceAttempts bounds pointer CAS retries after the version slot is won.
const maxAdvanceAttempts = 64

// CommitRequest describes a new version.
// ExpectedParent, when set, must equal the branch head or the commit fails
// with domain.ErrStaleParent. An empty string expects a branch with no head.
type CommitRequest struct {
	ComponentID    string
	Branch         string
	Document       domain.Document
	Message        string
	Author         string
	ExpectedParent *string
}

// Commit appends a version to a branch and advances its head.
//
// The engine never retries a lost race: the caller gets ErrStaleParent and
// decides whether to commit again on top of the new head.
func (e *Engine) Commit(ctx context.Context, req CommitRequest) (domain.Version, error) {
	return e.commit(ctx, req, domain.EventVersionCommitted, nil)
}

func (e *Engine) commit(ctx context.Context, req CommitRequest, event domain.EventType, details map[string]any) (v domain.Version, err error) {
	if req.Branch == "" {
		req.Branch = domain.DefaultBranch
	}
	defer func() { e.metrics.CommitObserved(req.Branch, err) }()

	if err := domain.ValidateBranchName(req.Branch); err != nil {
		return domain.Version{}, err
	}
	if err := domain.ValidateDocument(req.Document); err != nil {
		return domain.Version{}, err
	}
	comp, err := e.component(ctx, req.ComponentID)
	if err != nil {
		return domain.Version{}, err
	}

	var warnings []string
	if e.scanner != nil {
		warnings, err = e.scanner.Check(req.Document)
		if err != nil {
			e.logger.WarnContext(ctx, "commit rejected by content scan", "slug", comp.Slug, "branch", req.Branch, "err", err)
			return domain.Version{}, err
		}
	}

	snap, err := e.store.LoadBranch(ctx, comp.ID, req.Branch)
	if err != nil {
		return domain.Version{}, err
	}
	if !snap.IsActive() {
		return domain.Version{}, &domain.ValidationError{Field: "branch", Reason: fmt.Sprintf("branch %q is %s", snap.Name, snap.Status)}
	}
	if req.ExpectedParent != nil && *req.ExpectedParent != snap.HeadVersionID {
		return domain.Version{}, fmt.Errorf("%w: branch %q head is %q, expected %q", domain.ErrStaleParent, snap.Name, snap.HeadVersionID, *req.ExpectedParent)
	}

	v = domain.Version{
		ID:              e.newID(),
		ComponentID:     comp.ID,
		Branch:          snap.Name,
		Sequence:        snap.HeadSequence + 1,
		Document:        req.Document.Clone(),
		ParentVersionID: snap.HeadVersionID,
		Author:          req.Author,
		Message:         req.Message,
		CreatedAt:       e.timestamp(),
		Warnings:        warnings,
	}

	ok, err := e.store.AppendVersion(ctx, v)
	if err != nil {
		return domain.Version{}, err
	}
	if !ok {
		if err := e.rollForward(ctx, snap, v.Sequence); err != nil {
			return domain.Version{}, err
		}
		return domain.Version{}, fmt.Errorf("%w: sequence %d on branch %q was taken by a concurrent commit", domain.ErrStaleParent, v.Sequence, snap.Name)
	}

	if err := e.advance(ctx, snap, v); err != nil {
		return domain.Version{}, err
	}

	e.logger.InfoContext(ctx, "vcs.commit",
		"slug", comp.Slug,
		"branch", v.Branch,
		"sequence", v.Sequence,
		"version_id", v.ID,
		"warnings", len(warnings),
	)
	e.emit(ctx, event, req.Author, comp, &v, nil, details)
	return v, nil
}

// advance moves the branch pointer to v. The version is already durable, so
// only a pointer that has reached v (by us or a peer rolling forward) ends
// the loop.
func (e *Engine) advance(ctx context.Context, snap store.BranchSnapshot, v domain.Version) error {
	for attempt := 0; attempt < maxAdvanceAttempts; attempt++ {
		next := snap.Branch
		next.HeadVersionID = v.ID
		next.HeadSequence = v.Sequence
		next.UpdatedAt = e.timestamp()

		ok, err := e.store.SwapBranch(ctx, snap, next)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		snap, err = e.store.LoadBranch(ctx, v.ComponentID, v.Branch)
		if err != nil {
			return err
		}
		if snap.HeadSequence >= v.Sequence {
			return nil
		}
	}
	return fmt.Errorf("branch %q: pointer did not advance to %d: %w", v.Branch, v.Sequence, domain.ErrConflict)
}

// rollForward finishes a commit whose writer inserted the version at seq but
// never moved the pointer. A slot whose parent is not the head we read
// belongs to a newer head and is left alone.
func (e *Engine) rollForward(ctx context.Context, snap store.BranchSnapshot, seq int64) error {
	orphan, err := e.store.Version(ctx, snap.ComponentID, snap.Name, seq)
	if err != nil {
		return err
	}
	if orphan.ParentVersionID != snap.HeadVersionID {
		return nil
	}
	if err := e.store.IndexVersion(ctx, orphan); err != nil {
		return err
	}
	e.logger.DebugContext(ctx, "vcs.roll_forward", "branch", snap.Name, "sequence", seq, "version_id", orphan.ID)
	return e.advance(ctx, snap, orphan)
}
