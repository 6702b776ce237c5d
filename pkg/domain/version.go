package domain

import "time"

// DefaultBranch is created for every component at registration.
const DefaultBranch = "main"

// Version is an immutable snapshot of a component's document on a branch.
// (ComponentID, Branch, Sequence) is unique; ID is an opaque alternative key.
type Version struct {
	ID              string    `json:"id"`
	ComponentID     string    `json:"component_id"`
	Branch          string    `json:"branch"`
	Sequence        int64     `json:"sequence"`
	Document        Document  `json:"document"`
	ParentVersionID string    `json:"parent_version_id,omitempty"`
	Author          string    `json:"author,omitempty"`
	Message         string    `json:"message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`

	// Warnings carries non-blocking scanner findings recorded at commit time.
	Warnings []string `json:"warnings,omitempty"`
}

// BranchStatus is the lifecycle state of a branch.
type BranchStatus string

const (
	BranchActive    BranchStatus = "active"
	BranchMerged    BranchStatus = "merged"
	BranchAbandoned BranchStatus = "abandoned"
)

// Branch is a movable head pointer over an append-only log of versions.
type Branch struct {
	ComponentID   string       `json:"component_id"`
	Name          string       `json:"name"`
	HeadVersionID string       `json:"head_version_id,omitempty"`
	HeadSequence  int64        `json:"head_sequence"`
	BaseVersionID string       `json:"base_version_id,omitempty"`
	Status        BranchStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// IsActive reports whether the branch still accepts commits.
func (b Branch) IsActive() bool {
	return b.Status == BranchActive
}

// MergeStrategy selects how a source branch is folded into a target.
type MergeStrategy string

const (
	MergeOurs         MergeStrategy = "ours"
	MergeTheirs       MergeStrategy = "theirs"
	MergeSectionMerge MergeStrategy = "section_merge"
	MergeManual       MergeStrategy = "manual"
)

// Valid reports whether s is a known merge strategy.
func (s MergeStrategy) Valid() bool {
	switch s {
	case MergeOurs, MergeTheirs, MergeSectionMerge, MergeManual:
		return true
	}
	return false
}

// ResolveStrategy selects which version of a component is used for composition.
type ResolveStrategy string

const (
	ResolveLatest         ResolveStrategy = "latest"
	ResolvePinned         ResolveStrategy = "pinned"
	ResolveBestPerforming ResolveStrategy = "best_performing"
)

// Valid reports whether s is a known resolution strategy.
func (s ResolveStrategy) Valid() bool {
	switch s {
	case ResolveLatest, ResolvePinned, ResolveBestPerforming:
		return true
	}
	return false
}
