package domain

import (
	"context"
	"time"
)

// EventType names a durable mutation.
type EventType string

const (
	EventComponentRegistered EventType = "component.registered"
	EventComponentUpdated    EventType = "component.updated"
	EventComponentArchived   EventType = "component.archived"
	EventVersionCommitted    EventType = "version.committed"
	EventVersionRolledBack   EventType = "version.rolled_back"
	EventBranchCreated       EventType = "branch.created"
	EventBranchMerged        EventType = "branch.merged"
	EventBranchAbandoned     EventType = "branch.abandoned"
)

// MutationEvent is emitted after a mutation has been made durable.
type MutationEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Actor     string         `json:"actor,omitempty"`
	Component Component      `json:"component"`
	Version   *Version       `json:"version,omitempty"`
	Branch    *Branch        `json:"branch,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// LifecycleHooks defines callbacks for observing mutations.
// Hooks run after the store write; they cannot veto or undo it.
type LifecycleHooks struct {
	OnMutation func(context.Context, *MutationEvent)
}

// ChainHooks returns hooks that invoke each non-nil hook in order.
func ChainHooks(hooks ...LifecycleHooks) LifecycleHooks {
	var fns []func(context.Context, *MutationEvent)
	for _, h := range hooks {
		if h.OnMutation != nil {
			fns = append(fns, h.OnMutation)
		}
	}
	if len(fns) == 0 {
		return LifecycleHooks{}
	}
	return LifecycleHooks{
		OnMutation: func(ctx context.Context, e *MutationEvent) {
			for _, fn := range fns {
				fn(ctx, e)
			}
		},
	}
}

// Emit invokes OnMutation when set.
func (h LifecycleHooks) Emit(ctx context.Context, e *MutationEvent) {
	if h.OnMutation != nil {
		h.OnMutation(ctx, e)
	}
}
