package audit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/forge/pkg/adapters/memory"
	"github.com/aretw0/forge/pkg/audit"
	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/observability"
	"github.com/aretw0/forge/pkg/registry"
	"github.com/aretw0/forge/pkg/store"
	"github.com/aretw0/forge/pkg/vcs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrail_RecordsMutations(t *testing.T) {
	ctx := context.Background()
	st := store.New(memory.NewStore())
	trail := audit.New(st.KV())

	engine := vcs.New(st, vcs.WithLifecycleHooks(trail.Hooks()))
	reg := registry.NewRegistry(st, engine, registry.WithLifecycleHooks(trail.Hooks()))

	d := domain.Document{Sections: []domain.Section{{ID: "identity", Content: "You are a reviewer"}}}
	comp, v1, err := reg.Register(ctx, registry.RegisterRequest{Slug: "reviewer", Kind: domain.KindPersona, Document: &d, Author: "alice"})
	require.NoError(t, err)
	_, err = engine.CreateBranch(ctx, comp.ID, "exp", "main", "bob")
	require.NoError(t, err)
	_, err = reg.Archive(ctx, "reviewer", "carol")
	require.NoError(t, err)

	entries, err := trail.Query(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 4)

	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{"component.archived", "branch.created", "version.committed", "component.registered"}, actions)

	commit := entries[2]
	assert.Equal(t, "version", commit.EntityType)
	assert.Equal(t, v1.ID, commit.EntityID)
	assert.Equal(t, "alice", commit.Actor)
	assert.Equal(t, "reviewer", commit.Details["slug"])

	branch := entries[1]
	assert.Equal(t, comp.ID+"/exp", branch.EntityID)

	byActor, err := trail.Query(ctx, audit.Filter{Actor: "alice"})
	require.NoError(t, err)
	assert.Len(t, byActor, 2)

	byEntity, err := trail.Query(ctx, audit.Filter{EntityID: comp.ID})
	require.NoError(t, err)
	assert.Len(t, byEntity, 2)

	bySlug, err := trail.Query(ctx, audit.Filter{Slug: "reviewer"})
	require.NoError(t, err)
	assert.Len(t, bySlug, 4)

	limited, err := trail.Query(ctx, audit.Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "component.archived", limited[0].Action)

	filteredLimited, err := trail.Query(ctx, audit.Filter{Action: "component.registered", Limit: 1})
	require.NoError(t, err)
	require.Len(t, filteredLimited, 1)
	assert.Equal(t, comp.ID, filteredLimited[0].EntityID)
}

type brokenKV struct {
	*memory.Store
}

func (brokenKV) InsertIfAbsent(context.Context, string, []byte) (bool, error) {
	return false, errors.New("disk full")
}

func TestTrail_FailuresDoNotPropagate(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	trail := audit.New(brokenKV{memory.NewStore()}, audit.WithMetrics(metrics))

	_, err := trail.Record(ctx, audit.Entry{Action: "x"})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	assert.NotPanics(t, func() {
		trail.Hooks().Emit(ctx, &domain.MutationEvent{Type: domain.EventComponentUpdated})
	})

	n, err := testutil.GatherAndCount(reg, "forge_hook_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
