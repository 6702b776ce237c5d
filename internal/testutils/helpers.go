package testutils

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aretw0/forge/pkg/adapters/memory"
	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/registry"
	"github.com/aretw0/forge/pkg/store"
	"github.com/aretw0/forge/pkg/vcs"
	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/stretchr/testify/require"
)

// SetupTestRepo creates a temporary directory and initializes a Loam repository in it.
// It returns the absolute path to the temp dir and the initialized repository.
// It fails the test immediately on error.
func SetupTestRepo(t *testing.T, opts ...loam.Option) (string, core.Repository) {
	t.Helper()

	tmpDir := t.TempDir()

	absPath, err := filepath.Abs(tmpDir)
	require.NoError(t, err, "Failed to get absolute path for temp dir")

	repo, err := loam.Init(absPath, opts...)
	require.NoError(t, err, "Failed to init loam repo")

	return absPath, repo
}

// Stack is an in-memory version store with its engines.
type Stack struct {
	Store    *store.Store
	VCS      *vcs.Engine
	Registry *registry.Registry
}

// NewStack wires the engines over a fresh memory store.
func NewStack(t *testing.T, opts ...vcs.Option) *Stack {
	t.Helper()
	st := store.New(memory.NewStore())
	engine := vcs.New(st, opts...)
	return &Stack{
		Store:    st,
		VCS:      engine,
		Registry: registry.NewRegistry(st, engine),
	}
}

// Register registers slug with an initial document made of id/content pairs.
func (s *Stack) Register(t *testing.T, slug string, kind domain.Kind, pairs ...string) (domain.Component, domain.Version) {
	t.Helper()
	d := Doc(pairs...)
	comp, v, err := s.Registry.Register(context.Background(), registry.RegisterRequest{
		Slug:     slug,
		Kind:     kind,
		Document: &d,
		Author:   "tester",
	})
	require.NoError(t, err)
	require.NotNil(t, v)
	return comp, *v
}

// Commit commits a document made of id/content pairs on branch.
func (s *Stack) Commit(t *testing.T, componentID, branch string, pairs ...string) domain.Version {
	t.Helper()
	v, err := s.VCS.Commit(context.Background(), vcs.CommitRequest{
		ComponentID: componentID,
		Branch:      branch,
		Document:    Doc(pairs...),
		Author:      "tester",
	})
	require.NoError(t, err)
	return v
}

// Doc builds a document from id/content pairs.
func Doc(pairs ...string) domain.Document {
	d := domain.Document{}
	for i := 0; i+1 < len(pairs); i += 2 {
		d.Sections = append(d.Sections, domain.Section{ID: pairs[i], Content: pairs[i+1]})
	}
	return d
}
