package compose_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/forge/internal/testutils"
	"github.com/aretw0/forge/pkg/compose"
	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/registry"
	"github.com/aretw0/forge/pkg/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newComposer(s *testutils.Stack, opts ...compose.Option) *compose.Engine {
	return compose.New(resolver.New(s.Registry, s.VCS), opts...)
}

func register(t *testing.T, s *testutils.Stack, slug string, kind domain.Kind, d domain.Document) domain.Component {
	t.Helper()
	comp, _, err := s.Registry.Register(context.Background(), registry.RegisterRequest{Slug: slug, Kind: kind, Document: &d})
	require.NoError(t, err)
	return comp
}

func TestCompose_PersonaThenSkill(t *testing.T) {
	ctx := context.Background()
	s := testutils.NewStack(t)
	reviewer, _ := s.Register(t, "code-reviewer", domain.KindPersona, "identity", "You are a reviewer")
	s.Commit(t, reviewer.ID, "main", "identity", "You are a senior reviewer")
	s.Register(t, "python-expert", domain.KindSkill, "python", "You know Python well.")

	res, err := newComposer(s).Compose(ctx, compose.Request{
		Persona: "code-reviewer",
		Skills:  []string{"python-expert"},
	})
	require.NoError(t, err)

	require.Len(t, res.Manifest.Components, 2)
	assert.Equal(t, "code-reviewer", res.Manifest.Components[0].Slug)
	assert.Equal(t, domain.KindPersona, res.Manifest.Components[0].Kind)
	assert.Equal(t, int64(2), res.Manifest.Components[0].Sequence)
	assert.Equal(t, "python-expert", res.Manifest.Components[1].Slug)
	assert.Equal(t, int64(1), res.Manifest.Components[1].Sequence)
	assert.Equal(t, "main", res.Manifest.Components[1].Branch)

	assert.Equal(t, "You are a senior reviewer\n\nYou know Python well.", res.Rendered)
	assert.Equal(t, []string{"identity", "python"}, []string{res.Document.Sections[0].ID, res.Document.Sections[1].ID})
	assert.Empty(t, res.Manifest.Warnings)
	assert.Equal(t, compose.EstimateTokens(res.Rendered), res.Manifest.EstimatedTokens)
}

func TestCompose_Determinism(t *testing.T) {
	ctx := context.Background()
	s := testutils.NewStack(t)
	persona := register(t, s, "assistant", domain.KindPersona, domain.Document{
		Sections:  []domain.Section{{ID: "identity", Content: "You help {{team}} with {{topic}}."}},
		Variables: map[string]string{"team": "platform"},
	})
	register(t, s, "go-expert", domain.KindSkill, testutils.Doc("go", "Prefer small interfaces."))

	c := newComposer(s)
	req := compose.Request{
		Persona:   "assistant",
		Skills:    []string{"go-expert"},
		Variables: map[string]string{"topic": "Go"},
	}
	first, err := c.Compose(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"team": "platform", "topic": "Go"}, first.Manifest.Variables)

	// New commits must not affect a replay of the pinned manifest.
	s.Commit(t, persona.ID, "main", "identity", "Something else entirely.")

	again, err := c.Replay(ctx, first.Manifest)
	require.NoError(t, err)
	assert.Equal(t, first.Rendered, again.Rendered)
	assert.Equal(t, first.Manifest.Components, again.Manifest.Components)

	twice, err := c.Replay(ctx, first.Manifest)
	require.NoError(t, err)
	assert.Equal(t, again.Rendered, twice.Rendered)
}

func TestCompose_ReplayOnBranch(t *testing.T) {
	ctx := context.Background()
	s := testutils.NewStack(t)
	persona, _ := s.Register(t, "persona-a", domain.KindPersona, "identity", "You are a reviewer.")
	skill, skillV1 := s.Register(t, "skill-b", domain.KindSkill, "go", "Prefer small interfaces.")

	_, err := s.VCS.CreateBranch(ctx, persona.ID, "exp", "main", "tester")
	require.NoError(t, err)
	s.Commit(t, persona.ID, "exp", "identity", "You are an experimental reviewer.")
	_, err = s.VCS.CreateBranch(ctx, skill.ID, "exp", "main", "tester")
	require.NoError(t, err)

	c := newComposer(s)
	res, err := c.Compose(ctx, compose.Request{
		Persona:    "persona-a",
		Skills:     []string{"skill-b"},
		Resolution: compose.Resolution{Branch: "exp"},
	})
	require.NoError(t, err)
	assert.Equal(t, "exp", res.Manifest.Branch)
	require.Len(t, res.Manifest.Components, 2)
	assert.Equal(t, "exp", res.Manifest.Components[0].Branch)
	assert.Equal(t, "main", res.Manifest.Components[1].Branch)
	assert.Equal(t, skillV1.ID, res.Manifest.Components[1].VersionID)

	// Later commits on either branch must not leak into the replay.
	s.Commit(t, skill.ID, "exp", "go", "Prefer generics.")
	s.Commit(t, skill.ID, "main", "go", "Prefer channels.")

	again, err := c.Replay(ctx, res.Manifest)
	require.NoError(t, err)
	assert.Equal(t, res.Rendered, again.Rendered)
	assert.Equal(t, res.Manifest.Components, again.Manifest.Components)
	assert.Equal(t, "exp", again.Manifest.Branch)
}

func TestCompose_ReplayRejectsForeignVersion(t *testing.T) {
	ctx := context.Background()
	s := testutils.NewStack(t)
	s.Register(t, "persona-a", domain.KindPersona, "identity", "You are a reviewer.")
	_, other := s.Register(t, "persona-b", domain.KindPersona, "identity", "You are a writer.")

	_, err := newComposer(s).Replay(ctx, domain.Manifest{Components: []domain.ManifestEntry{
		{Slug: "persona-a", Kind: domain.KindPersona, Branch: "main", Sequence: 1, VersionID: other.ID},
	}})
	assert.ErrorIs(t, err, domain.ErrVersionNotFound)
}

func TestCompose_SectionCollision(t *testing.T) {
	ctx := context.Background()
	s := testutils.NewStack(t)
	s.Register(t, "writer", domain.KindPersona, "identity", "You write docs.", "output_format", "Use markdown.")
	s.Register(t, "json-output", domain.KindConstraint, "output_format", "Return JSON only.")

	res, err := newComposer(s).Compose(ctx, compose.Request{Persona: "writer", Constraints: []string{"json-output"}})
	require.NoError(t, err)

	assert.Equal(t, "You write docs.\n\nReturn JSON only.", res.Rendered)
	require.Len(t, res.Manifest.Warnings, 1)
	assert.Contains(t, res.Manifest.Warnings[0], "output_format")
	assert.Contains(t, res.Manifest.Warnings[0], "json-output")
}

func TestCompose_Variables(t *testing.T) {
	ctx := context.Background()
	s := testutils.NewStack(t)
	register(t, s, "greeter", domain.KindPersona, domain.Document{
		Sections:  []domain.Section{{ID: "hello", Content: "Hello {{ name }}, welcome to {{place}}. {{zeta}} {{alpha}}"}},
		Variables: map[string]string{"place": "forge"},
	})
	c := newComposer(s)

	_, err := c.Compose(ctx, compose.Request{Persona: "greeter"})
	require.ErrorIs(t, err, domain.ErrMissingVariable)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "alpha, name, zeta")

	res, err := c.Compose(ctx, compose.Request{
		Persona:   "greeter",
		Variables: map[string]string{"name": "Ada", "zeta": "z", "alpha": "a", "place": "the lab", "unused": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada, welcome to the lab. z a", res.Rendered)
	assert.NotContains(t, res.Manifest.Variables, "unused")
}

func TestCompose_AmbiguousDefaults(t *testing.T) {
	ctx := context.Background()
	s := testutils.NewStack(t)
	register(t, s, "p", domain.KindPersona, domain.Document{
		Sections:  []domain.Section{{ID: "a", Content: "tone: {{tone}}"}},
		Variables: map[string]string{"tone": "calm"},
	})
	register(t, s, "k", domain.KindSkill, domain.Document{
		Sections:  []domain.Section{{ID: "b", Content: "tone: {{tone}}"}},
		Variables: map[string]string{"tone": "direct"},
	})

	c := newComposer(s)
	res, err := c.Compose(ctx, compose.Request{Persona: "p", Skills: []string{"k"}})
	require.NoError(t, err)
	assert.Equal(t, "tone: calm\n\ntone: direct", res.Rendered)
	assert.NotContains(t, res.Manifest.Variables, "tone")
	assert.Contains(t, res.Manifest.Warnings, `variable "tone" has different defaults across components`)

	again, err := c.Replay(ctx, res.Manifest)
	require.NoError(t, err)
	assert.Equal(t, res.Rendered, again.Rendered)
}

func TestCompose_Warnings(t *testing.T) {
	ctx := context.Background()
	s := testutils.NewStack(t)
	s.Register(t, "analyst", domain.KindPersona, "identity", "Always respond in JSON.")
	s.Register(t, "prose", domain.KindConstraint, "style", "Please respond in markdown with headings.")

	res, err := newComposer(s).Compose(ctx, compose.Request{Persona: "analyst", Skills: []string{"prose"}})
	require.NoError(t, err)
	assert.Contains(t, res.Manifest.Warnings, `skill "prose" is registered as a constraint`)
	assert.Contains(t, res.Manifest.Warnings, "conflicting output formats requested: json, markdown")
}

func TestCompose_TokenBudget(t *testing.T) {
	ctx := context.Background()
	s := testutils.NewStack(t)
	s.Register(t, "verbose", domain.KindPersona, "identity", "This persona is rather long winded.")

	c := newComposer(s, compose.WithTokenLimit(2))

	res, err := c.Compose(ctx, compose.Request{Persona: "verbose"})
	require.NoError(t, err)
	require.Len(t, res.Manifest.Warnings, 1)
	assert.Contains(t, res.Manifest.Warnings[0], "exceeds the budget of 2")

	_, err = c.Compose(ctx, compose.Request{Persona: "verbose", EnforceTokenBudget: true})
	assert.ErrorIs(t, err, domain.ErrTokenBudgetExceeded)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCompose_Errors(t *testing.T) {
	ctx := context.Background()
	s := testutils.NewStack(t)
	s.Register(t, "reviewer", domain.KindPersona, "identity", "You review.")
	s.Register(t, "retired", domain.KindSkill, "old", "Old skill.")
	_, err := s.Registry.Archive(ctx, "retired", "tester")
	require.NoError(t, err)

	c := newComposer(s)

	_, err = c.Compose(ctx, compose.Request{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = c.Compose(ctx, compose.Request{Persona: "reviewer", Skills: []string{"ghost"}})
	assert.ErrorIs(t, err, domain.ErrComponentNotFound)

	_, err = c.Compose(ctx, compose.Request{Persona: "reviewer", Skills: []string{"retired"}})
	assert.ErrorIs(t, err, domain.ErrComponentNotFound)

	_, err = c.Compose(ctx, compose.Request{
		Persona:    "reviewer",
		Resolution: compose.Resolution{Pins: map[string]int64{"reviewer": 5}},
	})
	assert.ErrorIs(t, err, domain.ErrVersionNotFound)
}

func TestCompose_ManifestTimestamp(t *testing.T) {
	s := testutils.NewStack(t)
	s.Register(t, "reviewer", domain.KindPersona, "identity", "You review.")

	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	res, err := newComposer(s, compose.WithClock(func() time.Time { return fixed })).
		Compose(context.Background(), compose.Request{Persona: "reviewer"})
	require.NoError(t, err)
	assert.Equal(t, fixed, res.Manifest.ComposedAt)
}
