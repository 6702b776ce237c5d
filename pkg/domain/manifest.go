package domain

import "time"

// ManifestEntry pins one resolved component of a composition.
// Kind is the role the component was composed in: persona, skill or constraint.
type ManifestEntry struct {
	Slug      string `json:"slug"`
	Kind      Kind   `json:"kind"`
	Branch    string `json:"branch"`
	Sequence  int64  `json:"sequence"`
	VersionID string `json:"version_id"`
}

// Manifest records everything a composition consumed.
// Replaying the entries with the recorded variables reproduces the output.
// Branch is the branch the composition asked for; an entry's Branch is where
// its version lives, which is the base branch when the requested branch has
// no commits of its own.
type Manifest struct {
	Branch          string            `json:"branch"`
	Components      []ManifestEntry   `json:"components"`
	Variables       map[string]string `json:"variables"`
	EstimatedTokens int               `json:"estimated_tokens"`
	Warnings        []string          `json:"warnings,omitempty"`
	ComposedAt      time.Time         `json:"composed_at"`
}
