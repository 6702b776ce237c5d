package compose

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/aretw0/forge/pkg/domain"
)

// placeholder matches {{name}} with optional inner spaces.
var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// outputFormats are the formats recognised by the contradiction heuristic.
var outputFormats = []string{"json", "markdown", "plain text", "xml", "yaml"}

type placedSection struct {
	domain.Section
	owner   int
	dropped bool
}

func (e *Engine) assemble(parts []resolved, vars map[string]string) (Result, error) {
	var (
		placed   []placedSection
		warnings []string
		at       = make(map[string]int)
	)

	for i, p := range parts {
		if p.component.Kind != p.role {
			warnings = append(warnings, fmt.Sprintf("%s %q is registered as a %s", p.role, p.slug, p.component.Kind))
		}
		for _, s := range p.version.Document.Sections {
			if j, ok := at[s.ID]; ok {
				prev := &placed[j]
				prev.dropped = true
				warnings = append(warnings, collision(s.ID, parts[prev.owner].slug, p.slug, prev.Content != s.Content))
			}
			at[s.ID] = len(placed)
			placed = append(placed, placedSection{Section: s, owner: i})
		}
	}

	var (
		applied   = make(map[string]string)
		ambiguous = make(map[string]struct{})
		missing   = make(map[string]struct{})
		sections  = make([]domain.Section, 0, len(at))
		formats   = make(map[string]struct{})
	)
	for _, ps := range placed {
		if ps.dropped {
			continue
		}
		defaults := parts[ps.owner].version.Document.Variables
		content := placeholder.ReplaceAllStringFunc(ps.Content, func(m string) string {
			name := placeholder.FindStringSubmatch(m)[1]
			if v, ok := vars[name]; ok {
				applied[name] = v
				return v
			}
			if v, ok := defaults[name]; ok {
				if prev, seen := applied[name]; seen && prev != v {
					ambiguous[name] = struct{}{}
				}
				applied[name] = v
				return v
			}
			missing[name] = struct{}{}
			return m
		})
		sections = append(sections, domain.Section{ID: ps.ID, Label: ps.Label, Content: content})

		for _, f := range detectFormats(content) {
			formats[f] = struct{}{}
		}
	}

	if len(missing) > 0 {
		names := sortedKeys(missing)
		return Result{}, fmt.Errorf("%w: %s", domain.ErrMissingVariable, strings.Join(names, ", "))
	}

	// A name filled from differing defaults cannot be replayed from a single
	// value, so it is left to each document's own default.
	for _, name := range sortedKeys(ambiguous) {
		delete(applied, name)
		warnings = append(warnings, fmt.Sprintf("variable %q has different defaults across components", name))
	}
	if len(formats) > 1 {
		warnings = append(warnings, "conflicting output formats requested: "+strings.Join(sortedKeys(formats), ", "))
	}

	contents := make([]string, 0, len(sections))
	for _, s := range sections {
		contents = append(contents, s.Content)
	}
	rendered := strings.Join(contents, "\n\n")

	entries := make([]domain.ManifestEntry, 0, len(parts))
	for _, p := range parts {
		entries = append(entries, domain.ManifestEntry{
			Slug:      p.slug,
			Kind:      p.role,
			Branch:    p.version.Branch,
			Sequence:  p.version.Sequence,
			VersionID: p.version.ID,
		})
	}

	return Result{
		Rendered: rendered,
		Document: domain.Document{Sections: sections},
		Manifest: domain.Manifest{
			Components:      entries,
			Variables:       applied,
			EstimatedTokens: EstimateTokens(rendered),
			Warnings:        warnings,
		},
	}, nil
}

// EstimateTokens approximates a token count as one token per four bytes.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

func collision(id, earlier, later string, differs bool) string {
	if !differs {
		return fmt.Sprintf("section %q from %q repeats %q", id, later, earlier)
	}
	if id == "output_format" {
		return fmt.Sprintf("conflicting output_format: %q overrides %q", later, earlier)
	}
	return fmt.Sprintf("section %q from %q overrides %q", id, later, earlier)
}

func detectFormats(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, f := range outputFormats {
		if strings.Contains(lower, "respond in "+f) || strings.Contains(lower, "output in "+f) {
			found = append(found, f)
		}
	}
	return found
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
