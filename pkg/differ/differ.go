// Package differ computes structural differences between documents.
//
// Documents are compared as id-keyed collections: sections by id, variables
// by name. Nothing here does I/O; every function is a pure function of its
// inputs and returns the same output for the same inputs.
package differ

import (
	"sort"

	"github.com/aretw0/forge/pkg/domain"
)

// Diff reports the changes needed to turn from into to.
//
// Removed and modified sections come first in from's section order, then
// added sections in to's order. Variable changes are sorted by name.
func Diff(from, to domain.Document) domain.DocumentDiff {
	fromContents := from.Contents()
	toContents := to.Contents()

	sections := make([]domain.SectionChange, 0)
	for _, s := range from.Sections {
		after, ok := toContents[s.ID]
		switch {
		case !ok:
			sections = append(sections, domain.SectionChange{
				Type:      domain.ChangeRemoved,
				SectionID: s.ID,
				Before:    s.Content,
			})
		case after != s.Content:
			sections = append(sections, domain.SectionChange{
				Type:       domain.ChangeModified,
				SectionID:  s.ID,
				Before:     s.Content,
				After:      after,
				Similarity: Similarity(s.Content, after),
			})
		}
	}
	for _, s := range to.Sections {
		if _, ok := fromContents[s.ID]; !ok {
			sections = append(sections, domain.SectionChange{
				Type:      domain.ChangeAdded,
				SectionID: s.ID,
				After:     s.Content,
			})
		}
	}

	return domain.DocumentDiff{
		Sections:  sections,
		Variables: diffVariables(from.Variables, to.Variables),
	}
}

func diffVariables(from, to map[string]string) []domain.VariableChange {
	names := make(map[string]struct{}, len(from)+len(to))
	for k := range from {
		names[k] = struct{}{}
	}
	for k := range to {
		names[k] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for k := range names {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	changes := make([]domain.VariableChange, 0)
	for _, name := range sorted {
		before, inFrom := from[name]
		after, inTo := to[name]
		switch {
		case inFrom && !inTo:
			changes = append(changes, domain.VariableChange{Type: domain.ChangeRemoved, Name: name, Before: before})
		case !inFrom && inTo:
			changes = append(changes, domain.VariableChange{Type: domain.ChangeAdded, Name: name, After: after})
		case before != after:
			changes = append(changes, domain.VariableChange{Type: domain.ChangeModified, Name: name, Before: before, After: after})
		}
	}
	return changes
}
