package differ

import (
	"sort"

	"github.com/aretw0/forge/pkg/domain"
)

// Merge3 performs a three-way merge of ours and theirs against base.
//
// For every section id and variable name: when both sides agree, or only
// one side moved away from base, that value wins; when both moved to
// different values a Conflict is reported. The merged document keeps ours'
// section order and appends sections that exist only on theirs in theirs'
// order. The merged document is meaningless when conflicts are returned.
func Merge3(base, ours, theirs domain.Document) (domain.Document, []domain.Conflict) {
	b, o, t := index(base), index(ours), index(theirs)
	conflicts := make([]domain.Conflict, 0)

	// pick reports which side's section to keep; nil means the id is dropped.
	pick := func(id string) (*domain.Section, bool) {
		bSec, oSec, tSec := b[id], o[id], t[id]
		switch {
		case sameSection(oSec, tSec):
			return oSec, true
		case sameSection(oSec, bSec):
			return tSec, true
		case sameSection(tSec, bSec):
			return oSec, true
		}
		conflicts = append(conflicts, domain.Conflict{
			SectionID: id,
			Base:      content(bSec),
			Ours:      content(oSec),
			Theirs:    content(tSec),
		})
		return nil, false
	}

	merged := domain.Document{Sections: make([]domain.Section, 0, len(ours.Sections))}
	visited := make(map[string]struct{}, len(o)+len(t))
	for _, s := range ours.Sections {
		visited[s.ID] = struct{}{}
		if keep, ok := pick(s.ID); ok && keep != nil {
			merged.Sections = append(merged.Sections, *keep)
		}
	}
	for _, s := range theirs.Sections {
		if _, done := visited[s.ID]; done {
			continue
		}
		visited[s.ID] = struct{}{}
		if keep, ok := pick(s.ID); ok && keep != nil {
			merged.Sections = append(merged.Sections, *keep)
		}
	}
	// Ids present only in base were removed by both sides, or by one side
	// while the other left them untouched. Either way they stay removed.

	vars, varConflicts := mergeVariables(base.Variables, ours.Variables, theirs.Variables)
	merged.Variables = vars
	conflicts = append(conflicts, varConflicts...)

	return merged, conflicts
}

func mergeVariables(base, ours, theirs map[string]string) (map[string]string, []domain.Conflict) {
	names := make(map[string]struct{})
	for _, m := range []map[string]string{base, ours, theirs} {
		for k := range m {
			names[k] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(names))
	for k := range names {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	merged := make(map[string]string)
	conflicts := make([]domain.Conflict, 0)
	for _, name := range sorted {
		bv, o, t := lookup(base, name), lookup(ours, name), lookup(theirs, name)
		var keep *string
		switch {
		case sameValue(o, t):
			keep = o
		case sameValue(o, bv):
			keep = t
		case sameValue(t, bv):
			keep = o
		default:
			conflicts = append(conflicts, domain.Conflict{Variable: name, Base: bv, Ours: o, Theirs: t})
			continue
		}
		if keep != nil {
			merged[name] = *keep
		}
	}
	return merged, conflicts
}

func index(doc domain.Document) map[string]*domain.Section {
	m := make(map[string]*domain.Section, len(doc.Sections))
	for i := range doc.Sections {
		m[doc.Sections[i].ID] = &doc.Sections[i]
	}
	return m
}

func sameSection(a, b *domain.Section) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Content == b.Content
}

func content(s *domain.Section) *string {
	if s == nil {
		return nil
	}
	c := s.Content
	return &c
}

func lookup(m map[string]string, k string) *string {
	v, ok := m[k]
	if !ok {
		return nil
	}
	return &v
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
