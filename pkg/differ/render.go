package differ

import (
	"fmt"
	"strings"

	"github.com/aretw0/forge/pkg/domain"
	"github.com/pmezard/go-difflib/difflib"
)

// Summary returns a one-line description such as
// "1 section(s) modified, 2 variable(s) added".
func Summary(d domain.DocumentDiff) string {
	if d.IsEmpty() {
		return "no changes"
	}

	var sections, variables [3]int
	for _, c := range d.Sections {
		sections[changeIndex(c.Type)]++
	}
	for _, c := range d.Variables {
		variables[changeIndex(c.Type)]++
	}

	parts := make([]string, 0, 6)
	for i, t := range []domain.ChangeType{domain.ChangeAdded, domain.ChangeRemoved, domain.ChangeModified} {
		if sections[i] > 0 {
			parts = append(parts, fmt.Sprintf("%d section(s) %s", sections[i], t))
		}
	}
	for i, t := range []domain.ChangeType{domain.ChangeAdded, domain.ChangeRemoved, domain.ChangeModified} {
		if variables[i] > 0 {
			parts = append(parts, fmt.Sprintf("%d variable(s) %s", variables[i], t))
		}
	}
	return strings.Join(parts, ", ")
}

func changeIndex(t domain.ChangeType) int {
	switch t {
	case domain.ChangeAdded:
		return 0
	case domain.ChangeRemoved:
		return 1
	default:
		return 2
	}
}

// Render formats a diff for humans. Modified sections include a unified
// line diff of their bodies.
func Render(d domain.DocumentDiff) string {
	if d.IsEmpty() {
		return "No changes.\n"
	}

	var b strings.Builder
	for _, c := range d.Sections {
		switch c.Type {
		case domain.ChangeAdded:
			fmt.Fprintf(&b, "+ section %s\n", c.SectionID)
			writeIndented(&b, "+ ", c.After)
		case domain.ChangeRemoved:
			fmt.Fprintf(&b, "- section %s\n", c.SectionID)
			writeIndented(&b, "- ", c.Before)
		case domain.ChangeModified:
			fmt.Fprintf(&b, "~ section %s (similarity %.2f)\n", c.SectionID, c.Similarity)
			text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
				A:        difflib.SplitLines(withNewline(c.Before)),
				B:        difflib.SplitLines(withNewline(c.After)),
				FromFile: c.SectionID + " (before)",
				ToFile:   c.SectionID + " (after)",
				Context:  2,
			})
			if err != nil {
				text = fmt.Sprintf("  before: %q\n  after:  %q\n", c.Before, c.After)
			}
			b.WriteString(text)
		}
	}

	if len(d.Variables) > 0 {
		b.WriteString("variables:\n")
		for _, c := range d.Variables {
			switch c.Type {
			case domain.ChangeAdded:
				fmt.Fprintf(&b, "  + %s = %q\n", c.Name, c.After)
			case domain.ChangeRemoved:
				fmt.Fprintf(&b, "  - %s = %q\n", c.Name, c.Before)
			case domain.ChangeModified:
				fmt.Fprintf(&b, "  ~ %s: %q -> %q\n", c.Name, c.Before, c.After)
			}
		}
	}
	return b.String()
}

func writeIndented(b *strings.Builder, marker, text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		b.WriteString("  ")
		b.WriteString(marker)
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func withNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
