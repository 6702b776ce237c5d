package loam

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/forge/pkg/domain"
)

// IntroSectionID names the text that precedes the first heading.
const IntroSectionID = "intro"

var (
	headingRe = regexp.MustCompile(`^##\s+(.*?)\s*(?:\{#([A-Za-z0-9_.-]+)\})?\s*$`)
	nonIDRe   = regexp.MustCompile(`[^a-z0-9]+`)
)

// ParseBody splits a Markdown body into sections at level-two headings.
// "## Label {#id}" sets the id explicitly; otherwise it is derived from the
// label. Repeated ids get a numeric suffix.
func ParseBody(body string) []domain.Section {
	var (
		sections []domain.Section
		current  *domain.Section
		lines    []string
		seen     = map[string]int{}
	)

	flush := func() {
		content := strings.TrimSpace(strings.Join(lines, "\n"))
		lines = lines[:0]
		if current == nil {
			if content != "" {
				sections = append(sections, domain.Section{ID: unique(IntroSectionID, seen), Content: content})
			}
			return
		}
		current.Content = content
		sections = append(sections, *current)
	}

	inFence := false
	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		m := headingRe.FindStringSubmatch(line)
		if inFence || m == nil {
			lines = append(lines, line)
			continue
		}
		flush()
		id := strings.ToLower(m[2])
		if id == "" {
			id = SectionID(m[1])
		}
		current = &domain.Section{ID: unique(id, seen), Label: m[1]}
	}
	flush()
	return sections
}

// SectionID derives an id from a heading label: "Output Format" becomes
// "output_format".
func SectionID(label string) string {
	id := strings.Trim(nonIDRe.ReplaceAllString(strings.ToLower(label), "_"), "_")
	if id == "" {
		return "section"
	}
	return id
}

func unique(id string, seen map[string]int) string {
	seen[id]++
	if n := seen[id]; n > 1 {
		return id + "_" + strconv.Itoa(n)
	}
	return id
}
