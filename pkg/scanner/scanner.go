// Package scanner flags prompt-injection patterns in document content
// before it is committed.
package scanner

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/aretw0/forge/pkg/domain"
)

// Severity ranks a finding. The zero value is SeverityNone.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "none"
	}
}

// ParseSeverity converts a level name into a Severity.
func ParseSeverity(s string) (Severity, error) {
	for sev := SeverityLow; sev <= SeverityCritical; sev++ {
		if strings.EqualFold(s, sev.String()) {
			return sev, nil
		}
	}
	return SeverityNone, fmt.Errorf("unknown severity %q", s)
}

// Finding is one match of a rule.
type Finding struct {
	Rule        string
	Location    string
	Severity    Severity
	Match       string
	Description string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s at %s (%s)", f.Severity, f.Rule, f.Location, f.Description)
}

// Result aggregates every finding of a scan. Risk is the highest severity.
type Result struct {
	Findings []Finding
	Risk     Severity
}

// Clean reports whether nothing was found.
func (r Result) Clean() bool { return len(r.Findings) == 0 }

type rule struct {
	name        string
	pattern     *regexp.Regexp
	severity    Severity
	description string
}

var rules = []rule{
	// Instruction override.
	{"ignore_previous", regexp.MustCompile(`ignore\s+(all\s+)?previous\s+instructions`), SeverityCritical, "attempts to override previous instructions"},
	{"disregard_above", regexp.MustCompile(`disregard\s+(everything\s+)?(above|previous)`), SeverityCritical, "attempts to disregard prior context"},
	{"forget_everything", regexp.MustCompile(`forget\s+everything`), SeverityCritical, "attempts to clear instruction memory"},
	{"new_instructions", regexp.MustCompile(`new\s+instructions\s*:`), SeverityCritical, "injects new instructions"},
	{"system_prompt_override", regexp.MustCompile(`system\s+prompt\s+override`), SeverityCritical, "attempts to override the system prompt"},

	// Role manipulation.
	{"you_are_now", regexp.MustCompile(`you\s+are\s+now\b`), SeverityHigh, "attempts to redefine the assistant's role"},
	{"pretend_you_are", regexp.MustCompile(`pretend\s+(that\s+)?you\s+are`), SeverityHigh, "role manipulation via pretending"},
	{"act_as_if_instructions", regexp.MustCompile(`act\s+as\s+if\s+your\s+instructions`), SeverityHigh, "manipulates instruction interpretation"},

	// Data exfiltration.
	{"repeat_system_prompt", regexp.MustCompile(`repeat\s+your\s+system\s+prompt`), SeverityCritical, "attempts to extract the system prompt"},
	{"output_instructions", regexp.MustCompile(`output\s+your\s+instructions`), SeverityCritical, "attempts to extract instructions"},
	{"what_were_you_told", regexp.MustCompile(`what\s+were\s+you\s+told`), SeverityHigh, "attempts to extract instructions"},
}

var (
	zeroWidth   = regexp.MustCompile("[\u200b\u200c\u200d\u2060\ufeff]")
	base64Blob  = regexp.MustCompile(`[A-Za-z0-9+/]{20,}={0,2}`)
	codeBlock   = regexp.MustCompile("(?s)```.*?```")
	taggedText  = regexp.MustCompile(`<[^>]+>([^<]+)</[^>]+>`)
	b64Keywords = []string{"ignore", "instructions", "system prompt", "you are now"}
	hidKeywords = []string{"ignore previous", "new instructions", "system prompt"}
)

// lenientSections only report critical findings: role-setting language is
// expected there.
var lenientSections = map[string]bool{"persona": true, "identity": true}

// Scanner runs the rule catalogue over documents.
type Scanner struct {
	blockAt Severity
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithBlockAt sets the lowest severity that Blocks reports as blocking.
func WithBlockAt(s Severity) Option {
	return func(sc *Scanner) {
		sc.blockAt = s
	}
}

// New creates a scanner that blocks on critical findings.
func New(opts ...Option) *Scanner {
	s := &Scanner{blockAt: SeverityCritical}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan inspects every section body and variable default.
func (s *Scanner) Scan(doc domain.Document) Result {
	var res Result
	for _, sec := range doc.Sections {
		findings := ScanText(sec.Content, "sections."+sec.ID)
		if lenientSections[sec.ID] {
			kept := findings[:0]
			for _, f := range findings {
				if f.Severity == SeverityCritical {
					kept = append(kept, f)
				}
			}
			findings = kept
		}
		res.Findings = append(res.Findings, findings...)
	}
	names := make([]string, 0, len(doc.Variables))
	for name := range doc.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		res.Findings = append(res.Findings, ScanText(doc.Variables[name], "variables."+name)...)
	}
	for _, f := range res.Findings {
		if f.Severity > res.Risk {
			res.Risk = f.Severity
		}
	}
	return res
}

// Blocks reports whether res contains a finding at or above the threshold.
func (s *Scanner) Blocks(res Result) bool {
	return s.blockAt != SeverityNone && res.Risk >= s.blockAt
}

// Check scans doc and converts blocking findings into a validation error.
// Non-blocking findings are returned as warnings.
func (s *Scanner) Check(doc domain.Document) (warnings []string, err error) {
	res := s.Scan(doc)
	if s.Blocks(res) {
		for _, f := range res.Findings {
			if f.Severity >= s.blockAt {
				return nil, &domain.ValidationError{Field: f.Location, Reason: fmt.Sprintf("content rejected by %s rule: %s", f.Rule, f.Description)}
			}
		}
	}
	for _, f := range res.Findings {
		warnings = append(warnings, f.String())
	}
	return warnings, nil
}

// ScanText runs the catalogue on a single string.
func ScanText(text, location string) []Finding {
	var findings []Finding
	lower := strings.ToLower(text)

	for _, r := range rules {
		if m := r.pattern.FindString(lower); m != "" {
			findings = append(findings, Finding{Rule: r.name, Location: location, Severity: r.severity, Match: m, Description: r.description})
		}
	}

	if n := len(zeroWidth.FindAllString(text, -1)); n > 0 {
		findings = append(findings, Finding{
			Rule:        "zero_width_chars",
			Location:    location,
			Severity:    SeverityMedium,
			Match:       fmt.Sprintf("%d zero-width character(s)", n),
			Description: "zero-width characters may hide injected content",
		})
	}

	for _, blob := range base64Blob.FindAllString(text, -1) {
		decoded, err := base64.StdEncoding.DecodeString(blob)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(blob, "="))
			if err != nil {
				continue
			}
		}
		if containsAny(strings.ToLower(string(decoded)), b64Keywords) {
			findings = append(findings, Finding{
				Rule:        "base64_injection",
				Location:    location,
				Severity:    SeverityHigh,
				Match:       truncate(blob, 40),
				Description: "base64-encoded suspicious content",
			})
		}
	}

	for _, block := range codeBlock.FindAllString(text, -1) {
		if containsAny(strings.ToLower(block), hidKeywords) {
			findings = append(findings, Finding{
				Rule:        "code_block_injection",
				Location:    location,
				Severity:    SeverityHigh,
				Match:       truncate(block, 60),
				Description: "instructions hidden in a code block",
			})
		}
	}

	for _, m := range taggedText.FindAllStringSubmatch(text, -1) {
		if containsAny(strings.ToLower(m[1]), hidKeywords) {
			findings = append(findings, Finding{
				Rule:        "tag_injection",
				Location:    location,
				Severity:    SeverityHigh,
				Match:       truncate(m[1], 60),
				Description: "instructions hidden in markup tags",
			})
		}
	}

	return findings
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
