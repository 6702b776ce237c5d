package domain

// ChangeType is the vocabulary shared by section and variable changes.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeRemoved  ChangeType = "removed"
	ChangeModified ChangeType = "modified"
)

// SectionChange describes one section that differs between two documents.
// Before is empty for additions, After is empty for removals.
// Similarity is only meaningful for modifications.
type SectionChange struct {
	Type       ChangeType `json:"type"`
	SectionID  string     `json:"section_id"`
	Before     string     `json:"before,omitempty"`
	After      string     `json:"after,omitempty"`
	Similarity float64    `json:"similarity,omitempty"`
}

// VariableChange describes one variable default that differs.
type VariableChange struct {
	Type   ChangeType `json:"type"`
	Name   string     `json:"name"`
	Before string     `json:"before,omitempty"`
	After  string     `json:"after,omitempty"`
}

// DocumentDiff is the structural difference between two documents.
type DocumentDiff struct {
	Sections  []SectionChange  `json:"sections"`
	Variables []VariableChange `json:"variables"`
}

// IsEmpty reports whether the two documents were identical.
func (d DocumentDiff) IsEmpty() bool {
	return len(d.Sections) == 0 && len(d.Variables) == 0
}

// SectionIDs lists the ids of changed sections in diff order.
func (d DocumentDiff) SectionIDs() []string {
	ids := make([]string, 0, len(d.Sections))
	for _, c := range d.Sections {
		ids = append(ids, c.SectionID)
	}
	return ids
}

// Conflict is a key changed on both sides of a three-way merge.
// A nil pointer means the key is absent on that side.
type Conflict struct {
	SectionID string  `json:"section_id,omitempty"`
	Variable  string  `json:"variable,omitempty"`
	Base      *string `json:"base"`
	Ours      *string `json:"ours"`
	Theirs    *string `json:"theirs"`
}

// Key returns the section id or variable name the conflict is about.
func (c Conflict) Key() string {
	if c.Variable != "" {
		return c.Variable
	}
	return c.SectionID
}
