package domain

import (
	"fmt"
	"time"
)

// Kind classifies a component and fixes its precedence during composition.
type Kind string

const (
	KindPersona    Kind = "persona"
	KindSkill      Kind = "skill"
	KindConstraint Kind = "constraint"
	KindTemplate   Kind = "template"
	KindMeta       Kind = "meta"
)

// Kinds lists every valid kind in declaration order.
var Kinds = []Kind{KindPersona, KindSkill, KindConstraint, KindTemplate, KindMeta}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKind converts a raw string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", s)}
	}
	return k, nil
}

// Component is a named, typed container of documents over time.
// Slug is immutable once registered; Archived is a soft delete.
type Component struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Kind        Kind      `json:"kind"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Archived    bool      `json:"archived"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasTag reports whether the component carries the tag.
func (c Component) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
