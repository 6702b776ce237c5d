package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Section is one addressable block of a Document.
type Section struct {
	ID      string `json:"id" yaml:"id" mapstructure:"id"`
	Label   string `json:"label" yaml:"label" mapstructure:"label"`
	Content string `json:"content" yaml:"content" mapstructure:"content"`
}

// Document is the versioned content unit.
// Sections are ordered; Variables holds placeholder defaults.
type Document struct {
	Sections  []Section         `json:"sections" yaml:"sections" mapstructure:"sections"`
	Variables map[string]string `json:"variables" yaml:"variables" mapstructure:"variables"`
}

// MarshalJSON always emits both keys so the persisted shape is stable.
func (d Document) MarshalJSON() ([]byte, error) {
	type wire Document
	w := wire(d)
	if w.Sections == nil {
		w.Sections = []Section{}
	}
	if w.Variables == nil {
		w.Variables = map[string]string{}
	}
	return json.Marshal(w)
}

// Section returns the section with the given id.
func (d Document) Section(id string) (Section, bool) {
	for _, s := range d.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// Contents indexes section bodies by id.
func (d Document) Contents() map[string]string {
	m := make(map[string]string, len(d.Sections))
	for _, s := range d.Sections {
		m[s.ID] = s.Content
	}
	return m
}

// IsEmpty reports whether the document has neither sections nor variables.
func (d Document) IsEmpty() bool {
	return len(d.Sections) == 0 && len(d.Variables) == 0
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	out := Document{}
	if d.Sections != nil {
		out.Sections = make([]Section, len(d.Sections))
		copy(out.Sections, d.Sections)
	}
	if d.Variables != nil {
		out.Variables = make(map[string]string, len(d.Variables))
		for k, v := range d.Variables {
			out.Variables[k] = v
		}
	}
	return out
}

// Equal compares documents by identity: the set of (id, content) pairs and
// the variable map. Section order and labels are ignored.
func (d Document) Equal(other Document) bool {
	a, b := d.Contents(), other.Contents()
	if len(a) != len(b) {
		return false
	}
	for id, body := range a {
		if ob, ok := b[id]; !ok || ob != body {
			return false
		}
	}
	if len(d.Variables) != len(other.Variables) {
		return false
	}
	for k, v := range d.Variables {
		if ov, ok := other.Variables[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Fingerprint is a SHA-256 digest of the canonical (id-sorted) form.
// Two documents share a fingerprint iff they are Equal.
func (d Document) Fingerprint() string {
	h := sha256.New()

	contents := d.Contents()
	ids := make([]string, 0, len(contents))
	for id := range contents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
		h.Write([]byte(contents[id]))
		h.Write([]byte{0})
	}

	h.Write([]byte{1})

	names := make([]string, 0, len(d.Variables))
	for k := range d.Variables {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(d.Variables[k]))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}
