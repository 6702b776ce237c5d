package loam

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// ComponentMetadata is the frontmatter of a component file.
// Files without a kind are not components and are skipped.
type ComponentMetadata struct {
	Slug        string   `json:"slug" mapstructure:"slug"`
	Kind        string   `json:"kind" mapstructure:"kind"`
	Name        string   `json:"name" mapstructure:"name"`
	Description string   `json:"description" mapstructure:"description"`
	Tags        []string `json:"tags" mapstructure:"tags"`
	Branch      string   `json:"branch" mapstructure:"branch"`
	Author      string   `json:"author" mapstructure:"author"`

	// Variables holds placeholder defaults. YAML may type them as numbers or
	// booleans; they are coerced to strings on import.
	Variables map[string]any `json:"variables" mapstructure:"variables"`
}

// StringVariables coerces the variable defaults to strings.
func (m ComponentMetadata) StringVariables() (map[string]string, error) {
	if len(m.Variables) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(m.Variables))
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(m.Variables); err != nil {
		return nil, fmt.Errorf("invalid variables: %w", err)
	}
	return out, nil
}
