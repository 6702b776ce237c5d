package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	slugPattern       = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	branchPattern     = regexp.MustCompile(`^[a-z0-9][a-z0-9._/-]*$`)
	identifierPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)
)

// validate is shared by every request type in forge.
var validate *validator.Validate

func init() {
	validate = validator.New()

	_ = validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return len(s) <= MaxSlugLength && slugPattern.MatchString(s)
	})
	_ = validate.RegisterValidation("branch", func(fl validator.FieldLevel) bool {
		return validBranchName(fl.Field().String())
	})
	_ = validate.RegisterValidation("kind", func(fl validator.FieldLevel) bool {
		return Kind(fl.Field().String()).Valid()
	})
}

func validBranchName(s string) bool {
	if len(s) > MaxBranchLength || !branchPattern.MatchString(s) {
		return false
	}
	return !strings.Contains(s, "//") && !strings.HasSuffix(s, "/")
}

// Validate checks struct tags and reports the first failure as *ValidationError.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{
			Field:  strings.ToLower(fe.Field()),
			Reason: fmt.Sprintf("failed %q rule (value %v)", fe.Tag(), fe.Value()),
		}
	}
	return &ValidationError{Reason: err.Error()}
}

// ValidateSlug checks a component slug.
func ValidateSlug(slug string) error {
	if err := validate.Var(slug, "required,slug"); err != nil {
		return &ValidationError{Field: "slug", Reason: fmt.Sprintf("%q must be lowercase alphanumeric words joined by hyphens, at most %d characters", slug, MaxSlugLength)}
	}
	return nil
}

// ValidateBranchName checks a branch name.
func ValidateBranchName(name string) error {
	if err := validate.Var(name, "required,branch"); err != nil {
		return &ValidationError{Field: "branch", Reason: fmt.Sprintf("%q is not a valid branch name", name)}
	}
	return nil
}

// ValidateDocument enforces the document shape and size limits.
func ValidateDocument(doc Document) error {
	if len(doc.Sections) > MaxSections {
		return &ValidationError{Field: "sections", Reason: fmt.Sprintf("%d sections exceeds the limit of %d", len(doc.Sections), MaxSections)}
	}
	seen := make(map[string]struct{}, len(doc.Sections))
	for i, s := range doc.Sections {
		if len(s.ID) > MaxIdentifierSize || !identifierPattern.MatchString(s.ID) {
			return &ValidationError{Field: fmt.Sprintf("sections[%d].id", i), Reason: fmt.Sprintf("invalid section id %q", s.ID)}
		}
		if _, dup := seen[s.ID]; dup {
			return &ValidationError{Field: fmt.Sprintf("sections[%d].id", i), Reason: fmt.Sprintf("duplicate section id %q", s.ID)}
		}
		seen[s.ID] = struct{}{}
		if len(s.Content) > MaxSectionBytes {
			return &ValidationError{Field: fmt.Sprintf("sections[%d].content", i), Reason: fmt.Sprintf("%d bytes exceeds the limit of %d", len(s.Content), MaxSectionBytes)}
		}
	}
	for name := range doc.Variables {
		if len(name) > MaxIdentifierSize || !identifierPattern.MatchString(strings.ToLower(name)) {
			return &ValidationError{Field: "variables", Reason: fmt.Sprintf("invalid variable name %q", name)}
		}
	}
	return nil
}
