package domain_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/aretw0/forge/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestValidateSlug(t *testing.T) {
	valid := []string{"code-reviewer", "python-expert", "a", "v2-agent"}
	invalid := []string{"", "Code-Reviewer", "-lead", "trail-", "double--hyphen", "under_score", strings.Repeat("a", 65)}

	for _, s := range valid {
		assert.NoError(t, domain.ValidateSlug(s), s)
	}
	for _, s := range invalid {
		err := domain.ValidateSlug(s)
		assert.ErrorIs(t, err, domain.ErrValidation, s)
	}
}

func TestValidateBranchName(t *testing.T) {
	valid := []string{"main", "experiment/x", "release-1.2", "feature/a_b"}
	invalid := []string{"", "/lead", "Upper", "a//b", "trailing/", "sp ace"}

	for _, s := range valid {
		assert.NoError(t, domain.ValidateBranchName(s), s)
	}
	for _, s := range invalid {
		assert.ErrorIs(t, domain.ValidateBranchName(s), domain.ErrValidation, s)
	}
}

func TestValidateDocument(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, domain.ValidateDocument(sampleDocument()))
	})

	t.Run("duplicate ids", func(t *testing.T) {
		doc := domain.Document{Sections: []domain.Section{{ID: "a"}, {ID: "a"}}}
		err := domain.ValidateDocument(doc)
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("bad id", func(t *testing.T) {
		doc := domain.Document{Sections: []domain.Section{{ID: "Has Space"}}}
		assert.ErrorIs(t, domain.ValidateDocument(doc), domain.ErrValidation)
	})

	t.Run("too many sections", func(t *testing.T) {
		doc := domain.Document{}
		for i := 0; i <= domain.MaxSections; i++ {
			doc.Sections = append(doc.Sections, domain.Section{ID: fmt.Sprintf("s%d", i)})
		}
		assert.ErrorIs(t, domain.ValidateDocument(doc), domain.ErrValidation)
	})

	t.Run("oversized body", func(t *testing.T) {
		doc := domain.Document{Sections: []domain.Section{{ID: "big", Content: strings.Repeat("x", domain.MaxSectionBytes+1)}}}
		assert.ErrorIs(t, domain.ValidateDocument(doc), domain.ErrValidation)
	})

	t.Run("variable names are case-insensitive", func(t *testing.T) {
		doc := domain.Document{Variables: map[string]string{"Language": "go"}}
		assert.NoError(t, domain.ValidateDocument(doc))

		doc.Variables["bad name"] = "x"
		assert.ErrorIs(t, domain.ValidateDocument(doc), domain.ErrValidation)
	})
}

func TestValidate_StructTags(t *testing.T) {
	type request struct {
		Slug string      `validate:"required,slug"`
		Kind domain.Kind `validate:"required,kind"`
	}

	assert.NoError(t, domain.Validate(request{Slug: "ok", Kind: domain.KindSkill}))

	err := domain.Validate(request{Slug: "Not OK", Kind: domain.KindSkill})
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, "slug", verr.Field)

	assert.ErrorIs(t, domain.Validate(request{Slug: "ok", Kind: "robot"}), domain.ErrValidation)
}
