package forge_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/forge"
	"github.com/aretw0/forge/pkg/compose"
	"github.com/aretw0/forge/pkg/differ"
	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/registry"
	"github.com/aretw0/forge/pkg/vcs"
)

// ExampleNew registers two components, revises one and composes them.
func ExampleNew() {
	ctx := context.Background()
	f := forge.New()
	defer f.Close()

	persona := domain.Document{
		Sections:  []domain.Section{{ID: "identity", Content: "You are a {{tone}} reviewer."}},
		Variables: map[string]string{"tone": "careful"},
	}
	reviewer, _, err := f.Register(ctx, registry.RegisterRequest{Slug: "code-reviewer", Kind: domain.KindPersona, Document: &persona})
	if err != nil {
		log.Fatal(err)
	}

	skill := domain.Document{Sections: []domain.Section{{ID: "go", Content: "Prefer small interfaces."}}}
	if _, _, err := f.Register(ctx, registry.RegisterRequest{Slug: "go-expert", Kind: domain.KindSkill, Document: &skill}); err != nil {
		log.Fatal(err)
	}

	persona.Sections[0].Content = "You are a {{tone}} senior reviewer."
	if _, err := f.Commit(ctx, "code-reviewer", vcs.CommitRequest{Document: persona, Message: "promote"}); err != nil {
		log.Fatal(err)
	}

	d, err := f.VCS().Diff(ctx, reviewer.ID, "main", 1, 2)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(differ.Summary(d))

	res, err := f.Compose(ctx, compose.Request{
		Persona:   "code-reviewer",
		Skills:    []string{"go-expert"},
		Variables: map[string]string{"tone": "friendly"},
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.Rendered)
	for _, c := range res.Manifest.Components {
		fmt.Printf("%s@%s#%d\n", c.Slug, c.Branch, c.Sequence)
	}

	// Output:
	// 1 section(s) modified
	// You are a friendly senior reviewer.
	//
	// Prefer small interfaces.
	// code-reviewer@main#2
	// go-expert@main#1
}
