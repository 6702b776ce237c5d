/*
Package forge is a revision-control system for structured prompt documents and an engine that composes them.

A component (persona, skill, constraint, template or meta) owns an append-only log of versions per branch. Each version holds a Document: ordered sections plus variable defaults. Composition resolves several components to concrete versions, assembles their sections and records a manifest that reproduces the output byte for byte.

# Architecture

Forge follows a hexagonal layout. The engines in pkg/vcs, pkg/registry, pkg/resolver and pkg/compose only talk to storage through the narrow ports.KVStore port (insert-if-absent, compare-and-swap, ordered scan). Adapters exist for memory, Redis, Badger and SQLite. Concurrent writers are serialised by compare-and-swap at that boundary; there are no in-process locks.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/forge"
		"github.com/aretw0/forge/pkg/compose"
		"github.com/aretw0/forge/pkg/domain"
		"github.com/aretw0/forge/pkg/registry"
	)

	func main() {
		ctx := context.Background()
		f := forge.New()
		defer f.Close()

		doc := domain.Document{Sections: []domain.Section{{ID: "identity", Content: "You are a reviewer"}}}
		if _, _, err := f.Register(ctx, registry.RegisterRequest{
			Slug: "code-reviewer", Kind: domain.KindPersona, Document: &doc,
		}); err != nil {
			log.Fatal(err)
		}

		res, err := f.Compose(ctx, compose.Request{Persona: "code-reviewer"})
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(res.Rendered)
	}

# Hooks

Every durable mutation emits a domain.MutationEvent. Forge chains metrics, the audit trail, event publishing and any WithLifecycleHooks hooks, in that order. Hooks run after the write and never change its outcome.
*/
package forge
