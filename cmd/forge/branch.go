package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/forge/pkg/differ"
	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/vcs"
	"github.com/spf13/cobra"
)

func newBranchCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "branch",
		Aliases: []string{"br"},
		Short:   "Create, list, merge and abandon branches",
	}
	cmd.AddCommand(
		newBranchCreateCmd(e),
		newBranchListCmd(e),
		newBranchMergeCmd(e),
		newBranchAbandonCmd(e),
	)
	return cmd
}

func newBranchCreateCmd(e *env) *cobra.Command {
	var from, author string
	cmd := &cobra.Command{
		Use:   "create <slug> <name>",
		Short: "Start a branch at the head of another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := e.app.Forge.Registry().Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			b, err := e.app.Forge.VCS().CreateBranch(cmd.Context(), comp.ID, args[1], from, actor(author))
			if err != nil {
				return err
			}
			if e.json {
				return e.printJSON(b)
			}
			e.out.Printf("%s %s@%s from %s\n", e.out.Success("created"), comp.Slug, b.Name, from)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", domain.DefaultBranch, "Source branch")
	cmd.Flags().StringVar(&author, "author", "", "Actor recorded in the audit trail")
	return cmd
}

func newBranchListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "list <slug>",
		Aliases: []string{"ls"},
		Short:   "List a component's branches",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := e.component(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			branches, err := e.app.Forge.VCS().ListBranches(cmd.Context(), comp.ID)
			if err != nil {
				return err
			}
			if e.json {
				return e.printJSON(branches)
			}
			printBranches(e, branches)
			return nil
		},
	}
}

func printBranches(e *env, branches []domain.Branch) {
	for _, b := range branches {
		status := string(b.Status)
		if b.IsActive() {
			status = e.out.Success(status)
		} else {
			status = e.out.Muted(status)
		}
		e.out.Printf("  %s  #%d  %s\n", b.Name, b.HeadSequence, status)
	}
}

func newBranchMergeCmd(e *env) *cobra.Command {
	var into, strategy, author string
	cmd := &cobra.Command{
		Use:   "merge <slug> <source>",
		Short: "Merge a branch into another",
		Long: `Merge a source branch into the target.

Strategies:
  ours           keep the target; only mark the source merged
  theirs         commit the source document onto the target
  section_merge  take each section from whichever side changed it; fail on overlap
  manual         never merge; print the diff`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := e.app.Forge.Registry().Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res, err := e.app.Forge.VCS().MergeBranch(cmd.Context(), vcs.MergeRequest{
				ComponentID: comp.ID,
				Source:      args[1],
				Target:      into,
				Strategy:    domain.MergeStrategy(strategy),
				Author:      actor(author),
			})
			var conflict *domain.MergeConflictError
			if errors.As(err, &conflict) {
				printConflict(e, conflict)
				return err
			}
			if err != nil {
				return err
			}
			if e.json {
				return e.printJSON(res)
			}
			if res.Version != nil {
				e.out.Printf("%s %s into %s: %s@%s#%d\n", e.out.Success("merged"), args[1], into, comp.Slug, res.Version.Branch, res.Version.Sequence)
			} else {
				e.out.Printf("%s %s into %s: target unchanged\n", e.out.Success("merged"), args[1], into)
			}
			e.out.Println(e.out.Muted(differ.Summary(res.Changes)))
			return nil
		},
	}
	cmd.Flags().StringVar(&into, "into", domain.DefaultBranch, "Target branch")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", string(domain.MergeSectionMerge), "ours, theirs, section_merge or manual")
	cmd.Flags().StringVar(&author, "author", "", "Author of the merge version")
	return cmd
}

func printConflict(e *env, c *domain.MergeConflictError) {
	if e.json {
		_ = e.printJSON(map[string]any{"strategy": c.Strategy, "conflicts": c.Conflicts, "changes": c.Changes})
		return
	}
	for _, k := range c.Conflicts {
		e.out.Println(e.out.Danger(fmt.Sprintf("conflict: %s", k.Key())))
	}
	if !c.Changes.IsEmpty() {
		e.out.Println(e.out.Diff(differ.Render(c.Changes)))
	}
}

func newBranchAbandonCmd(e *env) *cobra.Command {
	var author string
	cmd := &cobra.Command{
		Use:   "abandon <slug> <name>",
		Short: "Close a branch without merging it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := e.app.Forge.Registry().Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			b, err := e.app.Forge.VCS().AbandonBranch(cmd.Context(), comp.ID, args[1], actor(author))
			if err != nil {
				return err
			}
			if e.json {
				return e.printJSON(b)
			}
			e.out.Println(e.out.Success("abandoned"), comp.Slug+"@"+b.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "Actor recorded in the audit trail")
	return cmd
}
