package main

import (
	"fmt"
	"path/filepath"

	forgeloam "github.com/aretw0/forge/pkg/adapters/loam"
	"github.com/aretw0/loam"
	"github.com/spf13/cobra"
)

func newImportCmd(e *env) *cobra.Command {
	var author string
	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "Import a vault of Markdown components",
		Long: `Import every Markdown file with a "kind" in its frontmatter.

New slugs are registered; changed documents are committed on the branch
named in the frontmatter (default main). Unchanged files are left alone,
so re-running an import is safe.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("invalid path: %w", err)
			}
			repo, err := loam.Init(abs,
				loam.WithStrict(true),
				loam.WithReadOnly(true),
			)
			if err != nil {
				return fmt.Errorf("failed to initialize loam: %w", err)
			}
			typed := loam.NewTypedRepository[forgeloam.ComponentMetadata](repo)

			f := e.app.Forge
			imp := forgeloam.New(typed, f.Registry(), f.VCS(),
				forgeloam.WithLogger(e.app.Logger),
				forgeloam.WithAuthor(actor(author)),
			)
			report, err := imp.Import(cmd.Context())
			if err != nil {
				return err
			}

			if e.json {
				if jerr := e.printJSON(importJSON(report)); jerr != nil {
					return jerr
				}
				return report.Err()
			}
			for _, r := range report.Files {
				switch r.Action {
				case forgeloam.ActionFailed:
					e.out.Printf("%s %s: %v\n", e.out.Danger(string(r.Action)), r.File, r.Err)
				case forgeloam.ActionSkipped, forgeloam.ActionUnchanged:
					e.out.Printf("%s %s\n", e.out.Muted(string(r.Action)), r.File)
				default:
					e.out.Printf("%s %s -> %s@%s\n", e.out.Success(string(r.Action)), r.File, r.Slug, r.Branch)
				}
			}
			e.out.Printf("%d registered, %d committed, %d unchanged, %d skipped, %d failed\n",
				report.Count(forgeloam.ActionRegistered),
				report.Count(forgeloam.ActionCommitted),
				report.Count(forgeloam.ActionUnchanged),
				report.Count(forgeloam.ActionSkipped),
				report.Count(forgeloam.ActionFailed))
			return report.Err()
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "Author for files without one (default: $USER)")
	return cmd
}

type importFileJSON struct {
	File     string `json:"file"`
	Slug     string `json:"slug,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Action   string `json:"action"`
	Sequence int64  `json:"sequence,omitempty"`
	Error    string `json:"error,omitempty"`
}

func importJSON(r forgeloam.ImportReport) []importFileJSON {
	out := make([]importFileJSON, 0, len(r.Files))
	for _, f := range r.Files {
		j := importFileJSON{File: f.File, Slug: f.Slug, Branch: f.Branch, Action: string(f.Action)}
		if f.Version != nil {
			j.Sequence = f.Version.Sequence
		}
		if f.Err != nil {
			j.Error = f.Err.Error()
		}
		out = append(out, j)
	}
	return out
}
