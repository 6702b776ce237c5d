package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/forge/pkg/differ"
	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/vcs"
	"github.com/spf13/cobra"
)

func newCommitCmd(e *env) *cobra.Command {
	var (
		file, branch, message, author, parent string
	)
	cmd := &cobra.Command{
		Use:   "commit <slug>",
		Short: "Commit a new version of a component",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			req := vcs.CommitRequest{
				Branch:   branch,
				Document: doc,
				Message:  message,
				Author:   actor(author),
			}
			if cmd.Flags().Changed("parent") {
				req.ExpectedParent = &parent
			}
			v, err := e.app.Forge.Commit(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			if e.json {
				return e.printJSON(v)
			}
			e.out.Printf("%s %s@%s#%d %s\n", e.out.Success("committed"), args[0], v.Branch, v.Sequence, e.out.Muted(v.ID))
			for _, w := range v.Warnings {
				e.out.Println("  warning:", w)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Document (.md, .yaml or .json; - for stdin)")
	cmd.Flags().StringVarP(&branch, "branch", "b", domain.DefaultBranch, "Branch to commit to")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message")
	cmd.Flags().StringVar(&author, "author", "", "Author (default: $USER)")
	cmd.Flags().StringVar(&parent, "parent", "", "Fail unless the branch head is this version id")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newLogCmd(e *env) *cobra.Command {
	var (
		branch string
		limit  int
		before int64
	)
	cmd := &cobra.Command{
		Use:   "log <slug>",
		Short: "List versions on a branch, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := e.component(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			page, err := e.app.Forge.VCS().History(cmd.Context(), comp.ID, branch, vcs.HistoryOptions{Limit: limit, BeforeSequence: before})
			if err != nil {
				return err
			}
			if e.json {
				return e.printJSON(page)
			}
			for _, v := range page.Versions {
				e.out.Printf("%s %s %s %s\n",
					e.out.Heading(fmt.Sprintf("#%d", v.Sequence)),
					e.out.Muted(v.ID),
					v.CreatedAt.Format("2006-01-02 15:04"),
					v.Author)
				if v.Message != "" {
					e.out.Println("    " + v.Message)
				}
			}
			if page.NextBefore > 0 {
				e.out.Println(e.out.Muted(fmt.Sprintf("more: --before %d", page.NextBefore)))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&branch, "branch", "b", domain.DefaultBranch, "Branch")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Page size")
	cmd.Flags().Int64Var(&before, "before", 0, "Only versions below this sequence")
	return cmd
}

func newShowCmd(e *env) *cobra.Command {
	var branch string
	cmd := &cobra.Command{
		Use:   "show <slug> [sequence]",
		Short: "Print a version's document (default: the branch head)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := e.component(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var v domain.Version
			if len(args) == 2 {
				seq, perr := parseSequence(args[1])
				if perr != nil {
					return perr
				}
				v, err = e.app.Forge.VCS().GetVersion(cmd.Context(), comp.ID, branch, seq)
			} else {
				v, err = e.app.Forge.VCS().Head(cmd.Context(), comp.ID, branch)
			}
			if err != nil {
				return err
			}
			if e.json {
				return e.printJSON(v)
			}
			e.out.Println(e.out.Muted(fmt.Sprintf("%s@%s#%d %s", comp.Slug, v.Branch, v.Sequence, v.ID)))
			e.out.Println(e.out.Markdown(documentMarkdown(v.Document)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&branch, "branch", "b", domain.DefaultBranch, "Branch")
	return cmd
}

// documentMarkdown lays a document out as Markdown, one heading per section.
func documentMarkdown(doc domain.Document) string {
	var b strings.Builder
	for i, s := range doc.Sections {
		if i > 0 {
			b.WriteString("\n")
		}
		label := s.Label
		if label == "" {
			label = s.ID
		}
		fmt.Fprintf(&b, "## %s {#%s}\n\n%s\n", label, s.ID, strings.TrimRight(s.Content, "\n"))
	}
	return b.String()
}

func newDiffCmd(e *env) *cobra.Command {
	var branch string
	cmd := &cobra.Command{
		Use:   "diff <slug> <from> <to>",
		Short: "Show the section-level diff between two versions",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := e.component(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			from, err := parseSequence(args[1])
			if err != nil {
				return err
			}
			to, err := parseSequence(args[2])
			if err != nil {
				return err
			}
			d, err := e.app.Forge.VCS().Diff(cmd.Context(), comp.ID, branch, from, to)
			if err != nil {
				return err
			}
			if e.json {
				return e.printJSON(d)
			}
			e.out.Println(e.out.Heading(differ.Summary(d)))
			if !d.IsEmpty() {
				e.out.Println(e.out.Diff(differ.Render(d)))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&branch, "branch", "b", domain.DefaultBranch, "Branch")
	return cmd
}

func newRollbackCmd(e *env) *cobra.Command {
	var author string
	cmd := &cobra.Command{
		Use:   "rollback <slug> <version-id>",
		Short: "Commit a copy of an earlier version on top of its branch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := e.app.Forge.Registry().Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			v, err := e.app.Forge.VCS().Rollback(cmd.Context(), comp.ID, args[1], actor(author))
			if err != nil {
				return err
			}
			if e.json {
				return e.printJSON(v)
			}
			e.out.Printf("%s %s@%s#%d %s\n", e.out.Success("rolled back"), comp.Slug, v.Branch, v.Sequence, e.out.Muted(v.ID))
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "Author (default: $USER)")
	return cmd
}
