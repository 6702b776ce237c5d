package main

import (
	"strings"

	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/registry"
	"github.com/spf13/cobra"
)

func newComponentCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "component",
		Aliases: []string{"c"},
		Short:   "Register, list and archive components",
	}
	cmd.AddCommand(
		newComponentRegisterCmd(e),
		newComponentListCmd(e),
		newComponentShowCmd(e),
		newComponentUpdateCmd(e),
		newComponentArchiveCmd(e),
	)
	return cmd
}

func newComponentRegisterCmd(e *env) *cobra.Command {
	var (
		kind, name, description, file, author, message string
		tags                                           []string
	)
	cmd := &cobra.Command{
		Use:   "register <slug>",
		Short: "Register a component, optionally with its first version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := domain.ParseKind(kind)
			if err != nil {
				return err
			}
			req := registry.RegisterRequest{
				Slug:        args[0],
				Kind:        k,
				Name:        name,
				Description: description,
				Tags:        tags,
				Author:      actor(author),
				Message:     message,
			}
			if file != "" {
				doc, err := readDocument(file, cmd.InOrStdin())
				if err != nil {
					return err
				}
				req.Document = &doc
			}

			comp, v, err := e.app.Forge.Register(cmd.Context(), req)
			if err != nil {
				return err
			}
			if e.json {
				return e.printJSON(map[string]any{"component": comp, "version": v})
			}
			e.out.Printf("%s %s (%s)\n", e.out.Success("registered"), comp.Slug, comp.Kind)
			if v != nil {
				e.out.Printf("  %s@%s#%d %s\n", comp.Slug, v.Branch, v.Sequence, e.out.Muted(v.ID))
				for _, w := range v.Warnings {
					e.out.Println("  warning:", w)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Component kind: persona, skill, constraint, template or meta")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Tag (repeatable)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Initial document (.md, .yaml or .json; - for stdin)")
	cmd.Flags().StringVar(&author, "author", "", "Author of the initial version")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Message of the initial version")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func newComponentListCmd(e *env) *cobra.Command {
	var (
		f    registry.Filter
		kind string
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List components",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind != "" {
				k, err := domain.ParseKind(kind)
				if err != nil {
					return err
				}
				f.Kind = k
			}
			comps, err := e.app.Forge.Registry().List(cmd.Context(), f)
			if err != nil {
				return err
			}
			if e.json {
				return e.printJSON(comps)
			}
			if len(comps) == 0 {
				e.out.Println(e.out.Muted("no components"))
				return nil
			}
			for _, c := range comps {
				line := c.Slug + "  " + e.out.Muted(string(c.Kind))
				if len(c.Tags) > 0 {
					line += "  [" + strings.Join(c.Tags, ", ") + "]"
				}
				if c.Archived {
					line += "  " + e.out.Danger("archived")
				}
				e.out.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Only this kind")
	cmd.Flags().StringVarP(&f.Tag, "tag", "t", "", "Only components with this tag")
	cmd.Flags().StringVarP(&f.Search, "search", "s", "", "Substring of slug, name or description")
	cmd.Flags().BoolVar(&f.IncludeArchived, "archived", false, "Include archived components")
	return cmd
}

func newComponentShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <slug>",
		Short: "Show a component and its branches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := e.app.Forge.Registry().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			branches, err := e.app.Forge.VCS().ListBranches(cmd.Context(), comp.ID)
			if err != nil {
				return err
			}
			if e.json {
				return e.printJSON(map[string]any{"component": comp, "branches": branches})
			}
			e.out.Println(e.out.Heading(comp.Slug), e.out.Muted(string(comp.Kind)))
			if comp.Name != "" {
				e.out.Println(comp.Name)
			}
			if comp.Description != "" {
				e.out.Println(comp.Description)
			}
			if len(comp.Tags) > 0 {
				e.out.Println("tags:", strings.Join(comp.Tags, ", "))
			}
			printBranches(e, branches)
			return nil
		},
	}
}

func newComponentUpdateCmd(e *env) *cobra.Command {
	var (
		name, description, author string
		tags                      []string
	)
	cmd := &cobra.Command{
		Use:   "update <slug>",
		Short: "Change a component's name, description or tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := registry.UpdateRequest{Actor: actor(author)}
			if cmd.Flags().Changed("name") {
				req.Name = &name
			}
			if cmd.Flags().Changed("description") {
				req.Description = &description
			}
			if cmd.Flags().Changed("tag") {
				req.Tags = tags
			}
			comp, err := e.app.Forge.Registry().Update(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			if e.json {
				return e.printJSON(comp)
			}
			e.out.Println(e.out.Success("updated"), comp.Slug)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Replace the tags (repeatable)")
	cmd.Flags().StringVar(&author, "author", "", "Actor recorded in the audit trail")
	return cmd
}

func newComponentArchiveCmd(e *env) *cobra.Command {
	var author string
	cmd := &cobra.Command{
		Use:   "archive <slug>",
		Short: "Archive a component",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := e.app.Forge.Registry().Archive(cmd.Context(), args[0], actor(author))
			if err != nil {
				return err
			}
			if e.json {
				return e.printJSON(comp)
			}
			e.out.Println(e.out.Success("archived"), comp.Slug)
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "Actor recorded in the audit trail")
	return cmd
}
