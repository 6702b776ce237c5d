package main

import (
	"github.com/aretw0/forge"
	"github.com/aretw0/forge/internal/presentation/tui"
	"github.com/spf13/cobra"
)

func newVersionCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the forge version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipApp: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.json {
				return e.printJSON(map[string]string{"version": forge.Version})
			}
			if e.out.IsTerminal() {
				tui.PrintBanner(e.out.Writer(), forge.Version)
				return nil
			}
			e.out.Println("forge", forge.Version)
			return nil
		},
	}
}
