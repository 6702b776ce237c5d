package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/forge/pkg/compose"
	"github.com/aretw0/forge/pkg/domain"
	"github.com/spf13/cobra"
)

func newComposeCmd(e *env) *cobra.Command {
	var (
		persona, strategy, branch, manifestOut, replay string
		skills, constraints, vars, pins                []string
		enforce                                        bool
	)
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Assemble components into one prompt",
		Example: `  forge compose --persona code-reviewer --skill go-expert --var tone=calm
  forge compose --persona code-reviewer --pin code-reviewer=3 --manifest run.json
  forge compose --replay run.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				res compose.Result
				err error
			)
			if replay != "" {
				m, rerr := readManifest(replay)
				if rerr != nil {
					return rerr
				}
				res, err = e.app.Forge.Composer().Replay(cmd.Context(), m)
			} else {
				res, err = composeRequest(e, cmd, persona, strategy, branch, skills, constraints, vars, pins, enforce)
			}
			if err != nil {
				return err
			}

			if manifestOut != "" {
				if err := writeManifest(manifestOut, res.Manifest); err != nil {
					return err
				}
			}
			if e.json {
				return e.printJSON(map[string]any{"rendered": res.Rendered, "manifest": res.Manifest})
			}
			e.out.Println(e.out.Markdown(res.Rendered))
			for _, w := range res.Manifest.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "~%d tokens from %d component(s)\n", res.Manifest.EstimatedTokens, len(res.Manifest.Components))
			return nil
		},
	}
	cmd.Flags().StringVarP(&persona, "persona", "p", "", "Persona slug")
	cmd.Flags().StringSliceVarP(&skills, "skill", "s", nil, "Skill slug (repeatable, in order)")
	cmd.Flags().StringSliceVarP(&constraints, "constraint", "c", nil, "Constraint slug (repeatable, in order)")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "Variable as name=value (repeatable)")
	cmd.Flags().StringVar(&strategy, "strategy", string(domain.ResolveLatest), "latest, pinned or best_performing")
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "Resolve versions from this branch")
	cmd.Flags().StringArrayVar(&pins, "pin", nil, "Pin a component as slug=sequence (repeatable)")
	cmd.Flags().BoolVar(&enforce, "enforce-budget", false, "Fail when the prompt exceeds the token limit")
	cmd.Flags().StringVar(&manifestOut, "manifest", "", "Write the manifest to this file")
	cmd.Flags().StringVar(&replay, "replay", "", "Recompose exactly from a saved manifest")
	cmd.MarkFlagsMutuallyExclusive("replay", "persona")
	cmd.MarkFlagsMutuallyExclusive("replay", "skill")
	cmd.MarkFlagsMutuallyExclusive("replay", "constraint")
	return cmd
}

func composeRequest(e *env, cmd *cobra.Command, persona, strategy, branch string, skills, constraints, vars, pins []string, enforce bool) (compose.Result, error) {
	variables, err := parsePairs("var", vars)
	if err != nil {
		return compose.Result{}, err
	}
	pinned, err := parsePins(pins)
	if err != nil {
		return compose.Result{}, err
	}
	if branch == "" {
		branch = e.app.Config.Compose.DefaultBranch
	}
	return e.app.Forge.Compose(cmd.Context(), compose.Request{
		Persona:     persona,
		Skills:      skills,
		Constraints: constraints,
		Variables:   variables,
		Resolution: compose.Resolution{
			Strategy: domain.ResolveStrategy(strategy),
			Branch:   branch,
			Pins:     pinned,
		},
		EnforceTokenBudget: enforce || e.app.Config.Compose.EnforceBudget,
	})
}

func readManifest(path string) (domain.Manifest, error) {
	var m domain.Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, &domain.ValidationError{Field: "manifest", Reason: err.Error()}
	}
	return m, nil
}

func writeManifest(path string, m domain.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
