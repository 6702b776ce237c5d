package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/forge/internal/cli"
	"github.com/aretw0/forge/internal/config"
	"github.com/aretw0/forge/internal/presentation/tui"
	"github.com/aretw0/forge/pkg/domain"
	"github.com/spf13/cobra"
)

// env is the state shared by every command of one invocation.
type env struct {
	app  *cli.App
	out  *tui.Printer
	json bool
}

func (e *env) printJSON(v any) error {
	enc := json.NewEncoder(e.out.Writer())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// component resolves slug for read commands; archived components stay readable.
func (e *env) component(ctx context.Context, slug string) (domain.Component, error) {
	return e.app.Forge.Registry().Get(ctx, slug)
}

const skipApp = "skip-app"

// close releases the App opened for this invocation, if any.
func (e *env) close() error {
	if e.app == nil {
		return nil
	}
	err := e.app.Close()
	e.app = nil
	return err
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "forge",
		Short:         "Forge versions prompt components and composes them",
		Long:          `Forge keeps an append-only history of structured prompt documents per component and branch, and assembles several of them into one prompt with a reproducibility manifest.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			e.out = tui.NewPrinter(cmd.OutOrStdout())
			if cmd.Annotations[skipApp] == "true" {
				return nil
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			app, err := cli.Open(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
			}
			e.app = app
			if cfg.Metrics.Addr != "" {
				app.ServeMetrics(cmd.Context(), cfg.Metrics.Addr)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to forge.yaml (default: searched upward from the working directory)")
	flags.String("store", "", "Store driver: memory, sqlite, badger or redis")
	flags.String("path", "", "Database path for the sqlite and badger drivers")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.BoolVar(&e.json, "json", false, "Print machine-readable JSON")

	root.AddCommand(
		newComponentCmd(e),
		newCommitCmd(e),
		newLogCmd(e),
		newShowCmd(e),
		newDiffCmd(e),
		newRollbackCmd(e),
		newBranchCmd(e),
		newComposeCmd(e),
		newImportCmd(e),
		newAuditCmd(e),
		newUsageCmd(e),
		newVersionCmd(e),
	)
	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, _, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	overrides := map[string]*string{
		"store":        &cfg.Store.Driver,
		"path":         &cfg.Store.Path,
		"log-level":    &cfg.Log.Level,
		"metrics-addr": &cfg.Metrics.Addr,
	}
	for name, dst := range overrides {
		if cmd.Flags().Changed(name) {
			*dst, _ = cmd.Flags().GetString(name)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run executes the command tree and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	e := &env{}
	root := newRootCmd(e)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if cerr := e.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

func main() {
	ctx := cli.NewSignalContext(context.Background())
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	ctx.Cancel()
	os.Exit(code)
}
