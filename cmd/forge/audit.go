package main

import (
	"time"

	"github.com/aretw0/forge/pkg/audit"
	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/ports"
	"github.com/spf13/cobra"
)

func newAuditCmd(e *env) *cobra.Command {
	var f audit.Filter
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the audit trail, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := e.app.Forge.Audit().Query(cmd.Context(), f)
			if err != nil {
				return err
			}
			if e.json {
				return e.printJSON(entries)
			}
			for _, en := range entries {
				e.out.Printf("%s  %-22s %v %s %s\n",
					e.out.Muted(en.CreatedAt.Format(time.RFC3339)),
					en.Action,
					en.Details["slug"],
					e.out.Muted(en.EntityID),
					en.Actor)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Action, "action", "", "Only this action, e.g. version.committed")
	cmd.Flags().StringVar(&f.Slug, "component", "", "Only entries for this component slug")
	cmd.Flags().StringVar(&f.Actor, "actor", "", "Only this actor")
	cmd.Flags().IntVarP(&f.Limit, "limit", "n", audit.DefaultQueryLimit, "Maximum entries")
	return cmd
}

func newUsageCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Record prompt outcomes for best_performing resolution",
	}
	cmd.AddCommand(newUsageRecordCmd(e))
	return cmd
}

func newUsageRecordCmd(e *env) *cobra.Command {
	var (
		failed  bool
		latency time.Duration
	)
	cmd := &cobra.Command{
		Use:   "record <version-id>",
		Short: "Record one success or failure for a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := e.app.Forge.VCS().GetVersionByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rec := ports.UsageRecord{
				ComponentID: v.ComponentID,
				VersionID:   v.ID,
				Success:     !failed,
				Latency:     latency,
				RecordedAt:  time.Now().UTC(),
			}
			if err := e.app.Usage.Record(cmd.Context(), rec); err != nil {
				return domain.Unavailable(err)
			}
			if !e.json {
				outcome := e.out.Success("success")
				if failed {
					outcome = e.out.Danger("failure")
				}
				e.out.Println("recorded", outcome, "for", v.ID)
				return nil
			}
			return e.printJSON(map[string]any{"version_id": v.ID, "success": !failed})
		},
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "Record a failure instead of a success")
	cmd.Flags().DurationVar(&latency, "latency", 0, "Observed latency")
	return cmd
}
