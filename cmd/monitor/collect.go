package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"irrigation_monitor/internal/domain/collection"
)

func newCollectCmd() *cobra.Command {
	var dates []string
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run one collection cycle and exit",
		Long: `Collects, stores and reconciles the given days once, notifying about new
alerts exactly like a scheduled cycle. Meant for cron or systemd timers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := buildStack(ctx, stackOptions{notify: true})
			if err != nil {
				return err
			}
			defer st.Close()

			days, err := parseDates(dates, st.loc, time.Now())
			if err != nil {
				return err
			}
			rec, err := st.monitor.RunCycle(ctx, collection.CycleManual, days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s cycle for %v: %s (scheduled %d, actual %d, alerts %d)\n",
				rec.Type, rec.Dates, rec.Outcome, rec.ScheduledCollected, rec.ActualCollected, rec.AlertsRaised)
			for _, e := range rec.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "  error: %s\n", e)
			}
			if rec.Outcome == collection.OutcomeFailed {
				return fmt.Errorf("collection failed (%s)", rec.FailureKind)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&dates, "date", nil, "day to collect as YYYY-MM-DD; repeatable, defaults to today")
	return cmd
}
