package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"irrigation_monitor/internal/app"
)

func newReconcileCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Print the reconciliation report of stored data for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := buildStack(ctx, stackOptions{})
			if err != nil {
				return err
			}
			defer st.Close()

			var values []string
			if date != "" {
				values = []string{date}
			}
			days, err := parseDates(values, st.loc, time.Now())
			if err != nil {
				return err
			}
			report, err := st.monitor.BuildReport(ctx, days[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.RenderReport(report))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to reconcile as YYYY-MM-DD, defaults to today")
	return cmd
}
