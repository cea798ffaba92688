package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "irrigation-monitor",
		Short: "Reconciles irrigation plans against what the controller actually watered",
		Long: `irrigation-monitor collects the controller's schedule and run records,
compares them and tells the operator about missed, failed or short runs.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newServeCmd(),
		newCollectCmd(),
		newReconcileCmd(),
		newZonesCmd(),
	)
	return root
}

// parseDates turns YYYY-MM-DD flags into days in loc; no flags means today.
func parseDates(values []string, loc *time.Location, now time.Time) ([]time.Time, error) {
	if len(values) == 0 {
		n := now.In(loc)
		return []time.Time{time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)}, nil
	}
	dates := make([]time.Time, 0, len(values))
	for _, v := range values {
		d, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", v)
		}
		dates = append(dates, d)
	}
	return dates, nil
}
