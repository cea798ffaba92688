package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"irrigation_monitor/internal/infra/zoneconfig"
)

func newZonesCmd() *cobra.Command {
	file := os.Getenv("ZONES_FILE")
	if file == "" {
		file = "zones.yaml"
	}

	cmd := &cobra.Command{
		Use:   "zones",
		Short: "Show the zone catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, fromFile, err := zoneconfig.Load(file)
			if err != nil {
				return err
			}
			t := table.NewWriter()
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Name", "Priority", "Max hours dry", "GPM", "Plants"})
			for _, z := range catalog.Zones() {
				t.AppendRow(table.Row{z.ID, z.Name, z.Priority, z.Priority.MaxHoursWithoutWater(), strconv.FormatFloat(z.FlowRateGPM, 'f', -1, 64), z.PlantType})
			}
			source := file
			if !fromFile {
				source = "built-in defaults"
			}
			t.SetTitle(fmt.Sprintf("Zones (%s)", source))
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&file, "file", file, "zone catalog file")

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the built-in zone catalog to the zone file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(file); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", file)
			}
			if err := zoneconfig.Write(file, zoneconfig.Defaults()); err != nil {
				return fmt.Errorf("could not write %s: %w", file, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d zones to %s\n", len(zoneconfig.Defaults()), file)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
