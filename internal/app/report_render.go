package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"irrigation_monitor/internal/domain/alert"
)

// RenderReport formats a reconciliation report as plain text: a summary
// table followed by critical and then warning alerts.
func RenderReport(r *alert.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Irrigation report as of %s\n", r.AsOf.Format("2006-01-02 15:04"))

	summary := table.NewWriter()
	summary.SetStyle(table.StyleLight)
	summary.AppendRows([]table.Row{
		{"System status", r.Status},
		{"Zones evaluated", r.ZonesEvaluated},
		{"Healthy / warning / failed", fmt.Sprintf("%d / %d / %d", r.HealthyZones, r.WarningZones, r.FailedZones)},
		{"Water scheduled", fmt.Sprintf("%.1f gal", r.ExpectedGallons)},
		{"Water delivered", fmt.Sprintf("%.1f gal", r.DeliveredGallons)},
		{"Efficiency", fmt.Sprintf("%.1f%%", r.Efficiency)},
	})
	b.WriteString(summary.Render())
	b.WriteString("\n")

	if len(r.Alerts) == 0 {
		b.WriteString("\nNo discrepancies found.\n")
	}
	for _, sev := range []alert.Severity{alert.SeverityCritical, alert.SeverityWarning} {
		section := alertTable(r.Alerts, sev)
		if section == nil {
			continue
		}
		fmt.Fprintf(&b, "\n%s alerts (%d)\n", sev, r.Count(sev))
		b.WriteString(section.Render())
		b.WriteString("\n")
	}

	if len(r.ZoneErrors) > 0 {
		b.WriteString("\nZones skipped:\n")
		for _, ze := range r.ZoneErrors {
			fmt.Fprintf(&b, "  - %s\n", ze.Error())
		}
	}
	return b.String()
}

func alertTable(alerts []alert.Alert, sev alert.Severity) table.Writer {
	var rows []table.Row
	for i := range alerts {
		a := &alerts[i]
		if a.Severity != sev {
			continue
		}
		deficit := ""
		if a.DeficitGallons != nil && *a.DeficitGallons > 0 {
			deficit = fmt.Sprintf("%.1f gal", *a.DeficitGallons)
		}
		rows = append(rows, table.Row{a.ZoneLabel(), typeTitle[a.Type], a.Description, a.PlantRisk, deficit, a.Action})
	}
	if len(rows) == 0 {
		return nil
	}
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Zone", "Type", "Detail", "Risk", "Deficit", "Action"})
	t.AppendRows(rows)
	return t
}

// RenderStatus formats the combined scheduler and quota status.
func RenderStatus(st SystemStatus, loc *time.Location) string {
	s := st.Scheduler
	state := "running"
	switch {
	case !s.Running:
		state = "stopped"
	case s.Paused:
		state = "paused"
	}
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"Scheduler", state},
		{"Next daily", formatTime(s.NextDaily, loc)},
		{"Next periodic", formatTime(s.NextPeriodic, loc)},
		{"Last daily date", orDash(s.LastDailyDate)},
		{"Active alerts", s.ActiveAlertCount},
		{"Daily failures", s.Daily.ConsecutiveFailures},
		{"Periodic failures", s.Periodic.ConsecutiveFailures},
		{"Escalated", s.Escalated()},
	})
	if s.LastCycle != nil {
		t.AppendRow(table.Row{"Last cycle", fmt.Sprintf("%s %s at %s", s.LastCycle.Type, s.LastCycle.Outcome, formatTime(s.LastCycle.FinishedAt, loc))})
	}
	out := t.Render()

	if len(st.RateLimits) > 0 {
		rt := table.NewWriter()
		rt.SetStyle(table.StyleLight)
		rt.AppendHeader(table.Row{"Category", "Used", "Limit", "Remaining", "Next reset"})
		for _, u := range st.RateLimits {
			rt.AppendRow(table.Row{u.Category, u.Used, u.Limit, u.Remaining, formatTime(u.NextReset, loc)})
		}
		out += "\n" + rt.Render()
	}
	return out
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("2006-01-02 15:04")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
