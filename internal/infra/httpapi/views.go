package httpapi

import (
	"time"

	"irrigation_monitor/internal/app"
	"irrigation_monitor/internal/domain/alert"
	"irrigation_monitor/internal/domain/collection"
)

type cadenceView struct {
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	LastAttempt         *time.Time `json:"last_attempt,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Escalated           bool       `json:"escalated"`
}

type cycleView struct {
	Type        string    `json:"type"`
	Outcome     string    `json:"outcome"`
	FailureKind string    `json:"failure_kind,omitempty"`
	Dates       []string  `json:"dates"`
	TriggeredAt time.Time `json:"triggered_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Scheduled   int       `json:"scheduled_collected"`
	Actual      int       `json:"actual_collected"`
	Alerts      int       `json:"alerts_raised"`
	Errors      []string  `json:"errors,omitempty"`
}

type rateView struct {
	Category  string     `json:"category"`
	Used      int        `json:"used"`
	Limit     int        `json:"limit"`
	Remaining int        `json:"remaining"`
	WindowSec float64    `json:"window_seconds"`
	NextReset *time.Time `json:"next_reset,omitempty"`
}

type statusView struct {
	Running          bool        `json:"running"`
	Paused           bool        `json:"paused"`
	NextDaily        *time.Time  `json:"next_daily,omitempty"`
	NextPeriodic     *time.Time  `json:"next_periodic,omitempty"`
	ActiveAlertCount int         `json:"active_alerts"`
	LastDailyDate    string      `json:"last_daily_date,omitempty"`
	Daily            cadenceView `json:"daily"`
	Periodic         cadenceView `json:"periodic"`
	LastCycle        *cycleView  `json:"last_cycle,omitempty"`
	RateLimits       []rateView  `json:"rate_limits"`
}

func optTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func newCadenceView(c collection.CadenceStatus) cadenceView {
	return cadenceView{
		LastSuccess:         optTime(c.LastSuccess),
		LastAttempt:         optTime(c.LastAttempt),
		ConsecutiveFailures: c.ConsecutiveFailures,
		Escalated:           c.Escalated,
	}
}

func newCycleView(rec *collection.CycleRecord) *cycleView {
	if rec == nil {
		return nil
	}
	return &cycleView{
		Type:        string(rec.Type),
		Outcome:     string(rec.Outcome),
		FailureKind: rec.FailureKind,
		Dates:       rec.Dates,
		TriggeredAt: rec.TriggeredAt,
		FinishedAt:  rec.FinishedAt,
		Scheduled:   rec.ScheduledCollected,
		Actual:      rec.ActualCollected,
		Alerts:      rec.AlertsRaised,
		Errors:      rec.Errors,
	}
}

func newStatusView(st app.SystemStatus) statusView {
	sch := st.Scheduler
	v := statusView{
		Running:          sch.Running,
		Paused:           sch.Paused,
		NextDaily:        optTime(sch.NextDaily),
		NextPeriodic:     optTime(sch.NextPeriodic),
		ActiveAlertCount: sch.ActiveAlertCount,
		LastDailyDate:    sch.LastDailyDate,
		Daily:            newCadenceView(sch.Daily),
		Periodic:         newCadenceView(sch.Periodic),
		LastCycle:        newCycleView(sch.LastCycle),
		RateLimits:       []rateView{},
	}
	for _, u := range st.RateLimits {
		v.RateLimits = append(v.RateLimits, rateView{
			Category:  string(u.Category),
			Used:      u.Used,
			Limit:     u.Limit,
			Remaining: u.Remaining,
			WindowSec: u.Window.Seconds(),
			NextReset: optTime(u.NextReset),
		})
	}
	return v
}

type alertView struct {
	ID             string     `json:"id"`
	SupersedesID   string     `json:"supersedes_id,omitempty"`
	ZoneID         string     `json:"zone_id"`
	ZoneName       string     `json:"zone_name,omitempty"`
	Type           string     `json:"type"`
	Severity       string     `json:"severity"`
	Description    string     `json:"description"`
	Action         string     `json:"action,omitempty"`
	RunDate        string     `json:"run_date"`
	RunStart       time.Time  `json:"run_start"`
	DeficitGallons *float64   `json:"deficit_gallons,omitempty"`
	DetectedAt     time.Time  `json:"detected_at"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

func newAlertView(a *alert.Alert) alertView {
	return alertView{
		ID:             a.ID,
		SupersedesID:   a.SupersedesID,
		ZoneID:         a.ZoneID,
		ZoneName:       a.ZoneName,
		Type:           string(a.Type),
		Severity:       string(a.Severity),
		Description:    a.Description,
		Action:         a.Action,
		RunDate:        a.RunDate,
		RunStart:       a.RunStart,
		DeficitGallons: a.DeficitGallons,
		DetectedAt:     a.DetectedAt,
		Acknowledged:   a.Acknowledged,
		AcknowledgedAt: a.AcknowledgedAt,
		ResolvedAt:     a.ResolvedAt,
	}
}

type refreshView struct {
	Ran         bool       `json:"ran"`
	Stale       bool       `json:"stale"`
	Reason      string     `json:"reason"`
	PlanStale   bool       `json:"plan_stale"`
	RecordStale bool       `json:"record_stale"`
	LastCycle   *cycleView `json:"last_cycle,omitempty"`
	Cycle       *cycleView `json:"cycle,omitempty"`
}

func newRefreshView(res *app.RefreshResult) refreshView {
	return refreshView{
		Ran:         res.Ran,
		Stale:       res.Freshness.Stale,
		Reason:      res.Freshness.Reason,
		PlanStale:   res.Freshness.Plan.Stale,
		RecordStale: res.Freshness.Record.Stale,
		LastCycle:   newCycleView(res.Freshness.Last),
		Cycle:       newCycleView(res.Record),
	}
}

type reportView struct {
	AsOf             time.Time   `json:"as_of"`
	Status           string      `json:"status"`
	ZonesEvaluated   int         `json:"zones_evaluated"`
	HealthyZones     int         `json:"healthy_zones"`
	WarningZones     int         `json:"warning_zones"`
	FailedZones      int         `json:"failed_zones"`
	ExpectedGallons  float64     `json:"expected_gallons"`
	DeliveredGallons float64     `json:"delivered_gallons"`
	Efficiency       float64     `json:"efficiency_pct"`
	Alerts           []alertView `json:"alerts"`
	ZoneErrors       []string    `json:"zone_errors,omitempty"`
}

func newReportView(r *alert.Report) reportView {
	v := reportView{
		AsOf:             r.AsOf,
		Status:           string(r.Status),
		ZonesEvaluated:   r.ZonesEvaluated,
		HealthyZones:     r.HealthyZones,
		WarningZones:     r.WarningZones,
		FailedZones:      r.FailedZones,
		ExpectedGallons:  r.ExpectedGallons,
		DeliveredGallons: r.DeliveredGallons,
		Efficiency:       r.Efficiency,
		Alerts:           make([]alertView, 0, len(r.Alerts)),
	}
	for i := range r.Alerts {
		v.Alerts = append(v.Alerts, newAlertView(&r.Alerts[i]))
	}
	for _, ze := range r.ZoneErrors {
		v.ZoneErrors = append(v.ZoneErrors, ze.Error())
	}
	return v
}
