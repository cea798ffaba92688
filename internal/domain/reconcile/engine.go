// internal/domain/reconcile/engine.go
package reconcile

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"irrigation_monitor/internal/domain/alert"
	"irrigation_monitor/internal/domain/irrigation"
)

const (
	actionMissing    = "Manually run zone immediately or check controller status"
	actionUnexpected = "Verify if manual override was intended, check schedule accuracy"
	actionFailed     = "Check sensors, investigate failure cause, manually run if needed"
	actionVolume     = "Check flow sensors, inspect for clogs or leaks"
	actionDuration   = "Check for early shutoff, sensor issues, or manual intervention"
)

// Engine reconciles a day's plan against its record. It holds no state
// between calls and is safe for concurrent use.
type Engine struct {
	th    Thresholds
	zones *irrigation.ZoneCatalog
}

func NewEngine(th Thresholds, zones *irrigation.ZoneCatalog) *Engine {
	return &Engine{th: th, zones: zones}
}

func (e *Engine) Thresholds() Thresholds { return e.th }

type zoneRuns struct {
	key       string
	id        string
	name      string
	scheduled []irrigation.ScheduledRun
	actual    []irrigation.ActualRun
}

type pair struct {
	s, a int
	diff time.Duration
}

// Reconcile matches plan entries to record entries per zone and classifies
// every discrepancy. asOf decides which unmatched plan entries are overdue and
// stamps DetectedAt, so the output depends only on the arguments.
func (e *Engine) Reconcile(scheduled []irrigation.ScheduledRun, actual []irrigation.ActualRun, asOf time.Time) alert.Report {
	report := alert.Report{AsOf: asOf}

	groups := e.group(scheduled, actual)
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]struct{})
	for _, k := range keys {
		zr := groups[k]
		if err := validate(zr); err != nil {
			report.ZoneErrors = append(report.ZoneErrors, alert.ZoneError{Zone: k, Err: err})
			continue
		}

		report.ZonesEvaluated++
		for _, s := range zr.scheduled {
			if s.ExpectedGallons != nil {
				report.ExpectedGallons += *s.ExpectedGallons
			}
		}
		for _, a := range zr.actual {
			if a.ActualGallons != nil {
				report.DeliveredGallons += *a.ActualGallons
			}
		}

		worst := ""
		for _, a := range e.classifyZone(zr, asOf) {
			if _, dup := seen[a.ID]; dup {
				continue
			}
			seen[a.ID] = struct{}{}
			report.Alerts = append(report.Alerts, a)
			switch {
			case a.Severity == alert.SeverityCritical:
				worst = "failed"
			case a.Severity == alert.SeverityWarning && worst == "":
				worst = "warning"
			}
		}
		switch worst {
		case "failed":
			report.FailedZones++
		case "warning":
			report.WarningZones++
		default:
			report.HealthyZones++
		}
	}

	if report.ExpectedGallons > 0 {
		report.Efficiency = report.DeliveredGallons / report.ExpectedGallons * 100
	}

	sort.SliceStable(report.Alerts, func(i, j int) bool {
		ai, aj := report.Alerts[i], report.Alerts[j]
		if ai.Severity.Rank() != aj.Severity.Rank() {
			return ai.Severity.Rank() < aj.Severity.Rank()
		}
		if ai.ZoneName != aj.ZoneName {
			return ai.ZoneName < aj.ZoneName
		}
		if !ai.RunStart.Equal(aj.RunStart) {
			return ai.RunStart.Before(aj.RunStart)
		}
		return ai.ID < aj.ID
	})
	report.Status = alert.StatusFor(report.Alerts)
	return report
}

// zoneKey resolves a name-only run to the id another run of the same inputs
// carried for that name, then to the catalog id.
func (e *Engine) zoneKey(ids irrigation.ZoneIDs, id, name string) (string, string, string) {
	if strings.TrimSpace(id) == "" {
		if zid := ids.Resolve("", name); zid != "" {
			return irrigation.ZoneKey(zid, ""), zid, name
		}
		if z, ok := e.zones.Lookup("", name); ok && z.ID != "" {
			return irrigation.ZoneKey(z.ID, ""), z.ID, name
		}
	}
	return irrigation.ZoneKey(id, name), strings.TrimSpace(id), name
}

func (e *Engine) group(scheduled []irrigation.ScheduledRun, actual []irrigation.ActualRun) map[string]*zoneRuns {
	groups := make(map[string]*zoneRuns)
	ids := irrigation.ZoneIDsFrom(scheduled, actual)
	get := func(id, name string) *zoneRuns {
		k, zid, zname := e.zoneKey(ids, id, name)
		zr, ok := groups[k]
		if !ok {
			zr = &zoneRuns{key: k, id: zid}
			groups[k] = zr
		}
		if zr.name == "" {
			zr.name = zname
		}
		if zr.name == "" {
			if z, ok := e.zones.Lookup(zid, ""); ok {
				zr.name = z.Name
			}
		}
		return zr
	}
	for _, s := range scheduled {
		zr := get(s.ZoneID, s.ZoneName)
		zr.scheduled = append(zr.scheduled, s)
	}
	for _, a := range actual {
		zr := get(a.ZoneID, a.ZoneName)
		zr.actual = append(zr.actual, a)
	}
	for _, zr := range groups {
		sort.SliceStable(zr.scheduled, func(i, j int) bool { return zr.scheduled[i].StartTime.Before(zr.scheduled[j].StartTime) })
		sort.SliceStable(zr.actual, func(i, j int) bool { return zr.actual[i].StartTime.Before(zr.actual[j].StartTime) })
	}
	return groups
}

func validate(zr *zoneRuns) error {
	for _, s := range zr.scheduled {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	for _, a := range zr.actual {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// match pairs plan and record entries greedily by smallest start offset.
// Each entry takes part in at most one pair.
func (e *Engine) match(zr *zoneRuns) (sToA map[int]int, aMatched map[int]bool) {
	var candidates []pair
	for si, s := range zr.scheduled {
		for ai, a := range zr.actual {
			d := a.StartTime.Sub(s.StartTime)
			if d < 0 {
				d = -d
			}
			if d <= e.th.MatchTolerance {
				candidates = append(candidates, pair{s: si, a: ai, diff: d})
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.diff != cj.diff {
			return ci.diff < cj.diff
		}
		if ci.s != cj.s {
			return ci.s < cj.s
		}
		return ci.a < cj.a
	})

	sToA = make(map[int]int)
	aMatched = make(map[int]bool)
	for _, c := range candidates {
		if _, taken := sToA[c.s]; taken || aMatched[c.a] {
			continue
		}
		sToA[c.s] = c.a
		aMatched[c.a] = true
	}
	return sToA, aMatched
}

func (e *Engine) classifyZone(zr *zoneRuns, asOf time.Time) []alert.Alert {
	sToA, aMatched := e.match(zr)
	var out []alert.Alert

	for si, s := range zr.scheduled {
		ai, ok := sToA[si]
		if !ok {
			if asOf.Sub(s.StartTime) > e.th.MissingGrace {
				out = append(out, e.missing(zr, s, asOf))
			}
			continue
		}
		a := zr.actual[ai]
		if e.failed(a) {
			out = append(out, e.failedRun(zr, a, s.StartTime, asOf))
		}
		if v, ok := e.volumeVariance(zr, s, a, asOf); ok {
			out = append(out, v)
		} else if d, ok := e.durationVariance(zr, s, a, asOf); ok {
			out = append(out, d)
		}
	}

	for ai, a := range zr.actual {
		if aMatched[ai] {
			continue
		}
		if e.failed(a) {
			out = append(out, e.failedRun(zr, a, a.StartTime, asOf))
			continue
		}
		out = append(out, e.unexpected(zr, a, asOf))
	}
	return out
}

func (e *Engine) failed(a irrigation.ActualRun) bool {
	if a.FailureReason != nil && strings.TrimSpace(*a.FailureReason) != "" {
		return true
	}
	status := strings.ToLower(a.Status)
	for _, kw := range e.th.FailureKeywords {
		if kw != "" && strings.Contains(status, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (e *Engine) base(zr *zoneRuns, t alert.FailureType, sev alert.Severity, start, sourceDate, asOf time.Time) alert.Alert {
	id := alert.ConditionID(zr.key, t, start)
	runDate := irrigation.DateKey(sourceDate)
	if runDate == "" {
		runDate = irrigation.DateKey(start)
	}
	risk := e.zones.PriorityFor(zr.id, zr.name)
	return alert.Alert{
		ID:                   id,
		ConditionID:          id,
		ZoneID:               zr.id,
		ZoneName:             zr.name,
		Type:                 t,
		Severity:             sev,
		RunStart:             start,
		RunDate:              runDate,
		PlantRisk:            risk,
		MaxHoursWithoutWater: risk.MaxHoursWithoutWater(),
		DetectedAt:           asOf,
	}
}

func (e *Engine) missing(zr *zoneRuns, s irrigation.ScheduledRun, asOf time.Time) alert.Alert {
	a := e.base(zr, alert.FailureMissingRun, alert.SeverityCritical, s.StartTime, s.SourceDate, asOf)
	a.Description = fmt.Sprintf("Scheduled %smin run at %s did not execute", minutes(s.DurationMinutes), clock(s.StartTime))
	a.Action = actionMissing
	a.ScheduledMinutes = irrigation.Float(s.DurationMinutes)
	a.ExpectedGallons = s.ExpectedGallons
	a.ActualGallons = irrigation.Float(0)
	if s.ExpectedGallons != nil {
		a.DeficitGallons = irrigation.Float(*s.ExpectedGallons)
	}
	return a
}

func (e *Engine) unexpected(zr *zoneRuns, r irrigation.ActualRun, asOf time.Time) alert.Alert {
	a := e.base(zr, alert.FailureUnexpectedRun, alert.SeverityWarning, r.StartTime, r.SourceDate, asOf)
	a.Description = fmt.Sprintf("Unscheduled %smin run at %s", minutes(r.DurationMinutes), clock(r.StartTime))
	a.Action = actionUnexpected
	a.ActualMinutes = irrigation.Float(r.DurationMinutes)
	a.ActualGallons = r.ActualGallons
	return a
}

func (e *Engine) failedRun(zr *zoneRuns, r irrigation.ActualRun, start time.Time, asOf time.Time) alert.Alert {
	a := e.base(zr, alert.FailureFailedRun, alert.SeverityCritical, start, r.SourceDate, asOf)
	reason := r.Status
	if r.FailureReason != nil && strings.TrimSpace(*r.FailureReason) != "" {
		reason = *r.FailureReason
	}
	a.Description = fmt.Sprintf("Run at %s failed: %s", clock(r.StartTime), reason)
	a.Action = actionFailed
	a.ActualMinutes = irrigation.Float(r.DurationMinutes)
	a.ActualGallons = r.ActualGallons
	return a
}

func (e *Engine) volumeVariance(zr *zoneRuns, s irrigation.ScheduledRun, r irrigation.ActualRun, asOf time.Time) (alert.Alert, bool) {
	if s.ExpectedGallons == nil || r.ActualGallons == nil {
		return alert.Alert{}, false
	}
	expected, got := *s.ExpectedGallons, *r.ActualGallons
	if expected == 0 || got == 0 {
		return alert.Alert{}, false
	}
	rel := math.Abs(got-expected) / expected
	if rel <= e.th.VolumeWarn {
		return alert.Alert{}, false
	}
	sev := alert.SeverityWarning
	if rel > e.th.VolumeCritical {
		sev = alert.SeverityCritical
	}
	a := e.base(zr, alert.FailureWaterVariance, sev, s.StartTime, s.SourceDate, asOf)
	a.Description = fmt.Sprintf("Water delivery variance: %.1f%% (expected %.1fgal, got %.1fgal)", rel*100, expected, got)
	a.Action = actionVolume
	a.ScheduledMinutes = irrigation.Float(s.DurationMinutes)
	a.ActualMinutes = irrigation.Float(r.DurationMinutes)
	a.ExpectedGallons = irrigation.Float(expected)
	a.ActualGallons = irrigation.Float(got)
	a.DeficitGallons = irrigation.Float(math.Max(0, expected-got))
	return a, true
}

func (e *Engine) durationVariance(zr *zoneRuns, s irrigation.ScheduledRun, r irrigation.ActualRun, asOf time.Time) (alert.Alert, bool) {
	diff := math.Abs(r.DurationMinutes - s.DurationMinutes)
	if diff <= e.th.DurationMinDiffMinutes || s.DurationMinutes <= e.th.DurationMinScheduledMinutes {
		return alert.Alert{}, false
	}
	rel := diff / s.DurationMinutes
	sev := alert.SeverityWarning
	if rel > e.th.DurationCritical {
		sev = alert.SeverityCritical
	}
	a := e.base(zr, alert.FailureDurationVariance, sev, s.StartTime, s.SourceDate, asOf)
	a.Description = fmt.Sprintf("Duration variance: %smin difference (scheduled %smin, ran %smin)",
		minutes(diff), minutes(s.DurationMinutes), minutes(r.DurationMinutes))
	a.Action = actionDuration
	a.ScheduledMinutes = irrigation.Float(s.DurationMinutes)
	a.ActualMinutes = irrigation.Float(r.DurationMinutes)
	a.ExpectedGallons = s.ExpectedGallons
	a.ActualGallons = r.ActualGallons
	return a, true
}

func minutes(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}

func clock(t time.Time) string { return t.Format("3:04PM") }
