// internal/domain/alert/alert.go
package alert

import (
	"time"

	"irrigation_monitor/internal/domain/irrigation"
)

// Severity ranks an alert. Lower Rank sorts first.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// FailureType is the kind of discrepancy between plan and record.
type FailureType string

const (
	FailureMissingRun       FailureType = "missing_run"
	FailureUnexpectedRun    FailureType = "unexpected_run"
	FailureFailedRun        FailureType = "failed_run"
	FailureWaterVariance    FailureType = "water_variance"
	FailureDurationVariance FailureType = "duration_variance"
)

// Alert is one operator-facing discrepancy. It is mutated only by
// acknowledgement and resolution; a recurrence after resolution is stored
// under a new id that points back through SupersedesID.
type Alert struct {
	ID          string
	ConditionID string // id derived from (zone, type, start); equals ID unless superseded
	ZoneID      string
	ZoneName    string
	Type        FailureType
	Severity    Severity
	Description string
	Action      string // recommended action

	RunStart         time.Time // scheduled start, or actual start for record-only alerts
	RunDate          string    // YYYY-MM-DD
	ScheduledMinutes *float64
	ActualMinutes    *float64
	ExpectedGallons  *float64
	ActualGallons    *float64
	DeficitGallons   *float64

	PlantRisk            irrigation.Priority
	MaxHoursWithoutWater int

	DetectedAt     time.Time
	Acknowledged   bool
	AcknowledgedAt *time.Time
	ResolvedAt     *time.Time
	SupersedesID   string
}

// Active reports whether the alert still needs operator attention.
func (a *Alert) Active() bool {
	return a.ResolvedAt == nil && !a.Acknowledged
}

func (a *Alert) Resolved() bool { return a.ResolvedAt != nil }

// ZoneLabel is the human name of the alert's zone.
func (a *Alert) ZoneLabel() string {
	switch {
	case a.ZoneName != "" && a.ZoneID != "":
		return a.ZoneName + " (" + a.ZoneID + ")"
	case a.ZoneName != "":
		return a.ZoneName
	default:
		return a.ZoneID
	}
}
