// internal/domain/alert/report.go
package alert

import (
	"fmt"
	"time"
)

// SystemStatus is the roll-up of one reconciliation.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "HEALTHY"
	StatusDegraded SystemStatus = "DEGRADED"
	StatusCritical SystemStatus = "CRITICAL"
)

// ZoneError records a zone whose records could not be classified.
type ZoneError struct {
	Zone string
	Err  error
}

func (e ZoneError) Error() string { return fmt.Sprintf("zone %s: %v", e.Zone, e.Err) }
func (e ZoneError) Unwrap() error { return e.Err }

// Report is the complete output of reconciling one day's plan against its record.
type Report struct {
	AsOf   time.Time
	Status SystemStatus

	ZonesEvaluated int
	HealthyZones   int
	WarningZones   int
	FailedZones    int

	ExpectedGallons  float64
	DeliveredGallons float64
	Efficiency       float64 // delivered/expected in percent, 0 when nothing was expected

	Alerts     []Alert
	ZoneErrors []ZoneError
}

// Count returns the number of alerts of the given severity.
func (r *Report) Count(s Severity) int {
	n := 0
	for i := range r.Alerts {
		if r.Alerts[i].Severity == s {
			n++
		}
	}
	return n
}

// StatusFor derives the system status from an alert set.
func StatusFor(alerts []Alert) SystemStatus {
	status := StatusHealthy
	for i := range alerts {
		switch alerts[i].Severity {
		case SeverityCritical:
			return StatusCritical
		case SeverityWarning:
			status = StatusDegraded
		}
	}
	return status
}
