// internal/domain/collection/status.go
package collection

import "time"

// CadenceStatus is the health of one collection cadence.
type CadenceStatus struct {
	LastSuccess         time.Time
	LastAttempt         time.Time
	ConsecutiveFailures int
	Escalated           bool
}

// SchedulerStatus is what the scheduler reports to health and status surfaces.
type SchedulerStatus struct {
	Running          bool
	Paused           bool
	NextDaily        time.Time
	NextPeriodic     time.Time
	ActiveAlertCount int
	LastDailyDate    string
	Daily            CadenceStatus
	Periodic         CadenceStatus
	LastCycle        *CycleRecord
}

// Escalated reports whether any cadence has failed past the escalation threshold.
func (s SchedulerStatus) Escalated() bool {
	return s.Daily.Escalated || s.Periodic.Escalated
}
