// internal/domain/collection/cycle.go
package collection

import (
	"time"
)

// CycleType says what triggered a collection cycle.
type CycleType string

const (
	CycleDaily    CycleType = "daily"
	CyclePeriodic CycleType = "periodic"
	CycleStartup  CycleType = "startup"
	CycleManual   CycleType = "manual"
)

// Outcome of a collection cycle.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// CycleRecord is one entry in the append-only collection audit trail.
type CycleRecord struct {
	ID          int64
	Type        CycleType
	TriggeredAt time.Time
	FinishedAt  time.Time
	Dates       []string // YYYY-MM-DD
	Outcome     Outcome
	FailureKind string // auth, transport, no_data, storage; empty unless failed

	ScheduledCollected int
	ActualCollected    int
	ScheduledStored    int
	ActualStored       int
	AlertsRaised       int

	Errors []string
}

func (r *CycleRecord) Succeeded() bool { return r.Outcome == OutcomeSuccess }

// Covers reports whether the cycle collected the given day.
func (r *CycleRecord) Covers(date string) bool {
	for _, d := range r.Dates {
		if d == date {
			return true
		}
	}
	return false
}
