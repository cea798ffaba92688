// internal/app/freshness.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"irrigation_monitor/internal/domain/collection"
	"irrigation_monitor/internal/domain/irrigation"
)

// Period is a named part of the irrigation day. The vendor portal publishes
// new data around period boundaries.
type Period string

const (
	PeriodEarlyMorning Period = "early_morning" // 04:00-08:00
	PeriodMidDay       Period = "mid_day"       // 11:00-15:00
	PeriodEvening      Period = "evening"       // 17:00-21:00
	PeriodOffHours     Period = "off_hours"
)

func PeriodOf(t time.Time) Period {
	switch h := t.Hour(); {
	case h >= 4 && h < 8:
		return PeriodEarlyMorning
	case h >= 11 && h < 15:
		return PeriodMidDay
	case h >= 17 && h < 21:
		return PeriodEvening
	default:
		return PeriodOffHours
	}
}

// Verdict is the freshness of one kind of collected data.
type Verdict struct {
	Stale  bool
	Reason string
}

// Freshness is the verdict on previously collected data for one day. Plan and
// record data age independently; the day is stale when either one is.
type Freshness struct {
	Stale  bool
	Reason string
	Plan   Verdict
	Record Verdict
	Last   *collection.CycleRecord
}

// FreshnessPolicy decides whether a manual or forced refresh must hit the
// vendor again.
type FreshnessPolicy struct {
	PlanMaxAge   time.Duration
	RecordMaxAge time.Duration
	cycles       collection.Repository
	now          func() time.Time
}

func NewFreshnessPolicy(cycles collection.Repository, planMaxAge, recordMaxAge time.Duration) *FreshnessPolicy {
	return &FreshnessPolicy{PlanMaxAge: planMaxAge, RecordMaxAge: recordMaxAge, cycles: cycles, now: time.Now}
}

func (p *FreshnessPolicy) Check(ctx context.Context, date time.Time) (Freshness, error) {
	last, err := p.cycles.LatestForDate(ctx, irrigation.DateKey(date))
	if err != nil && !errors.Is(err, collection.ErrCycleNotFound) {
		return Freshness{}, fmt.Errorf("failed to load last collection for %s: %w", irrigation.DateKey(date), err)
	}
	if errors.Is(err, collection.ErrCycleNotFound) {
		last = nil
	}
	return evaluateFreshness(p.now().In(date.Location()), date, last, p.PlanMaxAge, p.RecordMaxAge), nil
}

func evaluateFreshness(now, date time.Time, last *collection.CycleRecord, planMaxAge, recordMaxAge time.Duration) Freshness {
	f := Freshness{
		Last:   last,
		Plan:   planFreshness(now, date, last, planMaxAge),
		Record: recordFreshness(now, date, last, recordMaxAge),
	}
	switch {
	case f.Plan.Stale:
		f.Stale, f.Reason = true, f.Plan.Reason
	case f.Record.Stale:
		f.Stale, f.Reason = true, f.Record.Reason
	default:
		f.Reason = f.Plan.Reason
	}
	return f
}

// unusable reports a previous collection that cannot serve as fresh data.
func unusable(last *collection.CycleRecord) (Verdict, bool) {
	if last == nil {
		return Verdict{Stale: true, Reason: "no previous collection for this date"}, true
	}
	if last.Outcome != collection.OutcomeSuccess {
		return Verdict{Stale: true, Reason: fmt.Sprintf("previous collection was %s", last.Outcome)}, true
	}
	return Verdict{}, false
}

func planFreshness(now, date time.Time, last *collection.CycleRecord, maxAge time.Duration) Verdict {
	if v, ok := unusable(last); ok {
		return v
	}
	age := now.Sub(last.FinishedAt)
	if age > maxAge {
		return Verdict{Stale: true, Reason: fmt.Sprintf("plan data is %s old (max %s)", age.Round(time.Minute), maxAge)}
	}
	if irrigation.DateKey(date) == irrigation.DateKey(now) {
		if from, to := PeriodOf(last.FinishedAt.In(now.Location())), PeriodOf(now); from != to {
			return Verdict{Stale: true, Reason: fmt.Sprintf("irrigation period changed from %s to %s", from, to)}
		}
	}
	return Verdict{Reason: fmt.Sprintf("collected %s ago", age.Round(time.Minute))}
}

// recordFreshness never asks to refetch a past day's records.
func recordFreshness(now, date time.Time, last *collection.CycleRecord, maxAge time.Duration) Verdict {
	if irrigation.DateKey(date) < irrigation.DateKey(now) {
		return Verdict{Reason: "historical record data"}
	}
	if v, ok := unusable(last); ok {
		return v
	}
	age := now.Sub(last.FinishedAt)
	if age > maxAge {
		return Verdict{Stale: true, Reason: fmt.Sprintf("record data is %s old (max %s)", age.Round(time.Minute), maxAge)}
	}
	return Verdict{Reason: fmt.Sprintf("record data is %s old", age.Round(time.Minute))}
}
