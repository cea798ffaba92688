// internal/infra/scheduler/decide.go
package scheduler

import (
	"time"

	"irrigation_monitor/internal/domain/collection"
	"irrigation_monitor/internal/domain/irrigation"
)

// cadence is the mutable bookkeeping of one collection rhythm.
type cadence struct {
	lastSuccess         time.Time
	lastAttempt         time.Time
	consecutiveFailures int
	escalated           bool
}

func (c cadence) status() collection.CadenceStatus {
	return collection.CadenceStatus{
		LastSuccess:         c.lastSuccess,
		LastAttempt:         c.lastAttempt,
		ConsecutiveFailures: c.consecutiveFailures,
		Escalated:           c.escalated,
	}
}

// state is owned by the scheduler. Each tick decides on a copy and the
// result is folded back with apply.
type state struct {
	lastDailyDate string
	daily         cadence
	periodic      cadence
	startupDone   bool
	paused        bool
	lastCycle     *collection.CycleRecord
}

// decision is what a single tick should do. At most one cycle fires per tick.
type decision struct {
	fire      bool
	cycleType collection.CycleType
}

func decide(now time.Time, cfg Config, st state) decision {
	if st.paused {
		return decision{}
	}
	if shouldRunStartup(now, cfg, st) {
		return decision{fire: true, cycleType: collection.CycleStartup}
	}
	if shouldRunDaily(now, cfg, st) {
		return decision{fire: true, cycleType: collection.CycleDaily}
	}
	if shouldRunPeriodic(now, cfg, st) {
		return decision{fire: true, cycleType: collection.CyclePeriodic}
	}
	return decision{}
}

// shouldRunStartup fires once, on the first tick, when the process starts
// after the daily time but before the end of the active window.
func shouldRunStartup(now time.Time, cfg Config, st state) bool {
	if !cfg.StartupCollection || st.startupDone {
		return false
	}
	m := minutesOfDay(now)
	return m >= cfg.DailyAt.Minutes() && m <= cfg.ActiveEnd.Minutes() &&
		st.lastDailyDate != irrigation.DateKey(now)
}

// shouldRunDaily fires inside the tolerance window around the daily time,
// unless a daily collection already completed today.
func shouldRunDaily(now time.Time, cfg Config, st state) bool {
	if st.lastDailyDate == irrigation.DateKey(now) {
		return false
	}
	diff := minutesOfDay(now) - cfg.DailyAt.Minutes()
	if diff < 0 {
		diff = -diff
	}
	return time.Duration(diff)*time.Minute <= cfg.DailyTolerance
}

// shouldRunPeriodic fires inside the active window once the interval has
// elapsed since the last success. After a failure the retry interval must
// also have elapsed since the last attempt.
func shouldRunPeriodic(now time.Time, cfg Config, st state) bool {
	if !inActiveWindow(now, cfg) {
		return false
	}
	p := st.periodic
	if p.lastAttempt.IsZero() && p.lastSuccess.IsZero() {
		return true
	}
	if !p.lastSuccess.IsZero() && now.Sub(p.lastSuccess) < cfg.PeriodicInterval {
		return false
	}
	if p.consecutiveFailures > 0 && now.Sub(p.lastAttempt) < cfg.PeriodicRetry {
		return false
	}
	return true
}

func inActiveWindow(now time.Time, cfg Config) bool {
	m := minutesOfDay(now)
	return m >= cfg.ActiveStart.Minutes() && m <= cfg.ActiveEnd.Minutes()
}

// cycleDates returns the days a cycle of the given type collects.
func cycleDates(now time.Time, t collection.CycleType) []time.Time {
	today := irrigation.DateOf(now)
	switch t {
	case collection.CycleDaily, collection.CycleStartup:
		return []time.Time{today.AddDate(0, 0, -1), today}
	default:
		return []time.Time{today}
	}
}

// apply folds the result of a fired cycle into the state. ok is false for a
// failed cycle, which never advances the "last fired" markers.
func (st state) apply(now time.Time, t collection.CycleType, ok bool, rec *collection.CycleRecord) state {
	if rec != nil {
		st.lastCycle = rec
	}
	if t == collection.CycleStartup {
		st.startupDone = true
	}

	mark := func(c cadence) cadence {
		c.lastAttempt = now
		if ok {
			c.lastSuccess = now
			c.consecutiveFailures = 0
			c.escalated = false
		} else {
			c.consecutiveFailures++
		}
		return c
	}

	switch t {
	case collection.CycleDaily, collection.CycleStartup:
		st.daily = mark(st.daily)
		if ok {
			st.lastDailyDate = irrigation.DateKey(now)
			// Today's data is fresh, so the periodic cadence re-arms from now.
			st.periodic.lastSuccess = now
			st.periodic.lastAttempt = now
		}
	case collection.CyclePeriodic:
		st.periodic = mark(st.periodic)
	}
	return st
}

// nextDaily is the next instant the daily cadence may fire.
func nextDaily(now time.Time, cfg Config, st state) time.Time {
	today := cfg.DailyAt.On(now)
	if st.lastDailyDate != irrigation.DateKey(now) && !now.After(today.Add(cfg.DailyTolerance)) {
		if now.After(today.Add(-cfg.DailyTolerance)) {
			return now
		}
		return today.Add(-cfg.DailyTolerance)
	}
	return cfg.DailyAt.On(now.AddDate(0, 0, 1)).Add(-cfg.DailyTolerance)
}

// nextPeriodic is the next instant the periodic cadence may fire.
func nextPeriodic(now time.Time, cfg Config, st state) time.Time {
	start, end := cfg.ActiveStart.On(now), cfg.ActiveEnd.On(now)
	if now.Before(start) {
		return start
	}
	if now.After(end.Add(59 * time.Second)) {
		return cfg.ActiveStart.On(now.AddDate(0, 0, 1))
	}

	next := now
	p := st.periodic
	if !p.lastSuccess.IsZero() {
		if t := p.lastSuccess.Add(cfg.PeriodicInterval); t.After(next) {
			next = t
		}
	}
	if p.consecutiveFailures > 0 {
		if t := p.lastAttempt.Add(cfg.PeriodicRetry); t.After(next) {
			next = t
		}
	}
	if next.After(end.Add(59 * time.Second)) {
		return cfg.ActiveStart.On(now.AddDate(0, 0, 1))
	}
	return next
}
