// internal/domain/irrigation/run.go
package irrigation

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the canonical text form of a watering day.
const DateLayout = "2006-01-02"

// ScheduledRun is one planned zone run taken from the controller's schedule (the "plan").
type ScheduledRun struct {
	ZoneID          string
	ZoneName        string
	StartTime       time.Time
	DurationMinutes float64  // may be fractional
	ExpectedGallons *float64 // nil when the schedule publishes no volume
	Notes           string
	SourceDate      time.Time
}

// ActualRun is one zone run the controller reports as executed (the "record").
type ActualRun struct {
	ZoneID          string
	ZoneName        string
	StartTime       time.Time
	DurationMinutes float64
	ActualGallons   *float64 // nil when no flow reading was reported
	Status          string   // e.g. "Normal watering cycle", "Aborted due to sensor input"
	FailureReason   *string
	Notes           string
	SourceDate      time.Time
}

// RunKey identifies a run for replace-on-refetch storage.
type RunKey struct {
	Zone  string
	Start time.Time
	Date  string
}

// ZoneKey returns the identity used to group runs by zone: the vendor zone id,
// or the normalised zone name when the source did not carry an id.
func ZoneKey(zoneID, zoneName string) string {
	if id := strings.TrimSpace(zoneID); id != "" {
		return id
	}
	return strings.ToLower(strings.TrimSpace(zoneName))
}

// ZoneIDs maps normalised zone names to vendor zone ids. A name seen with two
// different ids is ambiguous and maps to nothing.
type ZoneIDs map[string]string

// ZoneIDsFrom collects the name to id mapping carried by runs that have both.
func ZoneIDsFrom(scheduled []ScheduledRun, actual []ActualRun) ZoneIDs {
	ids := make(ZoneIDs)
	for _, r := range scheduled {
		ids.Add(r.ZoneID, r.ZoneName)
	}
	for _, r := range actual {
		ids.Add(r.ZoneID, r.ZoneName)
	}
	return ids
}

func (ids ZoneIDs) Add(zoneID, zoneName string) {
	id := strings.TrimSpace(zoneID)
	name := ZoneKey("", zoneName)
	if id == "" || name == "" {
		return
	}
	if prev, ok := ids[name]; ok && prev != id {
		ids[name] = ""
		return
	}
	ids[name] = id
}

// Resolve returns the run's own id, or the id known for its name.
func (ids ZoneIDs) Resolve(zoneID, zoneName string) string {
	if id := strings.TrimSpace(zoneID); id != "" {
		return id
	}
	return ids[ZoneKey("", zoneName)]
}

func (r ScheduledRun) ZoneKey() string { return ZoneKey(r.ZoneID, r.ZoneName) }
func (r ActualRun) ZoneKey() string    { return ZoneKey(r.ZoneID, r.ZoneName) }

func (r ScheduledRun) Key() RunKey {
	return RunKey{Zone: r.ZoneKey(), Start: r.StartTime, Date: DateKey(r.SourceDate)}
}

func (r ActualRun) Key() RunKey {
	return RunKey{Zone: r.ZoneKey(), Start: r.StartTime, Date: DateKey(r.SourceDate)}
}

// Validate reports records that cannot be classified.
func (r ScheduledRun) Validate() error {
	if r.ZoneKey() == "" {
		return fmt.Errorf("scheduled run has no zone identity")
	}
	if r.StartTime.IsZero() {
		return fmt.Errorf("scheduled run for zone %s has no start time", r.ZoneKey())
	}
	if math.IsNaN(r.DurationMinutes) || r.DurationMinutes < 0 {
		return fmt.Errorf("scheduled run for zone %s at %s has invalid duration %v", r.ZoneKey(), r.StartTime.Format(time.RFC3339), r.DurationMinutes)
	}
	if r.ExpectedGallons != nil && (math.IsNaN(*r.ExpectedGallons) || *r.ExpectedGallons < 0) {
		return fmt.Errorf("scheduled run for zone %s at %s has invalid expected volume %v", r.ZoneKey(), r.StartTime.Format(time.RFC3339), *r.ExpectedGallons)
	}
	return nil
}

func (r ActualRun) Validate() error {
	if r.ZoneKey() == "" {
		return fmt.Errorf("actual run has no zone identity")
	}
	if r.StartTime.IsZero() {
		return fmt.Errorf("actual run for zone %s has no start time", r.ZoneKey())
	}
	if math.IsNaN(r.DurationMinutes) || r.DurationMinutes < 0 {
		return fmt.Errorf("actual run for zone %s at %s has invalid duration %v", r.ZoneKey(), r.StartTime.Format(time.RFC3339), r.DurationMinutes)
	}
	if r.ActualGallons != nil && (math.IsNaN(*r.ActualGallons) || *r.ActualGallons < 0) {
		return fmt.Errorf("actual run for zone %s at %s has invalid volume %v", r.ZoneKey(), r.StartTime.Format(time.RFC3339), *r.ActualGallons)
	}
	return nil
}

// DateOf truncates t to midnight in its own location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DateKey formats the watering day of t.
func DateKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD day in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// Float returns a pointer to v; handy for optional volumes.
func Float(v float64) *float64 { return &v }
