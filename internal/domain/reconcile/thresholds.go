// internal/domain/reconcile/thresholds.go
package reconcile

import (
	"fmt"
	"time"
)

// Thresholds are the empirically chosen tuning constants of the engine.
type Thresholds struct {
	MatchTolerance time.Duration // max start offset between a plan entry and its record
	MissingGrace   time.Duration // unmatched plan entries younger than this are pending

	VolumeWarn     float64 // relative volume variance that raises a warning
	VolumeCritical float64 // above this the variance is critical

	DurationMinDiffMinutes      float64
	DurationMinScheduledMinutes float64
	DurationCritical            float64

	// FailureKeywords mark a record as failed when found in its status text.
	FailureKeywords []string
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MatchTolerance:              30 * time.Minute,
		MissingGrace:                time.Hour,
		VolumeWarn:                  0.25,
		VolumeCritical:              0.5,
		DurationMinDiffMinutes:      1,
		DurationMinScheduledMinutes: 2,
		DurationCritical:            0.5,
		FailureKeywords:             []string{"abort", "fail", "cancel"},
	}
}

func (t Thresholds) Validate() error {
	if t.MatchTolerance < 0 {
		return fmt.Errorf("match tolerance must not be negative, got %s", t.MatchTolerance)
	}
	if t.MissingGrace < 0 {
		return fmt.Errorf("missing-run grace must not be negative, got %s", t.MissingGrace)
	}
	if t.VolumeWarn <= 0 || t.VolumeCritical < t.VolumeWarn {
		return fmt.Errorf("volume thresholds must satisfy 0 < warn <= critical, got %v/%v", t.VolumeWarn, t.VolumeCritical)
	}
	if t.DurationCritical <= 0 {
		return fmt.Errorf("duration critical threshold must be positive, got %v", t.DurationCritical)
	}
	return nil
}
