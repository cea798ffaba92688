// internal/domain/irrigation/controller.go
package irrigation

import "time"

// ZoneState is the controller's live view of one zone.
type ZoneState struct {
	ID             string
	Name           string
	NextRun        time.Time // zero when nothing is scheduled
	NextRunMinutes float64
	RunningFor     time.Duration // remaining run time when the zone is watering
	SuspendedUntil time.Time
}

// ControllerStatus is a snapshot of the irrigation controller.
type ControllerStatus struct {
	ControllerID string
	Name         string
	Online       bool
	LastContact  time.Time
	Zones        []ZoneState
	FetchedAt    time.Time
}

// Running lists the zones currently watering.
func (s *ControllerStatus) Running() []ZoneState {
	var out []ZoneState
	for _, z := range s.Zones {
		if z.RunningFor > 0 {
			out = append(out, z)
		}
	}
	return out
}
