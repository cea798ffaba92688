// internal/domain/irrigation/zone.go
package irrigation

import (
	"sort"
	"strings"
)

// Priority ranks how quickly a zone's plants suffer without water.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"   // trees, planters, high-investment beds
	PriorityMedium Priority = "MEDIUM" // established shrubs and perennials
	PriorityLow    Priority = "LOW"    // turf, drought tolerant plantings
)

// MaxHoursWithoutWater is the tolerance of plants in a zone of this priority.
func (p Priority) MaxHoursWithoutWater() int {
	switch p {
	case PriorityHigh:
		return 24
	case PriorityLow:
		return 48
	default:
		return 36
	}
}

// Zone is one entry of the controller's zone catalog.
type Zone struct {
	ID          string
	Name        string
	Priority    Priority
	FlowRateGPM float64
	PlantType   string
}

// ZoneCatalog is the injected zone configuration. The zero value and a nil
// catalog are both usable and know no zones.
type ZoneCatalog struct {
	byKey map[string]Zone
	keys  []string
}

func NewZoneCatalog(zones []Zone) *ZoneCatalog {
	c := &ZoneCatalog{byKey: make(map[string]Zone, len(zones))}
	for _, z := range zones {
		if z.Priority == "" {
			z.Priority = PriorityFromName(z.Name)
		}
		k := ZoneKey(z.ID, z.Name)
		if k == "" {
			continue
		}
		if _, dup := c.byKey[k]; !dup {
			c.keys = append(c.keys, k)
		}
		c.byKey[k] = z
	}
	sort.Strings(c.keys)
	return c
}

// Lookup finds a zone by id, then by normalised name.
func (c *ZoneCatalog) Lookup(zoneID, zoneName string) (Zone, bool) {
	if c == nil || len(c.byKey) == 0 {
		return Zone{}, false
	}
	if z, ok := c.byKey[ZoneKey(zoneID, zoneName)]; ok {
		return z, true
	}
	name := strings.ToLower(strings.TrimSpace(zoneName))
	if name == "" {
		return Zone{}, false
	}
	for _, k := range c.keys {
		if strings.ToLower(strings.TrimSpace(c.byKey[k].Name)) == name {
			return c.byKey[k], true
		}
	}
	return Zone{}, false
}

// PriorityFor resolves a zone's priority, falling back to name heuristics
// for zones missing from the catalog.
func (c *ZoneCatalog) PriorityFor(zoneID, zoneName string) Priority {
	if z, ok := c.Lookup(zoneID, zoneName); ok && z.Priority != "" {
		return z.Priority
	}
	return PriorityFromName(zoneName)
}

func (c *ZoneCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Zones returns the catalog ordered by zone key.
func (c *ZoneCatalog) Zones() []Zone {
	if c == nil {
		return nil
	}
	out := make([]Zone, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.byKey[k])
	}
	return out
}

// PriorityFromName guesses a priority from a zone's display name.
func PriorityFromName(name string) Priority {
	n := strings.ToLower(name)
	for _, w := range []string{"turf", "grass", "lawn"} {
		if strings.Contains(n, w) {
			return PriorityLow
		}
	}
	for _, w := range []string{"front color", "planters", "pots", "beds at fence"} {
		if strings.Contains(n, w) {
			return PriorityHigh
		}
	}
	return PriorityMedium
}
