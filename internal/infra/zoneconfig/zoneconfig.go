// Package zoneconfig loads the zone catalog from a YAML file.
package zoneconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"irrigation_monitor/internal/domain/irrigation"
)

type file struct {
	Zones []zoneEntry `yaml:"zones"`
}

type zoneEntry struct {
	ID          string  `yaml:"zone_id"`
	Name        string  `yaml:"name"`
	Priority    string  `yaml:"priority,omitempty"`
	FlowRateGPM float64 `yaml:"flow_rate_gpm,omitempty"`
	PlantType   string  `yaml:"plant_type,omitempty"`
}

// Load reads the catalog at path. A missing file yields the built-in
// defaults and fromFile=false; a malformed file is an error.
func Load(path string) (catalog *irrigation.ZoneCatalog, fromFile bool, err error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return irrigation.NewZoneCatalog(Defaults()), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("could not read zone file %s: %w", path, err)
	}
	zones, err := Parse(raw)
	if err != nil {
		return nil, false, fmt.Errorf("zone file %s: %w", path, err)
	}
	return irrigation.NewZoneCatalog(zones), true, nil
}

// Parse decodes and validates a zone document.
func Parse(raw []byte) ([]irrigation.Zone, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(f.Zones))
	zones := make([]irrigation.Zone, 0, len(f.Zones))
	for i, e := range f.Zones {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			return nil, fmt.Errorf("zone %d: zone_id is required", i+1)
		}
		if seen[id] {
			return nil, fmt.Errorf("zone %s: duplicate zone_id", id)
		}
		seen[id] = true
		if e.FlowRateGPM < 0 {
			return nil, fmt.Errorf("zone %s: flow_rate_gpm must not be negative", id)
		}
		p := irrigation.Priority(strings.ToUpper(strings.TrimSpace(e.Priority)))
		switch p {
		case irrigation.PriorityHigh, irrigation.PriorityMedium, irrigation.PriorityLow:
		case "":
			p = irrigation.PriorityFromName(e.Name)
		default:
			return nil, fmt.Errorf("zone %s: unknown priority %q", id, e.Priority)
		}
		zones = append(zones, irrigation.Zone{
			ID:          id,
			Name:        strings.TrimSpace(e.Name),
			Priority:    p,
			FlowRateGPM: e.FlowRateGPM,
			PlantType:   e.PlantType,
		})
	}
	return zones, nil
}

// Write saves zones as a YAML zone file.
func Write(path string, zones []irrigation.Zone) error {
	f := file{Zones: make([]zoneEntry, 0, len(zones))}
	for _, z := range zones {
		f.Zones = append(f.Zones, zoneEntry{
			ID:          z.ID,
			Name:        z.Name,
			Priority:    string(z.Priority),
			FlowRateGPM: z.FlowRateGPM,
			PlantType:   z.PlantType,
		})
	}
	out, err := yaml.Marshal(&f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

// Defaults is the catalog of the original installation. Zone 7 is not wired.
func Defaults() []irrigation.Zone {
	return []irrigation.Zone{
		{ID: "1", Name: "Front Right Turf", Priority: irrigation.PriorityLow, FlowRateGPM: 2.5, PlantType: "turf"},
		{ID: "2", Name: "Front Turf Across Sidewalk", Priority: irrigation.PriorityLow, FlowRateGPM: 4.5, PlantType: "turf"},
		{ID: "3", Name: "Front Left Turf", Priority: irrigation.PriorityLow, FlowRateGPM: 3.2, PlantType: "turf"},
		{ID: "4", Name: "Front Planters and Pots", Priority: irrigation.PriorityHigh, FlowRateGPM: 1.0, PlantType: "planters"},
		{ID: "5", Name: "Rear Left Turf", Priority: irrigation.PriorityLow, FlowRateGPM: 2.2, PlantType: "turf"},
		{ID: "6", Name: "Rear right turf", Priority: irrigation.PriorityLow, FlowRateGPM: 5.3, PlantType: "turf"},
		{ID: "8", Name: "Rear left Beds at fence", Priority: irrigation.PriorityHigh, FlowRateGPM: 11.3, PlantType: "beds"},
		{ID: "9", Name: "Rear right beds at fence", Priority: irrigation.PriorityHigh, FlowRateGPM: 8.3, PlantType: "beds"},
		{ID: "10", Name: "Rear Left Pots, baskets & Planters", Priority: irrigation.PriorityHigh, FlowRateGPM: 3.9, PlantType: "planters"},
		{ID: "11", Name: "Rear right pots, baskets & Planters", Priority: irrigation.PriorityHigh, FlowRateGPM: 5.7, PlantType: "planters"},
		{ID: "12", Name: "Rear Bed/Planters/ at Pool", Priority: irrigation.PriorityMedium, FlowRateGPM: 1.3, PlantType: "beds"},
		{ID: "13", Name: "Front right bed across drive", Priority: irrigation.PriorityMedium, FlowRateGPM: 1.2, PlantType: "beds"},
		{ID: "14", Name: "Rear Right Bed at House and Pool", Priority: irrigation.PriorityMedium, FlowRateGPM: 3.0, PlantType: "beds"},
		{ID: "15", Name: "rear Left Bed at House", Priority: irrigation.PriorityMedium, FlowRateGPM: 1.2, PlantType: "beds"},
		{ID: "16", Name: "Front Color", Priority: irrigation.PriorityHigh, FlowRateGPM: 10.9, PlantType: "color"},
		{ID: "17", Name: "Front Left Beds", Priority: irrigation.PriorityMedium, FlowRateGPM: 2.6, PlantType: "beds"},
	}
}
