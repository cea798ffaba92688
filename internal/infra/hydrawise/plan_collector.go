package hydrawise

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"irrigation_monitor/internal/domain/collection"
	"irrigation_monitor/internal/domain/irrigation"
)

// PlanCollector turns the controller's upcoming-run schedule into plan
// entries. The API only exposes each zone's next run, so repeated periodic
// collections accumulate the day's plan in storage as runs come due.
type PlanCollector struct {
	client  *Client
	catalog *irrigation.ZoneCatalog
	loc     *time.Location
}

func NewPlanCollector(client *Client, catalog *irrigation.ZoneCatalog, loc *time.Location) *PlanCollector {
	if loc == nil {
		loc = time.Local
	}
	return &PlanCollector{client: client, catalog: catalog, loc: loc}
}

func (p *PlanCollector) Collect(ctx context.Context, dates []time.Time) (*collection.Result, error) {
	st, err := p.client.statusSchedule(ctx)
	if err != nil {
		return nil, err
	}
	if len(st.Relays) == 0 {
		return nil, fmt.Errorf("%w: controller reported no zones", collection.ErrNoData)
	}
	wanted := make(map[string]time.Time, len(dates))
	for _, d := range dates {
		day := irrigation.DateOf(d.In(p.loc))
		wanted[irrigation.DateKey(day)] = day
	}

	base := p.client.now()
	if st.Time > 0 {
		base = time.Unix(st.Time, 0)
	}
	res := &collection.Result{}
	for _, r := range st.Relays {
		run, ok := p.scheduledRun(r, base)
		if !ok {
			continue
		}
		day, ok := wanted[irrigation.DateKey(run.StartTime)]
		if !ok {
			continue
		}
		run.SourceDate = day
		if err := run.Validate(); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("zone %s: %v", run.ZoneID, err))
			continue
		}
		res.Scheduled = append(res.Scheduled, run)
	}
	return res, nil
}

func (p *PlanCollector) scheduledRun(r relay, base time.Time) (irrigation.ScheduledRun, bool) {
	if r.Time <= 1 || r.Time >= notScheduled || r.Run <= 0 {
		return irrigation.ScheduledRun{}, false
	}
	start := base.Add(time.Duration(r.Time) * time.Second).In(p.loc).Truncate(time.Minute)
	run := irrigation.ScheduledRun{
		ZoneID:          strconv.Itoa(r.Relay),
		ZoneName:        r.Name,
		StartTime:       start,
		DurationMinutes: float64(r.Run) / 60,
		Notes:           "from controller schedule",
	}
	if z, ok := p.catalog.Lookup(run.ZoneID, run.ZoneName); ok && z.FlowRateGPM > 0 {
		run.ExpectedGallons = irrigation.Float(z.FlowRateGPM * run.DurationMinutes)
	}
	return run, true
}
