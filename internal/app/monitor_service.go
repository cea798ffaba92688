// internal/app/monitor_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"irrigation_monitor/internal/domain/alert"
	"irrigation_monitor/internal/domain/collection"
	"irrigation_monitor/internal/domain/irrigation"
	"irrigation_monitor/internal/domain/reconcile"
)

// MonitorService runs collection cycles and owns the alert lifecycle.
type MonitorService interface {
	// RunCycle collects the given days, stores the runs, reconciles each day
	// and notifies about new alerts. Failures of the collection itself are
	// recorded in the returned record; the error is reserved for failures
	// to write the audit trail.
	RunCycle(ctx context.Context, cycleType collection.CycleType, dates []time.Time) (*collection.CycleRecord, error)
	// Refresh runs a manual cycle for one day unless its data is still fresh.
	Refresh(ctx context.Context, date time.Time, force bool) (*RefreshResult, error)
	HasSuccessfulCycle(ctx context.Context, date time.Time) (bool, error)
	BuildReport(ctx context.Context, date time.Time) (*alert.Report, error)
	ActiveAlerts(ctx context.Context) ([]*alert.Alert, error)
	ActiveAlertCount(ctx context.Context) (int, error)
	AcknowledgeAlert(ctx context.Context, id string) (*alert.Alert, error)
	RecentCycles(ctx context.Context, limit int) ([]*collection.CycleRecord, error)
	NotifyOperator(ctx context.Context, text string) error
}

// ZoneCounter reports how many zones the controller has, so an empty
// collection can be told apart from an idle day.
type ZoneCounter interface {
	ExpectedZoneCount(ctx context.Context) (int, error)
}

// CycleObserver is told about finished cycles and raised alerts.
type CycleObserver interface {
	CycleFinished(rec *collection.CycleRecord)
	AlertRaised(a alert.Alert)
}

// RefreshResult says whether a refresh hit the vendor and why.
type RefreshResult struct {
	Ran       bool
	Freshness Freshness
	Record    *collection.CycleRecord
}

type MonitorDeps struct {
	Collector   collection.Collector
	Runs        irrigation.Repository
	Cycles      collection.Repository
	Alerts      alert.Repository
	Engine      *reconcile.Engine
	Catalog     *irrigation.ZoneCatalog
	Freshness   *FreshnessPolicy
	Notifiers   []alert.Notifier
	Operator    alert.OperatorNotifier
	ZoneCounter ZoneCounter // optional
	Observer    CycleObserver
	Location    *time.Location
	Logger      *logrus.Entry
}

// MonitorServiceImpl implements the MonitorService interface.
type MonitorServiceImpl struct {
	MonitorDeps
	now func() time.Time

	// cycleMu serialises cycles: scheduled, manual and watcher-triggered
	// cycles never run concurrently.
	cycleMu sync.Mutex
}

func NewMonitorServiceImpl(deps MonitorDeps) *MonitorServiceImpl {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Logger == nil {
		deps.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &MonitorServiceImpl{MonitorDeps: deps, now: time.Now}
}

func (s *MonitorServiceImpl) RunCycle(ctx context.Context, cycleType collection.CycleType, dates []time.Time) (*collection.CycleRecord, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	rec := &collection.CycleRecord{
		Type:        cycleType,
		TriggeredAt: s.now().In(s.Location),
	}
	for _, d := range dates {
		rec.Dates = append(rec.Dates, irrigation.DateKey(d.In(s.Location)))
	}
	log := s.Logger.WithFields(logrus.Fields{"cycle_type": cycleType, "dates": rec.Dates})
	log.Info("Collection cycle started")

	s.collectAndReconcile(ctx, rec, dates, log)

	rec.FinishedAt = s.now().In(s.Location)
	if err := s.Cycles.Append(ctx, rec); err != nil {
		log.WithError(err).Error("Failed to append collection cycle to audit trail")
		return rec, fmt.Errorf("failed to record collection cycle: %w", err)
	}
	if s.Observer != nil {
		s.Observer.CycleFinished(rec)
	}
	log.WithFields(logrus.Fields{
		"outcome":             rec.Outcome,
		"scheduled_collected": rec.ScheduledCollected,
		"actual_collected":    rec.ActualCollected,
		"alerts_raised":       rec.AlertsRaised,
	}).Info("Collection cycle recorded")
	return rec, nil
}

func (s *MonitorServiceImpl) collectAndReconcile(ctx context.Context, rec *collection.CycleRecord, dates []time.Time, log *logrus.Entry) {
	res, err := s.Collector.Collect(ctx, dates)
	if err == nil && res == nil {
		err = fmt.Errorf("%w: collector returned no result", collection.ErrNoData)
	}
	if err != nil {
		rec.Outcome = collection.OutcomeFailed
		rec.FailureKind = collection.FailureKind(err)
		rec.Errors = append(rec.Errors, err.Error())
		log.WithError(err).WithField("failure_kind", rec.FailureKind).Warn("Collection failed")
		return
	}

	rec.ScheduledCollected = len(res.Scheduled)
	rec.ActualCollected = len(res.Actual)
	rec.Errors = append(rec.Errors, res.Errors...)

	if zones := collectedZones(res); zones == 0 {
		if expected := s.expectedZones(ctx, log); expected > 0 {
			rec.Outcome = collection.OutcomeFailed
			rec.FailureKind = collection.FailureKind(collection.ErrNoData)
			rec.Errors = append(rec.Errors, fmt.Sprintf("no zones collected, expected %d", expected))
			log.WithField("expected_zones", expected).Warn("Collection returned no zones")
			return
		}
	}

	rec.Outcome = collection.OutcomeSuccess
	if len(rec.Errors) > 0 {
		rec.Outcome = collection.OutcomePartial
	}

	scheduledByDate, actualByDate := splitByDate(res, s.Location)
	for _, d := range dates {
		day := irrigation.DateOf(d.In(s.Location))
		key := irrigation.DateKey(day)
		dlog := log.WithField("date", key)

		n, err := s.Runs.SaveScheduledRuns(ctx, day, scheduledByDate[key])
		if err != nil {
			s.storageFailure(rec, err, dlog)
			return
		}
		rec.ScheduledStored += n
		n, err = s.Runs.SaveActualRuns(ctx, day, actualByDate[key])
		if err != nil {
			s.storageFailure(rec, err, dlog)
			return
		}
		rec.ActualStored += n

		report, err := s.reconcileStored(ctx, day)
		if err != nil {
			s.storageFailure(rec, err, dlog)
			return
		}
		for _, ze := range report.ZoneErrors {
			rec.Errors = append(rec.Errors, ze.Error())
			dlog.WithField("zone_id", ze.Zone).WithError(ze.Err).Warn("Zone skipped during reconciliation")
		}
		if len(report.ZoneErrors) > 0 && rec.Outcome == collection.OutcomeSuccess {
			rec.Outcome = collection.OutcomePartial
		}
		raised, err := s.syncAlerts(ctx, key, report, rec.Outcome == collection.OutcomeSuccess, dlog)
		rec.AlertsRaised += raised
		if err != nil {
			s.storageFailure(rec, err, dlog)
			return
		}
		dlog.WithFields(logrus.Fields{"status": report.Status, "alerts": len(report.Alerts), "raised": raised}).Info("Day reconciled")
	}
}

func (s *MonitorServiceImpl) storageFailure(rec *collection.CycleRecord, err error, log *logrus.Entry) {
	rec.Outcome = collection.OutcomeFailed
	rec.FailureKind = "storage"
	rec.Errors = append(rec.Errors, err.Error())
	log.WithError(err).Error("Storage failure during collection cycle")
}

func (s *MonitorServiceImpl) expectedZones(ctx context.Context, log *logrus.Entry) int {
	if s.ZoneCounter != nil {
		n, err := s.ZoneCounter.ExpectedZoneCount(ctx)
		if err == nil {
			return n
		}
		log.WithError(err).Warn("Could not get zone count from controller, using catalog")
	}
	return s.Catalog.Len()
}

// reconcileStored reconciles everything stored for the day, so data from
// earlier fetches still counts when the latest fetch was partial.
func (s *MonitorServiceImpl) reconcileStored(ctx context.Context, day time.Time) (alert.Report, error) {
	scheduled, err := s.Runs.ListScheduledRuns(ctx, day)
	if err != nil {
		return alert.Report{}, err
	}
	actual, err := s.Runs.ListActualRuns(ctx, day)
	if err != nil {
		return alert.Report{}, err
	}
	return s.Engine.Reconcile(scheduled, actual, s.now().In(s.Location)), nil
}

// syncAlerts diffs a day's report against stored alerts. New conditions are
// stored and announced, conditions seen before are refreshed silently, and a
// condition recurring after resolution gets a superseding id. When resolve
// is set, stored alerts no longer produced are marked resolved.
func (s *MonitorServiceImpl) syncAlerts(ctx context.Context, day string, report alert.Report, resolve bool, log *logrus.Entry) (int, error) {
	produced := make(map[string]bool, len(report.Alerts))
	raised := 0
	for _, a := range report.Alerts {
		produced[a.ConditionID] = true

		latest, err := s.Alerts.LatestByCondition(ctx, a.ConditionID)
		switch {
		case errors.Is(err, alert.ErrAlertNotFound):
		case err != nil:
			return raised, fmt.Errorf("failed to look up alert %s: %w", a.ConditionID, err)
		case latest.Resolved():
			a.SupersedesID = latest.ID
			a.ID = alert.SupersedingID(latest.ID, *latest.ResolvedAt)
		default:
			a.ID = latest.ID
			if err := s.Alerts.Refresh(ctx, &a); err != nil && !errors.Is(err, alert.ErrAlertNotFound) {
				return raised, fmt.Errorf("failed to refresh alert %s: %w", a.ID, err)
			}
			continue
		}

		if !s.deliver(ctx, a, log) {
			// Not stored, so the next cycle tries again.
			continue
		}
		if err := s.Alerts.Create(ctx, &a); err != nil {
			return raised, fmt.Errorf("failed to store alert %s: %w", a.ID, err)
		}
		raised++
		if s.Observer != nil {
			s.Observer.AlertRaised(a)
		}
	}

	if !resolve {
		return raised, nil
	}
	open, err := s.Alerts.ListUnresolvedByDate(ctx, day)
	if err != nil {
		return raised, fmt.Errorf("failed to list open alerts for %s: %w", day, err)
	}
	var gone []string
	for _, a := range open {
		if !produced[a.ConditionID] {
			gone = append(gone, a.ID)
		}
	}
	if len(gone) > 0 {
		if err := s.Alerts.Resolve(ctx, gone, s.now()); err != nil {
			return raised, fmt.Errorf("failed to resolve alerts: %w", err)
		}
		log.WithField("resolved", len(gone)).Info("Alerts resolved")
	}
	return raised, nil
}

// deliver hands the alert to every notifier. It reports false only when
// notifiers exist and all of them failed.
func (s *MonitorServiceImpl) deliver(ctx context.Context, a alert.Alert, log *logrus.Entry) bool {
	if len(s.Notifiers) == 0 {
		return true
	}
	delivered := false
	for _, n := range s.Notifiers {
		if err := n.Notify(ctx, a); err != nil {
			log.WithError(err).WithFields(logrus.Fields{"alert_id": a.ID, "zone_id": a.ZoneID}).Error("Failed to deliver alert")
			continue
		}
		delivered = true
	}
	return delivered
}

func (s *MonitorServiceImpl) Refresh(ctx context.Context, date time.Time, force bool) (*RefreshResult, error) {
	day := irrigation.DateOf(date.In(s.Location))
	result := &RefreshResult{}
	if !force && s.Freshness != nil {
		f, err := s.Freshness.Check(ctx, day)
		if err != nil {
			return nil, err
		}
		result.Freshness = f
		if !f.Stale {
			s.Logger.WithFields(logrus.Fields{"date": irrigation.DateKey(day), "reason": f.Reason}).Info("Data still fresh, refresh skipped")
			return result, nil
		}
	} else {
		result.Freshness = Freshness{Stale: true, Reason: "forced refresh"}
	}

	rec, err := s.RunCycle(ctx, collection.CycleManual, []time.Time{day})
	if err != nil {
		return nil, err
	}
	result.Ran = true
	result.Record = rec
	return result, nil
}

func (s *MonitorServiceImpl) HasSuccessfulCycle(ctx context.Context, date time.Time) (bool, error) {
	_, err := s.Cycles.LatestSuccessForDate(ctx, irrigation.DateKey(date.In(s.Location)))
	if errors.Is(err, collection.ErrCycleNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check collections for %s: %w", irrigation.DateKey(date), err)
	}
	return true, nil
}

func (s *MonitorServiceImpl) BuildReport(ctx context.Context, date time.Time) (*alert.Report, error) {
	report, err := s.reconcileStored(ctx, irrigation.DateOf(date.In(s.Location)))
	if err != nil {
		return nil, fmt.Errorf("failed to build report for %s: %w", irrigation.DateKey(date), err)
	}
	return &report, nil
}

func (s *MonitorServiceImpl) ActiveAlerts(ctx context.Context) ([]*alert.Alert, error) {
	alerts, err := s.Alerts.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active alerts: %w", err)
	}
	return alerts, nil
}

func (s *MonitorServiceImpl) ActiveAlertCount(ctx context.Context) (int, error) {
	return s.Alerts.CountActive(ctx)
}

func (s *MonitorServiceImpl) AcknowledgeAlert(ctx context.Context, id string) (*alert.Alert, error) {
	if err := s.Alerts.Acknowledge(ctx, id, s.now()); err != nil {
		return nil, err
	}
	a, err := s.Alerts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{"alert_id": id, "zone_id": a.ZoneID}).Info("Alert acknowledged")
	return a, nil
}

func (s *MonitorServiceImpl) RecentCycles(ctx context.Context, limit int) ([]*collection.CycleRecord, error) {
	return s.Cycles.ListRecent(ctx, limit)
}

func (s *MonitorServiceImpl) NotifyOperator(ctx context.Context, text string) error {
	if s.Operator == nil {
		s.Logger.WithField("message", text).Warn("No operator channel configured")
		return nil
	}
	return s.Operator.NotifyOperator(ctx, text)
}

func collectedZones(res *collection.Result) int {
	zones := make(map[string]struct{})
	for _, r := range res.Scheduled {
		zones[r.ZoneKey()] = struct{}{}
	}
	for _, r := range res.Actual {
		zones[r.ZoneKey()] = struct{}{}
	}
	return len(zones)
}

// splitByDate groups collected runs by their source day.
func splitByDate(res *collection.Result, loc *time.Location) (map[string][]irrigation.ScheduledRun, map[string][]irrigation.ActualRun) {
	dayOf := func(source, start time.Time) string {
		if !source.IsZero() {
			return irrigation.DateKey(source.In(loc))
		}
		return irrigation.DateKey(start.In(loc))
	}
	scheduled := make(map[string][]irrigation.ScheduledRun)
	for _, r := range res.Scheduled {
		k := dayOf(r.SourceDate, r.StartTime)
		scheduled[k] = append(scheduled[k], r)
	}
	actual := make(map[string][]irrigation.ActualRun)
	for _, r := range res.Actual {
		k := dayOf(r.SourceDate, r.StartTime)
		actual[k] = append(actual[k], r)
	}
	for k := range scheduled {
		sort.SliceStable(scheduled[k], func(i, j int) bool { return scheduled[k][i].StartTime.Before(scheduled[k][j].StartTime) })
	}
	return scheduled, actual
}
