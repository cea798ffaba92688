package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irrigation_monitor/internal/domain/alert"
	"irrigation_monitor/internal/domain/collection"
	"irrigation_monitor/internal/domain/irrigation"
	"irrigation_monitor/internal/domain/reconcile"
	"irrigation_monitor/internal/infra/database"
)

var (
	testDay = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	testNow = testDay.Add(12 * time.Hour)
)

type fakeCollector struct {
	mu     sync.Mutex
	result *collection.Result
	err    error
	calls  int
}

func (c *fakeCollector) Collect(context.Context, []time.Time) (*collection.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []alert.Alert
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, a alert.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, a)
	return nil
}

type monitorFixture struct {
	svc       *MonitorServiceImpl
	collector *fakeCollector
	notifier  *fakeNotifier
	alerts    *database.AlertRepository
	cycles    *database.CycleRepository
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()
	db, err := database.Open("sqlite:" + filepath.Join(t.TempDir(), "monitor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	catalog := irrigation.NewZoneCatalog([]irrigation.Zone{
		{ID: "1", Name: "Front Right Turf", Priority: irrigation.PriorityLow},
		{ID: "2", Name: "Front Color", Priority: irrigation.PriorityHigh},
	})
	cycles := database.NewCycleRepository(db, time.UTC)
	alerts := database.NewAlertRepository(db, time.UTC)
	freshness := NewFreshnessPolicy(cycles, 30*time.Minute, 15*time.Minute)
	freshness.now = func() time.Time { return testNow }

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	f := &monitorFixture{collector: &fakeCollector{}, notifier: &fakeNotifier{}, alerts: alerts, cycles: cycles}
	f.svc = NewMonitorServiceImpl(MonitorDeps{
		Collector: f.collector,
		Runs:      database.NewRunRepository(db, time.UTC),
		Cycles:    cycles,
		Alerts:    alerts,
		Engine:    reconcile.NewEngine(reconcile.DefaultThresholds(), catalog),
		Catalog:   catalog,
		Freshness: freshness,
		Notifiers: []alert.Notifier{f.notifier},
		Location:  time.UTC,
		Logger:    logrus.NewEntry(log),
	})
	f.svc.now = func() time.Time { return testNow }
	return f
}

func scheduled(zoneID, name string, hour int) irrigation.ScheduledRun {
	return irrigation.ScheduledRun{
		ZoneID: zoneID, ZoneName: name, StartTime: testDay.Add(time.Duration(hour) * time.Hour),
		DurationMinutes: 10, ExpectedGallons: irrigation.Float(10), SourceDate: testDay,
	}
}

func actual(zoneID, name string, hour int) irrigation.ActualRun {
	return irrigation.ActualRun{
		ZoneID: zoneID, ZoneName: name, StartTime: testDay.Add(time.Duration(hour) * time.Hour),
		DurationMinutes: 10, ActualGallons: irrigation.Float(10), Status: "Normal watering cycle", SourceDate: testDay,
	}
}

// Zone 1 ran as planned, zone 2 missed its 07:00 run.
func missedRunResult() *collection.Result {
	return &collection.Result{
		Scheduled: []irrigation.ScheduledRun{scheduled("1", "Front Right Turf", 6), scheduled("2", "Front Color", 7)},
		Actual:    []irrigation.ActualRun{actual("1", "Front Right Turf", 6)},
	}
}

func TestRunCycle_NewAlertNotifiedOnce(t *testing.T) {
	ctx := context.Background()
	f := newMonitorFixture(t)
	f.collector.result = missedRunResult()

	rec, err := f.svc.RunCycle(ctx, collection.CycleDaily, []time.Time{testDay})
	require.NoError(t, err)
	assert.Equal(t, collection.OutcomeSuccess, rec.Outcome)
	assert.Equal(t, 2, rec.ScheduledCollected)
	assert.Equal(t, 1, rec.ActualCollected)
	assert.Equal(t, 1, rec.AlertsRaised)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, alert.FailureMissingRun, f.notifier.sent[0].Type)
	assert.Equal(t, "2", f.notifier.sent[0].ZoneID)

	rec, err = f.svc.RunCycle(ctx, collection.CyclePeriodic, []time.Time{testDay})
	require.NoError(t, err)
	assert.Zero(t, rec.AlertsRaised)
	assert.Len(t, f.notifier.sent, 1, "known condition must not be re-announced")

	n, err := f.svc.ActiveAlertCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recent, err := f.svc.RecentCycles(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestRunCycle_ResolvesVanishedCondition(t *testing.T) {
	ctx := context.Background()
	f := newMonitorFixture(t)
	f.collector.result = missedRunResult()
	_, err := f.svc.RunCycle(ctx, collection.CycleDaily, []time.Time{testDay})
	require.NoError(t, err)

	// The late record for zone 2 shows up on the next fetch.
	f.collector.result = &collection.Result{Actual: []irrigation.ActualRun{actual("2", "Front Color", 7)}}
	rec, err := f.svc.RunCycle(ctx, collection.CyclePeriodic, []time.Time{testDay})
	require.NoError(t, err)
	assert.Equal(t, collection.OutcomeSuccess, rec.Outcome)

	active, err := f.svc.ActiveAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	resolved, err := f.alerts.GetByID(ctx, f.notifier.sent[0].ID)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved())
}

func TestRunCycle_PartialDoesNotResolve(t *testing.T) {
	ctx := context.Background()
	f := newMonitorFixture(t)
	f.collector.result = missedRunResult()
	_, err := f.svc.RunCycle(ctx, collection.CycleDaily, []time.Time{testDay})
	require.NoError(t, err)

	f.collector.result = &collection.Result{
		Actual: []irrigation.ActualRun{actual("2", "Front Color", 7)},
		Errors: []string{"zone 5: timeout"},
	}
	rec, err := f.svc.RunCycle(ctx, collection.CyclePeriodic, []time.Time{testDay})
	require.NoError(t, err)
	assert.Equal(t, collection.OutcomePartial, rec.Outcome)

	n, err := f.svc.ActiveAlertCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunCycle_RecurrenceAfterResolutionSupersedes(t *testing.T) {
	ctx := context.Background()
	f := newMonitorFixture(t)
	f.collector.result = missedRunResult()

	report := f.svc.Engine.Reconcile(f.collector.result.Scheduled, f.collector.result.Actual, testNow)
	require.Len(t, report.Alerts, 1)
	old := report.Alerts[0]
	require.NoError(t, f.alerts.Create(ctx, &old))
	resolvedAt := testNow.Add(-time.Hour)
	require.NoError(t, f.alerts.Resolve(ctx, []string{old.ID}, resolvedAt))

	_, err := f.svc.RunCycle(ctx, collection.CyclePeriodic, []time.Time{testDay})
	require.NoError(t, err)
	require.Len(t, f.notifier.sent, 1)

	fresh := f.notifier.sent[0]
	assert.Equal(t, old.ConditionID, fresh.ConditionID)
	assert.NotEqual(t, old.ID, fresh.ID)
	assert.Equal(t, old.ID, fresh.SupersedesID)
	assert.Equal(t, alert.SupersedingID(old.ID, resolvedAt), fresh.ID)
}

func TestRunCycle_FailedDeliveryRetriedNextCycle(t *testing.T) {
	ctx := context.Background()
	f := newMonitorFixture(t)
	f.collector.result = missedRunResult()
	f.notifier.err = errors.New("telegram unavailable")

	rec, err := f.svc.RunCycle(ctx, collection.CycleDaily, []time.Time{testDay})
	require.NoError(t, err)
	assert.Zero(t, rec.AlertsRaised)
	n, err := f.svc.ActiveAlertCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.notifier.err = nil
	rec, err = f.svc.RunCycle(ctx, collection.CyclePeriodic, []time.Time{testDay})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.AlertsRaised)
	assert.Len(t, f.notifier.sent, 1)
}

func TestRunCycle_CollectorErrorIsRecordedAsFailed(t *testing.T) {
	ctx := context.Background()
	f := newMonitorFixture(t)
	f.collector.err = fmt.Errorf("login rejected: %w", collection.ErrAuthentication)

	rec, err := f.svc.RunCycle(ctx, collection.CycleDaily, []time.Time{testDay})
	require.NoError(t, err)
	assert.Equal(t, collection.OutcomeFailed, rec.Outcome)
	assert.Equal(t, "auth", rec.FailureKind)
	require.Len(t, rec.Errors, 1)

	ok, err := f.svc.HasSuccessfulCycle(ctx, testDay)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunCycle_NoZonesWhenZonesExpectedFails(t *testing.T) {
	ctx := context.Background()
	f := newMonitorFixture(t)
	f.collector.result = &collection.Result{}

	rec, err := f.svc.RunCycle(ctx, collection.CyclePeriodic, []time.Time{testDay})
	require.NoError(t, err)
	assert.Equal(t, collection.OutcomeFailed, rec.Outcome)
	assert.Equal(t, "no_data", rec.FailureKind)
}

func TestRunCycle_NilCollectorResultFails(t *testing.T) {
	f := newMonitorFixture(t)
	f.collector.result = nil

	rec, err := f.svc.RunCycle(context.Background(), collection.CyclePeriodic, []time.Time{testDay})
	require.NoError(t, err)
	assert.Equal(t, collection.OutcomeFailed, rec.Outcome)
	assert.Equal(t, "no_data", rec.FailureKind)
}

func TestRefresh_SkipsFreshData(t *testing.T) {
	ctx := context.Background()
	f := newMonitorFixture(t)
	f.collector.result = missedRunResult()

	res, err := f.svc.Refresh(ctx, testDay, false)
	require.NoError(t, err)
	assert.True(t, res.Ran)
	assert.Equal(t, collection.CycleManual, res.Record.Type)

	res, err = f.svc.Refresh(ctx, testDay, false)
	require.NoError(t, err)
	assert.False(t, res.Ran)
	assert.False(t, res.Freshness.Stale)
	assert.Equal(t, 1, f.collector.calls)

	res, err = f.svc.Refresh(ctx, testDay, true)
	require.NoError(t, err)
	assert.True(t, res.Ran)
	assert.Equal(t, 2, f.collector.calls)
}

func TestAcknowledgeAlert(t *testing.T) {
	ctx := context.Background()
	f := newMonitorFixture(t)
	f.collector.result = missedRunResult()
	_, err := f.svc.RunCycle(ctx, collection.CycleDaily, []time.Time{testDay})
	require.NoError(t, err)

	a, err := f.svc.AcknowledgeAlert(ctx, f.notifier.sent[0].ID)
	require.NoError(t, err)
	assert.True(t, a.Acknowledged)

	_, err = f.svc.AcknowledgeAlert(ctx, "missing")
	assert.ErrorIs(t, err, alert.ErrAlertNotFound)
}

func TestBuildReport(t *testing.T) {
	ctx := context.Background()
	f := newMonitorFixture(t)
	f.collector.result = missedRunResult()
	_, err := f.svc.RunCycle(ctx, collection.CycleDaily, []time.Time{testDay})
	require.NoError(t, err)

	report, err := f.svc.BuildReport(ctx, testDay)
	require.NoError(t, err)
	assert.Equal(t, alert.StatusCritical, report.Status)
	assert.Equal(t, 2, report.ZonesEvaluated)
	assert.Equal(t, 1, report.HealthyZones)
	assert.Equal(t, 1, report.FailedZones)
}
