package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irrigation_monitor/internal/domain/alert"
	"irrigation_monitor/internal/domain/collection"
	"irrigation_monitor/internal/domain/irrigation"
)

var testDay = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("sqlite:" + filepath.Join(t.TempDir(), "monitor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestRebind(t *testing.T) {
	pg := &DB{Dialect: Postgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)", pg.Rebind("SELECT a FROM t WHERE x = ? AND y IN (?, ?)"))

	lite := &DB{Dialect: SQLite}
	assert.Equal(t, "SELECT ?", lite.Rebind("SELECT ?"))
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.Migrate(context.Background()))
}

func TestRunRepository_UpsertReplacesOnKey(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t), time.UTC)
	start := testDay.Add(7 * time.Hour)

	n, err := repo.SaveActualRuns(ctx, testDay, []irrigation.ActualRun{
		{ZoneID: "1", ZoneName: "Front Right Turf", StartTime: start, DurationMinutes: 4, Status: "Normal watering cycle"},
		{ZoneID: "2", ZoneName: "Front Color", StartTime: start, DurationMinutes: 3, ActualGallons: irrigation.Float(1.5), Status: "Normal watering cycle"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	reason := "Aborted due to sensor input"
	_, err = repo.SaveActualRuns(ctx, testDay, []irrigation.ActualRun{
		{ZoneID: "1", ZoneName: "Front Right Turf", StartTime: start, DurationMinutes: 5, ActualGallons: irrigation.Float(2.4), Status: "Aborted", FailureReason: &reason},
	})
	require.NoError(t, err)

	runs, err := repo.ListActualRuns(ctx, testDay)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	var zone1 irrigation.ActualRun
	for _, r := range runs {
		if r.ZoneID == "1" {
			zone1 = r
		}
	}
	assert.True(t, zone1.StartTime.Equal(start))
	assert.Equal(t, 5.0, zone1.DurationMinutes)
	require.NotNil(t, zone1.ActualGallons)
	assert.Equal(t, 2.4, *zone1.ActualGallons)
	require.NotNil(t, zone1.FailureReason)
	assert.Equal(t, reason, *zone1.FailureReason)
	assert.Equal(t, "2025-06-10", irrigation.DateKey(zone1.SourceDate))
}

func TestRunRepository_ScheduledRunsPerDate(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t), time.UTC)

	_, err := repo.SaveScheduledRuns(ctx, testDay, []irrigation.ScheduledRun{
		{ZoneID: "1", StartTime: testDay.Add(5 * time.Hour), DurationMinutes: 3.5, ExpectedGallons: irrigation.Float(2)},
		{ZoneID: "3", StartTime: testDay.Add(6 * time.Hour), DurationMinutes: 10},
	})
	require.NoError(t, err)
	_, err = repo.SaveScheduledRuns(ctx, testDay.AddDate(0, 0, 1), []irrigation.ScheduledRun{
		{ZoneID: "1", StartTime: testDay.AddDate(0, 0, 1).Add(5 * time.Hour), DurationMinutes: 3},
	})
	require.NoError(t, err)

	runs, err := repo.ListScheduledRuns(ctx, testDay)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "1", runs[0].ZoneID)
	assert.Equal(t, 3.5, runs[0].DurationMinutes)
	require.NotNil(t, runs[0].ExpectedGallons)
	assert.Nil(t, runs[1].ExpectedGallons)

	empty, err := repo.ListScheduledRuns(ctx, testDay.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRunRepository_NameOnlyRunTakesStoredZoneID(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t), time.UTC)
	start := testDay.Add(7*time.Hour + 2*time.Minute)

	_, err := repo.SaveScheduledRuns(ctx, testDay, []irrigation.ScheduledRun{
		{ZoneID: "3", ZoneName: "Rear Left Beds", StartTime: testDay.Add(7 * time.Hour), DurationMinutes: 5},
	})
	require.NoError(t, err)

	_, err = repo.SaveActualRuns(ctx, testDay, []irrigation.ActualRun{
		{ZoneName: "Rear Left Beds", StartTime: start, DurationMinutes: 5, Status: "Normal watering cycle"},
	})
	require.NoError(t, err)
	// the same record refetched with its id replaces the row instead of adding one
	_, err = repo.SaveActualRuns(ctx, testDay, []irrigation.ActualRun{
		{ZoneID: "3", ZoneName: "Rear Left Beds", StartTime: start, DurationMinutes: 6, Status: "Normal watering cycle"},
	})
	require.NoError(t, err)

	runs, err := repo.ListActualRuns(ctx, testDay)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "3", runs[0].ZoneID)
	assert.Equal(t, 6.0, runs[0].DurationMinutes)
}

func TestRunRepository_NameOnlyRunTakesIDFromBatch(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t), time.UTC)

	_, err := repo.SaveActualRuns(ctx, testDay, []irrigation.ActualRun{
		{ZoneID: "4", ZoneName: "Side Yard", StartTime: testDay.Add(6 * time.Hour), DurationMinutes: 3, Status: "Normal watering cycle"},
		{ZoneName: "side yard", StartTime: testDay.Add(18 * time.Hour), DurationMinutes: 3, Status: "Normal watering cycle"},
	})
	require.NoError(t, err)

	runs, err := repo.ListActualRuns(ctx, testDay)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, "4", r.ZoneID)
	}
}

func TestCycleRepository_LatestForDate(t *testing.T) {
	ctx := context.Background()
	repo := NewCycleRepository(openTestDB(t), time.UTC)

	_, err := repo.LatestForDate(ctx, "2025-06-10")
	assert.ErrorIs(t, err, collection.ErrCycleNotFound)

	ok := &collection.CycleRecord{
		Type: collection.CycleDaily, TriggeredAt: testDay.Add(6 * time.Hour), FinishedAt: testDay.Add(6*time.Hour + time.Minute),
		Dates: []string{"2025-06-09", "2025-06-10"}, Outcome: collection.OutcomeSuccess, ScheduledCollected: 4, ActualCollected: 3,
	}
	require.NoError(t, repo.Append(ctx, ok))
	assert.NotZero(t, ok.ID)

	failed := &collection.CycleRecord{
		Type: collection.CyclePeriodic, TriggeredAt: testDay.Add(9 * time.Hour), FinishedAt: testDay.Add(9*time.Hour + time.Minute),
		Dates: []string{"2025-06-10"}, Outcome: collection.OutcomeFailed, FailureKind: "auth", Errors: []string{"login rejected"},
	}
	require.NoError(t, repo.Append(ctx, failed))

	latest, err := repo.LatestForDate(ctx, "2025-06-10")
	require.NoError(t, err)
	assert.Equal(t, failed.ID, latest.ID)
	assert.Equal(t, collection.OutcomeFailed, latest.Outcome)
	assert.Equal(t, []string{"login rejected"}, latest.Errors)
	assert.Equal(t, []string{"2025-06-10"}, latest.Dates)

	success, err := repo.LatestSuccessForDate(ctx, "2025-06-10")
	require.NoError(t, err)
	assert.Equal(t, ok.ID, success.ID)
	assert.Equal(t, []string{"2025-06-09", "2025-06-10"}, success.Dates)
	assert.Equal(t, 4, success.ScheduledCollected)
	assert.True(t, success.FinishedAt.Equal(ok.FinishedAt))

	recent, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, failed.ID, recent[0].ID)
}

func newAlert(id string, sev alert.Severity, runDate string) *alert.Alert {
	return &alert.Alert{
		ID: id, ConditionID: id, ZoneID: "2", ZoneName: "Front Color",
		Type: alert.FailureMissingRun, Severity: sev, Description: "Scheduled 3min run at 5:00AM did not execute",
		Action: "Manually run zone immediately or check controller status", RunStart: testDay.Add(5 * time.Hour), RunDate: runDate,
		ScheduledMinutes: irrigation.Float(3), DeficitGallons: irrigation.Float(1.2),
		PlantRisk: irrigation.PriorityHigh, MaxHoursWithoutWater: 24, DetectedAt: testDay.Add(8 * time.Hour),
	}
}

func TestAlertRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewAlertRepository(openTestDB(t), time.UTC)

	require.NoError(t, repo.Create(ctx, newAlert("a1", alert.SeverityWarning, "2025-06-10")))
	require.NoError(t, repo.Create(ctx, newAlert("a2", alert.SeverityCritical, "2025-06-10")))
	require.NoError(t, repo.Create(ctx, newAlert("a3", alert.SeverityCritical, "2025-06-09")))

	got, err := repo.GetByID(ctx, "a2")
	require.NoError(t, err)
	assert.Equal(t, alert.FailureMissingRun, got.Type)
	assert.Equal(t, irrigation.PriorityHigh, got.PlantRisk)
	require.NotNil(t, got.DeficitGallons)
	assert.Equal(t, 1.2, *got.DeficitGallons)
	assert.Nil(t, got.ExpectedGallons)
	assert.True(t, got.RunStart.Equal(testDay.Add(5*time.Hour)))
	assert.True(t, got.Active())

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, alert.ErrAlertNotFound)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, alert.SeverityCritical, active[0].Severity)
	assert.Equal(t, alert.SeverityWarning, active[2].Severity)

	require.NoError(t, repo.Acknowledge(ctx, "a1", testDay.Add(9*time.Hour)))
	assert.ErrorIs(t, repo.Acknowledge(ctx, "nope", testDay), alert.ErrAlertNotFound)

	n, err := repo.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, repo.Resolve(ctx, []string{"a1", "a2"}, testDay.Add(10*time.Hour)))
	unresolved, err := repo.ListUnresolvedByDate(ctx, "2025-06-10")
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	resolved, err := repo.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, resolved.Acknowledged)
	require.NotNil(t, resolved.ResolvedAt)
	assert.True(t, resolved.Resolved())

	assert.ErrorIs(t, repo.Refresh(ctx, resolved), alert.ErrAlertNotFound, "resolved alerts are frozen")
}

func TestAlertRepository_LatestByCondition(t *testing.T) {
	ctx := context.Background()
	repo := NewAlertRepository(openTestDB(t), time.UTC)

	first := newAlert("c1", alert.SeverityCritical, "2025-06-10")
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Resolve(ctx, []string{"c1"}, testDay.Add(9*time.Hour)))

	second := newAlert("c1-next", alert.SeverityCritical, "2025-06-10")
	second.ConditionID = "c1"
	second.SupersedesID = "c1"
	second.DetectedAt = testDay.Add(11 * time.Hour)
	require.NoError(t, repo.Create(ctx, second))

	latest, err := repo.LatestByCondition(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1-next", latest.ID)
	assert.Equal(t, "c1", latest.SupersedesID)

	_, err = repo.LatestByCondition(ctx, "none")
	assert.ErrorIs(t, err, alert.ErrAlertNotFound)

	second.Severity = alert.SeverityWarning
	second.Description = "updated"
	require.NoError(t, repo.Refresh(ctx, second))
	got, err := repo.GetByID(ctx, "c1-next")
	require.NoError(t, err)
	assert.Equal(t, alert.SeverityWarning, got.Severity)
	assert.Equal(t, "updated", got.Description)
}
