package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irrigation_monitor/internal/domain/collection"
	"irrigation_monitor/internal/domain/irrigation"
	"irrigation_monitor/internal/infra/ratelimit"
)

const testAdminID int64 = 4242

type fakeSchedulerControl struct {
	paused bool
}

func (s *fakeSchedulerControl) Pause()  { s.paused = true }
func (s *fakeSchedulerControl) Resume() { s.paused = false }
func (s *fakeSchedulerControl) Status(context.Context) collection.SchedulerStatus {
	return collection.SchedulerStatus{Running: true, Paused: s.paused}
}

type fakeZoneController struct {
	started map[string]time.Duration
	stopped []string
	stopAll bool
	err     error
}

func (c *fakeZoneController) RunZone(_ context.Context, zoneID string, d time.Duration) error {
	if c.err != nil {
		return c.err
	}
	if c.started == nil {
		c.started = make(map[string]time.Duration)
	}
	c.started[zoneID] = d
	return nil
}

func (c *fakeZoneController) StopZone(_ context.Context, zoneID string) error {
	c.stopped = append(c.stopped, zoneID)
	return c.err
}

func (c *fakeZoneController) StopAll(context.Context) error {
	c.stopAll = true
	return c.err
}

func (c *fakeZoneController) ControllerStatus(context.Context) (*irrigation.ControllerStatus, error) {
	return &irrigation.ControllerStatus{ControllerID: "c1", Online: true}, c.err
}

type fakeRates struct{}

func (fakeRates) Snapshot() []ratelimit.Usage {
	return []ratelimit.Usage{{Category: ratelimit.General, Used: 3, Limit: 30}}
}

func newAdminFixture(t *testing.T, zones ZoneController) (*AdminService, *fakeSchedulerControl, *monitorFixture) {
	t.Helper()
	mf := newMonitorFixture(t)
	sched := &fakeSchedulerControl{}
	svc := NewAdminService(mf.svc, sched, zones, fakeRates{}, mf.svc.Catalog, testAdminID, time.UTC)
	svc.now = func() time.Time { return testNow }
	return svc, sched, mf
}

func TestAdminService_RejectsOtherUsers(t *testing.T) {
	ctx := context.Background()
	svc, sched, _ := newAdminFixture(t, &fakeZoneController{})

	assert.ErrorIs(t, svc.Pause(1), ErrAdminNotAuthorized)
	assert.False(t, sched.paused)
	_, err := svc.Status(ctx, 1)
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)
	_, err = svc.RunZone(ctx, 1, "1", 5)
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)
	assert.False(t, svc.IsAdmin(1))
	assert.True(t, svc.IsAdmin(testAdminID))
}

func TestAdminService_StatusIncludesRateLimits(t *testing.T) {
	svc, _, _ := newAdminFixture(t, nil)
	require.NoError(t, svc.Pause(testAdminID))

	st, err := svc.Status(context.Background(), testAdminID)
	require.NoError(t, err)
	assert.True(t, st.Scheduler.Paused)
	require.Len(t, st.RateLimits, 1)
	assert.Equal(t, 3, st.RateLimits[0].Used)

	require.NoError(t, svc.Resume(testAdminID))
	assert.False(t, svc.SystemStatus(context.Background()).Scheduler.Paused)
}

func TestAdminService_RunZoneValidates(t *testing.T) {
	ctx := context.Background()
	zc := &fakeZoneController{}
	svc, _, _ := newAdminFixture(t, zc)

	_, err := svc.RunZone(ctx, testAdminID, "1", 0)
	assert.ErrorIs(t, err, ErrInvalidRunDuration)
	_, err = svc.RunZone(ctx, testAdminID, "1", maxManualRunMinutes+1)
	assert.ErrorIs(t, err, ErrInvalidRunDuration)
	_, err = svc.RunZone(ctx, testAdminID, "99", 5)
	assert.ErrorIs(t, err, ErrUnknownZone)

	zone, err := svc.RunZone(ctx, testAdminID, "2", 5)
	require.NoError(t, err)
	assert.Equal(t, "Front Color", zone.Name)
	assert.Equal(t, 5*time.Minute, zc.started["2"])
}

func TestAdminService_StopCommands(t *testing.T) {
	ctx := context.Background()
	zc := &fakeZoneController{}
	svc, _, _ := newAdminFixture(t, zc)

	_, err := svc.StopZone(ctx, testAdminID, "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, zc.stopped)
	require.NoError(t, svc.StopAll(ctx, testAdminID))
	assert.True(t, zc.stopAll)

	zc.err = errors.New("controller offline")
	assert.ErrorContains(t, svc.StopAll(ctx, testAdminID), "controller offline")
}

func TestAdminService_ZoneControlUnavailable(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newAdminFixture(t, nil)

	_, err := svc.RunZone(ctx, testAdminID, "1", 5)
	assert.ErrorIs(t, err, ErrZoneControlUnavailable)
	_, err = svc.Controller(ctx, testAdminID)
	assert.ErrorIs(t, err, ErrZoneControlUnavailable)
}

func TestAdminService_RefreshAndAcknowledge(t *testing.T) {
	ctx := context.Background()
	svc, _, mf := newAdminFixture(t, nil)
	mf.collector.result = missedRunResult()

	res, err := svc.Refresh(ctx, testAdminID, false)
	require.NoError(t, err)
	assert.True(t, res.Ran)

	alerts, err := svc.ActiveAlerts(ctx, testAdminID)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	a, err := svc.Acknowledge(ctx, testAdminID, alerts[0].ID)
	require.NoError(t, err)
	assert.True(t, a.Acknowledged)

	report, err := svc.Report(ctx, testAdminID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.ZonesEvaluated)
}
