package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irrigation_monitor/internal/app"
	"irrigation_monitor/internal/domain/alert"
	"irrigation_monitor/internal/domain/collection"
	"irrigation_monitor/internal/infra/metrics"
	"irrigation_monitor/internal/infra/ratelimit"
)

const adminID int64 = 42

type fakeOperator struct {
	status     app.SystemStatus
	alerts     []*alert.Alert
	acked      []string
	forced     *bool
	reportDate time.Time
	callerIDs  []int64
}

func (f *fakeOperator) SystemStatus(context.Context) app.SystemStatus { return f.status }

func (f *fakeOperator) ActiveAlerts(_ context.Context, id int64) ([]*alert.Alert, error) {
	f.callerIDs = append(f.callerIDs, id)
	return f.alerts, nil
}

func (f *fakeOperator) Acknowledge(_ context.Context, id int64, alertID string) (*alert.Alert, error) {
	f.callerIDs = append(f.callerIDs, id)
	for _, a := range f.alerts {
		if a.ID == alertID {
			f.acked = append(f.acked, alertID)
			a.Acknowledged = true
			return a, nil
		}
	}
	return nil, alert.ErrAlertNotFound
}

func (f *fakeOperator) Refresh(_ context.Context, id int64, force bool) (*app.RefreshResult, error) {
	f.callerIDs = append(f.callerIDs, id)
	f.forced = &force
	return &app.RefreshResult{Ran: force, Freshness: app.Freshness{Reason: "collected 5m0s ago"}}, nil
}

func (f *fakeOperator) Report(_ context.Context, id int64, date time.Time) (*alert.Report, error) {
	f.callerIDs = append(f.callerIDs, id)
	f.reportDate = date
	return &alert.Report{
		Status:         alert.StatusDegraded,
		ZonesEvaluated: 2,
		Alerts:         []alert.Alert{{ID: "a-1", Severity: alert.SeverityWarning, Type: alert.FailureWaterVariance}},
	}, nil
}

func newTestServer(op *fakeOperator) (*Server, *metrics.Metrics) {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	m := metrics.New()
	return NewServer(":0", op, adminID, time.UTC, m, logrus.NewEntry(l)), m
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	op := &fakeOperator{}
	s, _ := newTestServer(op)

	rec := do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	op.status.Scheduler.Periodic = collection.CadenceStatus{ConsecutiveFailures: 5, Escalated: true}
	rec = do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestStatus(t *testing.T) {
	op := &fakeOperator{status: app.SystemStatus{
		Scheduler: collection.SchedulerStatus{Running: true, ActiveAlertCount: 3, LastDailyDate: "2025-06-10"},
		RateLimits: []ratelimit.Usage{
			{Category: ratelimit.General, Used: 4, Limit: 30, Remaining: 26, Window: 300 * time.Second},
		},
	}}
	s, _ := newTestServer(op)

	rec := do(t, s, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var v statusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.True(t, v.Running)
	assert.Equal(t, 3, v.ActiveAlertCount)
	assert.Nil(t, v.NextDaily)
	require.Len(t, v.RateLimits, 1)
	assert.Equal(t, "general", v.RateLimits[0].Category)
	assert.Equal(t, 26, v.RateLimits[0].Remaining)
	assert.Equal(t, 300.0, v.RateLimits[0].WindowSec)
}

func TestAlertsAndAck(t *testing.T) {
	op := &fakeOperator{alerts: []*alert.Alert{{ID: "a-1", ZoneID: "2", Severity: alert.SeverityCritical, Type: alert.FailureMissingRun}}}
	s, _ := newTestServer(op)

	rec := do(t, s, http.MethodGet, "/alerts")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []alertView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "missing_run", list[0].Type)

	rec = do(t, s, http.MethodPost, "/alerts/a-1/ack")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a-1"}, op.acked)

	rec = do(t, s, http.MethodPost, "/alerts/missing/ack")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/alerts/a-1/ack")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	for _, id := range op.callerIDs {
		assert.Equal(t, adminID, id)
	}
}

func TestRefresh(t *testing.T) {
	op := &fakeOperator{}
	s, _ := newTestServer(op)

	rec := do(t, s, http.MethodPost, "/refresh?force=true")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, op.forced)
	assert.True(t, *op.forced)
	var v refreshView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.True(t, v.Ran)

	rec = do(t, s, http.MethodPost, "/refresh?force=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReport(t *testing.T) {
	op := &fakeOperator{}
	s, _ := newTestServer(op)

	rec := do(t, s, http.MethodGet, "/report?date=2025-06-09")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), op.reportDate)

	var v reportView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "DEGRADED", v.Status)
	require.Len(t, v.Alerts, 1)

	rec = do(t, s, http.MethodGet, "/report?date=June")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	op := &fakeOperator{}
	s, _ := newTestServer(op)

	do(t, s, http.MethodGet, "/health")
	rec := do(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `irrigation_monitor_http_requests_total{route="/health",status="200"} 1`)
}
