package hydrawise

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irrigation_monitor/internal/domain/collection"
	"irrigation_monitor/internal/domain/irrigation"
	"irrigation_monitor/internal/infra/ratelimit"
)

// controllerTime is 2025-06-10 06:00:00 UTC.
var controllerTime = time.Date(2025, 6, 10, 6, 0, 0, 0, time.UTC)

type recordingLimiter struct {
	mu       sync.Mutex
	acquired []ratelimit.Category
	advised  map[string]time.Duration
	waited   []string
}

func (l *recordingLimiter) Acquire(_ context.Context, cat ratelimit.Category) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired = append(l.acquired, cat)
	return nil
}

func (l *recordingLimiter) Advise(endpoint string, delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.advised == nil {
		l.advised = make(map[string]time.Duration)
	}
	l.advised[endpoint] = delay
}

func (l *recordingLimiter) WaitAdvisory(_ context.Context, endpoint string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waited = append(l.waited, endpoint)
	return nil
}

type fakeVendor struct {
	t        *testing.T
	setZone  []map[string]string
	status   int
	throttle int32 // number of 429s to return before succeeding
	mu       sync.Mutex
}

func (v *fakeVendor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if atomic.AddInt32(&v.throttle, -1) >= 0 {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	if v.status != 0 {
		w.WriteHeader(v.status)
		return
	}
	assert.Equal(v.t, "secret", r.URL.Query().Get("api_key"))
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/customerdetails.php":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"controller_id": 52496,
			"nextpoll":      300,
			"controllers": []map[string]any{{
				"name": "Home", "controller_id": 52496, "last_contact": controllerTime.Add(-time.Minute).Unix(), "status": "All good!",
			}},
		})
	case "/statusschedule.php":
		assert.Equal(v.t, "52496", r.URL.Query().Get("controller_id"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"time":     controllerTime.Unix(),
			"nextpoll": 60,
			"relays": []map[string]any{
				{"relay_id": 1001, "relay": 1, "name": "Front Right Turf", "time": 3600, "run": 240},
				{"relay_id": 1002, "relay": 2, "name": "Front Color", "time": 1, "run": 90},
				{"relay_id": 1003, "relay": 3, "name": "Back Beds", "time": 86400 + 7200, "run": 600},
				{"relay_id": 1004, "relay": 4, "name": "Spare", "time": 31536000 * 2, "run": 0},
			},
		})
	case "/setzone.php":
		v.mu.Lock()
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		v.setZone = append(v.setZone, q)
		v.mu.Unlock()
		_, _ = io.WriteString(w, `{"message":"Zone started","message_type":"info"}`)
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, v *fakeVendor) (*Client, *recordingLimiter) {
	t.Helper()
	v.t = t
	srv := httptest.NewServer(v)
	t.Cleanup(srv.Close)
	log := logrus.New()
	log.SetOutput(io.Discard)
	lim := &recordingLimiter{}
	c := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret", MaxRetryAfter: time.Second}, lim, logrus.NewEntry(log))
	c.now = func() time.Time { return controllerTime }
	return c, lim
}

func TestClient_ExpectedZoneCountAndAdvisories(t *testing.T) {
	c, lim := newTestClient(t, &fakeVendor{})

	n, err := c.ExpectedZoneCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []ratelimit.Category{ratelimit.General, ratelimit.General}, lim.acquired)
	assert.Equal(t, 300*time.Second, lim.advised[endpointCustomerDetails])
	assert.Equal(t, 60*time.Second, lim.advised[endpointStatusSchedule])
	assert.Equal(t, []string{endpointCustomerDetails, endpointStatusSchedule}, lim.waited)

	// The controller id is cached after the first lookup.
	_, err = c.ExpectedZoneCount(context.Background())
	require.NoError(t, err)
	assert.Len(t, lim.acquired, 3)
}

func TestClient_ControllerStatus(t *testing.T) {
	c, _ := newTestClient(t, &fakeVendor{})

	st, err := c.ControllerStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "52496", st.ControllerID)
	assert.Equal(t, "Home", st.Name)
	assert.True(t, st.Online)
	require.Len(t, st.Zones, 4)
	assert.Equal(t, controllerTime.Add(time.Hour), st.Zones[0].NextRun.UTC())
	assert.Equal(t, 90*time.Second, st.Zones[1].RunningFor)
	assert.True(t, st.Zones[3].NextRun.IsZero())
	require.Len(t, st.Running(), 1)
	assert.Equal(t, "Front Color", st.Running()[0].Name)
}

func TestClient_ZoneControlUsesPrivilegedQuota(t *testing.T) {
	v := &fakeVendor{}
	c, lim := newTestClient(t, v)
	ctx := context.Background()

	require.NoError(t, c.RunZone(ctx, "3", 10*time.Minute))
	require.NoError(t, c.StopZone(ctx, "3"))
	require.NoError(t, c.StopAll(ctx))

	require.Len(t, v.setZone, 3)
	assert.Equal(t, "run", v.setZone[0]["action"])
	assert.Equal(t, "1003", v.setZone[0]["relay_id"])
	assert.Equal(t, "600", v.setZone[0]["custom"])
	assert.Equal(t, "stop", v.setZone[1]["action"])
	assert.Equal(t, "stopall", v.setZone[2]["action"])

	privileged := 0
	for _, cat := range lim.acquired {
		if cat == ratelimit.Privileged {
			privileged++
		}
	}
	assert.Equal(t, 3, privileged)

	assert.ErrorContains(t, c.RunZone(ctx, "42", time.Minute), "not configured")
}

func TestClient_RetriesOnceAfter429(t *testing.T) {
	c, lim := newTestClient(t, &fakeVendor{throttle: 1})

	_, err := c.ExpectedZoneCount(context.Background())
	require.NoError(t, err)
	assert.Len(t, lim.acquired, 3, "the retry takes a fresh quota slot")
}

func TestClient_GivesUpAfterSecond429(t *testing.T) {
	c, _ := newTestClient(t, &fakeVendor{throttle: 2})

	_, err := c.ExpectedZoneCount(context.Background())
	assert.ErrorIs(t, err, collection.ErrTransport)
}

func TestClient_ClassifiesErrors(t *testing.T) {
	c, _ := newTestClient(t, &fakeVendor{status: http.StatusUnauthorized})
	_, err := c.ExpectedZoneCount(context.Background())
	assert.ErrorIs(t, err, collection.ErrAuthentication)

	c, _ = newTestClient(t, &fakeVendor{status: http.StatusBadGateway})
	_, err = c.ExpectedZoneCount(context.Background())
	assert.ErrorIs(t, err, collection.ErrTransport)
	assert.False(t, strings.Contains(err.Error(), "secret"))
}

func TestPlanCollector_CollectsUpcomingRunsForRequestedDays(t *testing.T) {
	c, _ := newTestClient(t, &fakeVendor{})
	catalog := irrigation.NewZoneCatalog([]irrigation.Zone{{ID: "1", Name: "Front Right Turf", FlowRateGPM: 2.5}})
	p := NewPlanCollector(c, catalog, time.UTC)

	res, err := p.Collect(context.Background(), []time.Time{controllerTime})
	require.NoError(t, err)
	require.Len(t, res.Scheduled, 1, "running, tomorrow's and unscheduled zones are skipped")
	run := res.Scheduled[0]
	assert.Equal(t, "1", run.ZoneID)
	assert.Equal(t, controllerTime.Add(time.Hour), run.StartTime.UTC())
	assert.Equal(t, 4.0, run.DurationMinutes)
	require.NotNil(t, run.ExpectedGallons)
	assert.InDelta(t, 10.0, *run.ExpectedGallons, 1e-9)
	assert.Equal(t, "2025-06-10", irrigation.DateKey(run.SourceDate))

	res, err = p.Collect(context.Background(), []time.Time{controllerTime, controllerTime.AddDate(0, 0, 1)})
	require.NoError(t, err)
	assert.Len(t, res.Scheduled, 2)
}
