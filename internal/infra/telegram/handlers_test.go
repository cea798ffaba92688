package telegram

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irrigation_monitor/internal/app"
	"irrigation_monitor/internal/domain/alert"
	"irrigation_monitor/internal/domain/collection"
	"irrigation_monitor/internal/domain/irrigation"
)

func quietLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func TestParseRunZoneArgs(t *testing.T) {
	zone, minutes, err := parseRunZoneArgs([]string{"5", "10"})
	require.NoError(t, err)
	assert.Equal(t, "5", zone)
	assert.Equal(t, 10, minutes)

	_, _, err = parseRunZoneArgs([]string{"5"})
	assert.ErrorContains(t, err, "Usage")
	_, _, err = parseRunZoneArgs([]string{"5", "ten"})
	assert.ErrorContains(t, err, "number")
}

func TestErrorReply(t *testing.T) {
	log := quietLogger()
	assert.Equal(t, msgUnauthorized, errorReply(log, app.ErrAdminNotAuthorized, "x"))
	assert.Equal(t, "Alert not found.", errorReply(log, fmt.Errorf("wrap: %w", alert.ErrAlertNotFound), "x"))
	assert.Contains(t, errorReply(log, app.ErrZoneControlUnavailable, "x"), "not available")
	assert.Equal(t, "Failed to stop zone: boom", errorReply(log, fmt.Errorf("boom"), "stop zone"))
}

func TestFormatRefresh(t *testing.T) {
	fresh := formatRefresh(&app.RefreshResult{Freshness: app.Freshness{Reason: "collected 3m0s ago"}})
	assert.Contains(t, fresh, "collected 3m0s ago")

	ran := formatRefresh(&app.RefreshResult{Ran: true, Record: &collection.CycleRecord{
		Outcome: collection.OutcomePartial, ScheduledCollected: 4, ActualCollected: 3, AlertsRaised: 1,
		Errors: []string{"zone 5: timeout"},
	}})
	assert.Contains(t, ran, "Refresh partial: 4 scheduled, 3 actual runs, 1 new alerts.")
	assert.Contains(t, ran, "- zone 5: timeout")
}

func TestFormatController(t *testing.T) {
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	out := formatController(&irrigation.ControllerStatus{
		ControllerID: "123", Name: "Home", Online: true,
		Zones: []irrigation.ZoneState{
			{ID: "1", Name: "Front Turf", RunningFor: 90 * time.Second},
			{ID: "2", Name: "Front Color", NextRun: now.Add(time.Hour)},
			{ID: "3", Name: "Back Beds"},
		},
	}, time.UTC)
	assert.Contains(t, out, "Controller Home (123), online")
	assert.Contains(t, out, "Front Turf: running, 1m30s left")
	assert.Contains(t, out, "Front Color: next run Tue 10:00")
	assert.Contains(t, out, "Back Beds: no run scheduled")
}

func TestPreEscapesHTML(t *testing.T) {
	assert.Equal(t, "<pre>a &lt;b&gt; &amp; c</pre>", pre("a <b> & c"))
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	parts := splitMessage("aaaa\nbbbb\ncccc\n", 10)
	assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, parts)

	parts = splitMessage("ääääääääääää", 5)
	assert.Equal(t, []string{"äääää", "äääää", "ää"}, parts)
}
