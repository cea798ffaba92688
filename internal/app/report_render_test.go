package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"irrigation_monitor/internal/domain/alert"
	"irrigation_monitor/internal/domain/collection"
	"irrigation_monitor/internal/domain/irrigation"
	"irrigation_monitor/internal/infra/ratelimit"
)

func TestRenderReport(t *testing.T) {
	r := &alert.Report{
		AsOf:             testNow,
		Status:           alert.StatusCritical,
		ZonesEvaluated:   2,
		HealthyZones:     1,
		FailedZones:      1,
		ExpectedGallons:  20,
		DeliveredGallons: 10,
		Efficiency:       50,
		Alerts: []alert.Alert{{
			ZoneID: "2", ZoneName: "Front Color", Type: alert.FailureMissingRun, Severity: alert.SeverityCritical,
			Description: "Scheduled 10min run at 7:00AM did not execute", Action: "Manually run zone",
			PlantRisk: irrigation.PriorityHigh, DeficitGallons: irrigation.Float(10),
		}},
	}
	out := RenderReport(r)
	assert.Contains(t, out, "CRITICAL alerts (1)")
	assert.Contains(t, out, "Front Color (2)")
	assert.Contains(t, out, "10.0 gal")
	assert.Contains(t, out, "50.0%")
	assert.NotContains(t, out, "WARNING alerts")
}

func TestRenderReport_NoAlerts(t *testing.T) {
	out := RenderReport(&alert.Report{AsOf: testNow, Status: alert.StatusHealthy})
	assert.Contains(t, out, "No discrepancies found.")
}

func TestRenderStatus(t *testing.T) {
	st := SystemStatus{
		Scheduler: collection.SchedulerStatus{
			Running:   true,
			Paused:    true,
			NextDaily: testNow.Add(time.Hour),
			LastCycle: &collection.CycleRecord{Type: collection.CycleDaily, Outcome: collection.OutcomeSuccess, FinishedAt: testNow},
		},
		RateLimits: []ratelimit.Usage{{Category: ratelimit.Privileged, Used: 1, Limit: 3, Remaining: 2}},
	}
	out := RenderStatus(st, time.UTC)
	assert.Contains(t, out, "paused")
	assert.Contains(t, out, "2025-06-10 13:00")
	assert.Contains(t, out, "daily success")
	assert.Contains(t, out, string(ratelimit.Privileged))
}

func TestFormatAlert(t *testing.T) {
	msg := FormatAlert(alert.Alert{
		ZoneID: "2", ZoneName: "Front Color", Type: alert.FailureMissingRun, Severity: alert.SeverityCritical,
		Description: "Scheduled 10min run at 7:00AM did not execute", Action: "Manually run zone",
		PlantRisk: irrigation.PriorityHigh, MaxHoursWithoutWater: 24, RunDate: "2025-06-10",
	})
	assert.Contains(t, msg, "🔴 CRITICAL: Missing run")
	assert.Contains(t, msg, "Plant risk: HIGH (max 24h without water)")
	assert.Contains(t, msg, "Date: 2025-06-10")
}
