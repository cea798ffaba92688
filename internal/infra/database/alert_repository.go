package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq" // For pq.Array

	"irrigation_monitor/internal/domain/alert"
	"irrigation_monitor/internal/domain/irrigation"
)

type AlertRepository struct {
	db  *DB
	loc *time.Location
}

func NewAlertRepository(db *DB, loc *time.Location) *AlertRepository {
	if loc == nil {
		loc = time.Local
	}
	return &AlertRepository{db: db, loc: loc}
}

const alertColumns = `id, condition_id, zone_id, zone_name, failure_type, severity, description, action,
	run_start, run_date, scheduled_minutes, actual_minutes, expected_gallons, actual_gallons, deficit_gallons,
	plant_risk, max_hours_without_water, detected_at, acknowledged, acknowledged_at, resolved_at, supersedes_id`

func (r *AlertRepository) Create(ctx context.Context, a *alert.Alert) error {
	query := r.db.Rebind(`INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.ConditionID, a.ZoneID, a.ZoneName, string(a.Type), string(a.Severity), a.Description, a.Action,
		a.RunStart.UTC(), a.RunDate,
		nullFloat(a.ScheduledMinutes), nullFloat(a.ActualMinutes), nullFloat(a.ExpectedGallons), nullFloat(a.ActualGallons), nullFloat(a.DeficitGallons),
		string(a.PlantRisk), a.MaxHoursWithoutWater, a.DetectedAt.UTC(), a.Acknowledged, nullTime(a.AcknowledgedAt), nullTime(a.ResolvedAt), a.SupersedesID,
	)
	if err != nil {
		return fmt.Errorf("error creating alert %s: %w", a.ID, err)
	}
	return nil
}

func (r *AlertRepository) Refresh(ctx context.Context, a *alert.Alert) error {
	query := r.db.Rebind(`UPDATE alerts SET severity = ?, description = ?, action = ?,
		scheduled_minutes = ?, actual_minutes = ?, expected_gallons = ?, actual_gallons = ?, deficit_gallons = ?
		WHERE id = ? AND resolved_at IS NULL`)
	res, err := r.db.ExecContext(ctx, query, string(a.Severity), a.Description, a.Action,
		nullFloat(a.ScheduledMinutes), nullFloat(a.ActualMinutes), nullFloat(a.ExpectedGallons), nullFloat(a.ActualGallons), nullFloat(a.DeficitGallons),
		a.ID)
	if err != nil {
		return fmt.Errorf("error refreshing alert %s: %w", a.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return alert.ErrAlertNotFound
	}
	return nil
}

func (r *AlertRepository) GetByID(ctx context.Context, id string) (*alert.Alert, error) {
	query := r.db.Rebind(`SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`)
	return r.getOne(ctx, query, id)
}

func (r *AlertRepository) LatestByCondition(ctx context.Context, conditionID string) (*alert.Alert, error) {
	query := r.db.Rebind(`SELECT ` + alertColumns + ` FROM alerts WHERE condition_id = ?
		ORDER BY detected_at DESC, resolved_at IS NULL DESC LIMIT 1`)
	return r.getOne(ctx, query, conditionID)
}

func (r *AlertRepository) ListUnresolvedByDate(ctx context.Context, runDate string) ([]*alert.Alert, error) {
	query := r.db.Rebind(`SELECT ` + alertColumns + ` FROM alerts
		WHERE run_date = ? AND resolved_at IS NULL ORDER BY run_start, zone_name`)
	return r.list(ctx, query, runDate)
}

func (r *AlertRepository) ListActive(ctx context.Context) ([]*alert.Alert, error) {
	query := r.db.Rebind(`SELECT ` + alertColumns + ` FROM alerts
		WHERE resolved_at IS NULL AND acknowledged = ? ORDER BY detected_at DESC, zone_name`)
	alerts, err := r.list(ctx, query, false)
	if err != nil {
		return nil, err
	}
	// Critical first, newest first within a severity.
	sortBySeverity(alerts)
	return alerts, nil
}

func (r *AlertRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM alerts WHERE resolved_at IS NULL AND acknowledged = ?`)
	if err := r.db.QueryRowContext(ctx, query, false).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting active alerts: %w", err)
	}
	return n, nil
}

func (r *AlertRepository) Acknowledge(ctx context.Context, id string, at time.Time) error {
	query := r.db.Rebind(`UPDATE alerts SET acknowledged = ?, acknowledged_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, true, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("error acknowledging alert %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return alert.ErrAlertNotFound
	}
	return nil
}

func (r *AlertRepository) Resolve(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	var (
		query string
		args  []any
	)
	if r.db.Dialect == Postgres {
		query = `UPDATE alerts SET resolved_at = $1 WHERE resolved_at IS NULL AND id = ANY($2::text[])`
		args = []any{at.UTC(), pq.Array(ids)}
	} else {
		query = `UPDATE alerts SET resolved_at = ? WHERE resolved_at IS NULL AND id IN (?` + strings.Repeat(", ?", len(ids)-1) + `)`
		args = append(args, at.UTC())
		for _, id := range ids {
			args = append(args, id)
		}
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error resolving %d alerts: %w", len(ids), err)
	}
	return nil
}

func (r *AlertRepository) getOne(ctx context.Context, query string, args ...any) (*alert.Alert, error) {
	a, err := r.scan(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, alert.ErrAlertNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *AlertRepository) list(ctx context.Context, query string, args ...any) ([]*alert.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]*alert.Alert, 0)
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", err)
	}
	return alerts, nil
}

func (r *AlertRepository) scan(row rowScanner) (*alert.Alert, error) {
	var (
		a                                   alert.Alert
		failureType, severity, risk         string
		schedMin, actMin, exp, got, deficit sql.NullFloat64
		ackAt, resolvedAt                   sql.NullTime
	)
	err := row.Scan(&a.ID, &a.ConditionID, &a.ZoneID, &a.ZoneName, &failureType, &severity, &a.Description, &a.Action,
		&a.RunStart, &a.RunDate, &schedMin, &actMin, &exp, &got, &deficit,
		&risk, &a.MaxHoursWithoutWater, &a.DetectedAt, &a.Acknowledged, &ackAt, &resolvedAt, &a.SupersedesID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("error scanning alert row: %w", err)
	}
	a.Type = alert.FailureType(failureType)
	a.Severity = alert.Severity(severity)
	a.PlantRisk = irrigation.Priority(risk)
	a.RunStart = a.RunStart.In(r.loc)
	a.DetectedAt = a.DetectedAt.In(r.loc)
	a.ScheduledMinutes = floatPtr(schedMin)
	a.ActualMinutes = floatPtr(actMin)
	a.ExpectedGallons = floatPtr(exp)
	a.ActualGallons = floatPtr(got)
	a.DeficitGallons = floatPtr(deficit)
	a.AcknowledgedAt = timePtr(ackAt, r.loc)
	a.ResolvedAt = timePtr(resolvedAt, r.loc)
	return &a, nil
}

func sortBySeverity(alerts []*alert.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool { return alerts[i].Severity.Rank() < alerts[j].Severity.Rank() })
}
