package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"irrigation_monitor/internal/domain/irrigation"
)

// RunRepository stores plan and record lists, replacing rows on the
// (zone, start time, date) key.
type RunRepository struct {
	db  *DB
	loc *time.Location
}

func NewRunRepository(db *DB, loc *time.Location) *RunRepository {
	if loc == nil {
		loc = time.Local
	}
	return &RunRepository{db: db, loc: loc}
}

func (r *RunRepository) SaveScheduledRuns(ctx context.Context, date time.Time, runs []irrigation.ScheduledRun) (int, error) {
	if len(runs) == 0 {
		return 0, nil
	}
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction for scheduled runs: %w", err)
	}
	defer txn.Rollback()

	stmt, err := txn.PrepareContext(ctx, r.db.Rebind(`INSERT INTO scheduled_runs
		(zone_key, zone_id, zone_name, start_time, run_date, duration_minutes, expected_gallons, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (zone_key, start_time, run_date) DO UPDATE SET
			zone_id = excluded.zone_id,
			zone_name = excluded.zone_name,
			duration_minutes = excluded.duration_minutes,
			expected_gallons = excluded.expected_gallons,
			notes = excluded.notes,
			updated_at = excluded.updated_at`))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare scheduled run upsert: %w", err)
	}
	defer stmt.Close()

	day := irrigation.DateKey(date)
	ids, err := r.zoneIDs(ctx, txn, day, irrigation.ZoneIDsFrom(runs, nil))
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	stored := 0
	for _, run := range runs {
		run.ZoneID = ids.Resolve(run.ZoneID, run.ZoneName)
		_, err := stmt.ExecContext(ctx, run.ZoneKey(), run.ZoneID, run.ZoneName, run.StartTime.UTC(), day,
			run.DurationMinutes, nullFloat(run.ExpectedGallons), run.Notes, now)
		if err != nil {
			return 0, fmt.Errorf("error storing scheduled run (zone %s at %s): %w", run.ZoneKey(), run.StartTime.Format(time.RFC3339), err)
		}
		stored++
	}
	if err := txn.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit scheduled runs: %w", err)
	}
	return stored, nil
}

func (r *RunRepository) SaveActualRuns(ctx context.Context, date time.Time, runs []irrigation.ActualRun) (int, error) {
	if len(runs) == 0 {
		return 0, nil
	}
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction for actual runs: %w", err)
	}
	defer txn.Rollback()

	stmt, err := txn.PrepareContext(ctx, r.db.Rebind(`INSERT INTO actual_runs
		(zone_key, zone_id, zone_name, start_time, run_date, duration_minutes, actual_gallons, status, failure_reason, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (zone_key, start_time, run_date) DO UPDATE SET
			zone_id = excluded.zone_id,
			zone_name = excluded.zone_name,
			duration_minutes = excluded.duration_minutes,
			actual_gallons = excluded.actual_gallons,
			status = excluded.status,
			failure_reason = excluded.failure_reason,
			notes = excluded.notes,
			updated_at = excluded.updated_at`))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare actual run upsert: %w", err)
	}
	defer stmt.Close()

	day := irrigation.DateKey(date)
	ids, err := r.zoneIDs(ctx, txn, day, irrigation.ZoneIDsFrom(nil, runs))
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	stored := 0
	for _, run := range runs {
		run.ZoneID = ids.Resolve(run.ZoneID, run.ZoneName)
		_, err := stmt.ExecContext(ctx, run.ZoneKey(), run.ZoneID, run.ZoneName, run.StartTime.UTC(), day,
			run.DurationMinutes, nullFloat(run.ActualGallons), run.Status, nullString(run.FailureReason), run.Notes, now)
		if err != nil {
			return 0, fmt.Errorf("error storing actual run (zone %s at %s): %w", run.ZoneKey(), run.StartTime.Format(time.RFC3339), err)
		}
		stored++
	}
	if err := txn.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit actual runs: %w", err)
	}
	return stored, nil
}

// zoneIDs extends the batch's name to id mapping with ids already stored for
// the day, so a name-only run is keyed like the id-carrying runs of its zone.
func (r *RunRepository) zoneIDs(ctx context.Context, txn *sql.Tx, day string, ids irrigation.ZoneIDs) (irrigation.ZoneIDs, error) {
	rows, err := txn.QueryContext(ctx, r.db.Rebind(`SELECT zone_id, zone_name FROM scheduled_runs WHERE run_date = ? AND zone_id <> ''
		UNION SELECT zone_id, zone_name FROM actual_runs WHERE run_date = ? AND zone_id <> ''`), day, day)
	if err != nil {
		return nil, fmt.Errorf("error querying stored zone ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("error scanning stored zone id: %w", err)
		}
		ids.Add(id, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stored zone ids: %w", err)
	}
	return ids, nil
}

func (r *RunRepository) ListScheduledRuns(ctx context.Context, date time.Time) ([]irrigation.ScheduledRun, error) {
	query := r.db.Rebind(`SELECT zone_id, zone_name, start_time, duration_minutes, expected_gallons, notes
		FROM scheduled_runs WHERE run_date = ? ORDER BY start_time, zone_key`)
	rows, err := r.db.QueryContext(ctx, query, irrigation.DateKey(date))
	if err != nil {
		return nil, fmt.Errorf("error querying scheduled runs: %w", err)
	}
	defer rows.Close()

	day := irrigation.DateOf(date.In(r.loc))
	runs := make([]irrigation.ScheduledRun, 0)
	for rows.Next() {
		var (
			run      irrigation.ScheduledRun
			expected sql.NullFloat64
		)
		if err := rows.Scan(&run.ZoneID, &run.ZoneName, &run.StartTime, &run.DurationMinutes, &expected, &run.Notes); err != nil {
			return nil, fmt.Errorf("error scanning scheduled run row: %w", err)
		}
		run.StartTime = run.StartTime.In(r.loc)
		run.ExpectedGallons = floatPtr(expected)
		run.SourceDate = day
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scheduled run rows: %w", err)
	}
	return runs, nil
}

func (r *RunRepository) ListActualRuns(ctx context.Context, date time.Time) ([]irrigation.ActualRun, error) {
	query := r.db.Rebind(`SELECT zone_id, zone_name, start_time, duration_minutes, actual_gallons, status, failure_reason, notes
		FROM actual_runs WHERE run_date = ? ORDER BY start_time, zone_key`)
	rows, err := r.db.QueryContext(ctx, query, irrigation.DateKey(date))
	if err != nil {
		return nil, fmt.Errorf("error querying actual runs: %w", err)
	}
	defer rows.Close()

	day := irrigation.DateOf(date.In(r.loc))
	runs := make([]irrigation.ActualRun, 0)
	for rows.Next() {
		var (
			run     irrigation.ActualRun
			gallons sql.NullFloat64
			reason  sql.NullString
		)
		if err := rows.Scan(&run.ZoneID, &run.ZoneName, &run.StartTime, &run.DurationMinutes, &gallons, &run.Status, &reason, &run.Notes); err != nil {
			return nil, fmt.Errorf("error scanning actual run row: %w", err)
		}
		run.StartTime = run.StartTime.In(r.loc)
		run.ActualGallons = floatPtr(gallons)
		if reason.Valid {
			run.FailureReason = &reason.String
		}
		run.SourceDate = day
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actual run rows: %w", err)
	}
	return runs, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}

func timePtr(v sql.NullTime, loc *time.Location) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.In(loc)
	return &t
}
