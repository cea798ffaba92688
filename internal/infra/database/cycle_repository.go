package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"irrigation_monitor/internal/domain/collection"
)

// CycleRepository is the append-only audit trail of collection cycles.
type CycleRepository struct {
	db  *DB
	loc *time.Location
}

func NewCycleRepository(db *DB, loc *time.Location) *CycleRepository {
	if loc == nil {
		loc = time.Local
	}
	return &CycleRepository{db: db, loc: loc}
}

const cycleColumns = `c.id, c.cycle_type, c.triggered_at, c.finished_at, c.outcome, c.failure_kind,
	c.scheduled_collected, c.actual_collected, c.scheduled_stored, c.actual_stored, c.alerts_raised, c.errors_json`

func (r *CycleRepository) Append(ctx context.Context, rec *collection.CycleRecord) error {
	errs := rec.Errors
	if errs == nil {
		errs = []string{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("error encoding cycle errors: %w", err)
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for collection cycle: %w", err)
	}
	defer txn.Rollback()

	query := r.db.Rebind(`INSERT INTO collection_cycles
		(cycle_type, triggered_at, finished_at, outcome, failure_kind,
		 scheduled_collected, actual_collected, scheduled_stored, actual_stored, alerts_raised, errors_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	err = txn.QueryRowContext(ctx, query, string(rec.Type), rec.TriggeredAt.UTC(), rec.FinishedAt.UTC(), string(rec.Outcome), rec.FailureKind,
		rec.ScheduledCollected, rec.ActualCollected, rec.ScheduledStored, rec.ActualStored, rec.AlertsRaised, string(errorsJSON)).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("error creating collection cycle: %w", err)
	}

	dateStmt, err := txn.PrepareContext(ctx, r.db.Rebind(`INSERT INTO collection_cycle_dates (cycle_id, target_date) VALUES (?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare cycle date insert: %w", err)
	}
	defer dateStmt.Close()
	seen := make(map[string]bool, len(rec.Dates))
	for _, d := range rec.Dates {
		if seen[d] {
			continue
		}
		seen[d] = true
		if _, err := dateStmt.ExecContext(ctx, rec.ID, d); err != nil {
			return fmt.Errorf("error storing cycle date %s: %w", d, err)
		}
	}
	return txn.Commit()
}

func (r *CycleRepository) LatestForDate(ctx context.Context, date string) (*collection.CycleRecord, error) {
	query := r.db.Rebind(`SELECT ` + cycleColumns + `
		FROM collection_cycles c
		JOIN collection_cycle_dates d ON d.cycle_id = c.id
		WHERE d.target_date = ?
		ORDER BY c.finished_at DESC, c.id DESC LIMIT 1`)
	return r.getOne(ctx, query, date)
}

func (r *CycleRepository) LatestSuccessForDate(ctx context.Context, date string) (*collection.CycleRecord, error) {
	query := r.db.Rebind(`SELECT ` + cycleColumns + `
		FROM collection_cycles c
		JOIN collection_cycle_dates d ON d.cycle_id = c.id
		WHERE d.target_date = ? AND c.outcome = ?
		ORDER BY c.finished_at DESC, c.id DESC LIMIT 1`)
	return r.getOne(ctx, query, date, string(collection.OutcomeSuccess))
}

func (r *CycleRepository) ListRecent(ctx context.Context, limit int) ([]*collection.CycleRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := r.db.Rebind(`SELECT ` + cycleColumns + `
		FROM collection_cycles c ORDER BY c.finished_at DESC, c.id DESC LIMIT ?`)
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying recent collection cycles: %w", err)
	}
	defer rows.Close()

	records := make([]*collection.CycleRecord, 0)
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collection cycle rows: %w", err)
	}
	rows.Close()

	for _, rec := range records {
		if err := r.loadDates(ctx, rec); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (r *CycleRepository) getOne(ctx context.Context, query string, args ...any) (*collection.CycleRecord, error) {
	rec, err := r.scan(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, collection.ErrCycleNotFound
		}
		return nil, err
	}
	if err := r.loadDates(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *CycleRepository) scan(row rowScanner) (*collection.CycleRecord, error) {
	var (
		rec        collection.CycleRecord
		cycleType  string
		outcome    string
		errorsJSON string
	)
	err := row.Scan(&rec.ID, &cycleType, &rec.TriggeredAt, &rec.FinishedAt, &outcome, &rec.FailureKind,
		&rec.ScheduledCollected, &rec.ActualCollected, &rec.ScheduledStored, &rec.ActualStored, &rec.AlertsRaised, &errorsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("error scanning collection cycle row: %w", err)
	}
	rec.Type = collection.CycleType(cycleType)
	rec.Outcome = collection.Outcome(outcome)
	rec.TriggeredAt = rec.TriggeredAt.In(r.loc)
	rec.FinishedAt = rec.FinishedAt.In(r.loc)
	if err := json.Unmarshal([]byte(errorsJSON), &rec.Errors); err != nil {
		return nil, fmt.Errorf("error decoding cycle errors: %w", err)
	}
	return &rec, nil
}

func (r *CycleRepository) loadDates(ctx context.Context, rec *collection.CycleRecord) error {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`SELECT target_date FROM collection_cycle_dates WHERE cycle_id = ? ORDER BY target_date`), rec.ID)
	if err != nil {
		return fmt.Errorf("error querying cycle dates: %w", err)
	}
	defer rows.Close()
	rec.Dates = rec.Dates[:0]
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return fmt.Errorf("error scanning cycle date: %w", err)
		}
		rec.Dates = append(rec.Dates, d)
	}
	return rows.Err()
}
