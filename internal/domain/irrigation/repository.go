// internal/domain/irrigation/repository.go
package irrigation

import (
	"context"
	"time"
)

// Repository persists plan and record lists. Saves are idempotent on the
// (zone, start time, date) key: a later fetch replaces the stored row.
type Repository interface {
	SaveScheduledRuns(ctx context.Context, date time.Time, runs []ScheduledRun) (int, error)
	SaveActualRuns(ctx context.Context, date time.Time, runs []ActualRun) (int, error)
	ListScheduledRuns(ctx context.Context, date time.Time) ([]ScheduledRun, error)
	ListActualRuns(ctx context.Context, date time.Time) ([]ActualRun, error)
}
