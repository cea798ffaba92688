// internal/domain/collection/repository.go
package collection

import (
	"context"
	"errors"
)

var ErrCycleNotFound = errors.New("collection cycle not found")

// Repository is the audit trail of collection cycles.
type Repository interface {
	Append(ctx context.Context, rec *CycleRecord) error
	// LatestForDate returns the newest cycle that covered the day, whatever its outcome.
	LatestForDate(ctx context.Context, date string) (*CycleRecord, error)
	// LatestSuccessForDate returns the newest successful cycle that covered the day.
	LatestSuccessForDate(ctx context.Context, date string) (*CycleRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*CycleRecord, error)
}
