// internal/domain/collection/collector.go
package collection

import (
	"context"
	"errors"
	"time"

	"irrigation_monitor/internal/domain/irrigation"
)

var (
	ErrAuthentication = errors.New("vendor authentication failed")
	ErrTransport      = errors.New("vendor transport error")
	ErrNoData         = errors.New("no irrigation data available")
)

// Result is what one collection produced. Errors lists non-fatal problems
// (a zone or a file that could not be read); a non-empty list makes the
// cycle partial.
type Result struct {
	Scheduled []irrigation.ScheduledRun
	Actual    []irrigation.ActualRun
	Errors    []string
}

// Collector fetches plan and record data for the given days. Implementations
// do their own I/O timeouts and route vendor API calls through the rate limiter.
type Collector interface {
	Collect(ctx context.Context, dates []time.Time) (*Result, error)
}

// FailureKind classifies a collector error for the audit trail.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication):
		return "auth"
	case errors.Is(err, ErrNoData):
		return "no_data"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}
