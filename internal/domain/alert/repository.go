// internal/domain/alert/repository.go
package alert

import (
	"context"
	"errors"
	"time"
)

var ErrAlertNotFound = errors.New("alert not found")

// Repository stores alerts. Alerts are never deleted.
type Repository interface {
	Create(ctx context.Context, a *Alert) error
	// Refresh updates the descriptive fields of an unresolved alert after a re-run.
	Refresh(ctx context.Context, a *Alert) error
	GetByID(ctx context.Context, id string) (*Alert, error)
	// LatestByCondition returns the newest alert raised for a condition id.
	LatestByCondition(ctx context.Context, conditionID string) (*Alert, error)
	ListUnresolvedByDate(ctx context.Context, runDate string) ([]*Alert, error)
	ListActive(ctx context.Context) ([]*Alert, error)
	CountActive(ctx context.Context) (int, error)
	Acknowledge(ctx context.Context, id string, at time.Time) error
	Resolve(ctx context.Context, ids []string, at time.Time) error
}

// Notifier delivers a newly raised alert. Delivery may be at-least-once.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// OperatorNotifier delivers free-form operator messages such as escalations.
type OperatorNotifier interface {
	NotifyOperator(ctx context.Context, text string) error
}
