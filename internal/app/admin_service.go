package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"irrigation_monitor/internal/domain/alert"
	"irrigation_monitor/internal/domain/collection"
	"irrigation_monitor/internal/domain/irrigation"
	"irrigation_monitor/internal/infra/ratelimit"
)

// Custom application-level errors for admin service
var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")
var ErrZoneControlUnavailable = fmt.Errorf("zone control is not configured")
var ErrUnknownZone = fmt.Errorf("zone is not in the zone catalog")
var ErrInvalidRunDuration = fmt.Errorf("run duration must be between 1 and %d minutes", maxManualRunMinutes)

const maxManualRunMinutes = 120

// SchedulerControl is the operator's handle on the collection scheduler.
type SchedulerControl interface {
	Pause()
	Resume()
	Status(ctx context.Context) collection.SchedulerStatus
}

// ZoneController drives the irrigation controller directly. Calls count
// against the privileged vendor quota.
type ZoneController interface {
	RunZone(ctx context.Context, zoneID string, d time.Duration) error
	StopZone(ctx context.Context, zoneID string) error
	StopAll(ctx context.Context) error
	ControllerStatus(ctx context.Context) (*irrigation.ControllerStatus, error)
}

// RateReporter exposes vendor quota usage.
type RateReporter interface {
	Snapshot() []ratelimit.Usage
}

// SystemStatus is the combined health view for operators.
type SystemStatus struct {
	Scheduler  collection.SchedulerStatus
	RateLimits []ratelimit.Usage
}

type AdminService struct {
	monitor         MonitorService
	scheduler       SchedulerControl
	zones           ZoneController // nil when no vendor API key is configured
	rates           RateReporter
	catalog         *irrigation.ZoneCatalog
	adminTelegramID int64
	loc             *time.Location
	now             func() time.Time
}

func NewAdminService(monitor MonitorService, scheduler SchedulerControl, zones ZoneController, rates RateReporter,
	catalog *irrigation.ZoneCatalog, adminID int64, loc *time.Location) *AdminService {
	if loc == nil {
		loc = time.Local
	}
	return &AdminService{
		monitor:         monitor,
		scheduler:       scheduler,
		zones:           zones,
		rates:           rates,
		catalog:         catalog,
		adminTelegramID: adminID,
		loc:             loc,
		now:             time.Now,
	}
}

func (s *AdminService) authorize(performingAdminID int64) error {
	if performingAdminID != s.adminTelegramID {
		return ErrAdminNotAuthorized
	}
	return nil
}

// IsAdmin reports whether the Telegram user is the configured admin.
func (s *AdminService) IsAdmin(telegramID int64) bool { return s.authorize(telegramID) == nil }

// SystemStatus is the unauthenticated status view used by the HTTP surface.
func (s *AdminService) SystemStatus(ctx context.Context) SystemStatus {
	st := SystemStatus{Scheduler: s.scheduler.Status(ctx)}
	if s.rates != nil {
		st.RateLimits = s.rates.Snapshot()
	}
	return st
}

func (s *AdminService) Status(ctx context.Context, performingAdminID int64) (*SystemStatus, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	st := s.SystemStatus(ctx)
	return &st, nil
}

func (s *AdminService) Pause(performingAdminID int64) error {
	if err := s.authorize(performingAdminID); err != nil {
		return err
	}
	s.scheduler.Pause()
	return nil
}

func (s *AdminService) Resume(performingAdminID int64) error {
	if err := s.authorize(performingAdminID); err != nil {
		return err
	}
	s.scheduler.Resume()
	return nil
}

// Refresh re-collects today, honouring freshness unless forced.
func (s *AdminService) Refresh(ctx context.Context, performingAdminID int64, force bool) (*RefreshResult, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.monitor.Refresh(ctx, s.now().In(s.loc), force)
}

// Report reconciles the stored data of a day; a zero date means today.
func (s *AdminService) Report(ctx context.Context, performingAdminID int64, date time.Time) (*alert.Report, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	if date.IsZero() {
		date = s.now().In(s.loc)
	}
	return s.monitor.BuildReport(ctx, date)
}

func (s *AdminService) ActiveAlerts(ctx context.Context, performingAdminID int64) ([]*alert.Alert, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.monitor.ActiveAlerts(ctx)
}

func (s *AdminService) Acknowledge(ctx context.Context, performingAdminID int64, alertID string) (*alert.Alert, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	a, err := s.monitor.AcknowledgeAlert(ctx, alertID)
	if err != nil {
		if errors.Is(err, alert.ErrAlertNotFound) {
			return nil, alert.ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	return a, nil
}

func (s *AdminService) RunZone(ctx context.Context, performingAdminID int64, zoneID string, minutes int) (*irrigation.Zone, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	if s.zones == nil {
		return nil, ErrZoneControlUnavailable
	}
	if minutes < 1 || minutes > maxManualRunMinutes {
		return nil, ErrInvalidRunDuration
	}
	zone, err := s.lookupZone(zoneID)
	if err != nil {
		return nil, err
	}
	if err := s.zones.RunZone(ctx, zone.ID, time.Duration(minutes)*time.Minute); err != nil {
		return nil, fmt.Errorf("failed to start zone %s: %w", zone.ID, err)
	}
	return zone, nil
}

func (s *AdminService) StopZone(ctx context.Context, performingAdminID int64, zoneID string) (*irrigation.Zone, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	if s.zones == nil {
		return nil, ErrZoneControlUnavailable
	}
	zone, err := s.lookupZone(zoneID)
	if err != nil {
		return nil, err
	}
	if err := s.zones.StopZone(ctx, zone.ID); err != nil {
		return nil, fmt.Errorf("failed to stop zone %s: %w", zone.ID, err)
	}
	return zone, nil
}

func (s *AdminService) StopAll(ctx context.Context, performingAdminID int64) error {
	if err := s.authorize(performingAdminID); err != nil {
		return err
	}
	if s.zones == nil {
		return ErrZoneControlUnavailable
	}
	if err := s.zones.StopAll(ctx); err != nil {
		return fmt.Errorf("failed to stop all zones: %w", err)
	}
	return nil
}

func (s *AdminService) Controller(ctx context.Context, performingAdminID int64) (*irrigation.ControllerStatus, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	if s.zones == nil {
		return nil, ErrZoneControlUnavailable
	}
	return s.zones.ControllerStatus(ctx)
}

// lookupZone accepts a zone id; with an empty catalog any id is allowed.
func (s *AdminService) lookupZone(zoneID string) (*irrigation.Zone, error) {
	if s.catalog.Len() == 0 {
		return &irrigation.Zone{ID: zoneID}, nil
	}
	z, ok := s.catalog.Lookup(zoneID, "")
	if !ok {
		return nil, ErrUnknownZone
	}
	return &z, nil
}
