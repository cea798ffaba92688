package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"irrigation_monitor/internal/domain/collection"
	"irrigation_monitor/internal/domain/irrigation"
)

// Monitor is the part of the monitor service the scheduler drives.
type Monitor interface {
	RunCycle(ctx context.Context, cycleType collection.CycleType, dates []time.Time) (*collection.CycleRecord, error)
	HasSuccessfulCycle(ctx context.Context, date time.Time) (bool, error)
	ActiveAlertCount(ctx context.Context) (int, error)
	NotifyOperator(ctx context.Context, text string) error
}

type Config struct {
	Location            *time.Location
	TickSpec            string // cron spec of the control loop, "@every 1m"
	DailyAt             TimeOfDay
	DailyTolerance      time.Duration
	PeriodicInterval    time.Duration
	PeriodicRetry       time.Duration
	ActiveStart         TimeOfDay
	ActiveEnd           TimeOfDay
	EscalationThreshold int
	StartupCollection   bool
	CycleTimeout        time.Duration
}

func DefaultConfig() Config {
	return Config{
		Location:            time.Local,
		TickSpec:            "@every 1m",
		DailyAt:             TimeOfDay{Hour: 6},
		DailyTolerance:      5 * time.Minute,
		PeriodicInterval:    30 * time.Minute,
		PeriodicRetry:       5 * time.Minute,
		ActiveStart:         TimeOfDay{Hour: 6},
		ActiveEnd:           TimeOfDay{Hour: 22},
		EscalationThreshold: 3,
		StartupCollection:   true,
		CycleTimeout:        10 * time.Minute,
	}
}

// CollectionScheduler runs the control loop that fires daily, periodic and
// startup collection cycles. Ticks never overlap: a tick that finds another
// one in flight returns without evaluating.
type CollectionScheduler struct {
	cronEngine *cron.Cron
	monitor    Monitor
	cfg        Config
	logger     *logrus.Entry
	now        func() time.Time

	tickMu  sync.Mutex
	wg      sync.WaitGroup
	mu      sync.Mutex
	state   state
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewCollectionScheduler(monitor Monitor, cfg Config, logger *logrus.Entry) *CollectionScheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.TickSpec == "" {
		cfg.TickSpec = "@every 1m"
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 10 * time.Minute
	}
	return &CollectionScheduler{
		cronEngine: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
		),
		monitor: monitor,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Start registers the tick and starts the cron engine. The first tick runs
// immediately so a startup collection does not wait a full interval.
func (s *CollectionScheduler) Start(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"daily_at":          s.cfg.DailyAt.String(),
		"periodic_interval": s.cfg.PeriodicInterval,
		"active_window":     s.cfg.ActiveStart.String() + "-" + s.cfg.ActiveEnd.String(),
	}).Info("Starting collection scheduler...")

	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.mu.Unlock()

	if _, err := s.cronEngine.AddFunc(s.cfg.TickSpec, s.Tick); err != nil {
		return fmt.Errorf("could not add scheduler tick %q: %w", s.cfg.TickSpec, err)
	}
	s.cronEngine.Start()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Tick()
	}()

	s.logger.Info("Collection scheduler started.")
	return nil
}

// Stop cancels an in-flight cycle and waits for the running tick to return.
func (s *CollectionScheduler) Stop() {
	s.logger.Info("Stopping collection scheduler...")
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("Collection scheduler gracefully stopped.")
}

func (s *CollectionScheduler) Pause() {
	s.mu.Lock()
	s.state.paused = true
	s.mu.Unlock()
	s.logger.Info("Collection scheduler paused")
}

func (s *CollectionScheduler) Resume() {
	s.mu.Lock()
	s.state.paused = false
	s.mu.Unlock()
	s.logger.Info("Collection scheduler resumed")
}

// Tick evaluates both cadences once and fires at most one cycle.
func (s *CollectionScheduler) Tick() {
	if !s.tickMu.TryLock() {
		s.logger.Debug("Tick skipped, previous tick still running")
		return
	}
	defer s.tickMu.Unlock()

	s.mu.Lock()
	ctx := s.ctx
	st := s.state
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}

	now := s.now().In(s.cfg.Location)
	d := decide(now, s.cfg, st)
	if !d.fire {
		s.logger.WithFields(logrus.Fields{"paused": st.paused, "time": now.Format("15:04")}).Debug("Tick: nothing due")
		return
	}
	s.fire(ctx, now, d.cycleType)
}

func (s *CollectionScheduler) fire(ctx context.Context, now time.Time, cycleType collection.CycleType) {
	log := s.logger.WithField("cycle_type", cycleType)
	dates := cycleDates(now, cycleType)
	if cycleType == collection.CycleStartup {
		dates = s.startupDates(ctx, dates, log)
	}
	log.WithField("dates", dateKeys(dates)).Info("Collection cycle due, firing")

	cycleCtx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
	rec, err := s.monitor.RunCycle(cycleCtx, cycleType, dates)
	cancel()

	ok := err == nil && rec != nil && rec.Outcome != collection.OutcomeFailed
	switch {
	case err != nil:
		log.WithError(err).Error("Collection cycle errored")
	case !ok:
		log.WithField("errors", rec.Errors).Warn("Collection cycle failed, will retry")
	default:
		log.WithFields(logrus.Fields{"outcome": rec.Outcome, "alerts_raised": rec.AlertsRaised}).Info("Collection cycle finished")
	}

	s.mu.Lock()
	before := s.state
	s.state = s.state.apply(now, cycleType, ok, rec)
	after := s.state
	s.mu.Unlock()

	s.escalateIfNeeded(ctx, "daily", before.daily, after.daily)
	s.escalateIfNeeded(ctx, "periodic", before.periodic, after.periodic)
}

// startupDates drops yesterday when it already has a successful collection.
func (s *CollectionScheduler) startupDates(ctx context.Context, dates []time.Time, log *logrus.Entry) []time.Time {
	yesterday := dates[0]
	done, err := s.monitor.HasSuccessfulCycle(ctx, yesterday)
	if err != nil {
		log.WithError(err).Warn("Could not check yesterday's collection, collecting it again")
		return dates
	}
	if done {
		log.WithField("date", irrigation.DateKey(yesterday)).Info("Yesterday already collected, startup collects today only")
		return dates[1:]
	}
	return dates
}

// escalateIfNeeded notifies the operator once when a cadence reaches the
// failure threshold.
func (s *CollectionScheduler) escalateIfNeeded(ctx context.Context, name string, before, after cadence) {
	threshold := s.cfg.EscalationThreshold
	if threshold <= 0 || after.consecutiveFailures < threshold || before.escalated {
		return
	}
	s.mu.Lock()
	switch name {
	case "daily":
		s.state.daily.escalated = true
	case "periodic":
		s.state.periodic.escalated = true
	}
	s.mu.Unlock()

	msg := fmt.Sprintf("⚠️ %s collection has failed %d times in a row. Check vendor credentials and connectivity.", name, after.consecutiveFailures)
	s.logger.WithFields(logrus.Fields{"cadence": name, "failures": after.consecutiveFailures}).Error("Collection failures escalated to operator")
	if err := s.monitor.NotifyOperator(ctx, msg); err != nil {
		s.logger.WithError(err).Error("Failed to deliver escalation")
	}
}

// Status reports the scheduler's state for health surfaces.
func (s *CollectionScheduler) Status(ctx context.Context) collection.SchedulerStatus {
	s.mu.Lock()
	st := s.state
	running := s.running
	s.mu.Unlock()

	now := s.now().In(s.cfg.Location)
	status := collection.SchedulerStatus{
		Running:       running,
		Paused:        st.paused,
		NextDaily:     nextDaily(now, s.cfg, st),
		NextPeriodic:  nextPeriodic(now, s.cfg, st),
		LastDailyDate: st.lastDailyDate,
		Daily:         st.daily.status(),
		Periodic:      st.periodic.status(),
		LastCycle:     st.lastCycle,
	}
	n, err := s.monitor.ActiveAlertCount(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Could not count active alerts for status")
	}
	status.ActiveAlertCount = n
	return status
}

func dateKeys(dates []time.Time) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, irrigation.DateKey(d))
	}
	return out
}
