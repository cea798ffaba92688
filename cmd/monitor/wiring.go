package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"irrigation_monitor/internal/app"
	"irrigation_monitor/internal/domain/alert"
	"irrigation_monitor/internal/domain/irrigation"
	"irrigation_monitor/internal/domain/reconcile"
	"irrigation_monitor/internal/infra/config"
	"irrigation_monitor/internal/infra/database"
	"irrigation_monitor/internal/infra/hydrawise"
	"irrigation_monitor/internal/infra/kafka"
	"irrigation_monitor/internal/infra/logger"
	"irrigation_monitor/internal/infra/metrics"
	"irrigation_monitor/internal/infra/ratelimit"
	"irrigation_monitor/internal/infra/reports"
	"irrigation_monitor/internal/infra/scheduler"
	"irrigation_monitor/internal/infra/telegram"
	"irrigation_monitor/internal/infra/zoneconfig"
)

// stack is everything a command needs, built from configuration.
type stack struct {
	cfg     *config.AppConfig
	loc     *time.Location
	log     *logrus.Entry
	db      *database.DB
	catalog *irrigation.ZoneCatalog
	limiter *ratelimit.Limiter
	vendor  *hydrawise.Client // nil without an API key
	metrics *metrics.Metrics
	bot     *telebot.Bot // nil without a bot token
	monitor *app.MonitorServiceImpl

	closers []func() error
}

type stackOptions struct {
	notify bool // wire Telegram and Kafka alert delivery
}

func buildStack(ctx context.Context, opts stackOptions) (*stack, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	logger.Init(cfg)
	st := &stack{cfg: cfg, log: logger.Component("main")}

	if st.loc, err = cfg.Location(); err != nil {
		return nil, err
	}
	st.log.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"timezone":    st.loc.String(),
		"admin_id":    cfg.AdminTelegramID,
	}).Info("Configuration loaded")

	if st.db, err = database.Open(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	st.closers = append(st.closers, st.db.Close)
	if err := st.db.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}
	st.log.WithField("dialect", st.db.Dialect).Info("Database connection established")

	catalog, fromFile, err := zoneconfig.Load(cfg.ZonesFile)
	if err != nil {
		st.Close()
		return nil, err
	}
	st.catalog = catalog
	st.log.WithFields(logrus.Fields{"zones": catalog.Len(), "from_file": fromFile}).Info("Zone catalog loaded")

	th := reconcile.DefaultThresholds()
	th.MatchTolerance = cfg.MatchTolerance
	th.MissingGrace = cfg.MissingGrace
	th.VolumeWarn = cfg.VolumeVarianceWarn
	th.VolumeCritical = cfg.VolumeVarianceCritical
	th.DurationCritical = cfg.DurationVarianceCritical
	if err := th.Validate(); err != nil {
		st.Close()
		return nil, fmt.Errorf("invalid reconciliation thresholds: %w", err)
	}

	st.metrics = metrics.New()
	st.limiter = ratelimit.New(ratelimit.Config{
		General:         ratelimit.Quota{Limit: cfg.GeneralRateLimit, Window: cfg.GeneralRateWindow},
		Privileged:      ratelimit.Quota{Limit: cfg.PrivilegedRateLimit, Window: cfg.PrivilegedRateWindow},
		AdvisoryCap:     cfg.AdvisoryCap,
		CappedEndpoints: hydrawise.CappedEndpoints(),
	}, logger.Component("ratelimit"), ratelimit.WithWaitObserver(st.metrics.ObserveWait))

	var sources []app.CollectorSource
	var zoneCounter app.ZoneCounter
	if cfg.HydrawiseAPIKey != "" {
		st.vendor = hydrawise.NewClient(hydrawise.Config{
			BaseURL: cfg.HydrawiseBaseURL,
			APIKey:  cfg.HydrawiseAPIKey,
		}, st.limiter, logger.Component("hydrawise"))
		zoneCounter = st.vendor
		sources = append(sources, app.CollectorSource{Name: "hydrawise", Collector: hydrawise.NewPlanCollector(st.vendor, catalog, st.loc)})
	}
	if cfg.ReportsDir != "" {
		sources = append(sources, app.CollectorSource{Name: "reports", Collector: reports.NewCollector(cfg.ReportsDir, st.loc, logger.Component("reports"))})
	}

	notifiers, operator, err := st.buildNotifiers(opts)
	if err != nil {
		st.Close()
		return nil, err
	}

	cycles := database.NewCycleRepository(st.db, st.loc)
	st.monitor = app.NewMonitorServiceImpl(app.MonitorDeps{
		Collector:   app.NewMultiCollector(logger.Component("collector"), sources...),
		Runs:        database.NewRunRepository(st.db, st.loc),
		Cycles:      cycles,
		Alerts:      database.NewAlertRepository(st.db, st.loc),
		Engine:      reconcile.NewEngine(th, catalog),
		Catalog:     catalog,
		Freshness:   app.NewFreshnessPolicy(cycles, cfg.PlanFreshness, cfg.RecordFreshness),
		Notifiers:   notifiers,
		Operator:    operator,
		ZoneCounter: zoneCounter,
		Observer:    st.metrics,
		Location:    st.loc,
		Logger:      logger.Component("monitor"),
	})
	return st, nil
}

func (st *stack) buildNotifiers(opts stackOptions) ([]alert.Notifier, alert.OperatorNotifier, error) {
	logNotifier := app.NewLogNotifier(logger.Component("notifications"))
	if !opts.notify {
		return []alert.Notifier{logNotifier}, logNotifier, nil
	}

	var notifiers []alert.Notifier
	var operator alert.OperatorNotifier = logNotifier
	if st.cfg.TelegramToken != "" {
		bot, err := telebot.NewBot(telebot.Settings{
			Token:  st.cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) {
				entry := logger.Component("telebot").WithError(err)
				if c != nil && c.Sender() != nil && c.Chat() != nil {
					entry = entry.WithFields(logrus.Fields{"text": c.Text(), "sender_id": c.Sender().ID, "chat_id": c.Chat().ID})
				}
				entry.Error("Telegram handler error")
			},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create Telegram bot: %w", err)
		}
		st.bot = bot
		ns := app.NewNotificationService(telegram.NewTelebotAdapter(bot), st.cfg.AlertChatID, st.cfg.AdminTelegramID, logger.Component("notifications"))
		notifiers = append(notifiers, ns)
		operator = ns
	} else {
		st.log.Warn("TELEGRAM_TOKEN is not set; alerts are only logged")
		notifiers = append(notifiers, logNotifier)
	}

	if len(st.cfg.KafkaBrokers) > 0 {
		pub := kafka.NewAlertPublisher(st.cfg.KafkaBrokers, st.cfg.KafkaAlertTopic, logger.Component("kafka"))
		notifiers = append(notifiers, pub)
		st.closers = append(st.closers, pub.Close)
		st.log.WithField("brokers", st.cfg.KafkaBrokers).Info("Publishing alerts to Kafka")
	}
	return notifiers, operator, nil
}

func (st *stack) schedulerConfig() (scheduler.Config, error) {
	cfg := scheduler.DefaultConfig()
	cfg.Location = st.loc
	cfg.TickSpec = st.cfg.TickSpec
	cfg.DailyTolerance = st.cfg.DailyTolerance
	cfg.PeriodicInterval = st.cfg.PeriodicInterval
	cfg.PeriodicRetry = st.cfg.PeriodicRetry
	cfg.EscalationThreshold = st.cfg.FailureEscalationThreshold
	cfg.StartupCollection = st.cfg.StartupCollection

	var err error
	if cfg.DailyAt, err = scheduler.ParseTimeOfDay(st.cfg.DailyCollectionTime); err != nil {
		return cfg, fmt.Errorf("DAILY_COLLECTION_TIME: %w", err)
	}
	if cfg.ActiveStart, err = scheduler.ParseTimeOfDay(st.cfg.ActiveStart); err != nil {
		return cfg, fmt.Errorf("ACTIVE_START: %w", err)
	}
	if cfg.ActiveEnd, err = scheduler.ParseTimeOfDay(st.cfg.ActiveEnd); err != nil {
		return cfg, fmt.Errorf("ACTIVE_END: %w", err)
	}
	if cfg.ActiveEnd.Minutes() <= cfg.ActiveStart.Minutes() {
		return cfg, fmt.Errorf("ACTIVE_END %s must be after ACTIVE_START %s", cfg.ActiveEnd, cfg.ActiveStart)
	}
	return cfg, nil
}

// zoneController is nil unless the vendor API is configured; a typed nil
// would defeat the admin service's nil check.
func (st *stack) zoneController() app.ZoneController {
	if st.vendor == nil {
		return nil
	}
	return st.vendor
}

func (st *stack) Close() {
	var errs []error
	for i := len(st.closers) - 1; i >= 0; i-- {
		if err := st.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		st.log.WithError(err).Warn("Errors while releasing resources")
	}
}
