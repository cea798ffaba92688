package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"irrigation_monitor/internal/app"
	"irrigation_monitor/internal/domain/collection"
	"irrigation_monitor/internal/infra/httpapi"
	"irrigation_monitor/internal/infra/logger"
	"irrigation_monitor/internal/infra/reports"
	"irrigation_monitor/internal/infra/scheduler"
	"irrigation_monitor/internal/infra/telegram"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, the Telegram bot and the status API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	st, err := buildStack(ctx, stackOptions{notify: true})
	if err != nil {
		return err
	}
	defer st.Close()
	cfg := st.cfg

	schedCfg, err := st.schedulerConfig()
	if err != nil {
		return err
	}
	sched := scheduler.NewCollectionScheduler(st.monitor, schedCfg, logger.Component("scheduler"))
	adminService := app.NewAdminService(st.monitor, sched, st.zoneController(), st.limiter, st.catalog, cfg.AdminTelegramID, st.loc)

	g, gctx := errgroup.WithContext(ctx)

	if err := sched.Start(gctx); err != nil {
		return err
	}
	g.Go(func() error {
		<-gctx.Done()
		sched.Stop()
		return nil
	})

	if st.bot != nil {
		botLog := logger.Component("telegram")
		telegram.RegisterBotCommands(st.bot, adminService, botLog)
		telegram.RegisterAdminHandlers(gctx, st.bot, adminService, st.loc, botLog)
		telegram.RegisterAlertResponseHandlers(gctx, st.bot, adminService, botLog)
		g.Go(func() error {
			st.bot.Start()
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			st.bot.Stop()
			return nil
		})
		st.log.Info("Telegram bot started")
	}

	if cfg.HTTPAddr != "" {
		srv := httpapi.NewServer(cfg.HTTPAddr, adminService, cfg.AdminTelegramID, st.loc, st.metrics, logger.Component("http"))
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Stop(shutdownCtx)
		})
	}

	if cfg.ReportsDir != "" && cfg.WatchReports {
		watchLog := logger.Component("watcher")
		w := reports.NewWatcher(cfg.ReportsDir, st.loc, 0, func(ctx context.Context, date time.Time) {
			if _, err := st.monitor.RunCycle(ctx, collection.CycleManual, []time.Time{date}); err != nil {
				watchLog.WithError(err).Error("Report-triggered collection failed")
			}
		}, watchLog)
		g.Go(func() error { return w.Run(gctx) })
	}

	st.log.Info("Irrigation monitor running")
	err = g.Wait()
	st.log.Info("Irrigation monitor stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
