package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"irrigation_monitor/internal/app"
	"irrigation_monitor/internal/domain/alert"
	"irrigation_monitor/internal/domain/irrigation"
)

const msgUnauthorized = "Error: you are not allowed to run this command."

// RegisterAdminHandlers registers the operator commands. Every command is
// authorized by the admin service against the configured admin id.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, loc *time.Location, baseLogger *logrus.Entry) {
	handle := func(command string, fn func(c telebot.Context, log *logrus.Entry) error) {
		b.Handle(command, func(c telebot.Context) error {
			handlerLogger := baseLogger.WithFields(logrus.Fields{
				"handler":   command,
				"sender_id": c.Sender().ID,
			})
			handlerLogger.Info("Command received")
			if !adminService.IsAdmin(c.Sender().ID) {
				handlerLogger.Warn("Unauthorized access attempt")
				return c.Send(msgUnauthorized)
			}
			return fn(c, handlerLogger)
		})
	}

	handle("/status", func(c telebot.Context, log *logrus.Entry) error {
		st, err := adminService.Status(ctx, c.Sender().ID)
		if err != nil {
			return c.Send(errorReply(log, err, "read status"))
		}
		return c.Send(pre(app.RenderStatus(*st, loc)), &telebot.SendOptions{ParseMode: telebot.ModeHTML})
	})

	handle("/alerts", func(c telebot.Context, log *logrus.Entry) error {
		alerts, err := adminService.ActiveAlerts(ctx, c.Sender().ID)
		if err != nil {
			return c.Send(errorReply(log, err, "list alerts"))
		}
		if len(alerts) == 0 {
			return c.Send("No active alerts. 🌱")
		}
		log.WithField("alerts_count", len(alerts)).Info("Sending active alerts")
		return c.Send(formatAlertList(alerts))
	})

	handle("/ack", func(c telebot.Context, log *logrus.Entry) error {
		args := c.Args()
		if len(args) != 1 {
			return c.Send("Usage: /ack <alert id>")
		}
		a, err := adminService.Acknowledge(ctx, c.Sender().ID, args[0])
		if err != nil {
			return c.Send(errorReply(log.WithField("alert_id", args[0]), err, "acknowledge alert"))
		}
		return c.Send(fmt.Sprintf("Acknowledged: %s, %s", a.ZoneLabel(), a.Description))
	})

	handle("/refresh", func(c telebot.Context, log *logrus.Entry) error {
		force := len(c.Args()) > 0 && strings.EqualFold(c.Args()[0], "force")
		_ = c.Send("Refreshing irrigation data...")
		res, err := adminService.Refresh(ctx, c.Sender().ID, force)
		if err != nil {
			return c.Send(errorReply(log, err, "refresh"))
		}
		return c.Send(formatRefresh(res))
	})

	handle("/report", func(c telebot.Context, log *logrus.Entry) error {
		var date time.Time
		if args := c.Args(); len(args) > 0 {
			d, err := irrigation.ParseDate(args[0], loc)
			if err != nil {
				return c.Send("Usage: /report [YYYY-MM-DD]")
			}
			date = d
		}
		report, err := adminService.Report(ctx, c.Sender().ID, date)
		if err != nil {
			return c.Send(errorReply(log, err, "build report"))
		}
		return c.Send(pre(app.RenderReport(report)), &telebot.SendOptions{ParseMode: telebot.ModeHTML})
	})

	handle("/pause", func(c telebot.Context, log *logrus.Entry) error {
		if err := adminService.Pause(c.Sender().ID); err != nil {
			return c.Send(errorReply(log, err, "pause"))
		}
		return c.Send("⏸ Collection paused. Use /resume to continue.")
	})

	handle("/resume", func(c telebot.Context, log *logrus.Entry) error {
		if err := adminService.Resume(c.Sender().ID); err != nil {
			return c.Send(errorReply(log, err, "resume"))
		}
		return c.Send("▶️ Collection resumed.")
	})

	handle("/run_zone", func(c telebot.Context, log *logrus.Entry) error {
		zoneID, minutes, err := parseRunZoneArgs(c.Args())
		if err != nil {
			return c.Send(err.Error())
		}
		log = log.WithFields(logrus.Fields{"zone_id": zoneID, "minutes": minutes})
		zone, err := adminService.RunZone(ctx, c.Sender().ID, zoneID, minutes)
		if err != nil {
			return c.Send(errorReply(log, err, "start zone"))
		}
		log.Info("Zone started manually")
		return c.Send(fmt.Sprintf("💧 Started %s for %d min.", zoneLabel(zone), minutes))
	})

	handle("/stop_zone", func(c telebot.Context, log *logrus.Entry) error {
		args := c.Args()
		if len(args) != 1 {
			return c.Send("Usage: /stop_zone <zone id>")
		}
		zone, err := adminService.StopZone(ctx, c.Sender().ID, args[0])
		if err != nil {
			return c.Send(errorReply(log.WithField("zone_id", args[0]), err, "stop zone"))
		}
		return c.Send(fmt.Sprintf("⏹ Stopped %s.", zoneLabel(zone)))
	})

	handle("/stop_all", func(c telebot.Context, log *logrus.Entry) error {
		if err := adminService.StopAll(ctx, c.Sender().ID); err != nil {
			return c.Send(errorReply(log, err, "stop all zones"))
		}
		return c.Send("⏹ All zones stopped.")
	})

	handle("/controller", func(c telebot.Context, log *logrus.Entry) error {
		st, err := adminService.Controller(ctx, c.Sender().ID)
		if err != nil {
			return c.Send(errorReply(log, err, "read controller status"))
		}
		return c.Send(formatController(st, loc))
	})
}

// errorReply logs err and maps it to a user-facing message.
func errorReply(log *logrus.Entry, err error, action string) string {
	logWithError := log.WithError(err)
	switch {
	case errors.Is(err, app.ErrAdminNotAuthorized):
		logWithError.Warn("Admin not authorized (service level)")
		return msgUnauthorized
	case errors.Is(err, alert.ErrAlertNotFound):
		logWithError.Warn("Alert not found")
		return "Alert not found."
	case errors.Is(err, app.ErrUnknownZone):
		logWithError.Warn("Unknown zone")
		return "Unknown zone. Check the zone id in the zone catalog."
	case errors.Is(err, app.ErrInvalidRunDuration):
		return "Error: " + err.Error() + "."
	case errors.Is(err, app.ErrZoneControlUnavailable):
		return "Zone control is not available: no vendor API key is configured."
	default:
		logWithError.Errorf("Failed to %s", action)
		return fmt.Sprintf("Failed to %s: %s", action, err.Error())
	}
}

func parseRunZoneArgs(args []string) (string, int, error) {
	if len(args) != 2 {
		return "", 0, errors.New("Usage: /run_zone <zone id> <minutes>")
	}
	minutes, err := strconv.Atoi(args[1])
	if err != nil {
		return "", 0, errors.New("Error: minutes must be a number.")
	}
	return args[0], minutes, nil
}

func formatAlertList(alerts []*alert.Alert) string {
	var response strings.Builder
	fmt.Fprintf(&response, "--- Active alerts (%d) ---\n", len(alerts))
	for _, a := range alerts {
		fmt.Fprintf(&response, "%s %s %s: %s\n  id: %s\n", a.Severity, a.RunDate, a.ZoneLabel(), a.Description, a.ID)
	}
	return response.String()
}

func formatRefresh(res *app.RefreshResult) string {
	if !res.Ran {
		return "Data is fresh (" + res.Freshness.Reason + "), nothing fetched. Use /refresh force to fetch anyway."
	}
	rec := res.Record
	msg := fmt.Sprintf("Refresh %s: %d scheduled, %d actual runs, %d new alerts.",
		rec.Outcome, rec.ScheduledCollected, rec.ActualCollected, rec.AlertsRaised)
	if len(rec.Errors) > 0 {
		msg += "\nErrors:\n- " + strings.Join(rec.Errors, "\n- ")
	}
	return msg
}

func formatController(st *irrigation.ControllerStatus, loc *time.Location) string {
	var b strings.Builder
	online := "offline"
	if st.Online {
		online = "online"
	}
	fmt.Fprintf(&b, "Controller %s (%s), %s\n", st.Name, st.ControllerID, online)
	if !st.LastContact.IsZero() {
		fmt.Fprintf(&b, "Last contact: %s\n", st.LastContact.In(loc).Format("2006-01-02 15:04"))
	}
	for _, z := range st.Zones {
		switch {
		case z.RunningFor > 0:
			fmt.Fprintf(&b, "💧 %s: running, %s left\n", z.Name, z.RunningFor.Round(time.Second))
		case !z.SuspendedUntil.IsZero():
			fmt.Fprintf(&b, "⏸ %s: suspended until %s\n", z.Name, z.SuspendedUntil.In(loc).Format("2006-01-02 15:04"))
		case !z.NextRun.IsZero():
			fmt.Fprintf(&b, "%s: next run %s\n", z.Name, z.NextRun.In(loc).Format("Mon 15:04"))
		default:
			fmt.Fprintf(&b, "%s: no run scheduled\n", z.Name)
		}
	}
	return b.String()
}

func zoneLabel(z *irrigation.Zone) string {
	if z.Name == "" {
		return "zone " + z.ID
	}
	return fmt.Sprintf("%s (%s)", z.Name, z.ID)
}

// pre wraps monospaced tables for HTML parse mode.
func pre(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return "<pre>" + r.Replace(s) + "</pre>"
}
