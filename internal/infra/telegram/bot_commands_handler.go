// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"irrigation_monitor/internal/app"
)

func RegisterBotCommands(b *telebot.Bot, adminService *app.AdminService, baseLogger *logrus.Entry) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if adminService.IsAdmin(senderID) {
			logCtx.Info("User identified as Admin")
			return c.Send(fmt.Sprintf("Hello %s! The irrigation monitor is running. Use /help for the command list.", c.Sender().FirstName))
		}
		logCtx.Info("User is unknown")
		return c.Send("Hello! This bot reports irrigation problems to the site operator. Your chat id is " + fmt.Sprint(c.Chat().ID) + ".")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")

		if !adminService.IsAdmin(senderID) {
			return c.Send("No commands are available to you.")
		}
		return c.Send(helpText(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})
}

func helpText() string {
	var helpText strings.Builder
	helpText.WriteString("Operator commands:\n\n")
	helpText.WriteString("`/status` - scheduler state, next collections, API quota\n")
	helpText.WriteString("`/alerts` - active alerts\n")
	helpText.WriteString("`/ack <id>` - acknowledge an alert\n")
	helpText.WriteString("`/refresh [force]` - collect today's data now\n")
	helpText.WriteString("`/report [YYYY-MM-DD]` - reconciliation report\n")
	helpText.WriteString("`/pause`, `/resume` - pause or resume scheduled collection\n")
	helpText.WriteString("`/run_zone <id> <minutes>` - run a zone\n")
	helpText.WriteString("`/stop_zone <id>`, `/stop_all` - stop watering\n")
	helpText.WriteString("`/controller` - live controller status\n")
	helpText.WriteString("`/help` - this message")
	return helpText.String()
}
