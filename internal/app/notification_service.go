// internal/app/notification_service.go
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"irrigation_monitor/internal/domain/alert"
	domainTelegram "irrigation_monitor/internal/domain/telegram"
)

// AckButtonUnique is the callback unique of the inline Acknowledge button.
// The callback payload is the alert id.
const AckButtonUnique = "ack"

// NotificationService delivers alerts and operator notices over Telegram.
// It implements alert.Notifier and alert.OperatorNotifier.
type NotificationService struct {
	telegramClient domainTelegram.Client
	alertChatID    int64
	adminChatID    int64
	logger         *logrus.Entry
}

// NewNotificationService sends alerts to alertChatID; operator notices go to
// adminChatID. A zero alertChatID falls back to the admin chat.
func NewNotificationService(tc domainTelegram.Client, alertChatID, adminChatID int64, logger *logrus.Entry) *NotificationService {
	if alertChatID == 0 {
		alertChatID = adminChatID
	}
	return &NotificationService{
		telegramClient: tc,
		alertChatID:    alertChatID,
		adminChatID:    adminChatID,
		logger:         logger,
	}
}

func (s *NotificationService) Notify(_ context.Context, a alert.Alert) error {
	replyMarkup := &telebot.ReplyMarkup{}
	btnAck := replyMarkup.Data("✅ Acknowledge", AckButtonUnique, a.ID)
	replyMarkup.Inline(replyMarkup.Row(btnAck))

	err := s.telegramClient.SendMessage(s.alertChatID, FormatAlert(a), &telebot.SendOptions{ReplyMarkup: replyMarkup})
	if err != nil {
		return fmt.Errorf("failed to send alert %s to chat %d: %w", a.ID, s.alertChatID, err)
	}
	s.logger.WithFields(logrus.Fields{"alert_id": a.ID, "zone_id": a.ZoneID, "severity": a.Severity}).Info("Alert sent")
	return nil
}

func (s *NotificationService) NotifyOperator(_ context.Context, text string) error {
	if err := s.telegramClient.SendMessage(s.adminChatID, text, nil); err != nil {
		return fmt.Errorf("failed to send operator notice: %w", err)
	}
	return nil
}

// LogNotifier only logs alerts. It stands in for Telegram when no bot
// token is configured.
type LogNotifier struct {
	logger *logrus.Entry
}

func NewLogNotifier(logger *logrus.Entry) *LogNotifier { return &LogNotifier{logger: logger} }

func (n *LogNotifier) Notify(_ context.Context, a alert.Alert) error {
	n.logger.WithFields(logrus.Fields{
		"alert_id": a.ID,
		"zone_id":  a.ZoneID,
		"severity": a.Severity,
		"type":     a.Type,
	}).Warn(a.Description)
	return nil
}

func (n *LogNotifier) NotifyOperator(_ context.Context, text string) error {
	n.logger.Warn(text)
	return nil
}

var severityIcon = map[alert.Severity]string{
	alert.SeverityCritical: "🔴",
	alert.SeverityWarning:  "🟡",
	alert.SeverityInfo:     "🔵",
}

var typeTitle = map[alert.FailureType]string{
	alert.FailureMissingRun:       "Missing run",
	alert.FailureUnexpectedRun:    "Unexpected run",
	alert.FailureFailedRun:        "Failed run",
	alert.FailureWaterVariance:    "Water volume variance",
	alert.FailureDurationVariance: "Duration variance",
}

// FormatAlert renders one alert as a chat message.
func FormatAlert(a alert.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s\n", severityIcon[a.Severity], a.Severity, typeTitle[a.Type])
	fmt.Fprintf(&b, "Zone: %s\n", a.ZoneLabel())
	fmt.Fprintf(&b, "%s\n", a.Description)
	if a.PlantRisk != "" && (a.Type == alert.FailureMissingRun || a.Type == alert.FailureFailedRun) {
		fmt.Fprintf(&b, "Plant risk: %s (max %dh without water)\n", a.PlantRisk, a.MaxHoursWithoutWater)
	}
	if a.DeficitGallons != nil && *a.DeficitGallons > 0 {
		fmt.Fprintf(&b, "Deficit: %.1f gal\n", *a.DeficitGallons)
	}
	fmt.Fprintf(&b, "Action: %s\n", a.Action)
	fmt.Fprintf(&b, "Date: %s", a.RunDate)
	return b.String()
}
