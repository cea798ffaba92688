package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"irrigation_monitor/internal/app"
	"irrigation_monitor/internal/domain/alert"
)

// RegisterAlertResponseHandlers handles the inline Acknowledge button sent
// with every alert.
func RegisterAlertResponseHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, baseLogger *logrus.Entry) {
	ackBtn := &telebot.Btn{Unique: app.AckButtonUnique}
	b.Handle(ackBtn, func(c telebot.Context) error {
		alertID := c.Callback().Data
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "ack_button",
			"sender_id": c.Sender().ID,
			"alert_id":  alertID,
		})
		if alertID == "" {
			c.Bot().OnError(fmt.Errorf("ack callback without alert id"), c)
			return c.Respond(&telebot.CallbackResponse{Text: "Invalid button."})
		}

		a, err := adminService.Acknowledge(ctx, c.Sender().ID, alertID)
		switch {
		case errors.Is(err, app.ErrAdminNotAuthorized):
			handlerLogger.Warn("Unauthorized acknowledge attempt")
			return c.Respond(&telebot.CallbackResponse{Text: "Only the operator can acknowledge alerts."})
		case errors.Is(err, alert.ErrAlertNotFound):
			return c.Respond(&telebot.CallbackResponse{Text: "Alert no longer exists."})
		case err != nil:
			c.Bot().OnError(fmt.Errorf("error acknowledging alert %s: %w", alertID, err), c)
			return c.Respond(&telebot.CallbackResponse{Text: "An error occurred."})
		}

		handlerLogger.Info("Alert acknowledged from button")
		if c.Message() != nil {
			// Drop the button; a failed edit is not worth surfacing.
			_, _ = c.Bot().Edit(c.Message(), c.Message().Text+"\n\n✅ Acknowledged")
		}
		return c.Respond(&telebot.CallbackResponse{Text: "Acknowledged: " + a.ZoneLabel()})
	})
}
