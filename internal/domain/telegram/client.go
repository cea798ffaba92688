package telegram

import "gopkg.in/telebot.v3"

// Client sends one text to a chat. Alert and operator notices go through it,
// so the application never touches the bot directly.
type Client interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}
