// internal/infra/telegram/client.go
package telegram

import (
	"strings"
	"unicode/utf8"

	"gopkg.in/telebot.v3"
)

// maxMessageRunes is Telegram's limit for one text message.
const maxMessageRunes = 4096

// TelebotAdapter sends notifications through a telebot.Bot. Texts longer
// than one Telegram message are split on line boundaries and any reply
// markup goes with the last part.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

func (tba *TelebotAdapter) SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}
	parts := splitMessage(text, maxMessageRunes)
	for i, part := range parts {
		opts := options
		if i < len(parts)-1 {
			plain := *options
			plain.ReplyMarkup = nil
			opts = &plain
		}
		if _, err := tba.bot.Send(telebot.ChatID(recipientChatID), part, opts); err != nil {
			return err
		}
	}
	return nil
}

// splitMessage cuts text into chunks of at most limit runes, preferring
// line breaks. A single over-long line is cut at the rune limit.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var parts []string
	var cur strings.Builder
	curRunes := 0
	flush := func() {
		if curRunes > 0 {
			parts = append(parts, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
			curRunes = 0
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if curRunes+n > limit {
			flush()
		}
		for n > limit {
			r := []rune(line)
			parts = append(parts, string(r[:limit]))
			line = string(r[limit:])
			n -= limit
		}
		cur.WriteString(line)
		curRunes += n
	}
	flush()
	return parts
}
