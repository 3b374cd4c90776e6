package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Notifier delivers human-readable event messages to the operator.
type Notifier interface {
	Send(text string)
}

// Telegram sends DMs through a bot. Failures are logged, never fatal:
// trading must not stall on a notification outage.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}

	log.Info().Str("bot", bot.Self.UserName).Int64("chatID", chatID).Msg("telegram notifier ready")
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		log.Warn().Err(err).Msg("telegram send failed")
	}
}

// Noop is used when no Telegram credentials are configured.
type Noop struct{}

func (Noop) Send(string) {}

// FromConfig returns a Telegram notifier when a token is present and a
// Noop otherwise.
func FromConfig(token string, chatID int64) Notifier {
	if token == "" || chatID == 0 {
		log.Info().Msg("telegram not configured, notifications disabled")
		return Noop{}
	}
	n, err := NewTelegram(token, chatID)
	if err != nil {
		log.Warn().Err(err).Msg("telegram setup failed, notifications disabled")
		return Noop{}
	}
	return n
}
