// File: internal/infra/telegram/noop_bot.go
package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"telegram-match-bridge/internal/domain/ports/adapter"
)

var _ adapter.MessengerAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter logs outbound messages instead of sending them. Used in dev
// mode so the full flow runs without real bot tokens.
type NoopBotAdapter struct {
	log *zerolog.Logger
}

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	l := logger.With().Str("component", "NoopBotAdapter").Logger()
	return &NoopBotAdapter{log: &l}
}

func (n *NoopBotAdapter) SendMessage(_ context.Context, identity adapter.BotIdentity, telegramID int64, text string) error {
	n.log.Info().Str("identity", string(identity)).Int64("telegram_id", telegramID).
		Str("text", text).Msg("noop send")
	return nil
}

func (n *NoopBotAdapter) SendButtons(_ context.Context, identity adapter.BotIdentity, telegramID int64, text string, rows [][]adapter.InlineButton) error {
	n.log.Info().Str("identity", string(identity)).Int64("telegram_id", telegramID).
		Str("text", text).Int("rows", len(rows)).Msg("noop send with buttons")
	return nil
}
