// File: internal/infra/telegram/deeplink.go
package telegram

import (
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"telegram-match-bridge/internal/infra/metrics"
	"telegram-match-bridge/internal/usecase"
)

var _ usecase.DeepLinkBuilder = (*DeepLinkBuilder)(nil)

// FallbackCommunicatorHandle is used when the configured handle would produce
// a broken t.me link. The link must always resolve somewhere.
const FallbackCommunicatorHandle = "AllkindsCommunicatorBot"

// Telegram bot usernames: 5-32 chars of [A-Za-z0-9_].
var handleRe = regexp.MustCompile(`^[A-Za-z0-9_]{5,32}$`)

// DeepLinkBuilder renders the invite link both participants receive when a
// session opens. Tapping it starts the communicator bot with the session id
// as the start payload.
type DeepLinkBuilder struct {
	handle   string
	fallback bool
	log      *zerolog.Logger
}

func NewDeepLinkBuilder(communicatorHandle string, logger *zerolog.Logger) *DeepLinkBuilder {
	l := logger.With().Str("component", "DeepLinkBuilder").Logger()
	fallback := !handleRe.MatchString(communicatorHandle)
	if fallback {
		l.Warn().Str("handle", communicatorHandle).
			Str("fallback", FallbackCommunicatorHandle).
			Msg("communicator handle invalid, deep links will use the fallback")
		communicatorHandle = FallbackCommunicatorHandle
	}
	return &DeepLinkBuilder{handle: communicatorHandle, fallback: fallback, log: &l}
}

func (b *DeepLinkBuilder) ChatLink(sessionID string) string {
	if b.fallback {
		metrics.IncDeeplinkFallback()
	}
	return fmt.Sprintf("https://t.me/%s?start=chat_%s", b.handle, sessionID)
}
