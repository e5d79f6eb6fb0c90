package adapter

import "context"

// BotIdentity names one of the two messaging endpoints the service speaks
// through. The primary identity runs the team/match flows; the communicator
// identity carries the anonymous relay so real accounts never meet.
type BotIdentity string

const (
	IdentityPrimary      BotIdentity = "primary"
	IdentityCommunicator BotIdentity = "communicator"
)

type InlineButton struct {
	Text string
	Data string
	URL  string
}

// MessengerAdapter sends outbound messages on a named bot identity.
type MessengerAdapter interface {
	SendMessage(ctx context.Context, identity BotIdentity, telegramID int64, text string) error
	SendButtons(ctx context.Context, identity BotIdentity, telegramID int64, text string, rows [][]InlineButton) error
}
