// File: internal/application/bot_facade.go
package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"telegram-match-bridge/internal/domain"
	"telegram-match-bridge/internal/domain/model"
	"telegram-match-bridge/internal/domain/ports/adapter"
	"telegram-match-bridge/internal/domain/ports/repository"
	"telegram-match-bridge/internal/infra/logging"
	"telegram-match-bridge/internal/usecase"
)

// Command is a parsed bot instruction. The telegram adapters translate raw
// updates (slash commands, callback data, start payloads) into one of these
// before touching any use case, so dispatch is a switch on a closed set
// instead of string matching scattered through handlers.
type Command string

const (
	CmdStart       Command = "start"
	CmdHelp        Command = "help"
	CmdFindMatch   Command = "find_match"
	CmdStartComm   Command = "start_comm"
	CmdConfirmComm Command = "confirm_comm"
	CmdDeclineComm Command = "decline_comm"
	CmdEndChat     Command = "end_chat"
	CmdBalance     Command = "balance"
	CmdUnknown     Command = "unknown"
)

// ParseCommand maps a raw slash command or callback payload onto a Command
// plus its argument, if any. Callback data uses the "verb:arg" form.
func ParseCommand(text string) (Command, string) {
	text = strings.TrimSpace(text)
	if verb, arg, ok := strings.Cut(text, ":"); ok {
		switch Command(verb) {
		case CmdStartComm, CmdConfirmComm, CmdDeclineComm:
			return Command(verb), arg
		}
	}
	cmd, arg, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
	switch Command(cmd) {
	case CmdStart, CmdHelp, CmdFindMatch, CmdEndChat, CmdBalance:
		return Command(cmd), strings.TrimSpace(arg)
	}
	return CmdUnknown, ""
}

// Reply is what a dispatched command sends back: text plus an optional inline
// keyboard. Button callback data uses the same "verb:arg" form ParseCommand
// reads, so a tap routes back through Dispatch.
type Reply struct {
	Text    string
	Buttons [][]adapter.InlineButton
}

// BotFacade composes the use cases into chat-level replies. Methods return
// the Reply to send back so the Telegram adapters stay transport-only; every
// domain sentinel gets its own user-visible wording here and nowhere else.
// The messenger is used for the one message that goes to someone other than
// the command's sender: the accept prompt for the handshake counterpart.
type BotFacade struct {
	users        repository.UserRepository
	sessions     repository.ChatSessionRepository
	orchestrator usecase.HandoffOrchestrator
	ledger       usecase.LedgerUseCase
	relay        usecase.Relay
	messenger    adapter.MessengerAdapter
	log          *zerolog.Logger
}

func NewBotFacade(
	users repository.UserRepository,
	sessions repository.ChatSessionRepository,
	orchestrator usecase.HandoffOrchestrator,
	ledger usecase.LedgerUseCase,
	relay usecase.Relay,
	messenger adapter.MessengerAdapter,
	logger *zerolog.Logger,
) *BotFacade {
	l := logger.With().Str("component", "BotFacade").Logger()
	return &BotFacade{
		users:        users,
		sessions:     sessions,
		orchestrator: orchestrator,
		ledger:       ledger,
		relay:        relay,
		messenger:    messenger,
		log:          &l,
	}
}

// RegisterOrFetch resolves a Telegram account to a domain user, creating the
// record on first contact.
func (b *BotFacade) RegisterOrFetch(ctx context.Context, tgID int64, nickname string) (*model.User, error) {
	user, err := b.users.FindByTelegramID(ctx, nil, tgID)
	if err == nil {
		user.Touch()
		_ = b.users.Save(ctx, nil, user)
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	user, err = model.NewUser(0, tgID, nickname)
	if err != nil {
		return nil, err
	}
	if err := b.users.Save(ctx, nil, user); err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}
	b.log.Info().Int64("telegram_id", tgID).Msg("registered new user")
	return user, nil
}

// Dispatch runs one parsed command for a user on the primary identity and
// returns the reply.
func (b *BotFacade) Dispatch(ctx context.Context, user *model.User, cmd Command, arg string) (Reply, error) {
	switch cmd {
	case CmdStart:
		return Reply{Text: fmt.Sprintf("Hello %s! Use /find_match to look for people who answered like you.", user.Nickname)}, nil
	case CmdHelp:
		return Reply{Text: "Available commands:\n/find_match <group_id>\n/balance\n/end_chat\n/help"}, nil
	case CmdFindMatch:
		groupID, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || groupID <= 0 {
			return Reply{Text: "Usage: /find_match <group_id>"}, nil
		}
		return b.HandleFindMatch(ctx, user, groupID)
	case CmdStartComm:
		return b.handleHandshake(ctx, user, arg, b.orchestrator.RequestCommunication)
	case CmdConfirmComm:
		return b.handleHandshake(ctx, user, arg, b.orchestrator.ConfirmCommunication)
	case CmdDeclineComm:
		matchID, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return Reply{}, domain.ErrInvalidArgument
		}
		text, err := b.HandleDecline(ctx, user, matchID)
		return Reply{Text: text}, err
	case CmdEndChat:
		text, err := b.HandleEndChat(ctx, user)
		return Reply{Text: text}, err
	case CmdBalance:
		text, err := b.HandleBalance(ctx, user)
		return Reply{Text: text}, err
	default:
		return Reply{Text: "Unknown command. Send /help for the list of commands."}, nil
	}
}

// HandleFindMatch runs a paid search and renders the candidate list. Each
// failure mode gets distinct wording; in particular "nobody matched" and
// "not enough points" must never read the same. Every listed match carries an
// inline button pair so the handshake is one tap away.
func (b *BotFacade) HandleFindMatch(ctx context.Context, user *model.User, groupID int64) (Reply, error) {
	res, err := b.orchestrator.RequestFindMatch(ctx, user.ID, groupID)
	switch {
	case errors.Is(err, domain.ErrNoMatches):
		return Reply{Text: "No matches found yet. Answer more questions and try again later."}, nil
	case errors.Is(err, domain.ErrInsufficientPoints):
		return Reply{Text: "You don't have enough points for a search."}, nil
	case errors.Is(err, domain.ErrRateLimited):
		return Reply{Text: "Too many searches right now. Give it a minute and try again."}, nil
	case errors.Is(err, domain.ErrMatcherUnavailable):
		return Reply{Text: "Matching is temporarily unavailable. You have not been charged."}, nil
	case err != nil:
		return Reply{}, err
	}

	sb := strings.Builder{}
	sb.WriteString("Found for you:\n")
	rows := make([][]adapter.InlineButton, 0, len(res.Matches))
	for i, m := range res.Matches {
		cand := res.Candidates[i]
		sb.WriteString(fmt.Sprintf("- match %d: cohesion %d%% over %d shared answers\n",
			m.ID, int(cand.Cohesion*100), cand.CommonQuestions))
		rows = append(rows, []adapter.InlineButton{
			{Text: fmt.Sprintf("Start chat (match %d)", m.ID), Data: fmt.Sprintf("%s:%d", CmdStartComm, m.ID)},
			{Text: "Not interested", Data: fmt.Sprintf("%s:%d", CmdDeclineComm, m.ID)},
		})
	}
	sb.WriteString(fmt.Sprintf("\nPoints left: %d", res.NewBalance))
	return Reply{Text: sb.String(), Buttons: rows}, nil
}

func (b *BotFacade) handleHandshake(
	ctx context.Context,
	user *model.User,
	arg string,
	op func(ctx context.Context, matchID, userID int64) (*usecase.HandshakeOutcome, error),
) (Reply, error) {
	matchID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return Reply{}, domain.ErrInvalidArgument
	}
	outcome, err := op(ctx, matchID, user.ID)
	switch {
	case errors.Is(err, domain.ErrAlreadyPending):
		return Reply{Text: "Your request is already waiting for the other side."}, nil
	case errors.Is(err, domain.ErrInvalidState):
		return Reply{Text: "This request is no longer open."}, nil
	case err != nil:
		return Reply{}, err
	}
	if outcome.Pending {
		b.promptCounterpart(ctx, matchID, outcome.ReceiverID)
		return Reply{Text: "Request sent. You will both get a chat link once the other side agrees."}, nil
	}
	// Session link delivery happens inside the bridge; this reply is just an
	// acknowledgement for the tapping side.
	return Reply{Text: "It's a match! Check your messages for the chat link."}, nil
}

// promptCounterpart delivers the accept/decline keyboard to the side whose
// confirmation the pending request is waiting on. Best effort: the request is
// already recorded, and the receiver can still act on it from their match list.
func (b *BotFacade) promptCounterpart(ctx context.Context, matchID, receiverID int64) {
	if receiverID == 0 {
		return
	}
	receiver, err := b.users.FindByID(ctx, nil, receiverID)
	if err != nil {
		b.log.Warn().Err(err).Int64("receiver_id", receiverID).Msg("cannot resolve handshake counterpart")
		return
	}
	rows := [][]adapter.InlineButton{{
		{Text: "Accept", Data: fmt.Sprintf("%s:%d", CmdConfirmComm, matchID)},
		{Text: "Decline", Data: fmt.Sprintf("%s:%d", CmdDeclineComm, matchID)},
	}}
	text := "One of your matches wants to start an anonymous chat with you."
	if err := b.messenger.SendButtons(ctx, adapter.IdentityPrimary, receiver.TelegramID, text, rows); err != nil {
		b.log.Warn().Err(err).Int64("receiver_id", receiverID).Msg("failed to deliver handshake prompt")
	}
}

func (b *BotFacade) HandleDecline(ctx context.Context, user *model.User, matchID int64) (string, error) {
	err := b.orchestrator.DeclineCommunication(ctx, matchID, user.ID)
	switch {
	case errors.Is(err, domain.ErrInvalidState):
		return "This request is no longer open.", nil
	case err != nil:
		return "", err
	}
	return "Declined. The other side will not be notified who declined.", nil
}

func (b *BotFacade) HandleBalance(ctx context.Context, user *model.User) (string, error) {
	points, err := b.ledger.Balance(ctx, user.ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("You have %d points.", points), nil
}

// HandleChatStart attaches a user to a session via the communicator deep
// link payload ("chat_<session_id>").
func (b *BotFacade) HandleChatStart(ctx context.Context, user *model.User, payload string) (string, error) {
	sessionID, ok := strings.CutPrefix(payload, "chat_")
	if !ok || sessionID == "" {
		return "This link doesn't look like a chat invite.", nil
	}
	unread, err := b.relay.UnreadCount(ctx, sessionID, user.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNotParticipant):
		return "This chat link is not yours or no longer exists.", nil
	case err != nil:
		return "", err
	}
	if _, err := b.relay.MarkRead(ctx, sessionID, user.ID); err != nil {
		b.log.Warn().Err(err).Str("session_id", sessionID).Msg("mark read failed on attach")
	}
	if unread > 0 {
		return fmt.Sprintf("You're connected. %d message(s) arrived while you were away; just type to reply.", unread), nil
	}
	return "You're connected. Messages you type here are forwarded anonymously.", nil
}

// HandleChatText relays one inbound communicator-bot message. The sender's
// session is their single active one; with none (or several) the text is not
// guessable to a destination and is refused.
func (b *BotFacade) HandleChatText(ctx context.Context, user *model.User, text string) (string, error) {
	session, reply, err := b.activeSession(ctx, user)
	if session == nil {
		return reply, err
	}
	ctx = logging.WithSessID(ctx, session.SessionID)
	err = b.orchestrator.SendChatMessage(ctx, session.SessionID, user.ID, text)
	switch {
	case errors.Is(err, domain.ErrSessionNotActive):
		return "This chat has ended.", nil
	case errors.Is(err, domain.ErrDeliveryFailed):
		return "Your message was saved but could not be delivered right now.", nil
	case errors.Is(err, domain.ErrInvalidArgument):
		return "Empty messages are not forwarded.", nil
	case err != nil:
		return "", err
	}
	return "", nil // relayed silently, no echo
}

// HandleEndChat ends the user's active session from either bot.
func (b *BotFacade) HandleEndChat(ctx context.Context, user *model.User) (string, error) {
	session, reply, err := b.activeSession(ctx, user)
	if session == nil {
		return reply, err
	}
	if err := b.orchestrator.EndChat(ctx, session.SessionID, user.ID); err != nil {
		return "", err
	}
	return "Chat ended. The other side will see the conversation as closed.", nil
}

func (b *BotFacade) activeSession(ctx context.Context, user *model.User) (*model.AnonymousChatSession, string, error) {
	sessions, err := b.sessions.FindActiveByUser(ctx, nil, user.ID)
	if err != nil {
		return nil, "", err
	}
	switch len(sessions) {
	case 0:
		return nil, "You have no active chat. Find a match first.", nil
	case 1:
		return sessions[0], "", nil
	default:
		// Ambiguous destination; the user has to come in through a deep link.
		return nil, "You have several active chats. Open the one you want via its invite link.", nil
	}
}

// IdentityFor tells adapters which bot identity a facade reply should leave
// on. Chat traffic stays on the communicator so real accounts never meet.
func (b *BotFacade) IdentityFor(cmd Command) adapter.BotIdentity {
	switch cmd {
	case CmdEndChat:
		return adapter.IdentityCommunicator
	default:
		return adapter.IdentityPrimary
	}
}
