// File: internal/usecase/relay_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-match-bridge/internal/domain"
	"telegram-match-bridge/internal/domain/model"
	"telegram-match-bridge/internal/domain/ports/adapter"
	"telegram-match-bridge/internal/domain/ports/repository"
	"telegram-match-bridge/internal/infra/logging"
	"telegram-match-bridge/internal/infra/metrics"
	"telegram-match-bridge/internal/infra/retry"
)

// Compile-time check
var _ Relay = (*relayUC)(nil)

// Relay forwards messages between the two sides of a session via the
// communicator identity. Deliver is the sole mutation entry point for a
// session's message log, which is what keeps per-session ordering a pure
// store concern.
type Relay interface {
	// Deliver appends the message and forwards it to the counterpart.
	// The append is never rolled back: on transport exhaustion the message
	// stays in the record and domain.ErrDeliveryFailed is returned.
	Deliver(ctx context.Context, sessionID string, senderID int64, contentType model.ContentType, content string) error
	MarkRead(ctx context.Context, sessionID string, readerID int64) (int64, error)
	History(ctx context.Context, sessionID string, userID int64, limit int) ([]*model.ChatMessage, error)
	UnreadCount(ctx context.Context, sessionID string, userID int64) (int, error)
}

type relayUC struct {
	sessions  repository.ChatSessionRepository
	users     repository.UserRepository
	cache     SessionCache
	messenger adapter.MessengerAdapter
	policy    retry.Policy
	idleTTL   time.Duration
	log       *zerolog.Logger
}

func NewRelay(
	sessions repository.ChatSessionRepository,
	users repository.UserRepository,
	cache SessionCache,
	messenger adapter.MessengerAdapter,
	policy retry.Policy,
	idleTTL time.Duration,
	logger *zerolog.Logger,
) *relayUC {
	l := logger.With().Str("component", "Relay").Logger()
	return &relayUC{
		sessions:  sessions,
		users:     users,
		cache:     cache,
		messenger: messenger,
		policy:    policy,
		idleTTL:   idleTTL,
		log:       &l,
	}
}

func (r *relayUC) Deliver(ctx context.Context, sessionID string, senderID int64, contentType model.ContentType, content string) error {
	defer logging.TraceDuration(r.log, "Relay.Deliver")()
	started := time.Now()
	if strings.TrimSpace(content) == "" {
		return domain.ErrInvalidArgument
	}

	session, err := r.activeSession(ctx, sessionID)
	if err != nil {
		metrics.IncRelayDelivery("rejected")
		return err
	}
	counterpartID, ok := session.Counterpart(senderID)
	if !ok {
		metrics.IncRelayDelivery("rejected")
		return domain.ErrNotParticipant
	}

	msg := model.NewChatMessage(sessionID, senderID, contentType, content)
	if err := r.sessions.SaveMessage(ctx, nil, msg); err != nil {
		metrics.IncRelayDelivery("rejected")
		return fmt.Errorf("append message: %w", err)
	}
	if err := r.sessions.TouchActivity(ctx, nil, sessionID, msg.CreatedAt); err != nil {
		r.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to bump last_activity")
	}
	session.LastActivity = msg.CreatedAt
	if r.cache != nil {
		_ = r.cache.StoreSession(ctx, session)
	}

	counterpart, err := r.users.FindByID(ctx, nil, counterpartID)
	if err != nil {
		// Message is stored; live delivery is what failed.
		metrics.IncRelayDelivery("not_delivered")
		return domain.ErrDeliveryFailed
	}

	sendErr := r.policy.Do(ctx, func(ctx context.Context) error {
		err := r.messenger.SendMessage(ctx, adapter.IdentityCommunicator, counterpart.TelegramID, content)
		if err != nil {
			metrics.IncRelayRetry()
		}
		return err
	})
	if sendErr != nil {
		// Durability over consistency: the stored message is kept, the
		// sender is told delivery did not happen live.
		logging.With(ctx, r.log).Error().Err(sendErr).Str("session_id", sessionID).Int64("to", counterpartID).
			Msg("delivery exhausted retries")
		metrics.IncRelayDelivery("not_delivered")
		return domain.ErrDeliveryFailed
	}

	metrics.IncRelayDelivery("delivered")
	metrics.ObserveRelayLatencyMs(float64(time.Since(started).Milliseconds()))
	return nil
}

func (r *relayUC) MarkRead(ctx context.Context, sessionID string, readerID int64) (int64, error) {
	session, err := r.session(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if !session.HasParticipant(readerID) {
		return 0, domain.ErrNotParticipant
	}
	return r.sessions.MarkRead(ctx, nil, sessionID, readerID)
}

func (r *relayUC) History(ctx context.Context, sessionID string, userID int64, limit int) ([]*model.ChatMessage, error) {
	session, err := r.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.HasParticipant(userID) {
		return nil, domain.ErrNotParticipant
	}
	return r.sessions.Messages(ctx, nil, sessionID, limit)
}

func (r *relayUC) UnreadCount(ctx context.Context, sessionID string, userID int64) (int, error) {
	session, err := r.session(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if !session.HasParticipant(userID) {
		return 0, domain.ErrNotParticipant
	}
	return r.sessions.UnreadCount(ctx, nil, sessionID, userID)
}

// session reads through the cache for the read-only paths (history, unread,
// mark-read); the store wins on miss or decode error.
func (r *relayUC) session(ctx context.Context, sessionID string) (*model.AnonymousChatSession, error) {
	if r.cache != nil {
		if s, err := r.cache.GetSession(ctx, sessionID); err == nil && s != nil {
			return s, nil
		}
	}
	return r.sessions.FindBySessionID(ctx, nil, sessionID)
}

// activeSession admits a delivery against the store row, never the cache:
// End's cache invalidation is best effort, so a cached copy can still read
// active after the row is ended. It also applies the lazy idle check: a
// session idle past its window is ended on access and the delivery fails
// with SessionNotActive, same as if the sweeper had gotten there first.
func (r *relayUC) activeSession(ctx context.Context, sessionID string) (*model.AnonymousChatSession, error) {
	session, err := r.sessions.FindBySessionID(ctx, nil, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSessionNotActive
		}
		return nil, err
	}
	if session.IdleSince(r.idleTTL, time.Now()) {
		if ok, err := r.sessions.UpdateStatusIf(ctx, nil, sessionID, model.ChatSessionActive, model.ChatSessionEnded); err == nil && ok {
			metrics.IncSessionEnded("idle")
			if r.cache != nil {
				_ = r.cache.DeleteSession(ctx, sessionID)
			}
		}
		return nil, domain.ErrSessionNotActive
	}
	if session.Status != model.ChatSessionActive {
		// Drop whatever stale copy a failed invalidation left behind.
		if r.cache != nil {
			_ = r.cache.DeleteSession(ctx, sessionID)
		}
		return nil, domain.ErrSessionNotActive
	}
	return session, nil
}
