// File: internal/usecase/session_uc.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-match-bridge/internal/domain"
	"telegram-match-bridge/internal/domain/model"
	"telegram-match-bridge/internal/domain/ports/adapter"
	"telegram-match-bridge/internal/domain/ports/repository"
	"telegram-match-bridge/internal/infra/metrics"
)

// Compile-time check
var _ SessionBridge = (*sessionUC)(nil)

// DeepLinkBuilder mints the handoff link that routes a user from the primary
// bot to a session on the communicator identity. Implemented by the telegram
// infra package, which owns handle validation and the fallback handle.
type DeepLinkBuilder interface {
	ChatLink(sessionID string) string
}

// SessionBridge creates and tears down anonymous chat sessions once a
// handshake completes.
type SessionBridge interface {
	// Open allocates the session for an activated request and hands the
	// deep link to both participants via the primary identity.
	Open(ctx context.Context, req *model.CommunicationRequest) (*model.AnonymousChatSession, error)
	// End is idempotent: ending an ended session is a no-op success.
	End(ctx context.Context, sessionID string, byUserID int64) error
	// EndIdle sweeps sessions with no activity past the idle window.
	EndIdle(ctx context.Context) (int64, error)
}

// SessionCache is the best-effort read cache in front of the session store.
type SessionCache interface {
	StoreSession(ctx context.Context, session *model.AnonymousChatSession) error
	GetSession(ctx context.Context, sessionID string) (*model.AnonymousChatSession, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

type sessionUC struct {
	sessions  repository.ChatSessionRepository
	users     repository.UserRepository
	cache     SessionCache
	links     DeepLinkBuilder
	messenger adapter.MessengerAdapter
	idleTTL   time.Duration
	log       *zerolog.Logger
}

func NewSessionBridge(
	sessions repository.ChatSessionRepository,
	users repository.UserRepository,
	cache SessionCache,
	links DeepLinkBuilder,
	messenger adapter.MessengerAdapter,
	idleTTL time.Duration,
	logger *zerolog.Logger,
) *sessionUC {
	l := logger.With().Str("component", "SessionBridge").Logger()
	return &sessionUC{
		sessions:  sessions,
		users:     users,
		cache:     cache,
		links:     links,
		messenger: messenger,
		idleTTL:   idleTTL,
		log:       &l,
	}
}

func (s *sessionUC) Open(ctx context.Context, req *model.CommunicationRequest) (*model.AnonymousChatSession, error) {
	// One session per activated request; an existing one for the match wins.
	if existing, err := s.sessions.FindByMatch(ctx, nil, req.MatchID); err == nil && existing != nil {
		if existing.Status != model.ChatSessionEnded {
			return existing, nil
		}
	}

	token, err := model.NewSessionToken()
	if err != nil {
		return nil, fmt.Errorf("mint session token: %w", err)
	}
	session, err := model.NewAnonymousChatSession(token, req.InitiatorID, req.ReceiverID, req.MatchID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, nil, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	if _, err := s.sessions.UpdateStatusIf(ctx, nil, session.SessionID, model.ChatSessionPending, model.ChatSessionActive); err != nil {
		return nil, fmt.Errorf("activate session: %w", err)
	}
	session.Status = model.ChatSessionActive

	if s.cache != nil {
		_ = s.cache.StoreSession(ctx, session)
	}
	metrics.IncSessionOpened()

	link := s.links.ChatLink(session.SessionID)
	for _, uid := range []int64{req.InitiatorID, req.ReceiverID} {
		if err := s.notify(ctx, uid, link); err != nil {
			// Partial delivery: the session stays live, the other side got
			// its link, and the failed side can recover via the menu.
			s.log.Warn().Err(err).Int64("user_id", uid).Str("session_id", session.SessionID).
				Msg("failed to deliver handoff link")
		}
	}

	s.log.Info().Str("session_id", session.SessionID).Int64("match_id", req.MatchID).Msg("anonymous chat session opened")
	return session, nil
}

func (s *sessionUC) notify(ctx context.Context, userID int64, link string) error {
	u, err := s.users.FindByID(ctx, nil, userID)
	if err != nil {
		return fmt.Errorf("resolve user %d: %w", userID, err)
	}
	text := fmt.Sprintf("Your chat is ready! Here is your invite:\n%s", link)
	return s.messenger.SendMessage(ctx, adapter.IdentityPrimary, u.TelegramID, text)
}

func (s *sessionUC) End(ctx context.Context, sessionID string, byUserID int64) error {
	session, err := s.sessions.FindBySessionID(ctx, nil, sessionID)
	if err != nil {
		return err
	}
	// byUserID == 0 is the sweeper; anybody else must be a participant.
	if byUserID != 0 && !session.HasParticipant(byUserID) {
		return domain.ErrNotParticipant
	}
	if session.Status == model.ChatSessionEnded {
		return nil
	}
	ok, err := s.sessions.UpdateStatusIf(ctx, nil, sessionID, session.Status, model.ChatSessionEnded)
	if err != nil {
		return err
	}
	if !ok {
		// Lost the race to another ender; still a success for the caller.
		return nil
	}
	if s.cache != nil {
		_ = s.cache.DeleteSession(ctx, sessionID)
	}
	metrics.IncSessionEnded("explicit")
	s.log.Info().Str("session_id", sessionID).Int64("by_user", byUserID).Msg("session ended")
	return nil
}

func (s *sessionUC) EndIdle(ctx context.Context) (int64, error) {
	if s.idleTTL <= 0 {
		return 0, nil
	}
	n, err := s.sessions.EndIdleBefore(ctx, nil, time.Now().Add(-s.idleTTL))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddSessionsEnded("idle", n)
	}
	return n, nil
}
