// File: internal/usecase/handoff_uc.go
package usecase

import (
	"context"
	"errors"
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
var _ HandoffOrchestrator = (*handoffUC)(nil)

// Locker serializes a critical section across instances (redis SetNX).
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// RateLimiter is a fixed-window per-key limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// FindMatchResult is the outcome of a successful (charged) search.
type FindMatchResult struct {
	Candidates []model.MatchCandidate
	Matches    []*model.Match
	NewBalance int
}

// HandoffOrchestrator sequences ledger, matcher, coordinator, bridge and
// relay for each inbound event. It is the only caller of the ledger, which
// is what makes the single-attempt charge/refund discipline hold.
type HandoffOrchestrator interface {
	// RequestFindMatch runs search -> charge -> persist -> present, in that
	// order. An empty result or matcher failure never charges; a post-charge
	// persistence failure refunds exactly once.
	RequestFindMatch(ctx context.Context, userID, groupID int64) (*FindMatchResult, error)
	RequestCommunication(ctx context.Context, matchID, requesterID int64) (*HandshakeOutcome, error)
	ConfirmCommunication(ctx context.Context, matchID, confirmerID int64) (*HandshakeOutcome, error)
	DeclineCommunication(ctx context.Context, matchID, userID int64) error
	SendChatMessage(ctx context.Context, sessionID string, senderID int64, content string) error
	EndChat(ctx context.Context, sessionID string, byUserID int64) error
}

type MatchingOptions struct {
	SearchCost       int
	MaxCandidates    int
	SearchRateLimit  int
	SearchRateWindow time.Duration
}

type handoffUC struct {
	matcher     adapter.CandidateMatcher
	ledger      LedgerUseCase
	coordinator RequestCoordinator
	bridge      SessionBridge
	relay       Relay
	matches     repository.MatchRepository
	txm         repository.TransactionManager
	locker      Locker
	limiter     RateLimiter
	opts        MatchingOptions
	log         *zerolog.Logger
}

func NewHandoffOrchestrator(
	matcher adapter.CandidateMatcher,
	ledger LedgerUseCase,
	coordinator RequestCoordinator,
	bridge SessionBridge,
	relay Relay,
	matches repository.MatchRepository,
	txm repository.TransactionManager,
	locker Locker,
	limiter RateLimiter,
	opts MatchingOptions,
	logger *zerolog.Logger,
) *handoffUC {
	if opts.SearchCost <= 0 {
		opts.SearchCost = 1
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = 5
	}
	l := logger.With().Str("component", "HandoffOrchestrator").Logger()
	return &handoffUC{
		matcher:     matcher,
		ledger:      ledger,
		coordinator: coordinator,
		bridge:      bridge,
		relay:       relay,
		matches:     matches,
		txm:         txm,
		locker:      locker,
		limiter:     limiter,
		opts:        opts,
		log:         &l,
	}
}

func (h *handoffUC) RequestFindMatch(ctx context.Context, userID, groupID int64) (*FindMatchResult, error) {
	if h.limiter != nil && h.opts.SearchRateLimit > 0 {
		key := fmt.Sprintf("rate_limit:%d:find_match", userID)
		ok, err := h.limiter.Allow(ctx, key, h.opts.SearchRateLimit, h.opts.SearchRateWindow)
		if err != nil {
			h.log.Warn().Err(err).Msg("rate limiter unavailable, letting the search through")
		} else if !ok {
			metrics.IncSearch("rate_limited")
			return nil, domain.ErrRateLimited
		}
	}

	// One in-flight search per user: two devices of the same user must not
	// both reach the charge. The DB conditional update stays authoritative;
	// the lock only removes the duplicate-search window.
	if h.locker != nil {
		key := fmt.Sprintf("find_match:%d", userID)
		token, err := h.locker.TryLock(ctx, key, 30*time.Second)
		if err != nil {
			metrics.IncSearch("rate_limited")
			return nil, domain.ErrRateLimited
		}
		defer func() { _ = h.locker.Unlock(ctx, key, token) }()
	}

	candidates, err := h.matcher.FindCandidates(ctx, userID, groupID)
	if err != nil {
		metrics.IncSearch("unavailable")
		// No charge on a failed attempt, whatever the cause upstream.
		return nil, fmt.Errorf("%w: %v", domain.ErrMatcherUnavailable, err)
	}
	if len(candidates) == 0 {
		metrics.IncSearch("empty")
		return nil, domain.ErrNoMatches
	}
	if len(candidates) > h.opts.MaxCandidates {
		candidates = candidates[:h.opts.MaxCandidates]
	}

	balance, err := h.ledger.ChargeForSearch(ctx, userID, h.opts.SearchCost)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientPoints) {
			metrics.IncSearch("insufficient_points")
			// Candidates are not exposed on an unpaid search.
			return nil, domain.ErrInsufficientPoints
		}
		return nil, fmt.Errorf("charge for search: %w", err)
	}

	result, err := h.persistMatches(ctx, userID, groupID, candidates)
	if err != nil {
		// The only compensating action in the subsystem: the user paid for
		// results they will not see, so the charge is undone exactly once.
		if rerr := h.ledger.Refund(ctx, userID, h.opts.SearchCost); rerr != nil {
			h.log.Error().Err(rerr).Int64("user_id", userID).Msg("compensating refund failed after store error")
		}
		return nil, fmt.Errorf("persist matches: %w", err)
	}
	result.NewBalance = balance

	metrics.IncSearch("found")
	h.log.Info().Int64("user_id", userID).Int64("group_id", groupID).
		Int("candidates", len(candidates)).Int("balance", balance).Msg("match search charged and presented")
	return result, nil
}

// persistMatches stores one row per candidate inside a single transaction:
// either the user sees every match row their charge paid for, or none and the
// charge is refunded.
func (h *handoffUC) persistMatches(ctx context.Context, userID, groupID int64, candidates []model.MatchCandidate) (*FindMatchResult, error) {
	out := &FindMatchResult{Candidates: candidates}
	var err error
	if h.txm == nil {
		err = h.persistMatchesIn(ctx, nil, out, userID, groupID, candidates)
	} else {
		err = h.txm.WithTx(ctx, func(ctx context.Context, qx repository.Tx) error {
			out.Matches = out.Matches[:0]
			return h.persistMatchesIn(ctx, qx, out, userID, groupID, candidates)
		})
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (h *handoffUC) persistMatchesIn(ctx context.Context, qx any, out *FindMatchResult, userID, groupID int64, candidates []model.MatchCandidate) error {
	for _, cand := range candidates {
		existing, err := h.matches.FindByPair(ctx, qx, userID, cand.UserID, groupID)
		if err == nil && existing != nil {
			out.Matches = append(out.Matches, existing)
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		m, err := model.NewMatch(userID, cand.UserID, groupID, cand.Cohesion, cand.CommonQuestions)
		if err != nil {
			return err
		}
		if err := h.matches.Save(ctx, qx, m); err != nil {
			return err
		}
		out.Matches = append(out.Matches, m)
	}
	return nil
}

func (h *handoffUC) RequestCommunication(ctx context.Context, matchID, requesterID int64) (*HandshakeOutcome, error) {
	return h.coordinator.Create(ctx, matchID, requesterID)
}

func (h *handoffUC) ConfirmCommunication(ctx context.Context, matchID, confirmerID int64) (*HandshakeOutcome, error) {
	return h.coordinator.Confirm(ctx, matchID, confirmerID)
}

func (h *handoffUC) DeclineCommunication(ctx context.Context, matchID, userID int64) error {
	return h.coordinator.Decline(ctx, matchID, userID)
}

func (h *handoffUC) SendChatMessage(ctx context.Context, sessionID string, senderID int64, content string) error {
	return h.relay.Deliver(ctx, sessionID, senderID, model.ContentTypeText, content)
}

func (h *handoffUC) EndChat(ctx context.Context, sessionID string, byUserID int64) error {
	return h.bridge.End(ctx, sessionID, byUserID)
}
