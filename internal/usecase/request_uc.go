// File: internal/usecase/request_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-match-bridge/internal/domain"
	"telegram-match-bridge/internal/domain/model"
	"telegram-match-bridge/internal/domain/ports/repository"
	"telegram-match-bridge/internal/infra/metrics"
)

// Compile-time check
var _ RequestCoordinator = (*requestUC)(nil)

// HandshakeOutcome is what a create/confirm call produced. Exactly one of
// Pending or Session is set.
type HandshakeOutcome struct {
	// Pending means the request is recorded and waiting for the counterpart.
	Pending bool
	// ReceiverID is the user whose confirmation is awaited on a pending
	// outcome. The presentation layer uses it to deliver the accept prompt.
	ReceiverID int64
	// Session is non-nil when the handshake just completed (or had already
	// completed and the session is simply being reported back).
	Session *model.AnonymousChatSession
}

// RequestCoordinator owns the exactly-once handshake per match.
//
// The race rules: create is an upsert keyed by match_id, so when both sides
// tap "start" at once the insert loser is rerouted into a confirm attempt;
// the pending->active transition is a single compare-and-set, so only the
// first confirm ever wins.
type RequestCoordinator interface {
	Create(ctx context.Context, matchID, requesterID int64) (*HandshakeOutcome, error)
	Confirm(ctx context.Context, matchID, confirmerID int64) (*HandshakeOutcome, error)
	Decline(ctx context.Context, matchID, userID int64) error
	// ExpirePending sweeps pending requests older than the configured window.
	ExpirePending(ctx context.Context) (int64, error)
}

type requestUC struct {
	requests   repository.CommunicationRequestRepository
	matches    repository.MatchRepository
	bridge     SessionBridge
	requestTTL time.Duration
	log        *zerolog.Logger
}

func NewRequestCoordinator(
	requests repository.CommunicationRequestRepository,
	matches repository.MatchRepository,
	bridge SessionBridge,
	requestTTL time.Duration,
	logger *zerolog.Logger,
) *requestUC {
	l := logger.With().Str("component", "RequestCoordinator").Logger()
	return &requestUC{
		requests:   requests,
		matches:    matches,
		bridge:     bridge,
		requestTTL: requestTTL,
		log:        &l,
	}
}

func (c *requestUC) Create(ctx context.Context, matchID, requesterID int64) (*HandshakeOutcome, error) {
	match, err := c.matches.FindByID(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}
	receiverID, ok := match.Counterpart(requesterID)
	if !ok {
		return nil, domain.ErrInvalidArgument
	}

	existing, err := c.liveRequest(ctx, matchID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		switch {
		case existing.Terminal():
			return nil, domain.ErrInvalidState
		case existing.InitiatorID == requesterID:
			// Idempotent no-op: same side tapped twice.
			return &HandshakeOutcome{Pending: true, ReceiverID: existing.ReceiverID}, nil
		case existing.ReceiverID == requesterID:
			// The counterpart already initiated; this create is the confirm.
			return c.activate(ctx, existing, requesterID)
		default:
			return nil, domain.ErrInvalidArgument
		}
	}

	req, err := model.NewCommunicationRequest(matchID, requesterID, receiverID)
	if err != nil {
		return nil, err
	}
	if err := c.requests.Create(ctx, nil, req); err != nil {
		if errors.Is(err, domain.ErrAlreadyPending) {
			// Lost the insert race to the other side: retry once as confirm.
			again, ferr := c.liveRequest(ctx, matchID)
			if ferr != nil {
				return nil, ferr
			}
			if again.ReceiverID == requesterID && again.Status == model.RequestStatusPending {
				return c.activate(ctx, again, requesterID)
			}
			return &HandshakeOutcome{Pending: true, ReceiverID: again.ReceiverID}, nil
		}
		return nil, fmt.Errorf("create request: %w", err)
	}
	metrics.IncRequestTransition("created")
	c.log.Info().Int64("match_id", matchID).Int64("initiator", requesterID).Msg("communication request created")
	return &HandshakeOutcome{Pending: true, ReceiverID: receiverID}, nil
}

func (c *requestUC) Confirm(ctx context.Context, matchID, confirmerID int64) (*HandshakeOutcome, error) {
	req, err := c.liveRequest(ctx, matchID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidState
		}
		return nil, err
	}
	if req.Terminal() {
		return nil, domain.ErrInvalidState
	}
	if confirmerID == req.InitiatorID {
		// Self-confirmation is rejected, not silently accepted: a user must
		// not complete a handshake with themself.
		return nil, domain.ErrAlreadyPending
	}
	if confirmerID != req.ReceiverID {
		return nil, domain.ErrInvalidArgument
	}
	return c.activate(ctx, req, confirmerID)
}

// activate performs the CAS transition and opens the session. Only the first
// caller observes rows-affected==1; everyone else is a race loser.
func (c *requestUC) activate(ctx context.Context, req *model.CommunicationRequest, confirmerID int64) (*HandshakeOutcome, error) {
	won, err := c.requests.UpdateStatusIf(ctx, nil, req.ID, model.RequestStatusPending, model.RequestStatusActive)
	if err != nil {
		return nil, fmt.Errorf("activate request: %w", err)
	}
	if !won {
		metrics.IncRequestTransition("race_lost")
		return nil, domain.ErrInvalidState
	}
	req.Status = model.RequestStatusActive
	metrics.IncRequestTransition("activated")
	c.log.Info().Int64("match_id", req.MatchID).Int64("confirmer", confirmerID).Msg("handshake completed")

	session, err := c.bridge.Open(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return &HandshakeOutcome{Session: session}, nil
}

func (c *requestUC) Decline(ctx context.Context, matchID, userID int64) error {
	req, err := c.liveRequest(ctx, matchID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrInvalidState
		}
		return err
	}
	if req.InitiatorID != userID && req.ReceiverID != userID {
		return domain.ErrInvalidArgument
	}
	ok, err := c.requests.UpdateStatusIf(ctx, nil, req.ID, model.RequestStatusPending, model.RequestStatusDeclined)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidState
	}
	metrics.IncRequestTransition("declined")
	return nil
}

// liveRequest fetches the request for a match and applies the lazy expiry
// check: a pending request past its window is expired on access, so an
// expired request can never activate no matter which path touches it first.
func (c *requestUC) liveRequest(ctx context.Context, matchID int64) (*model.CommunicationRequest, error) {
	req, err := c.requests.FindByMatch(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}
	if req.ExpiredBy(c.requestTTL, time.Now()) {
		if ok, err := c.requests.UpdateStatusIf(ctx, nil, req.ID, model.RequestStatusPending, model.RequestStatusExpired); err == nil && ok {
			req.Status = model.RequestStatusExpired
			metrics.IncRequestTransition("expired")
		} else if err == nil && !ok {
			// Someone transitioned it first; re-read for the fresh status.
			return c.requests.FindByMatch(ctx, nil, matchID)
		}
	}
	return req, nil
}

func (c *requestUC) ExpirePending(ctx context.Context) (int64, error) {
	if c.requestTTL <= 0 {
		return 0, nil
	}
	n, err := c.requests.ExpirePendingBefore(ctx, nil, time.Now().Add(-c.requestTTL))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddRequestTransitions("expired", n)
	}
	return n, nil
}
