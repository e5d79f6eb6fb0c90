// File: internal/usecase/ledger_uc.go
package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"telegram-match-bridge/internal/domain"
	"telegram-match-bridge/internal/domain/ports/repository"
	"telegram-match-bridge/internal/infra/logging"
	"telegram-match-bridge/internal/infra/metrics"
	"telegram-match-bridge/internal/infra/retry"
)

// Compile-time check
var _ LedgerUseCase = (*ledgerUC)(nil)

// LedgerUseCase owns atomic point-balance adjustments. Points are the cost of
// a successful search, not of the attempt; the orchestrator decides when to
// charge, the ledger only guarantees the balance never goes negative.
type LedgerUseCase interface {
	ChargeForSearch(ctx context.Context, userID int64, cost int) (newBalance int, err error)
	// Refund undoes a charge after a post-charge failure. The orchestrator
	// applies it at most once per failed attempt; there is no idempotency key.
	Refund(ctx context.Context, userID int64, cost int) error
	Balance(ctx context.Context, userID int64) (int, error)
}

type ledgerUC struct {
	users  repository.UserRepository
	policy retry.Policy
	log    *zerolog.Logger
}

func NewLedgerUseCase(users repository.UserRepository, policy retry.Policy, logger *zerolog.Logger) *ledgerUC {
	l := logger.With().Str("component", "Ledger").Logger()
	return &ledgerUC{users: users, policy: policy, log: &l}
}

func (l *ledgerUC) ChargeForSearch(ctx context.Context, userID int64, cost int) (int, error) {
	defer logging.TraceDuration(l.log, "Ledger.ChargeForSearch")()
	if cost <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	var balance int
	// The decrement is a single conditional UPDATE; only contention-level
	// failures are retried. An underfunded balance is terminal.
	err := l.policy.Do(ctx, func(ctx context.Context) error {
		b, err := l.users.AdjustPoints(ctx, nil, userID, -cost)
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientPoints) || errors.Is(err, domain.ErrNotFound) {
				return retry.Permanent(err)
			}
			return err
		}
		balance = b
		return nil
	})
	if err != nil {
		return 0, err
	}
	metrics.AddPointsCharged(cost)
	l.log.Debug().Int64("user_id", userID).Int("cost", cost).Int("balance", balance).Msg("charged for search")
	return balance, nil
}

func (l *ledgerUC) Refund(ctx context.Context, userID int64, cost int) error {
	if cost <= 0 {
		return domain.ErrInvalidArgument
	}
	err := l.policy.Do(ctx, func(ctx context.Context) error {
		_, err := l.users.AdjustPoints(ctx, nil, userID, cost)
		if err != nil && errors.Is(err, domain.ErrNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		// A failed refund is the one place we can leak a charge; make noise.
		l.log.Error().Err(err).Int64("user_id", userID).Int("cost", cost).Msg("refund failed")
		return err
	}
	metrics.AddPointsRefunded(cost)
	l.log.Info().Int64("user_id", userID).Int("cost", cost).Msg("refunded search charge")
	return nil
}

func (l *ledgerUC) Balance(ctx context.Context, userID int64) (int, error) {
	u, err := l.users.FindByID(ctx, nil, userID)
	if err != nil {
		return 0, err
	}
	return u.Points, nil
}
