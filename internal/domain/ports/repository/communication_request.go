package repository

import (
	"context"
	"time"

	"telegram-match-bridge/internal/domain/model"
)

// CommunicationRequestRepository persists the handshake records.
//
// The store carries two race guards the coordinator depends on:
//   - a partial unique index on match_id over non-terminal rows, so two
//     near-simultaneous creates cannot both insert;
//   - UpdateStatusIf, a compare-and-set on status scoped to one row, so only
//     the first confirm wins.
type CommunicationRequestRepository interface {
	// Create inserts a new pending request. Returns domain.ErrAlreadyPending
	// when a non-terminal request already exists for the match.
	Create(ctx context.Context, qx any, req *model.CommunicationRequest) error
	FindByMatch(ctx context.Context, qx any, matchID int64) (*model.CommunicationRequest, error)
	// UpdateStatusIf transitions status only when the row currently holds
	// `expected`; reports whether the update took effect.
	UpdateStatusIf(ctx context.Context, qx any, requestID int64, expected, next model.CommunicationRequestStatus) (bool, error)
	// ExpirePendingBefore marks every pending request created before the
	// cutoff as expired, returning how many rows changed.
	ExpirePendingBefore(ctx context.Context, qx any, cutoff time.Time) (int64, error)
}
