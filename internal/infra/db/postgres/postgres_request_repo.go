// File: internal/infra/db/postgres/postgres_request_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-match-bridge/internal/domain"
	"telegram-match-bridge/internal/domain/model"
	"telegram-match-bridge/internal/domain/ports/repository"
)

var _ repository.CommunicationRequestRepository = (*RequestRepo)(nil)

type RequestRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRequestRepo(pool *pgxpool.Pool) *RequestRepo {
	return &RequestRepo{pool: pool}
}

const uniqueViolation = "23505"

// Create inserts a pending request. The partial unique index
// communication_requests_one_live_idx turns a lost insert race into a clean
// unique violation, which surfaces as domain.ErrAlreadyPending.
func (r *RequestRepo) Create(ctx context.Context, qx any, req *model.CommunicationRequest) error {
	const q = `
INSERT INTO communication_requests (match_id, initiator_id, receiver_id, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,COALESCE($5,NOW()),COALESCE($6,NOW()))
RETURNING id;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return err
	}
	if err := ex.QueryRow(ctx, q, req.MatchID, req.InitiatorID, req.ReceiverID, string(req.Status), req.CreatedAt, req.UpdatedAt).Scan(&req.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAlreadyPending
		}
		return fmt.Errorf("insert communication request: %w", err)
	}
	return nil
}

// FindByMatch returns the most recent request for the match, terminal or not.
func (r *RequestRepo) FindByMatch(ctx context.Context, qx any, matchID int64) (*model.CommunicationRequest, error) {
	const q = `
SELECT id, match_id, initiator_id, receiver_id, status, created_at, updated_at
  FROM communication_requests
 WHERE match_id = $1
 ORDER BY created_at DESC
 LIMIT 1;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return nil, err
	}
	var req model.CommunicationRequest
	var status string
	if err := ex.QueryRow(ctx, q, matchID).Scan(&req.ID, &req.MatchID, &req.InitiatorID, &req.ReceiverID, &status, &req.CreatedAt, &req.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan communication request: %w", err)
	}
	req.Status = model.CommunicationRequestStatus(status)
	return &req, nil
}

func (r *RequestRepo) UpdateStatusIf(ctx context.Context, qx any, requestID int64, expected, next model.CommunicationRequestStatus) (bool, error) {
	const q = `
UPDATE communication_requests SET status = $3, updated_at = NOW()
 WHERE id = $1 AND status = $2;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return false, err
	}
	tag, err := ex.Exec(ctx, q, requestID, string(expected), string(next))
	if err != nil {
		return false, fmt.Errorf("cas communication request: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RequestRepo) ExpirePendingBefore(ctx context.Context, qx any, cutoff time.Time) (int64, error) {
	const q = `
UPDATE communication_requests SET status = 'expired', updated_at = NOW()
 WHERE status = 'pending' AND created_at < $1;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return 0, err
	}
	tag, err := ex.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire pending requests: %w", err)
	}
	return tag.RowsAffected(), nil
}
