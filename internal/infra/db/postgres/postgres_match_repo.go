// File: internal/infra/db/postgres/postgres_match_repo.go
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-match-bridge/internal/domain"
	"telegram-match-bridge/internal/domain/model"
	"telegram-match-bridge/internal/domain/ports/repository"
)

var _ repository.MatchRepository = (*MatchRepo)(nil)

type MatchRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresMatchRepo(pool *pgxpool.Pool) *MatchRepo {
	return &MatchRepo{pool: pool}
}

const matchColumns = `id, user_a, user_b, group_id, score, common_questions, status, created_at`

func (r *MatchRepo) Save(ctx context.Context, qx any, m *model.Match) error {
	ex, err := pick(r.pool, qx)
	if err != nil {
		return err
	}
	if m.ID == 0 {
		const q = `
INSERT INTO matches (user_a, user_b, group_id, score, common_questions, status, created_at)
VALUES (LEAST($1,$2), GREATEST($1,$2), $3, $4, $5, $6, COALESCE($7,NOW()))
RETURNING id;`
		if err := ex.QueryRow(ctx, q, m.UserAID, m.UserBID, m.GroupID, m.Score, m.CommonQuestions, string(m.Status), m.CreatedAt).Scan(&m.ID); err != nil {
			return fmt.Errorf("insert match: %w", err)
		}
		return nil
	}
	const q = `
UPDATE matches SET score=$2, common_questions=$3, status=$4 WHERE id=$1;`
	if _, err := ex.Exec(ctx, q, m.ID, m.Score, m.CommonQuestions, string(m.Status)); err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	return nil
}

func (r *MatchRepo) FindByID(ctx context.Context, qx any, id int64) (*model.Match, error) {
	q := `SELECT ` + matchColumns + ` FROM matches WHERE id=$1;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return nil, err
	}
	return scanMatch(ex.QueryRow(ctx, q, id))
}

// FindByPair normalizes the pair ordering: matches store (LEAST, GREATEST).
func (r *MatchRepo) FindByPair(ctx context.Context, qx any, userA, userB, groupID int64) (*model.Match, error) {
	q := `SELECT ` + matchColumns + ` FROM matches
 WHERE user_a = LEAST($1,$2) AND user_b = GREATEST($1,$2) AND group_id = $3;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return nil, err
	}
	return scanMatch(ex.QueryRow(ctx, q, userA, userB, groupID))
}

func (r *MatchRepo) FindByUser(ctx context.Context, qx any, userID int64) ([]*model.Match, error) {
	q := `SELECT ` + matchColumns + ` FROM matches
 WHERE user_a = $1 OR user_b = $1 ORDER BY created_at DESC;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()
	var out []*model.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MatchRepo) UpdateStatus(ctx context.Context, qx any, id int64, status model.MatchStatus) error {
	const q = `UPDATE matches SET status=$2 WHERE id=$1;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, q, id, string(status))
	if err != nil {
		return fmt.Errorf("update match status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanMatch(row pgx.Row) (*model.Match, error) {
	var m model.Match
	var status string
	if err := row.Scan(&m.ID, &m.UserAID, &m.UserBID, &m.GroupID, &m.Score, &m.CommonQuestions, &status, &m.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan match: %w", err)
	}
	m.Status = model.MatchStatus(status)
	return &m, nil
}
