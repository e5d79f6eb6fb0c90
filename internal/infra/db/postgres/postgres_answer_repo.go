// File: internal/infra/db/postgres/postgres_answer_repo.go
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-match-bridge/internal/domain/ports/repository"
)

var _ repository.AnswerRepository = (*AnswerRepo)(nil)

type AnswerRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresAnswerRepo(pool *pgxpool.Pool) *AnswerRepo {
	return &AnswerRepo{pool: pool}
}

func (r *AnswerRepo) AnswersByUser(ctx context.Context, qx any, userID, groupID int64) (map[int64]int, error) {
	const q = `
SELECT a.question_id, a.value
  FROM answers a
  JOIN questions t ON t.id = a.question_id
 WHERE a.user_id = $1 AND t.group_id = $2;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, q, userID, groupID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]int)
	for rows.Next() {
		var qid int64
		var v int
		if err := rows.Scan(&qid, &v); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out[qid] = v
	}
	return out, rows.Err()
}

func (r *AnswerRepo) GroupMemberIDs(ctx context.Context, qx any, groupID int64, excludeUserID int64) ([]int64, error) {
	const q = `
SELECT user_id FROM group_members
 WHERE group_id = $1 AND user_id <> $2;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, q, groupID, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
