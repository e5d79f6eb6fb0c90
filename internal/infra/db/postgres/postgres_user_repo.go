// File: internal/infra/db/postgres/postgres_user_repo.go
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

var _ repository.UserRepository = (*UserRepo)(nil)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) Save(ctx context.Context, qx any, user *model.User) error {
	ex, err := pick(r.pool, qx)
	if err != nil {
		return err
	}
	if user.ID == 0 {
		const q = `
INSERT INTO users (telegram_id, nickname, points, registered_at, last_active_at)
VALUES ($1,$2,$3,COALESCE($4,NOW()),COALESCE($5,NOW()))
RETURNING id;`
		if err := ex.QueryRow(ctx, q, user.TelegramID, user.Nickname, user.Points, user.RegisteredAt, user.LastActiveAt).Scan(&user.ID); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	}
	// Points are owned by AdjustPoints; a Save never writes the balance.
	const q = `
UPDATE users SET nickname = $2, last_active_at = $3 WHERE id = $1;`
	if _, err := ex.Exec(ctx, q, user.ID, user.Nickname, user.LastActiveAt); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (r *UserRepo) FindByID(ctx context.Context, qx any, id int64) (*model.User, error) {
	const q = `SELECT id, telegram_id, nickname, points, registered_at, last_active_at FROM users WHERE id=$1;`
	return r.scanOne(ctx, qx, q, id)
}

func (r *UserRepo) FindByTelegramID(ctx context.Context, qx any, telegramID int64) (*model.User, error) {
	const q = `SELECT id, telegram_id, nickname, points, registered_at, last_active_at FROM users WHERE telegram_id=$1;`
	return r.scanOne(ctx, qx, q, telegramID)
}

func (r *UserRepo) scanOne(ctx context.Context, qx any, q string, arg any) (*model.User, error) {
	ex, err := pick(r.pool, qx)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := ex.QueryRow(ctx, q, arg).Scan(&u.ID, &u.TelegramID, &u.Nickname, &u.Points, &u.RegisteredAt, &u.LastActiveAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// AdjustPoints is the ledger's single-row conditional update. The WHERE
// guard makes two racing decrements serialize in the database instead of at
// the application layer; the loser simply sees zero rows.
func (r *UserRepo) AdjustPoints(ctx context.Context, qx any, userID int64, delta int) (int, error) {
	const q = `
UPDATE users SET points = points + $2
 WHERE id = $1 AND points + $2 >= 0
RETURNING points;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return 0, err
	}
	var balance int
	if err := ex.QueryRow(ctx, q, userID, delta).Scan(&balance); err != nil {
		if err == pgx.ErrNoRows {
			// Either the user is missing or the guard failed; one extra
			// read tells the two apart.
			if _, ferr := r.FindByID(ctx, qx, userID); ferr != nil {
				return 0, ferr
			}
			return 0, domain.ErrInsufficientPoints
		}
		return 0, fmt.Errorf("adjust points: %w", err)
	}
	return balance, nil
}
