package repository

import (
	"context"

	"telegram-match-bridge/internal/domain/model"
)

type UserRepository interface {
	Save(ctx context.Context, qx any, user *model.User) error
	FindByID(ctx context.Context, qx any, id int64) (*model.User, error)
	FindByTelegramID(ctx context.Context, qx any, telegramID int64) (*model.User, error)

	// AdjustPoints applies a signed delta to the balance as a single
	// conditional UPDATE: the row changes only if the resulting balance is
	// still >= 0. Returns domain.ErrInsufficientPoints when the guard fails.
	AdjustPoints(ctx context.Context, qx any, userID int64, delta int) (newBalance int, err error)
}
