package repository

import (
	"context"

	"telegram-match-bridge/internal/domain/model"
)

type MatchRepository interface {
	Save(ctx context.Context, qx any, match *model.Match) error
	FindByID(ctx context.Context, qx any, id int64) (*model.Match, error)
	// FindByPair looks the match up by unordered pair within a group.
	FindByPair(ctx context.Context, qx any, userA, userB, groupID int64) (*model.Match, error)
	FindByUser(ctx context.Context, qx any, userID int64) ([]*model.Match, error)
	UpdateStatus(ctx context.Context, qx any, id int64, status model.MatchStatus) error
}
