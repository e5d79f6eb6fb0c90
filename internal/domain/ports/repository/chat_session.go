package repository

import (
	"context"
	"time"

	"telegram-match-bridge/internal/domain/model"
)

type ChatSessionRepository interface {
	Save(ctx context.Context, qx any, session *model.AnonymousChatSession) error
	FindBySessionID(ctx context.Context, qx any, sessionID string) (*model.AnonymousChatSession, error)
	FindByMatch(ctx context.Context, qx any, matchID int64) (*model.AnonymousChatSession, error)
	FindActiveByUser(ctx context.Context, qx any, userID int64) ([]*model.AnonymousChatSession, error)
	// UpdateStatusIf is the CAS used for activation and idempotent ending.
	UpdateStatusIf(ctx context.Context, qx any, sessionID string, expected, next model.ChatSessionStatus) (bool, error)
	TouchActivity(ctx context.Context, qx any, sessionID string, at time.Time) error
	// EndIdleBefore ends every active session whose last_activity is older
	// than the cutoff, returning how many rows changed.
	EndIdleBefore(ctx context.Context, qx any, cutoff time.Time) (int64, error)

	SaveMessage(ctx context.Context, qx any, msg *model.ChatMessage) error
	// Messages returns up to limit messages in insertion order (ULID order).
	// limit <= 0 means no limit.
	Messages(ctx context.Context, qx any, sessionID string, limit int) ([]*model.ChatMessage, error)
	// MarkRead flags every message in the session not sent by readerID,
	// returning the number of messages marked.
	MarkRead(ctx context.Context, qx any, sessionID string, readerID int64) (int64, error)
	UnreadCount(ctx context.Context, qx any, sessionID string, userID int64) (int, error)
}
