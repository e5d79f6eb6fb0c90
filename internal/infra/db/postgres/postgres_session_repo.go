// File: internal/infra/db/postgres/postgres_session_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-match-bridge/internal/domain"
	"telegram-match-bridge/internal/domain/model"
	"telegram-match-bridge/internal/domain/ports/repository"
)

var _ repository.ChatSessionRepository = (*SessionRepo)(nil)

// SessionRepo persists sessions and their messages. Messages live in their
// own table; the Messages field on the model is only populated on demand.
type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = `session_id, initiator_id, recipient_id, match_id, status, created_at, last_activity, ended_at`

func (r *SessionRepo) Save(ctx context.Context, qx any, s *model.AnonymousChatSession) error {
	const q = `
INSERT INTO anonymous_chat_sessions
  (session_id, initiator_id, recipient_id, match_id, status, created_at, last_activity, ended_at)
VALUES ($1,$2,$3,$4,$5,COALESCE($6,NOW()),COALESCE($7,NOW()),$8)
ON CONFLICT (session_id) DO UPDATE SET
  status = EXCLUDED.status,
  last_activity = EXCLUDED.last_activity,
  ended_at = EXCLUDED.ended_at;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return err
	}
	if _, err := ex.Exec(ctx, q, s.SessionID, s.InitiatorID, s.RecipientID, s.MatchID, string(s.Status), s.CreatedAt, s.LastActivity, s.EndedAt); err != nil {
		return fmt.Errorf("save chat session: %w", err)
	}
	return nil
}

func (r *SessionRepo) FindBySessionID(ctx context.Context, qx any, sessionID string) (*model.AnonymousChatSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM anonymous_chat_sessions WHERE session_id = $1;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return nil, err
	}
	return scanSession(ex.QueryRow(ctx, q, sessionID))
}

// FindByMatch returns the most recent session for the match; at most one
// non-ended session exists per match (partial unique index).
func (r *SessionRepo) FindByMatch(ctx context.Context, qx any, matchID int64) (*model.AnonymousChatSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM anonymous_chat_sessions
 WHERE match_id = $1 ORDER BY created_at DESC LIMIT 1;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return nil, err
	}
	return scanSession(ex.QueryRow(ctx, q, matchID))
}

func (r *SessionRepo) FindActiveByUser(ctx context.Context, qx any, userID int64) ([]*model.AnonymousChatSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM anonymous_chat_sessions
 WHERE status = 'active' AND (initiator_id = $1 OR recipient_id = $1)
 ORDER BY last_activity DESC;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}
	defer rows.Close()
	var out []*model.AnonymousChatSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SessionRepo) UpdateStatusIf(ctx context.Context, qx any, sessionID string, expected, next model.ChatSessionStatus) (bool, error) {
	// ended_at is set exactly when the row reaches ended, and only by the
	// transition that won the CAS.
	const q = `
UPDATE anonymous_chat_sessions
   SET status = $3,
       ended_at = CASE WHEN $3 = 'ended' THEN NOW() ELSE ended_at END
 WHERE session_id = $1 AND status = $2;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return false, err
	}
	tag, err := ex.Exec(ctx, q, sessionID, string(expected), string(next))
	if err != nil {
		return false, fmt.Errorf("cas chat session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *SessionRepo) TouchActivity(ctx context.Context, qx any, sessionID string, at time.Time) error {
	const q = `
UPDATE anonymous_chat_sessions SET last_activity = GREATEST(last_activity, $2)
 WHERE session_id = $1;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, q, sessionID, at)
	if err != nil {
		return fmt.Errorf("touch session activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SessionRepo) EndIdleBefore(ctx context.Context, qx any, cutoff time.Time) (int64, error) {
	const q = `
UPDATE anonymous_chat_sessions SET status = 'ended', ended_at = NOW()
 WHERE status = 'active' AND last_activity < $1;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return 0, err
	}
	tag, err := ex.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("end idle sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepo) SaveMessage(ctx context.Context, qx any, msg *model.ChatMessage) error {
	const q = `
INSERT INTO chat_messages (id, session_id, sender_id, content_type, content, is_read, created_at)
VALUES ($1,$2,$3,$4,$5,$6,COALESCE($7,NOW()));`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return err
	}
	if _, err := ex.Exec(ctx, q, msg.ID, msg.SessionID, msg.SenderID, string(msg.ContentType), msg.Content, msg.IsRead, msg.CreatedAt); err != nil {
		return fmt.Errorf("save chat message: %w", err)
	}
	return nil
}

// Messages orders by id: the ULID primary key sorts lexicographically in
// insertion order. When limit trims the result it keeps the newest messages,
// returned oldest first.
func (r *SessionRepo) Messages(ctx context.Context, qx any, sessionID string, limit int) ([]*model.ChatMessage, error) {
	q := `
SELECT id, session_id, sender_id, content_type, content, is_read, created_at
  FROM chat_messages WHERE session_id = $1 ORDER BY id;`
	args := []any{sessionID}
	if limit > 0 {
		q = `
SELECT id, session_id, sender_id, content_type, content, is_read, created_at FROM (
  SELECT id, session_id, sender_id, content_type, content, is_read, created_at
    FROM chat_messages WHERE session_id = $1 ORDER BY id DESC LIMIT $2
) tail ORDER BY id;`
		args = append(args, limit)
	}
	ex, err := pick(r.pool, qx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()
	var out []*model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		var ct string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.SenderID, &ct, &m.Content, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		m.ContentType = model.ContentType(ct)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *SessionRepo) MarkRead(ctx context.Context, qx any, sessionID string, readerID int64) (int64, error) {
	const q = `
UPDATE chat_messages SET is_read = TRUE
 WHERE session_id = $1 AND sender_id <> $2 AND is_read = FALSE;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return 0, err
	}
	tag, err := ex.Exec(ctx, q, sessionID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepo) UnreadCount(ctx context.Context, qx any, sessionID string, userID int64) (int, error) {
	const q = `
SELECT COUNT(*) FROM chat_messages
 WHERE session_id = $1 AND sender_id <> $2 AND is_read = FALSE;`
	ex, err := pick(r.pool, qx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := ex.QueryRow(ctx, q, sessionID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return n, nil
}

func scanSession(row pgx.Row) (*model.AnonymousChatSession, error) {
	var s model.AnonymousChatSession
	var status string
	if err := row.Scan(&s.SessionID, &s.InitiatorID, &s.RecipientID, &s.MatchID, &status, &s.CreatedAt, &s.LastActivity, &s.EndedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan chat session: %w", err)
	}
	s.Status = model.ChatSessionStatus(status)
	return &s, nil
}
