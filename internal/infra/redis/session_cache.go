package redis

import (
	"context"
	"encoding/json"
	"time"

	"telegram-match-bridge/internal/domain/model"
	"telegram-match-bridge/internal/usecase"
)

var _ usecase.SessionCache = (*SessionCache)(nil)

// SessionCache keeps hot sessions as JSON in front of Postgres. A miss or a
// stale entry is never fatal; the store stays authoritative.
type SessionCache struct {
	client *Client
	ttl    time.Duration
}

func NewSessionCache(client *Client, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionCache{client: client, ttl: ttl}
}

func sessionKey(sessionID string) string {
	return "chat_session:" + sessionID
}

func (c *SessionCache) StoreSession(ctx context.Context, session *model.AnonymousChatSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sessionKey(session.SessionID), data, c.ttl)
}

func (c *SessionCache) GetSession(ctx context.Context, sessionID string) (*model.AnonymousChatSession, error) {
	data, err := c.client.Get(ctx, sessionKey(sessionID))
	if err != nil {
		return nil, err
	}

	var session model.AnonymousChatSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *SessionCache) DeleteSession(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, sessionKey(sessionID))
}
