package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"

	"telegram-match-bridge/internal/domain"
)

type ChatSessionStatus string

const (
	ChatSessionPending ChatSessionStatus = "pending"
	ChatSessionActive  ChatSessionStatus = "active"
	ChatSessionEnded   ChatSessionStatus = "ended"
)

type ContentType string

const (
	ContentTypeText ContentType = "text"
	ContentTypeFile ContentType = "file"
)

// AnonymousChatSession is the live, identity-hidden conversation between two
// matched users, bridged through the communicator bot so neither side sees
// the other's real Telegram account.
type AnonymousChatSession struct {
	SessionID    string
	InitiatorID  int64
	RecipientID  int64
	MatchID      int64
	Status       ChatSessionStatus
	CreatedAt    time.Time
	LastActivity time.Time
	EndedAt      *time.Time
	Messages     []ChatMessage
}

// NewSessionToken mints an unguessable session id: 128 bits from crypto/rand,
// hex encoded. Entity ids elsewhere use uuid/ulid; this one is a secret and
// must not embed timestamps.
func NewSessionToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

func NewAnonymousChatSession(sessionID string, initiatorID, recipientID, matchID int64) (*AnonymousChatSession, error) {
	if sessionID == "" || initiatorID <= 0 || recipientID <= 0 || initiatorID == recipientID {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &AnonymousChatSession{
		SessionID:    sessionID,
		InitiatorID:  initiatorID,
		RecipientID:  recipientID,
		MatchID:      matchID,
		Status:       ChatSessionPending,
		CreatedAt:    now,
		LastActivity: now,
	}, nil
}

func (s *AnonymousChatSession) HasParticipant(userID int64) bool {
	return userID == s.InitiatorID || userID == s.RecipientID
}

// Counterpart returns the other side of the session.
func (s *AnonymousChatSession) Counterpart(userID int64) (int64, bool) {
	switch userID {
	case s.InitiatorID:
		return s.RecipientID, true
	case s.RecipientID:
		return s.InitiatorID, true
	default:
		return 0, false
	}
}

// IdleSince reports whether the session has had no activity for the window.
func (s *AnonymousChatSession) IdleSince(ttl time.Duration, now time.Time) bool {
	return s.Status == ChatSessionActive && ttl > 0 && now.Sub(s.LastActivity) > ttl
}

// ChatMessage belongs to exactly one session. Append-only; only IsRead is
// ever mutated. The ULID id sorts lexicographically in creation order, which
// is what carries the per-session ordering guarantee through the store.
type ChatMessage struct {
	ID          string
	SessionID   string
	SenderID    int64
	ContentType ContentType
	Content     string
	IsRead      bool
	CreatedAt   time.Time
}

func NewChatMessage(sessionID string, senderID int64, contentType ContentType, content string) *ChatMessage {
	now := time.Now()
	return &ChatMessage{
		ID:          ulid.Make().String(),
		SessionID:   sessionID,
		SenderID:    senderID,
		ContentType: contentType,
		Content:     content,
		CreatedAt:   now,
	}
}
