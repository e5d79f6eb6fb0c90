package model

import (
	"time"

	"telegram-match-bridge/internal/domain"
)

type MatchStatus string

const (
	MatchStatusPending MatchStatus = "pending"
	MatchStatusActive  MatchStatus = "active"
	MatchStatusEnded   MatchStatus = "ended"
)

// Match is a computed pairing of two users within a group. Exactly one Match
// is expected per unordered pair per group; the store owns that constraint.
type Match struct {
	ID              int64
	UserAID         int64
	UserBID         int64
	GroupID         int64
	Score           float64
	CommonQuestions int
	Status          MatchStatus
	CreatedAt       time.Time
}

func NewMatch(userA, userB, groupID int64, score float64, commonQuestions int) (*Match, error) {
	if userA == userB || userA <= 0 || userB <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Match{
		UserAID:         userA,
		UserBID:         userB,
		GroupID:         groupID,
		Score:           score,
		CommonQuestions: commonQuestions,
		Status:          MatchStatusPending,
		CreatedAt:       time.Now(),
	}, nil
}

// Counterpart returns the other participant of the match.
func (m *Match) Counterpart(userID int64) (int64, bool) {
	switch userID {
	case m.UserAID:
		return m.UserBID, true
	case m.UserBID:
		return m.UserAID, true
	default:
		return 0, false
	}
}

func (m *Match) HasParticipant(userID int64) bool {
	return userID == m.UserAID || userID == m.UserBID
}

// MatchCandidate is what the candidate matcher returns: a ranked counterpart
// before any Match row exists.
type MatchCandidate struct {
	UserID          int64
	Cohesion        float64
	CommonQuestions int
}
