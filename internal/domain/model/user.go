package model

import (
	"time"

	"telegram-match-bridge/internal/domain"
)

// User is a domain entity representing a Telegram user in our system.
// The core only knows the opaque numeric id and the point balance; profile
// data lives with the persistence collaborator.
type User struct {
	ID           int64
	TelegramID   int64
	Nickname     string
	Points       int
	RegisteredAt time.Time
	LastActiveAt time.Time
}

func NewUser(id, tgID int64, nickname string) (*User, error) {
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &User{
		ID:           id,
		TelegramID:   tgID,
		Nickname:     nickname,
		Points:       0,
		RegisteredAt: now,
		LastActiveAt: now,
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == 0 }
func (u *User) Touch()       { u.LastActiveAt = time.Now() }

// CanAfford reports whether the balance covers a search of the given cost.
// The authoritative check is the conditional UPDATE in the ledger; this is
// only for pre-flight UX messages.
func (u *User) CanAfford(cost int) bool { return u.Points >= cost }
