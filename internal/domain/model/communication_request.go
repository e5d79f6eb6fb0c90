package model

import (
	"time"

	"telegram-match-bridge/internal/domain"
)

type CommunicationRequestStatus string

const (
	RequestStatusPending  CommunicationRequestStatus = "pending"
	RequestStatusActive   CommunicationRequestStatus = "active"
	RequestStatusDeclined CommunicationRequestStatus = "declined"
	RequestStatusExpired  CommunicationRequestStatus = "expired"
)

// CommunicationRequest is the two-party handshake record gating session
// creation. At most one non-terminal request exists per match; the store
// enforces this with a partial unique index on match_id.
type CommunicationRequest struct {
	ID          int64
	MatchID     int64
	InitiatorID int64
	ReceiverID  int64
	Status      CommunicationRequestStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewCommunicationRequest(matchID, initiatorID, receiverID int64) (*CommunicationRequest, error) {
	if matchID <= 0 || initiatorID <= 0 || receiverID <= 0 || initiatorID == receiverID {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &CommunicationRequest{
		MatchID:     matchID,
		InitiatorID: initiatorID,
		ReceiverID:  receiverID,
		Status:      RequestStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Terminal reports whether the request reached a final state. A terminal
// request never transitions again, and further create or confirm attempts
// against its match are rejected while the record stands.
func (r *CommunicationRequest) Terminal() bool {
	return r.Status == RequestStatusActive ||
		r.Status == RequestStatusDeclined ||
		r.Status == RequestStatusExpired
}

// ExpiredBy reports whether a still-pending request has outlived the window.
func (r *CommunicationRequest) ExpiredBy(ttl time.Duration, now time.Time) bool {
	return r.Status == RequestStatusPending && ttl > 0 && now.Sub(r.CreatedAt) > ttl
}
