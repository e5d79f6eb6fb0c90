package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid executor context")

	// Match search / point economy
	ErrMatcherUnavailable = errors.New("matcher backend unavailable")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrNoMatches          = errors.New("no matches found")
	ErrRateLimited        = errors.New("too many match searches")

	// Communication handshake
	ErrAlreadyPending = errors.New("communication request already pending")
	ErrInvalidState   = errors.New("communication request in invalid state")

	// Anonymous chat sessions
	ErrSessionNotActive = errors.New("chat session is not active")
	ErrNotParticipant   = errors.New("user is not a participant of this session")
	ErrDeliveryFailed   = errors.New("message delivery failed")
)
