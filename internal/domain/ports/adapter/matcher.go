package adapter

import (
	"context"

	"telegram-match-bridge/internal/domain/model"
)

// CandidateMatcher ranks compatible counterparts for a user within a group.
// An empty slice is a valid result (nobody compatible right now) and is a
// different outcome from an error: the orchestrator charges points only on a
// nonempty result, never on a failure.
type CandidateMatcher interface {
	// FindCandidates returns candidates ordered best-first. A transient
	// backend failure surfaces as domain.ErrMatcherUnavailable (possibly
	// wrapped).
	FindCandidates(ctx context.Context, userID, groupID int64) ([]model.MatchCandidate, error)
}
