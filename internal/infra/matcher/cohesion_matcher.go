// File: internal/infra/matcher/cohesion_matcher.go
package matcher

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"telegram-match-bridge/internal/domain/model"
	"telegram-match-bridge/internal/domain/ports/adapter"
	"telegram-match-bridge/internal/domain/ports/repository"
)

var _ adapter.CandidateMatcher = (*CohesionMatcher)(nil)

// CohesionMatcher scores candidates by answer agreement. Each shared question
// contributes a penalty of |a-b|/4 (answers live on the -2..+2 scale, so 4 is
// the maximum distance); cohesion is 1 minus the average penalty. Pairs
// sharing fewer than MinSharedAnswers questions are not comparable and are
// skipped.
type CohesionMatcher struct {
	answers          repository.AnswerRepository
	minSharedAnswers int
	log              *zerolog.Logger
}

func NewCohesionMatcher(answers repository.AnswerRepository, minSharedAnswers int, logger *zerolog.Logger) *CohesionMatcher {
	if minSharedAnswers <= 0 {
		minSharedAnswers = 3
	}
	l := logger.With().Str("component", "CohesionMatcher").Logger()
	return &CohesionMatcher{answers: answers, minSharedAnswers: minSharedAnswers, log: &l}
}

func (m *CohesionMatcher) FindCandidates(ctx context.Context, userID, groupID int64) ([]model.MatchCandidate, error) {
	own, err := m.answers.AnswersByUser(ctx, nil, userID, groupID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	if len(own) == 0 {
		return nil, nil
	}

	others, err := m.answers.GroupMemberIDs(ctx, nil, groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("load group members: %w", err)
	}

	var out []model.MatchCandidate
	for _, otherID := range others {
		theirs, err := m.answers.AnswersByUser(ctx, nil, otherID, groupID)
		if err != nil {
			return nil, fmt.Errorf("load answers for %d: %w", otherID, err)
		}
		score, shared := cohesion(own, theirs)
		if shared < m.minSharedAnswers {
			continue
		}
		out = append(out, model.MatchCandidate{
			UserID:          otherID,
			Cohesion:        score,
			CommonQuestions: shared,
		})
	}

	// Highest cohesion first; shared-answer count breaks ties so a broader
	// overlap outranks an equally close narrow one.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Cohesion != out[j].Cohesion {
			return out[i].Cohesion > out[j].Cohesion
		}
		return out[i].CommonQuestions > out[j].CommonQuestions
	})

	m.log.Debug().Int64("user_id", userID).Int64("group_id", groupID).
		Int("candidates", len(out)).Msg("candidate scan finished")
	return out, nil
}

// cohesion returns the score over the shared questions and how many there are.
func cohesion(a, b map[int64]int) (float64, int) {
	var totalPenalty float64
	shared := 0
	for qid, av := range a {
		bv, ok := b[qid]
		if !ok {
			continue
		}
		diff := av - bv
		if diff < 0 {
			diff = -diff
		}
		totalPenalty += float64(diff) / 4.0
		shared++
	}
	if shared == 0 {
		return 0, 0
	}
	return 1.0 - totalPenalty/float64(shared), shared
}
