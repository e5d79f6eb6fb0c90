package matcher

import (
	"context"
	"math"
	"os"
	"testing"

	"github.com/rs/zerolog"
)

type fakeAnswerRepo struct {
	answers map[int64]map[int64]int // userID -> questionID -> value
	members []int64
}

func (f *fakeAnswerRepo) AnswersByUser(_ context.Context, _ any, userID, _ int64) (map[int64]int, error) {
	return f.answers[userID], nil
}

func (f *fakeAnswerRepo) GroupMemberIDs(_ context.Context, _ any, _ int64, exclude int64) ([]int64, error) {
	var out []int64
	for _, id := range f.members {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out, nil
}

func testLogger() *zerolog.Logger {
	l := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return &l
}

func TestCohesionScore(t *testing.T) {
	a := map[int64]int{1: 2, 2: -2, 3: 0, 4: 1}
	b := map[int64]int{1: 2, 2: -2, 3: 0, 5: 1}

	score, shared := cohesion(a, b)
	if shared != 3 {
		t.Fatalf("shared = %d, want 3", shared)
	}
	if score != 1.0 {
		t.Fatalf("score = %v, want 1.0 for identical shared answers", score)
	}

	// Maximum disagreement on every shared question scores zero.
	c := map[int64]int{1: -2, 2: 2, 3: 2}
	score, shared = cohesion(map[int64]int{1: 2, 2: -2, 3: -2}, c)
	if shared != 3 || score != 0.0 {
		t.Fatalf("score = %v shared = %d, want 0.0 over 3", score, shared)
	}

	// One step apart on each of two questions: penalty 0.25 each, avg 0.25.
	score, _ = cohesion(map[int64]int{1: 1, 2: 0}, map[int64]int{1: 2, 2: 1})
	if math.Abs(score-0.75) > 1e-9 {
		t.Fatalf("score = %v, want 0.75", score)
	}
}

func TestFindCandidatesMinShared(t *testing.T) {
	repo := &fakeAnswerRepo{
		answers: map[int64]map[int64]int{
			1: {10: 2, 11: 2, 12: 2, 13: 2},
			2: {10: 2, 11: 2},             // only 2 shared, below the floor
			3: {10: 2, 11: 1, 12: 2},      // 3 shared
			4: {10: -2, 11: -2, 12: -2, 13: -2}, // 4 shared, maximal disagreement
		},
		members: []int64{1, 2, 3, 4},
	}
	m := NewCohesionMatcher(repo, 3, testLogger())

	got, err := m.FindCandidates(context.Background(), 1, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("candidates = %d, want 2 (user 2 below shared-answer floor)", len(got))
	}
	if got[0].UserID != 3 {
		t.Fatalf("best candidate = %d, want 3", got[0].UserID)
	}
	if got[1].UserID != 4 || got[1].Cohesion != 0.0 {
		t.Fatalf("second candidate = %+v, want user 4 with cohesion 0", got[1])
	}
}

func TestFindCandidatesNoAnswers(t *testing.T) {
	repo := &fakeAnswerRepo{answers: map[int64]map[int64]int{}, members: []int64{1, 2}}
	m := NewCohesionMatcher(repo, 3, testLogger())

	got, err := m.FindCandidates(context.Background(), 1, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("candidates = %d, want 0 when the searcher has no answers", len(got))
	}
}
