package repository

import "context"

// AnswerRepository is what the cohesion matcher reads: question answers per
// user per group. Values are on the -2..+2 agree/disagree scale.
type AnswerRepository interface {
	AnswersByUser(ctx context.Context, qx any, userID, groupID int64) (map[int64]int, error)
	GroupMemberIDs(ctx context.Context, qx any, groupID int64, excludeUserID int64) ([]int64, error)
}
