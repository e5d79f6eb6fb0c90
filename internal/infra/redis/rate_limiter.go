package redis

import (
	"context"
	"time"

	"telegram-match-bridge/internal/usecase"
)

var _ usecase.RateLimiter = (*RateLimiter)(nil)

// RateLimiter is a fixed-window counter: first INCR in a window sets the
// expiry, anything past the limit inside the window is rejected.
type RateLimiter struct {
	client *Client
}

func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, window); err != nil {
			return false, err
		}
	}

	return count <= int64(limit), nil
}
