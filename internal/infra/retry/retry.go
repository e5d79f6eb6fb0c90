// Package retry is the single retry policy shared by the relay's transport
// sends and the ledger's conditional-update contention. Call sites used to
// each carry their own loop; keeping one policy here keeps backoff behavior
// uniform and configurable in one place.
package retry

import (
	"context"
	"time"
)

type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Attempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Do runs fn up to p.Attempts times with exponential backoff between
// attempts. It returns nil on the first success, the last error on
// exhaustion, and ctx.Err() if the context is done while waiting.
// Permanent errors stop the loop immediately.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.BaseDelay

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if pe, ok := err.(permanentError); ok {
			return pe.err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }

// Permanent wraps an error so Do stops retrying: business-rule failures and
// protocol violations are terminal, only transport-level failures retry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}
