package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-match-bridge/internal/usecase"
)

// ExpiryWorker periodically sweeps stale handshake requests and idle chat
// sessions. Both sweeps are plain conditional updates, so they commute with
// the lazy checks the use cases apply on access.
type ExpiryWorker struct {
	interval    time.Duration
	coordinator usecase.RequestCoordinator
	bridge      usecase.SessionBridge
	log         *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, coordinator usecase.RequestCoordinator, bridge usecase.SessionBridge, logger *zerolog.Logger) *ExpiryWorker {
	l := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval:    interval,
		coordinator: coordinator,
		bridge:      bridge,
		log:         &l,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	if n, err := w.coordinator.ExpirePending(ctx); err != nil {
		w.log.Error().Err(err).Msg("request expiry sweep failed")
	} else if n > 0 {
		w.log.Info().Int64("count", n).Msg("expired stale communication requests")
	}

	if n, err := w.bridge.EndIdle(ctx); err != nil {
		w.log.Error().Err(err).Msg("idle session sweep failed")
	} else if n > 0 {
		w.log.Info().Int64("count", n).Msg("ended idle chat sessions")
	}
}
