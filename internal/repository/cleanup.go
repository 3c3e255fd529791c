package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpirySweeper deletes sessions past their expiresAt. onExpired runs for each
// deleted id so the caller can force-close live connections and drop cached
// hub state.
type ExpirySweeper struct {
	repo      *SessionRepository
	interval  time.Duration
	onExpired func(sessionID string)
	log       *zap.Logger
}

func NewExpirySweeper(repo *SessionRepository, interval time.Duration, onExpired func(sessionID string), log *zap.Logger) *ExpirySweeper {
	if onExpired == nil {
		onExpired = func(string) {}
	}
	return &ExpirySweeper{repo: repo, interval: interval, onExpired: onExpired, log: log}
}

// Run sweeps at the configured interval until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(ctx, now)
		}
	}
}

// Sweep deletes every expired session once.
func (s *ExpirySweeper) Sweep(ctx context.Context, now time.Time) {
	ids, err := s.repo.DeleteExpired(ctx, now)
	if err != nil {
		s.log.Error("expiry sweep failed", zap.Error(err))
	}
	for _, id := range ids {
		s.log.Info("expired session removed", zap.String("sessionId", id))
		s.onExpired(id)
	}
}
