package history

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pairpad/internal/models"
	"pairpad/internal/repository"
)

// Subscriber consumes history events from redis and lands them in the
// history repository.
type Subscriber struct {
	rdb  *redis.Client
	repo *repository.HistoryRepository
	log  *zap.Logger
}

func NewSubscriber(rdb *redis.Client, repo *repository.HistoryRepository, log *zap.Logger) *Subscriber {
	return &Subscriber{rdb: rdb, repo: repo, log: log}
}

// Run blocks consuming the history channel until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) {
	pubsub := s.rdb.Subscribe(ctx, Channel)
	defer pubsub.Close()
	ch := pubsub.Channel()

	s.log.Info("history subscriber started", zap.String("channel", Channel))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handle(ctx, msg.Payload)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, payload string) {
	var event models.HistoryEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		s.log.Warn("malformed history event", zap.Error(err))
		return
	}
	entry := &models.HistoryEntry{
		SessionID:     event.SessionID,
		ParticipantID: event.ParticipantID,
		ChangeType:    event.ChangeType,
		Snapshot:      event.Snapshot,
		OccurredAt:    event.Timestamp,
	}
	if err := s.repo.Append(ctx, entry); err != nil {
		s.log.Error("append history entry",
			zap.String("sessionId", event.SessionID), zap.Error(err))
	}
}
