// Package history carries accepted session changes to the history-append
// service over a redis channel, fire-and-forget relative to broadcast.
package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pairpad/internal/models"
)

// Channel is the redis pub/sub channel carrying history events.
const Channel = "collab:history"

// Recorder accepts history events. The hub never blocks on it.
type Recorder interface {
	Record(ctx context.Context, event models.HistoryEvent) error
}

// Publisher publishes history events to redis.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

func (p *Publisher) Record(ctx context.Context, event models.HistoryEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal history event: %w", err)
	}
	return p.rdb.Publish(ctx, Channel, data).Err()
}
