package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"mirage-backend/internal/models"
)

// CleanupQueueKey is the Redis list the reaper consumes.
const CleanupQueueKey = "queue:model-cleanup"

// Notifier publishes per-user events for the websocket hub and queues
// failed cleanup work for the reaper.
type Notifier struct {
	redis *redis.Client
}

func NewNotifier(redisClient *redis.Client) *Notifier {
	return &Notifier{redis: redisClient}
}

// Publish fans a message out to every socket the user has open, via the
// per-user pub/sub channel.
func (n *Notifier) Publish(ctx context.Context, userID string, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := n.redis.Publish(ctx, fmt.Sprintf("user_updates:%s", userID), string(data)).Err(); err != nil {
		log.Printf("publish to user %s failed: %v", userID, err)
	}
}

func (n *Notifier) EnqueueCleanup(ctx context.Context, task models.CleanupTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return n.redis.LPush(ctx, CleanupQueueKey, string(data)).Err()
}
