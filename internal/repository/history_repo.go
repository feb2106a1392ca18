package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"mirage-backend/internal/models"
)

// historyCap bounds each transcript list; old messages fall off the front.
const historyCap = 200

// HistoryRepo persists chat transcripts and the per-user current-chat
// selection in Redis, replacing the browser local-storage keys
// chat_messages_<userId> and current_chat_<userId>.
type HistoryRepo struct {
	redis *redis.Client
}

func NewHistoryRepo(redisClient *redis.Client) *HistoryRepo {
	return &HistoryRepo{redis: redisClient}
}

func messagesKey(userID, modelID string) string {
	return "chat_messages:" + userID + ":" + modelID
}

func currentChatKey(userID string) string {
	return "current_chat:" + userID
}

func (r *HistoryRepo) Append(ctx context.Context, userID, modelID string, msgs ...models.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	key := messagesKey(userID, modelID)
	vals := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		vals = append(vals, data)
	}

	pipe := r.redis.TxPipeline()
	pipe.RPush(ctx, key, vals...)
	pipe.LTrim(ctx, key, -historyCap, -1)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *HistoryRepo) List(ctx context.Context, userID, modelID string) ([]models.Message, error) {
	raw, err := r.redis.LRange(ctx, messagesKey(userID, modelID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	msgs := []models.Message{}
	for _, item := range raw {
		var m models.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue // skip entries that no longer parse
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// LastUserMessages returns the text of up to n most recent user (non-
// response) messages, oldest first: the conversational context sent
// along with a new query.
func (r *HistoryRepo) LastUserMessages(ctx context.Context, userID, modelID string, n int) ([]string, error) {
	msgs, err := r.List(ctx, userID, modelID)
	if err != nil {
		return nil, err
	}

	texts := []string{}
	for i := len(msgs) - 1; i >= 0 && len(texts) < n; i-- {
		if !msgs[i].IsResponse {
			texts = append(texts, msgs[i].Text)
		}
	}
	// reverse back into chronological order
	for i, j := 0, len(texts)-1; i < j; i, j = i+1, j-1 {
		texts[i], texts[j] = texts[j], texts[i]
	}
	return texts, nil
}

func (r *HistoryRepo) Clear(ctx context.Context, userID, modelID string) error {
	return r.redis.Del(ctx, messagesKey(userID, modelID)).Err()
}

func (r *HistoryRepo) SetCurrent(ctx context.Context, userID, modelID string) error {
	return r.redis.Set(ctx, currentChatKey(userID), modelID, 0).Err()
}

// GetCurrent returns the selected chat id, or "" when none is set.
func (r *HistoryRepo) GetCurrent(ctx context.Context, userID string) (string, error) {
	val, err := r.redis.Get(ctx, currentChatKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

func (r *HistoryRepo) ClearCurrent(ctx context.Context, userID string) error {
	return r.redis.Del(ctx, currentChatKey(userID)).Err()
}
