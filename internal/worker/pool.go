package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"mirage-backend/internal/models"
	"mirage-backend/internal/services"
)

// maxCleanupAttempts bounds retries for a single orphan before it is
// dropped with a log line.
const maxCleanupAttempts = 5

type modelDeleter interface {
	Delete(ctx context.Context, userID, modelID string) error
}

type indexPurger interface {
	Purge(ctx context.Context, userID, modelID string) error
}

// Pool is the cleanup reaper. It drains queue:model-cleanup, retrying
// compensating deletes and index purges that failed inline, so a chat
// whose configuration blew up never leaves a row or indexed pages
// behind.
type Pool struct {
	redis       *redis.Client
	models      modelDeleter
	rag         indexPurger
	workerCount int
	stopChan    chan struct{}
}

func NewPool(redisClient *redis.Client, models modelDeleter, rag indexPurger, workerCount int) *Pool {
	return &Pool{
		redis:       redisClient,
		models:      models,
		rag:         rag,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	log.Printf("Started %d cleanup worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Cleanup worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		result, err := p.redis.BLPop(ctx, 30*time.Second, services.CleanupQueueKey).Result()
		if err != nil {
			continue // timeout or transient error
		}
		if len(result) < 2 {
			continue
		}

		var task models.CleanupTask
		if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
			log.Printf("Cleanup worker %d: failed to parse task: %v", id, err)
			continue
		}

		// One worker per orphan at a time.
		lockKey := fmt.Sprintf("cleanup_lock:%s", task.ModelID)
		locked, err := p.redis.SetNX(ctx, lockKey, "1", time.Minute).Result()
		if err != nil || !locked {
			continue
		}

		if err := p.process(ctx, task); err != nil {
			p.retry(task, err)
		} else {
			log.Printf("Cleanup worker %d: model %s cleaned up", id, task.ModelID)
		}

		p.redis.Del(ctx, lockKey)
	}
}

func (p *Pool) process(ctx context.Context, task models.CleanupTask) error {
	if !task.PurgeOnly {
		if err := p.models.Delete(ctx, task.UserID, task.ModelID); err != nil {
			return fmt.Errorf("deleting model row: %w", err)
		}
	}
	if err := p.rag.Purge(ctx, task.UserID, task.ModelID); err != nil {
		return fmt.Errorf("purging index: %w", err)
	}
	return nil
}

func (p *Pool) retry(task models.CleanupTask, err error) {
	task.Attempts++
	if task.Attempts >= maxCleanupAttempts {
		log.Printf("Cleanup for model %s failed permanently after %d attempts: %v", task.ModelID, task.Attempts, err)
		return
	}

	log.Printf("Cleanup for model %s failed (attempt %d): %v, retrying", task.ModelID, task.Attempts, err)

	data, _ := json.Marshal(task)
	backoff := time.Duration(1<<uint(task.Attempts)) * time.Second
	time.AfterFunc(backoff, func() {
		p.redis.LPush(context.Background(), services.CleanupQueueKey, string(data))
	})
}
