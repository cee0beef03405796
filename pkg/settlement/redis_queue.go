package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	queueKey     = "queue:settlement"
	failedKey    = "queue:settlement:failed"
	processingFn = "queue:settlement:processing:"
)

// RedisQueue is a Redis-list-backed Queue: Push is LPUSH, Reserve is a
// blocking RPOPLPUSH into a per-consumer processing list so a crashed
// worker's reservations stay visible for reconciliation, Ack/Nack/Fail
// remove the job from that processing list.
type RedisQueue struct {
	rdb *redis.Client
}

// NewRedisQueue wraps an existing Redis client.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func processingKey(consumer string) string {
	return processingFn + consumer
}

func (q *RedisQueue) Push(ctx context.Context, job []byte) error {
	if err := q.rdb.LPush(ctx, queueKey, job).Err(); err != nil {
		return fmt.Errorf("settlement: push: %w", err)
	}
	return nil
}

func (q *RedisQueue) Reserve(ctx context.Context, consumer string, block time.Duration) ([]byte, bool, error) {
	res, err := q.rdb.BRPopLPush(ctx, queueKey, processingKey(consumer), block).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("settlement: reserve: %w", err)
	}
	return []byte(res), true, nil
}

func (q *RedisQueue) Ack(ctx context.Context, consumer string, job []byte) error {
	if err := q.rdb.LRem(ctx, processingKey(consumer), 1, job).Err(); err != nil {
		return fmt.Errorf("settlement: ack: %w", err)
	}
	return nil
}

func (q *RedisQueue) Nack(ctx context.Context, consumer string, job []byte) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, processingKey(consumer), 1, job)
	pipe.RPush(ctx, queueKey, job)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("settlement: nack: %w", err)
	}
	return nil
}

func (q *RedisQueue) Fail(ctx context.Context, consumer string, job []byte) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, processingKey(consumer), 1, job)
	pipe.LPush(ctx, failedKey, job)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("settlement: fail: %w", err)
	}
	return nil
}
