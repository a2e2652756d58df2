package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const relayTimeout = 2 * time.Second

// Publisher is the slice of *redis.Client the relay needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisEventRelay mirrors job events to Redis pub/sub so other processes can
// follow progress. Channel: <prefix><jobID>.
type RedisEventRelay struct {
	rdb    Publisher
	prefix string
}

func NewRedisEventRelay(rdb Publisher, prefix string) *RedisEventRelay {
	return &RedisEventRelay{rdb: rdb, prefix: prefix}
}

func (r *RedisEventRelay) Channel(jobID string) string {
	return r.prefix + jobID
}

func (r *RedisEventRelay) Publish(ctx context.Context, jobID string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, relayTimeout)
	defer cancel()

	if err := r.rdb.Publish(ctx, r.Channel(jobID), payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", r.Channel(jobID), err)
	}
	return nil
}
