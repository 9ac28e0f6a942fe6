// Package queue consumes JSON jobs from Redis lists.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeadSuffix is appended to a queue name to form its dead-letter list.
const DeadSuffix = ":dead"

// Message is one popped payload.
type Message struct {
	Queue   string
	Payload []byte
}

// Source is a set of named FIFO queues.
type Source interface {
	// Pop blocks up to timeout for a message on any of queues. It returns
	// (nil, nil) when nothing arrived.
	Pop(ctx context.Context, queues []string, timeout time.Duration) (*Message, error)
	Push(ctx context.Context, queue string, payload []byte) error
}

// Redis implements Source with RPUSH/BLPOP.
type Redis struct {
	rdb redis.UniversalClient
}

// NewRedis returns a Source on rdb.
func NewRedis(rdb redis.UniversalClient) *Redis {
	return &Redis{rdb: rdb}
}

// Pop implements Source.
func (r *Redis) Pop(ctx context.Context, queues []string, timeout time.Duration) (*Message, error) {
	res, err := r.rdb.BLPop(ctx, timeout, queues...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: pop: %w", err)
	}
	return &Message{Queue: res[0], Payload: []byte(res[1])}, nil
}

// Push implements Source.
func (r *Redis) Push(ctx context.Context, queue string, payload []byte) error {
	if err := r.rdb.RPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("queue: push %s: %w", queue, err)
	}
	return nil
}

// Enqueue JSON-encodes job and pushes it onto queue.
func Enqueue(ctx context.Context, src Source, queue string, job any) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: encode job for %s: %w", queue, err)
	}
	return src.Push(ctx, queue, payload)
}
