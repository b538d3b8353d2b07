package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwebster45206/loot-list/pkg/queue"
	"github.com/redis/go-redis/v9"
)

// RequestsKey is the Redis list holding queued grant requests
const RequestsKey = "grant-requests"

// GrantQueue is a FIFO of grant requests shared by the API and the workers
type GrantQueue struct {
	rdb *redis.Client
}

func NewGrantQueue(rdb *redis.Client) *GrantQueue {
	return &GrantQueue{
		rdb: rdb,
	}
}

// EnqueueRequest adds a request to the end of the queue
func (q *GrantQueue) EnqueueRequest(ctx context.Context, req *queue.Request) error {
	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}

	if err := q.rdb.RPush(ctx, RequestsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue request: %w", err)
	}
	return nil
}

// DequeueRequest removes and returns the next request
// Returns nil if queue is empty
func (q *GrantQueue) DequeueRequest(ctx context.Context) (*queue.Request, error) {
	result, err := q.rdb.LPop(ctx, RequestsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}

	req, err := queue.FromJSON([]byte(result))
	if err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return req, nil
}

// BlockingDequeueRequest waits up to timeout for a request
// Returns nil when the timeout passes with the queue empty
func (q *GrantQueue) BlockingDequeueRequest(ctx context.Context, timeout time.Duration) (*queue.Request, error) {
	result, err := q.rdb.BLPop(ctx, timeout, RequestsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}

	req, err := queue.FromJSON([]byte(result[1]))
	if err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return req, nil
}

// RequestQueueDepth returns the number of queued requests
func (q *GrantQueue) RequestQueueDepth(ctx context.Context) (int, error) {
	count, err := q.rdb.LLen(ctx, RequestsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get request queue depth: %w", err)
	}
	return int(count), nil
}
