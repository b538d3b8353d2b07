package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/loot-list/internal/logger"
	"github.com/jwebster45206/loot-list/internal/services/events"
	"github.com/jwebster45206/loot-list/internal/services/queue"
	queuePkg "github.com/jwebster45206/loot-list/pkg/queue"
	"github.com/redis/go-redis/v9"
)

const (
	workerTimeout = 5 * time.Second
	lockTTL       = 30 * time.Second
)

var releaseLock = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Worker processes queued grant requests
type Worker struct {
	id          string
	queue       *queue.GrantQueue
	processor   *GrantProcessor
	broadcaster *events.Broadcaster
	redisClient *redis.Client
	log         *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

// New creates a new worker instance. broadcaster may be nil when grant
// events are disabled.
func New(queueClient *queue.GrantQueue, processor *GrantProcessor, broadcaster *events.Broadcaster, redisClient *redis.Client, log *slog.Logger, workerID string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}

	return &Worker{
		id:          workerID,
		queue:       queueClient,
		processor:   processor,
		broadcaster: broadcaster,
		redisClient: redisClient,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start processes requests until Stop is called
func (w *Worker) Start() error {
	w.log.Info("Worker starting", "worker_id", w.id)

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Worker shutting down", "worker_id", w.id)
			return nil
		default:
			if err := w.processNextRequest(); err != nil {
				logger.WithError(w.log, err).Error("Error processing request", "worker_id", w.id)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested", "worker_id", w.id)
	w.cancel()
}

// processNextRequest pulls the next request from the queue and processes it
func (w *Worker) processNextRequest() error {
	req, err := w.queue.BlockingDequeueRequest(w.ctx, workerTimeout)
	if err != nil {
		if w.ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to dequeue request: %w", err)
	}
	if req == nil {
		return nil
	}

	w.log.Info("Received request from queue",
		"worker_id", w.id,
		"request_id", req.RequestID,
		"source_id", req.SourceID,
		"target_id", req.TargetID)

	// One grant per target at a time
	locked, err := w.acquireTargetLock(req.TargetID)
	if err != nil {
		return fmt.Errorf("failed to acquire target lock: %w", err)
	}
	if !locked {
		w.log.Info("Target already locked, re-queueing request",
			"worker_id", w.id,
			"request_id", req.RequestID,
			"target_id", req.TargetID)
		if err := w.queue.EnqueueRequest(w.ctx, req); err != nil {
			return fmt.Errorf("failed to re-queue request: %w", err)
		}
		return nil
	}

	defer w.releaseTargetLock(req.TargetID)
	return w.processRequest(req)
}

func lockKey(targetID string) string {
	return "grant-lock:" + targetID
}

// acquireTargetLock returns false if another worker holds the target
func (w *Worker) acquireTargetLock(targetID string) (bool, error) {
	return w.redisClient.SetNX(w.ctx, lockKey(targetID), w.id, lockTTL).Result()
}

// releaseTargetLock deletes the lock only if this worker owns it
func (w *Worker) releaseTargetLock(targetID string) {
	if err := releaseLock.Run(context.Background(), w.redisClient, []string{lockKey(targetID)}, w.id).Err(); err != nil {
		w.log.Error("Failed to release target lock", "error", err, "target_id", targetID)
	}
}

func (w *Worker) processRequest(req *queuePkg.Request) error {
	start := time.Now()

	result, err := w.processor.Process(w.ctx, req)
	if result == nil {
		w.log.Error("Grant request failed",
			"error", err,
			"request_id", req.RequestID,
			"target_id", req.TargetID)
		if w.broadcaster != nil {
			if pubErr := w.broadcaster.PublishGrantFailed(w.ctx, req.RequestID, req.SourceID, req.TargetID, err.Error()); pubErr != nil {
				w.log.Error("Failed to publish failure event", "error", pubErr)
			}
		}
		// Failed requests are not retried
		return nil
	}
	if err != nil {
		w.log.Warn("Grant request applied partially",
			"error", err,
			"request_id", req.RequestID,
			"grant_id", result.GrantID)
	}

	w.log.Info("Grant request processed",
		"worker_id", w.id,
		"request_id", req.RequestID,
		"grant_id", result.GrantID,
		"created", len(result.CreatedItems),
		"updated", len(result.UpdatedItemDeltas),
		"skipped", len(result.Skipped),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}
