package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jwebster45206/loot-list/pkg/actor"
	"github.com/jwebster45206/loot-list/pkg/item"
	records "github.com/jwebster45206/loot-list/pkg/storage"
	"github.com/redis/go-redis/v9"
)

const (
	actorKeyPrefix = "actor:"
	actorSetKey    = "actors"

	// maxTxAttempts bounds optimistic retries when a watched record changes
	maxTxAttempts = 50
)

// ErrConflict is returned when a record kept changing under a mutation
var ErrConflict = errors.New("record modified concurrently")

// RedisStorage implements the Storage interface using Redis for actor
// records and the filesystem for world content (items, folders, tables, packs)
type RedisStorage struct {
	client  *redis.Client
	logger  *slog.Logger
	dataDir string
}

// Ensure RedisStorage implements Storage interface
var _ records.Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a new Redis storage instance
func NewRedisStorage(redisURL string, dataDir string, logger *slog.Logger) *RedisStorage {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})

	if dataDir == "" {
		dataDir = "./data"
	}

	return &RedisStorage{
		client:  rdb,
		logger:  logger,
		dataDir: dataDir,
	}
}

// Client exposes the underlying connection for publishers sharing it
func (r *RedisStorage) Client() *redis.Client {
	return r.client
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

func actorKey(id string) string {
	return actorKeyPrefix + id
}

// Actor operations (Redis-backed)

func (r *RedisStorage) GetActor(ctx context.Context, id string) (*actor.Record, error) {
	data, err := r.client.Get(ctx, actorKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("actor %s: %w", id, records.ErrNotFound)
		}
		r.logger.Error("Failed to load actor", "actor_id", id, "error", err)
		return nil, fmt.Errorf("failed to load actor: %w", err)
	}

	var rec actor.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		r.logger.Error("Failed to unmarshal actor", "actor_id", id, "error", err)
		return nil, fmt.Errorf("failed to unmarshal actor: %w", err)
	}
	return &rec, nil
}

func (r *RedisStorage) ListActors(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, actorSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list actors: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *RedisStorage) SaveActor(ctx context.Context, rec *actor.Record) error {
	if rec == nil || rec.ID == "" {
		return errors.New("actor must have an ID")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal actor: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, actorKey(rec.ID), data, 0)
		pipe.SAdd(ctx, actorSetKey, rec.ID)
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save actor", "actor_id", rec.ID, "error", err)
		return fmt.Errorf("failed to save actor: %w", err)
	}
	return nil
}

// mutate applies fn to the stored record under WATCH, retrying when another
// writer commits first. fn may run more than once.
func (r *RedisStorage) mutate(ctx context.Context, id string, fn func(*actor.Record) error) error {
	key := actorKey(id)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("actor %s: %w", id, records.ErrNotFound)
			}
			return err
		}
		var rec actor.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal actor: %w", err)
		}
		if err := fn(&rec); err != nil {
			return err
		}
		out, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("failed to marshal actor: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			r.logger.Debug("Actor changed during update, retrying", "actor_id", id, "attempt", attempt)
			continue
		}
		return err
	}
	return fmt.Errorf("actor %s: %w", id, ErrConflict)
}

func (r *RedisStorage) UpdateCurrency(ctx context.Context, actorID string, totals map[string]int) error {
	return r.mutate(ctx, actorID, func(rec *actor.Record) error {
		records.ApplyCurrency(rec, totals)
		return nil
	})
}

func (r *RedisStorage) UpdateEmbeddedItems(ctx context.Context, actorID string, patches []item.QuantityPatch) error {
	return r.mutate(ctx, actorID, func(rec *actor.Record) error {
		return records.ApplyQuantityPatches(rec, patches)
	})
}

func (r *RedisStorage) CreateEmbeddedItems(ctx context.Context, actorID string, items []item.Item) ([]item.Item, error) {
	var created []item.Item
	err := r.mutate(ctx, actorID, func(rec *actor.Record) error {
		var err error
		created, err = records.AppendItems(rec, items)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Flag operations

func (r *RedisStorage) GetFlag(ctx context.Context, actorID, namespace, key string) (json.RawMessage, error) {
	rec, err := r.GetActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	raw, ok := rec.GetFlag(namespace, key)
	if !ok {
		return nil, nil
	}
	return raw, nil
}

func (r *RedisStorage) SetFlag(ctx context.Context, actorID, namespace, key string, value any) error {
	return r.mutate(ctx, actorID, func(rec *actor.Record) error {
		return rec.SetFlag(namespace, key, value)
	})
}

func (r *RedisStorage) UnsetFlag(ctx context.Context, actorID, namespace, key string) error {
	return r.mutate(ctx, actorID, func(rec *actor.Record) error {
		rec.UnsetFlag(namespace, key)
		return nil
	})
}
