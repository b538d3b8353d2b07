package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jwebster45206/loot-list/pkg/grant"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeGrantPending EventType = "grant.pending"
	EventTypeGrantApplied EventType = "grant.applied"
	EventTypeGrantFailed  EventType = "grant.failed"
)

// Event represents a generic event structure
type Event struct {
	Type     EventType      `json:"type"`
	GrantID  string         `json:"grant_id"`
	TargetID string         `json:"target_id"`
	Data     map[string]any `json:"data,omitempty"`
}

// Channel returns the Pub/Sub channel carrying grant events for a target record
func Channel(targetID string) string {
	return "grants:" + targetID
}

// Broadcaster publishes grant events to Redis Pub/Sub
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Register hooks the broadcaster into a grant engine
func (b *Broadcaster) Register(e *grant.Engine) {
	e.OnPreGrant(b.PublishGrantPending)
	e.OnPostGrant(b.PublishGrantApplied)
}

// PublishGrantPending publishes the planned batch before it is applied.
// A publish failure aborts the grant.
func (b *Broadcaster) PublishGrantPending(ctx context.Context, batch *grant.Batch) error {
	return b.publish(ctx, newEvent(EventTypeGrantPending, batch))
}

// PublishGrantApplied publishes the batch after it was applied
func (b *Broadcaster) PublishGrantApplied(ctx context.Context, batch *grant.Batch) error {
	return b.publish(ctx, newEvent(EventTypeGrantApplied, batch))
}

// PublishGrantFailed reports a queued grant that could not be applied
func (b *Broadcaster) PublishGrantFailed(ctx context.Context, requestID, sourceID, targetID, reason string) error {
	return b.publish(ctx, Event{
		Type:     EventTypeGrantFailed,
		TargetID: targetID,
		Data: map[string]any{
			"request_id": requestID,
			"source_id":  sourceID,
			"error":      reason,
		},
	})
}

func newEvent(t EventType, batch *grant.Batch) Event {
	return Event{
		Type:     t,
		GrantID:  batch.GrantID,
		TargetID: batch.Target.ID,
		Data: map[string]any{
			"currency_update": batch.CurrencyUpdate,
			"item_updates":    batch.ItemUpdates,
			"item_creates":    len(batch.ItemCreates),
		},
	}
}

// publish sends an event to the target-specific channel
func (b *Broadcaster) publish(ctx context.Context, event Event) error {
	channel := Channel(event.TargetID)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"grant_id", event.GrantID,
	)

	return nil
}
