package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jwebster45206/loot-list/pkg/actor"
	"github.com/jwebster45206/loot-list/pkg/grant"
	"github.com/jwebster45206/loot-list/pkg/loot"
	"github.com/jwebster45206/loot-list/pkg/queue"
	"github.com/jwebster45206/loot-list/pkg/storage"
)

// Records reads loot lists and grant targets
type Records interface {
	loot.FlagStore
	GetActor(ctx context.Context, id string) (*actor.Record, error)
}

// GrantProcessor grants the committed loot list of a request's source to
// its target
type GrantProcessor struct {
	records Records
	cfg     loot.Config
	engine  *grant.Engine
	log     *slog.Logger
}

func NewGrantProcessor(records Records, cfg loot.Config, engine *grant.Engine, log *slog.Logger) *GrantProcessor {
	return &GrantProcessor{
		records: records,
		cfg:     cfg,
		engine:  engine,
		log:     log,
	}
}

// Process runs one queued grant. A partial failure returns the result
// together with the joined mutation errors.
func (p *GrantProcessor) Process(ctx context.Context, req *queue.Request) (*grant.Result, error) {
	list, err := loot.ReadList(ctx, p.records, p.cfg, req.SourceID)
	if err != nil {
		return nil, err
	}

	target, err := p.records.GetActor(ctx, req.TargetID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", grant.ErrNoTarget, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load target: %w", err)
	}

	p.log.Debug("Granting committed loot list",
		"request_id", req.RequestID,
		"source_id", req.SourceID,
		"target_id", req.TargetID,
		"items", len(list.Items))

	return p.engine.Grant(ctx, list.Items, list.Currencies, target)
}
