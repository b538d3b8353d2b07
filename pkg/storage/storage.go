package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jwebster45206/loot-list/pkg/actor"
	"github.com/jwebster45206/loot-list/pkg/document"
	"github.com/jwebster45206/loot-list/pkg/item"
)

// ErrNotFound is returned when a record or content document does not exist
var ErrNotFound = errors.New("not found")

// Storage defines a unified interface for all storage operations
// This interface combines actor records (mutable) with world content lookups (read-only)
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Actor records
	GetActor(ctx context.Context, id string) (*actor.Record, error)
	ListActors(ctx context.Context) ([]string, error)
	SaveActor(ctx context.Context, rec *actor.Record) error

	// Record mutation API used by grants. Each call is its own mutation;
	// there is no transaction spanning calls.
	UpdateCurrency(ctx context.Context, actorID string, totals map[string]int) error
	UpdateEmbeddedItems(ctx context.Context, actorID string, patches []item.QuantityPatch) error
	CreateEmbeddedItems(ctx context.Context, actorID string, items []item.Item) ([]item.Item, error)

	// Namespaced flags on a record
	GetFlag(ctx context.Context, actorID, namespace, key string) (json.RawMessage, error)
	SetFlag(ctx context.Context, actorID, namespace, key string, value any) error
	UnsetFlag(ctx context.Context, actorID, namespace, key string) error

	// World content
	GetItem(ctx context.Context, id string) (*item.Item, error)
	GetFolder(ctx context.Context, id string) (*document.Folder, error)
	GetRollTable(ctx context.Context, id string) (*document.RollTable, error)
	GetPack(ctx context.Context, id string) (*document.Pack, error)
}
