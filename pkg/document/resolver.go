package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/jwebster45206/loot-list/pkg/actor"
	"github.com/jwebster45206/loot-list/pkg/item"
)

// ErrUnresolved indicates a reference that does not point to a live document
var ErrUnresolved = errors.New("reference does not resolve to a document")

// Source is the content lookup a Resolver dispatches to
type Source interface {
	GetItem(ctx context.Context, id string) (*item.Item, error)
	GetActor(ctx context.Context, id string) (*actor.Record, error)
	GetFolder(ctx context.Context, id string) (*Folder, error)
	GetRollTable(ctx context.Context, id string) (*RollTable, error)
	GetPack(ctx context.Context, id string) (*Pack, error)
}

// Resolver turns references into documents
type Resolver struct {
	source Source
}

// NewResolver creates a resolver over source
func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Resolve returns a copy of the item a reference points to. World items,
// compendium items and items owned by an actor are supported.
func (r *Resolver) Resolve(ctx context.Context, raw string) (*item.Item, error) {
	ref, err := ParseReference(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnresolved, err)
	}
	if ref.Kind != KindItem {
		return nil, fmt.Errorf("%w: %s is a %s, not an Item", ErrUnresolved, raw, ref.Kind)
	}

	var found *item.Item
	switch {
	case ref.Pack != "":
		pack, err := r.source.GetPack(ctx, ref.Pack)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrUnresolved, raw, err)
		}
		entry, ok := pack.Find(ref.ID)
		if !ok {
			return nil, fmt.Errorf("%w: %s: no entry %s in pack %s", ErrUnresolved, raw, ref.ID, ref.Pack)
		}
		found = entry
	case ref.IsEmbedded():
		actorID, ok := ref.OwnerActorID()
		if !ok {
			return nil, fmt.Errorf("%w: %s: no owning actor", ErrUnresolved, raw)
		}
		owner, err := r.source.GetActor(ctx, actorID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrUnresolved, raw, err)
		}
		owned, ok := owner.FindItem(ref.ID)
		if !ok {
			return nil, fmt.Errorf("%w: %s: actor %s holds no item %s", ErrUnresolved, raw, actorID, ref.ID)
		}
		found = owned
	default:
		world, err := r.source.GetItem(ctx, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrUnresolved, raw, err)
		}
		found = world
	}
	return found.Clone()
}

// ResolveFolder returns the world folder a reference points to
func (r *Resolver) ResolveFolder(ctx context.Context, raw string) (*Folder, error) {
	ref, err := ParseReference(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnresolved, err)
	}
	if ref.Kind != KindFolder || ref.Pack != "" {
		return nil, fmt.Errorf("%w: %s is not a world folder", ErrUnresolved, raw)
	}
	folder, err := r.source.GetFolder(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnresolved, raw, err)
	}
	return folder, nil
}

// ResolveTable returns the roll table a reference points to
func (r *Resolver) ResolveTable(ctx context.Context, raw string) (*RollTable, error) {
	ref, err := ParseReference(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnresolved, err)
	}
	if ref.Kind != KindRollTable || ref.Pack != "" {
		return nil, fmt.Errorf("%w: %s is not a world roll table", ErrUnresolved, raw)
	}
	table, err := r.source.GetRollTable(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnresolved, raw, err)
	}
	return table, nil
}

// ResolvePack returns a compendium pack by ID
func (r *Resolver) ResolvePack(ctx context.Context, id string) (*Pack, error) {
	pack, err := r.source.GetPack(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: Compendium.%s: %w", ErrUnresolved, id, err)
	}
	return pack, nil
}
