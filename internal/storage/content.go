package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jwebster45206/loot-list/pkg/actor"
	"github.com/jwebster45206/loot-list/pkg/document"
	"github.com/jwebster45206/loot-list/pkg/item"
	records "github.com/jwebster45206/loot-list/pkg/storage"
)

// Content directories under the data dir
const (
	ItemsDir   = "items"
	FoldersDir = "folders"
	TablesDir  = "tables"
	PacksDir   = "packs"
	ActorsDir  = "actors"
)

// readDocument decodes <dataDir>/<dir>/<id>.json into v
func (r *RedisStorage) readDocument(dir, id string, v any) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("%s %q: %w", dir, id, records.ErrNotFound)
	}
	path := filepath.Join(r.dataDir, dir, id+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s %s: %w", dir, id, records.ErrNotFound)
		}
		return fmt.Errorf("failed to read %s file %s: %w", dir, path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s JSON from %s: %w", dir, path, err)
	}
	return nil
}

// World content operations (filesystem-backed). The filename always wins
// over any ID in the JSON.

func (r *RedisStorage) GetItem(ctx context.Context, id string) (*item.Item, error) {
	var it item.Item
	if err := r.readDocument(ItemsDir, id, &it); err != nil {
		return nil, err
	}
	it.ID = id
	return &it, nil
}

func (r *RedisStorage) GetFolder(ctx context.Context, id string) (*document.Folder, error) {
	var f document.Folder
	if err := r.readDocument(FoldersDir, id, &f); err != nil {
		return nil, err
	}
	f.ID = id
	return &f, nil
}

func (r *RedisStorage) GetRollTable(ctx context.Context, id string) (*document.RollTable, error) {
	var t document.RollTable
	if err := r.readDocument(TablesDir, id, &t); err != nil {
		return nil, err
	}
	t.ID = id
	return &t, nil
}

func (r *RedisStorage) GetPack(ctx context.Context, id string) (*document.Pack, error) {
	var p document.Pack
	if err := r.readDocument(PacksDir, id, &p); err != nil {
		return nil, err
	}
	p.ID = id
	return &p, nil
}

// SeedActors stores every <dataDir>/actors/*.json record that is not in
// Redis yet and returns how many were added. Existing records are never
// overwritten.
func (r *RedisStorage) SeedActors(ctx context.Context) (int, error) {
	paths, err := filepath.Glob(filepath.Join(r.dataDir, ActorsDir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("failed to list actor files: %w", err)
	}

	seeded := 0
	for _, path := range paths {
		rec, err := actor.LoadRecord(path)
		if err != nil {
			r.logger.Warn("Skipping actor file", "path", path, "error", err)
			continue
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return seeded, fmt.Errorf("failed to marshal actor %s: %w", rec.ID, err)
		}
		added, err := r.client.SetNX(ctx, actorKey(rec.ID), data, 0).Result()
		if err != nil {
			return seeded, fmt.Errorf("failed to seed actor %s: %w", rec.ID, err)
		}
		if !added {
			continue
		}
		if err := r.client.SAdd(ctx, actorSetKey, rec.ID).Err(); err != nil {
			return seeded, fmt.Errorf("failed to index actor %s: %w", rec.ID, err)
		}
		seeded++
	}

	r.logger.Info("Seeded actors", "count", seeded, "files", len(paths))
	return seeded, nil
}
