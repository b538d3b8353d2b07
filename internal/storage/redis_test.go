package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jwebster45206/loot-list/pkg/actor"
	"github.com/jwebster45206/loot-list/pkg/document"
	"github.com/jwebster45206/loot-list/pkg/item"
	records "github.com/jwebster45206/loot-list/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) (*RedisStorage, *miniredis.Miniredis, string) {
	t.Helper()
	mr := miniredis.RunT(t)
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s := NewRedisStorage(mr.Addr(), dir, logger)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr, dir
}

func writeJSON(t *testing.T, dir, sub, name string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, sub), 0o755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, sub, name), data, 0o644))
}

func TestRedisStorage_Ping(t *testing.T) {
	s, mr, _ := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.WaitForConnection(ctx))

	mr.SetError("ERR server unavailable")
	assert.Error(t, s.Ping(ctx))
	mr.SetError("")
}

func TestRedisStorage_SaveGetList(t *testing.T) {
	s, _, _ := newTestStorage(t)
	ctx := context.Background()

	_, err := s.GetActor(ctx, "goblin")
	assert.ErrorIs(t, err, records.ErrNotFound)

	require.NoError(t, s.SaveActor(ctx, &actor.Record{ID: "orc", Name: "Orc", Type: actor.TypeNPC}))
	require.NoError(t, s.SaveActor(ctx, &actor.Record{ID: "goblin", Name: "Goblin", Type: actor.TypeNPC}))
	assert.Error(t, s.SaveActor(ctx, &actor.Record{}))

	rec, err := s.GetActor(ctx, "goblin")
	require.NoError(t, err)
	assert.Equal(t, "Goblin", rec.Name)

	ids, err := s.ListActors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"goblin", "orc"}, ids)
}

func TestRedisStorage_Mutations(t *testing.T) {
	s, _, _ := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.SaveActor(ctx, &actor.Record{
		ID:       "hero",
		Currency: map[string]int{"gp": 5, "sp": 2},
		Items:    []item.Item{{ID: "potion", Name: "Potion", Type: item.TypeConsumable, System: item.System{Quantity: 1}}},
	}))

	require.NoError(t, s.UpdateCurrency(ctx, "hero", map[string]int{"gp": 15}))
	require.NoError(t, s.UpdateEmbeddedItems(ctx, "hero", []item.QuantityPatch{{ID: "potion", Quantity: 4}}))
	created, err := s.CreateEmbeddedItems(ctx, "hero", []item.Item{{ID: "template", Name: "Rope", Type: item.TypeEquipment, Source: "Item.rope", System: item.System{Quantity: 1}}})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.NotEqual(t, "template", created[0].ID)

	rec, err := s.GetActor(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"gp": 15, "sp": 2}, rec.Currency)
	require.Len(t, rec.Items, 2)
	assert.Equal(t, 4, rec.Items[0].System.Quantity)
	assert.Equal(t, created[0].ID, rec.Items[1].ID)
	assert.Equal(t, "Item.rope", rec.Items[1].Source)
}

func TestRedisStorage_MutationErrors(t *testing.T) {
	s, _, _ := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.SaveActor(ctx, &actor.Record{ID: "hero", Currency: map[string]int{"gp": 5}}))

	err := s.UpdateEmbeddedItems(ctx, "hero", []item.QuantityPatch{{ID: "missing", Quantity: 2}})
	assert.ErrorIs(t, err, records.ErrNotFound)

	assert.ErrorIs(t, s.UpdateCurrency(ctx, "nobody", map[string]int{"gp": 1}), records.ErrNotFound)
	_, err = s.CreateEmbeddedItems(ctx, "nobody", []item.Item{{Name: "x"}})
	assert.ErrorIs(t, err, records.ErrNotFound)

	rec, err := s.GetActor(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Currency["gp"])
}

func TestRedisStorage_ConcurrentCreates(t *testing.T) {
	s, _, _ := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.SaveActor(ctx, &actor.Record{ID: "hero"}))

	const writers = 5
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateEmbeddedItems(ctx, "hero", []item.Item{{Name: "Coin Pouch", Type: item.TypeLoot}})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rec, err := s.GetActor(ctx, "hero")
	require.NoError(t, err)
	assert.Len(t, rec.Items, writers)
}

func TestRedisStorage_Flags(t *testing.T) {
	s, _, _ := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.SaveActor(ctx, &actor.Record{ID: "goblin"}))

	raw, err := s.GetFlag(ctx, "goblin", "simple-loot-list", "loot-list")
	require.NoError(t, err)
	assert.Nil(t, raw)

	require.NoError(t, s.SetFlag(ctx, "goblin", "simple-loot-list", "currencies", map[string]string{"gp": "2d6"}))
	raw, err = s.GetFlag(ctx, "goblin", "simple-loot-list", "currencies")
	require.NoError(t, err)
	assert.JSONEq(t, `{"gp":"2d6"}`, string(raw))

	require.NoError(t, s.UnsetFlag(ctx, "goblin", "simple-loot-list", "currencies"))
	raw, err = s.GetFlag(ctx, "goblin", "simple-loot-list", "currencies")
	require.NoError(t, err)
	assert.Nil(t, raw)

	_, err = s.GetFlag(ctx, "nobody", "simple-loot-list", "currencies")
	assert.ErrorIs(t, err, records.ErrNotFound)
}

func TestRedisStorage_Content(t *testing.T) {
	s, _, dir := newTestStorage(t)
	ctx := context.Background()

	writeJSON(t, dir, ItemsDir, "sword.json", item.Item{ID: "ignored", Name: "Longsword", Type: item.TypeWeapon})
	writeJSON(t, dir, FoldersDir, "treasure.json", document.Folder{Name: "Treasure", Type: document.KindItem, Contents: []string{"sword"}})
	writeJSON(t, dir, TablesDir, "hoard.json", document.RollTable{Name: "Hoard", Results: []document.TableResult{{Type: document.ResultDocument, DocumentCollection: "Item", DocumentID: "sword"}}})
	writeJSON(t, dir, PacksDir, "dnd5e.items.json", document.Pack{Label: "Items", Type: document.KindItem, Items: []item.Item{{ID: "rope", Name: "Rope", Type: item.TypeEquipment}}})

	it, err := s.GetItem(ctx, "sword")
	require.NoError(t, err)
	assert.Equal(t, "sword", it.ID)
	assert.Equal(t, "Longsword", it.Name)

	f, err := s.GetFolder(ctx, "treasure")
	require.NoError(t, err)
	assert.Equal(t, []string{"sword"}, f.Contents)

	tbl, err := s.GetRollTable(ctx, "hoard")
	require.NoError(t, err)
	assert.Len(t, tbl.Results, 1)

	p, err := s.GetPack(ctx, "dnd5e.items")
	require.NoError(t, err)
	assert.Equal(t, "dnd5e.items", p.ID)
	_, ok := p.Find("rope")
	assert.True(t, ok)

	for _, id := range []string{"", "missing", "../items/sword", "a/b"} {
		_, err := s.GetItem(ctx, id)
		assert.ErrorIs(t, err, records.ErrNotFound, "id %q", id)
	}
}

func TestRedisStorage_ContentParseError(t *testing.T) {
	s, _, dir := newTestStorage(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ItemsDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ItemsDir, "bad.json"), []byte("{"), 0o644))

	_, err := s.GetItem(context.Background(), "bad")
	require.Error(t, err)
	assert.False(t, errors.Is(err, records.ErrNotFound))
}

func TestRedisStorage_SeedActors(t *testing.T) {
	s, _, dir := newTestStorage(t)
	ctx := context.Background()

	writeJSON(t, dir, ActorsDir, "goblin.json", actor.Record{Name: "Goblin", Type: actor.TypeNPC})
	writeJSON(t, dir, ActorsDir, "hero.json", actor.Record{Name: "Hero", Type: actor.TypeCharacter})
	require.NoError(t, os.WriteFile(filepath.Join(dir, ActorsDir, "broken.json"), []byte("nope"), 0o644))

	n, err := s.SeedActors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.UpdateCurrency(ctx, "hero", map[string]int{"gp": 50}))

	n, err = s.SeedActors(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	rec, err := s.GetActor(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, 50, rec.Currency["gp"])

	ids, err := s.ListActors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"goblin", "hero"}, ids)
}
