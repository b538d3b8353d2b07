package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/jwebster45206/loot-list/pkg/actor"
	"github.com/jwebster45206/loot-list/pkg/document"
	"github.com/jwebster45206/loot-list/pkg/item"
)

// MockStorage is an in-memory implementation of Storage for testing.
// Records are cloned on the way in and out, so callers never share memory
// with the store.
type MockStorage struct {
	mu        sync.RWMutex
	actors    map[string]*actor.Record
	items     map[string]*item.Item
	folders   map[string]*document.Folder
	tables    map[string]*document.RollTable
	packs     map[string]*document.Pack
	pingError error

	currencyError    error
	updateItemsError error
	createItemsError error
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		actors:  make(map[string]*actor.Record),
		items:   make(map[string]*item.Item),
		folders: make(map[string]*document.Folder),
		tables:  make(map[string]*document.RollTable),
		packs:   make(map[string]*document.Pack),
	}
}

// SetPingSuccess configures the mock to succeed on ping
func (m *MockStorage) SetPingSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = nil
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetCurrencyError makes UpdateCurrency fail with err
func (m *MockStorage) SetCurrencyError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currencyError = err
}

// SetUpdateItemsError makes UpdateEmbeddedItems fail with err
func (m *MockStorage) SetUpdateItemsError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateItemsError = err
}

// SetCreateItemsError makes CreateEmbeddedItems fail with err
func (m *MockStorage) SetCreateItemsError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createItemsError = err
}

// Ping mocks storage ping
func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close mocks storage close
func (m *MockStorage) Close() error {
	return nil
}

// AddActor adds a record to the mock storage (for testing)
func (m *MockStorage) AddActor(rec *actor.Record) {
	clone, err := rec.Clone()
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actors[rec.ID] = clone
}

// GetActor returns a copy of the stored record
func (m *MockStorage) GetActor(ctx context.Context, id string) (*actor.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, exists := m.actors[id]
	if !exists {
		return nil, fmt.Errorf("actor %s: %w", id, ErrNotFound)
	}
	return rec.Clone()
}

// ListActors returns the stored record IDs in sorted order
func (m *MockStorage) ListActors(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]string, 0, len(m.actors))
	for id := range m.actors {
		result = append(result, id)
	}
	slices.Sort(result)
	return result, nil
}

// SaveActor stores a copy of rec
func (m *MockStorage) SaveActor(ctx context.Context, rec *actor.Record) error {
	if rec == nil {
		return errors.New("actor cannot be nil")
	}
	clone, err := rec.Clone()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actors[rec.ID] = clone
	return nil
}

func (m *MockStorage) mutate(id string, fn func(*actor.Record) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, exists := m.actors[id]
	if !exists {
		return fmt.Errorf("actor %s: %w", id, ErrNotFound)
	}
	work, err := rec.Clone()
	if err != nil {
		return err
	}
	if err := fn(work); err != nil {
		return err
	}
	m.actors[id] = work
	return nil
}

// UpdateCurrency sets currency totals on a record
func (m *MockStorage) UpdateCurrency(ctx context.Context, actorID string, totals map[string]int) error {
	m.mu.RLock()
	injected := m.currencyError
	m.mu.RUnlock()
	if injected != nil {
		return injected
	}
	return m.mutate(actorID, func(rec *actor.Record) error {
		ApplyCurrency(rec, totals)
		return nil
	})
}

// UpdateEmbeddedItems sets quantities of items owned by a record
func (m *MockStorage) UpdateEmbeddedItems(ctx context.Context, actorID string, patches []item.QuantityPatch) error {
	m.mu.RLock()
	injected := m.updateItemsError
	m.mu.RUnlock()
	if injected != nil {
		return injected
	}
	return m.mutate(actorID, func(rec *actor.Record) error {
		return ApplyQuantityPatches(rec, patches)
	})
}

// CreateEmbeddedItems adds items to a record and returns them with their new IDs
func (m *MockStorage) CreateEmbeddedItems(ctx context.Context, actorID string, items []item.Item) ([]item.Item, error) {
	m.mu.RLock()
	injected := m.createItemsError
	m.mu.RUnlock()
	if injected != nil {
		return nil, injected
	}
	var created []item.Item
	err := m.mutate(actorID, func(rec *actor.Record) error {
		var err error
		created, err = AppendItems(rec, items)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetFlag returns a flag value, or nil when the flag is unset
func (m *MockStorage) GetFlag(ctx context.Context, actorID, namespace, key string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, exists := m.actors[actorID]
	if !exists {
		return nil, fmt.Errorf("actor %s: %w", actorID, ErrNotFound)
	}
	raw, ok := rec.GetFlag(namespace, key)
	if !ok {
		return nil, nil
	}
	return slices.Clone(raw), nil
}

// SetFlag stores a flag value on a record
func (m *MockStorage) SetFlag(ctx context.Context, actorID, namespace, key string, value any) error {
	return m.mutate(actorID, func(rec *actor.Record) error {
		return rec.SetFlag(namespace, key, value)
	})
}

// UnsetFlag removes a flag from a record
func (m *MockStorage) UnsetFlag(ctx context.Context, actorID, namespace, key string) error {
	return m.mutate(actorID, func(rec *actor.Record) error {
		rec.UnsetFlag(namespace, key)
		return nil
	})
}

// AddItem adds a world item (for testing)
func (m *MockStorage) AddItem(it *item.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ID] = it
}

// RemoveItem deletes a world item (for testing)
func (m *MockStorage) RemoveItem(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
}

// GetItem returns a copy of a world item
func (m *MockStorage) GetItem(ctx context.Context, id string) (*item.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, exists := m.items[id]
	if !exists {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return it.Clone()
}

// AddFolder adds a world folder (for testing)
func (m *MockStorage) AddFolder(f *document.Folder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folders[f.ID] = f
}

// GetFolder returns a world folder
func (m *MockStorage) GetFolder(ctx context.Context, id string) (*document.Folder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, exists := m.folders[id]
	if !exists {
		return nil, fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	return f, nil
}

// AddRollTable adds a roll table (for testing)
func (m *MockStorage) AddRollTable(t *document.RollTable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[t.ID] = t
}

// GetRollTable returns a roll table
func (m *MockStorage) GetRollTable(ctx context.Context, id string) (*document.RollTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, exists := m.tables[id]
	if !exists {
		return nil, fmt.Errorf("roll table %s: %w", id, ErrNotFound)
	}
	return t, nil
}

// AddPack adds a compendium pack (for testing)
func (m *MockStorage) AddPack(p *document.Pack) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packs[p.ID] = p
}

// GetPack returns a compendium pack
func (m *MockStorage) GetPack(ctx context.Context, id string) (*document.Pack, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, exists := m.packs[id]
	if !exists {
		return nil, fmt.Errorf("pack %s: %w", id, ErrNotFound)
	}
	return p, nil
}
