package loot_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/jwebster45206/loot-list/pkg/actor"
	"github.com/jwebster45206/loot-list/pkg/dice"
	"github.com/jwebster45206/loot-list/pkg/loot"
	"github.com/jwebster45206/loot-list/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type testingT interface {
	require.TestingT
	Helper()
}

func newSource(t testingT) (*storage.MockStorage, loot.Config) {
	t.Helper()
	m := storage.NewMockStorage()
	m.AddActor(&actor.Record{ID: "goblin", Name: "Goblin", Type: actor.TypeNPC})
	return m, loot.DefaultConfig()
}

func openStore(t testingT) (*loot.Store, *storage.MockStorage, loot.Config) {
	t.Helper()
	m, cfg := newSource(t)
	s, err := loot.Load(context.Background(), m, cfg, "goblin")
	require.NoError(t, err)
	return s, m, cfg
}

func TestLoad_EmptyRecordGetsEmptyList(t *testing.T) {
	s, _, _ := openStore(t)

	list, err := s.Read()
	require.NoError(t, err)
	assert.Empty(t, list.Items)
	assert.Equal(t, loot.CurrencyMap{"cp": "0", "sp": "0", "ep": "0", "gp": "0", "pp": "0"}, list.Currencies)
}

func TestLoad_UnknownRecord(t *testing.T) {
	m, cfg := newSource(t)
	_, err := loot.Load(context.Background(), m, cfg, "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLoad_DropsForeignCurrencyCodes(t *testing.T) {
	m, cfg := newSource(t)
	ctx := context.Background()
	require.NoError(t, m.SetFlag(ctx, "goblin", cfg.Namespace, cfg.CurrenciesKey, map[string]string{
		"gp":  "2d6",
		"xyz": "100",
	}))

	list, err := loot.ReadList(ctx, m, cfg, "goblin")
	require.NoError(t, err)
	assert.Equal(t, "2d6", list.Currencies["gp"])
	assert.NotContains(t, list.Currencies, "xyz")
	assert.Equal(t, "0", list.Currencies["pp"])
}

func TestLoad_NormalizesStoredEntries(t *testing.T) {
	m, cfg := newSource(t)
	ctx := context.Background()
	require.NoError(t, m.SetFlag(ctx, "goblin", cfg.Namespace, cfg.ListKey, []loot.Entry{
		{Reference: "Item.a", Quantity: "2"},
		{Reference: "", Quantity: "3"},
		{Reference: "Item.a", Quantity: "9"},
		{Reference: "Item.b", Quantity: "  "},
	}))

	list, err := loot.ReadList(ctx, m, cfg, "goblin")
	require.NoError(t, err)
	assert.Equal(t, []loot.Entry{
		{Reference: "Item.a", Quantity: "2"},
		{Reference: "Item.b", Quantity: "1"},
	}, list.Items)
}

func TestLoad_CorruptFlag(t *testing.T) {
	m, cfg := newSource(t)
	ctx := context.Background()
	require.NoError(t, m.SetFlag(ctx, "goblin", cfg.Namespace, cfg.ListKey, "not a list"))

	_, err := loot.Load(ctx, m, cfg, "goblin")
	var typeErr *json.UnmarshalTypeError
	assert.ErrorAs(t, err, &typeErr)
}

func TestUpsertItem(t *testing.T) {
	tests := []struct {
		name     string
		calls    [][2]string
		expected []loot.Entry
	}{
		{
			name:     "new entry defaults to one",
			calls:    [][2]string{{"Item.a", ""}},
			expected: []loot.Entry{{Reference: "Item.a", Quantity: "1"}},
		},
		{
			name:     "new entry with explicit quantity",
			calls:    [][2]string{{"Item.a", "2d4"}},
			expected: []loot.Entry{{Reference: "Item.a", Quantity: "2d4"}},
		},
		{
			name:     "duplicate add increments",
			calls:    [][2]string{{"Item.a", ""}, {"Item.a", ""}},
			expected: []loot.Entry{{Reference: "Item.a", Quantity: "2"}},
		},
		{
			name:     "increment keeps dice",
			calls:    [][2]string{{"Item.a", "2d4"}, {"Item.a", ""}, {"Item.a", ""}},
			expected: []loot.Entry{{Reference: "Item.a", Quantity: "2d4 + 2"}},
		},
		{
			name:     "explicit quantity replaces",
			calls:    [][2]string{{"Item.a", "2d4"}, {"Item.a", "5"}},
			expected: []loot.Entry{{Reference: "Item.a", Quantity: "5"}},
		},
		{
			name:     "whitespace quantity treated as absent",
			calls:    [][2]string{{"Item.a", "   "}, {"Item.a", "\t"}},
			expected: []loot.Entry{{Reference: "Item.a", Quantity: "2"}},
		},
		{
			name:     "unparseable formula keeps composed text",
			calls:    [][2]string{{"Item.a", "lots"}, {"Item.a", ""}},
			expected: []loot.Entry{{Reference: "Item.a", Quantity: "lots + 1"}},
		},
		{
			name:     "insertion order kept",
			calls:    [][2]string{{"Item.b", ""}, {"Item.a", ""}, {"Item.b", ""}},
			expected: []loot.Entry{{Reference: "Item.b", Quantity: "2"}, {Reference: "Item.a", Quantity: "1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := openStore(t)
			for _, c := range tt.calls {
				require.NoError(t, s.UpsertItem(c[0], c[1]))
			}
			list, err := s.Read()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, list.Items)
		})
	}
}

func TestUpsertItem_EmptyReference(t *testing.T) {
	s, _, _ := openStore(t)
	assert.ErrorIs(t, s.UpsertItem("  ", "1"), loot.ErrEmptyReference)
}

func TestUpsertItem_UnresolvableReferenceIsKept(t *testing.T) {
	s, _, _ := openStore(t)
	require.NoError(t, s.UpsertItem("Item.deleted-long-ago", ""))

	list, err := s.Read()
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Item.deleted-long-ago", list.Items[0].Reference)
}

func TestRemoveItem(t *testing.T) {
	s, _, _ := openStore(t)
	require.NoError(t, s.UpsertItem("Item.a", ""))
	require.NoError(t, s.UpsertItem("Item.b", ""))

	require.NoError(t, s.RemoveItem("Item.a"))
	require.NoError(t, s.RemoveItem("Item.missing"))

	list, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, []loot.Entry{{Reference: "Item.b", Quantity: "1"}}, list.Items)
}

func TestClear_ResetsCurrenciesToZero(t *testing.T) {
	s, _, _ := openStore(t)
	require.NoError(t, s.UpsertItem("Item.a", "3"))
	require.NoError(t, s.SetCurrency("gp", "2d6 * 10"))
	require.NoError(t, s.SetCurrency("sp", "5"))

	require.NoError(t, s.Clear())

	list, err := s.Read()
	require.NoError(t, err)
	assert.Empty(t, list.Items)
	for _, code := range loot.CurrencyCodes() {
		assert.Equal(t, "0", list.Currencies[code], code)
	}
	assert.Len(t, list.Currencies, len(loot.Currencies))
}

func TestSetCurrency(t *testing.T) {
	s, _, _ := openStore(t)

	require.NoError(t, s.SetCurrency("gp", "1d6"))
	require.NoError(t, s.SetCurrency("sp", " "))
	require.NoError(t, s.SetCurrency("doubloons", "100"))

	list, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, "1d6", list.Currencies["gp"])
	assert.Equal(t, "0", list.Currencies["sp"])
	assert.NotContains(t, list.Currencies, "doubloons")
}

func TestRead_ReturnsDetachedCopy(t *testing.T) {
	s, _, _ := openStore(t)
	require.NoError(t, s.UpsertItem("Item.a", ""))

	list, err := s.Read()
	require.NoError(t, err)
	list.Items[0].Quantity = "99"
	list.Currencies["gp"] = "99"

	again, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, "1", again.Items[0].Quantity)
	assert.Equal(t, "0", again.Currencies["gp"])
}

func TestCommit_PersistsWholesale(t *testing.T) {
	s, m, cfg := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertItem("Item.a", "2"))
	require.NoError(t, s.SetCurrency("gp", "10"))

	require.NoError(t, s.Commit(ctx))

	list, err := loot.ReadList(ctx, m, cfg, "goblin")
	require.NoError(t, err)
	assert.Equal(t, []loot.Entry{{Reference: "Item.a", Quantity: "2"}}, list.Items)
	assert.Equal(t, "10", list.Currencies["gp"])

	raw, err := m.GetFlag(ctx, "goblin", cfg.Namespace, cfg.ListKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"uuid":"Item.a","quantity":"2"}]`, string(raw))

	assert.True(t, s.Closed())
	assert.ErrorIs(t, s.UpsertItem("Item.b", ""), loot.ErrSessionClosed)
	assert.ErrorIs(t, s.Commit(ctx), loot.ErrSessionClosed)
}

func TestDiscard_LeavesSourceUntouched(t *testing.T) {
	s, m, cfg := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertItem("Item.a", "2"))
	require.NoError(t, s.SetCurrency("gp", "10"))

	s.Discard()

	raw, err := m.GetFlag(ctx, "goblin", cfg.Namespace, cfg.ListKey)
	require.NoError(t, err)
	assert.Nil(t, raw)
	_, err = s.Read()
	assert.ErrorIs(t, err, loot.ErrSessionClosed)
}

type failingFlags struct {
	err error
}

func (f failingFlags) GetFlag(ctx context.Context, actorID, namespace, key string) (json.RawMessage, error) {
	return nil, nil
}

func (f failingFlags) SetFlag(ctx context.Context, actorID, namespace, key string, value any) error {
	return f.err
}

func TestCommit_WriteError(t *testing.T) {
	boom := errors.New("boom")
	s, err := loot.Load(context.Background(), failingFlags{err: boom}, loot.DefaultConfig(), "goblin")
	require.NoError(t, err)
	require.NoError(t, s.UpsertItem("Item.a", ""))

	err = s.Commit(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, s.Closed())

	list, err := s.Read()
	require.NoError(t, err)
	assert.Len(t, list.Items, 1)
}

func TestReplace(t *testing.T) {
	s, _, _ := openStore(t)
	require.NoError(t, s.Replace(&loot.List{
		Items:      []loot.Entry{{Reference: "Item.x", Quantity: "1d4"}, {Reference: "Item.x", Quantity: "2"}},
		Currencies: loot.CurrencyMap{"gp": "3", "zz": "1"},
	}))

	list, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, []loot.Entry{{Reference: "Item.x", Quantity: "1d4"}}, list.Items)
	assert.Equal(t, "3", list.Currencies["gp"])
	assert.NotContains(t, list.Currencies, "zz")
}

func TestConfig(t *testing.T) {
	cfg := loot.DefaultConfig()
	assert.Equal(t, "simple-loot-list", cfg.Namespace)
	assert.Equal(t, "loot-list", cfg.ListKey)
	assert.Equal(t, "currencies", cfg.CurrenciesKey)
	assert.True(t, cfg.IsValidType("weapon"))
	assert.False(t, cfg.IsValidType("spell"))
	assert.True(t, cfg.IsStackable("consumable"))
	assert.True(t, cfg.IsStackable("loot"))
	assert.False(t, cfg.IsStackable("weapon"))
}

func TestUpsertItem_RepeatedAddsCollapseProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s, _, _ := openStore(t)
		n := rapid.IntRange(1, 30).Draw(t, "n")
		for i := 0; i < n; i++ {
			if err := s.UpsertItem("Item.a", ""); err != nil {
				t.Fatalf("UpsertItem error = %v", err)
			}
		}
		list, err := s.Read()
		if err != nil {
			t.Fatalf("Read error = %v", err)
		}
		if len(list.Items) != 1 {
			t.Fatalf("got %d entries, want 1", len(list.Items))
		}
		if list.Items[0].Quantity != strconv.Itoa(n) {
			t.Fatalf("quantity = %q, want %d", list.Items[0].Quantity, n)
		}
	})
}

func TestUpsertItem_UniqueReferencesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s, _, _ := openStore(t)
		refs := rapid.SliceOfN(rapid.SampledFrom([]string{"Item.a", "Item.b", "Item.c", "Item.d"}), 1, 40).Draw(t, "refs")
		counts := map[string]int{}
		for _, ref := range refs {
			if err := s.UpsertItem(ref, ""); err != nil {
				t.Fatalf("UpsertItem error = %v", err)
			}
			counts[ref]++
		}
		list, err := s.Read()
		if err != nil {
			t.Fatalf("Read error = %v", err)
		}
		if len(list.Items) != len(counts) {
			t.Fatalf("got %d entries, want %d", len(list.Items), len(counts))
		}
		ev := dice.NewEvaluator(1)
		for _, e := range list.Items {
			res, err := ev.Evaluate(e.Quantity, nil)
			if err != nil {
				t.Fatalf("Evaluate(%q) error = %v", e.Quantity, err)
			}
			if int(res.Total) != counts[e.Reference] {
				t.Fatalf("%s quantity = %v, want %d", e.Reference, res.Total, counts[e.Reference])
			}
		}
	})
}

func TestSetCurrency_UnknownCodeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s, _, _ := openStore(t)
		code := rapid.StringMatching(`[a-z]{1,6}`).Draw(t, "code")
		before, _ := s.Read()
		if err := s.SetCurrency(code, "42"); err != nil {
			t.Fatalf("SetCurrency error = %v", err)
		}
		after, _ := s.Read()
		if loot.IsCurrency(code) {
			if after.Currencies[code] != "42" {
				t.Fatalf("currency %s = %q, want 42", code, after.Currencies[code])
			}
			return
		}
		if fmt.Sprint(before.Currencies) != fmt.Sprint(after.Currencies) {
			t.Fatalf("unknown code %q changed currencies: %v -> %v", code, before.Currencies, after.Currencies)
		}
	})
}
