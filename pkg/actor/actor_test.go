package actor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/jwebster45206/loot-list/pkg/item"
)

func TestStats5e_ToAttributes(t *testing.T) {
	stats := Stats5e{
		Strength:     16,
		Dexterity:    14,
		Constitution: 15,
		Intelligence: 10,
		Wisdom:       12,
		Charisma:     8,
	}

	attrs := stats.ToAttributes()

	tests := []struct {
		key      string
		expected int
	}{
		{"strength", 16},
		{"dexterity", 14},
		{"constitution", 15},
		{"intelligence", 10},
		{"wisdom", 12},
		{"charisma", 8},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := attrs[tt.key]; got != tt.expected {
				t.Errorf("ToAttributes()[%q] = %d, want %d", tt.key, got, tt.expected)
			}
		})
	}
}

func TestLoadRecord(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "goblin_boss.json")

	rec := Record{
		ID:       "should_be_overridden",
		Name:     "Goblin Boss",
		Type:     TypeNPC,
		Level:    3,
		MaxHP:    21,
		AC:       17,
		Currency: map[string]int{"gp": 4},
	}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Failed to marshal test record: %v", err)
	}
	if err := os.WriteFile(testFile, data, 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	loaded, err := LoadRecord(testFile)
	if err != nil {
		t.Fatalf("LoadRecord() error = %v", err)
	}
	if loaded.ID != "goblin_boss" {
		t.Errorf("LoadRecord() ID = %q, want %q", loaded.ID, "goblin_boss")
	}
	if loaded.Name != "Goblin Boss" {
		t.Errorf("LoadRecord() Name = %q, want %q", loaded.Name, "Goblin Boss")
	}
	if loaded.CurrencyAmount("gp") != 4 {
		t.Errorf("LoadRecord() gp = %d, want 4", loaded.CurrencyAmount("gp"))
	}
}

func TestLoadRecord_MissingFile(t *testing.T) {
	if _, err := LoadRecord(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("LoadRecord() expected error for missing file")
	}
}

func TestRecord_Flags(t *testing.T) {
	rec := &Record{ID: "npc"}

	if _, ok := rec.GetFlag("simple-loot-list", "loot-list"); ok {
		t.Fatal("GetFlag() found a flag on an empty record")
	}

	if err := rec.SetFlag("simple-loot-list", "loot-list", []string{"a", "b"}); err != nil {
		t.Fatalf("SetFlag() error = %v", err)
	}

	raw, ok := rec.GetFlag("simple-loot-list", "loot-list")
	if !ok {
		t.Fatal("GetFlag() did not find the stored flag")
	}
	if string(raw) != `["a","b"]` {
		t.Errorf("GetFlag() = %s, want %s", raw, `["a","b"]`)
	}

	rec.UnsetFlag("simple-loot-list", "loot-list")
	if _, ok := rec.GetFlag("simple-loot-list", "loot-list"); ok {
		t.Error("UnsetFlag() left the flag in place")
	}
	if _, ok := rec.Flags["simple-loot-list"]; ok {
		t.Error("UnsetFlag() left an empty namespace behind")
	}

	// unsetting a missing key is a no-op
	rec.UnsetFlag("other", "key")
}

func TestRecord_CloneIsDetached(t *testing.T) {
	rec := &Record{
		ID:       "npc",
		Currency: map[string]int{"gp": 5},
		Items:    []item.Item{{ID: "i1", Name: "Dagger", Type: item.TypeWeapon}},
	}
	if err := rec.SetFlag("ns", "k", "v"); err != nil {
		t.Fatalf("SetFlag() error = %v", err)
	}

	clone, err := rec.Clone()
	if err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	clone.Currency["gp"] = 99
	clone.Items[0].Name = "Changed"
	if err := clone.SetFlag("ns", "k", "changed"); err != nil {
		t.Fatalf("SetFlag() error = %v", err)
	}

	if rec.Currency["gp"] != 5 {
		t.Errorf("original currency changed to %d", rec.Currency["gp"])
	}
	if rec.Items[0].Name != "Dagger" {
		t.Errorf("original item renamed to %q", rec.Items[0].Name)
	}
	raw, _ := rec.GetFlag("ns", "k")
	if string(raw) != `"v"` {
		t.Errorf("original flag changed to %s", raw)
	}
}

func TestRecord_ItemsFromSource(t *testing.T) {
	rec := &Record{
		Items: []item.Item{
			{ID: "1", Source: "Item.potion"},
			{ID: "2", Source: "Item.sword"},
			{ID: "3", Source: "Item.potion"},
			{ID: "4"},
		},
	}

	got := rec.ItemsFromSource("Item.potion")
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Errorf("ItemsFromSource() = %+v, want items 1 and 3", got)
	}
	if len(rec.ItemsFromSource("")) != 0 {
		t.Error("ItemsFromSource(\"\") should never match items without provenance")
	}
}
