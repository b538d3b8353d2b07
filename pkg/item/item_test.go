package item

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidType(t *testing.T) {
	tests := []struct {
		typ  string
		want bool
	}{
		{TypeWeapon, true},
		{TypeEquipment, true},
		{TypeConsumable, true},
		{TypeTool, true},
		{TypeLoot, true},
		{TypeBackpack, true},
		{"spell", false},
		{"feat", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidType(tt.typ))
		})
	}
}

func TestIsStackable(t *testing.T) {
	assert.True(t, IsStackable(TypeConsumable))
	assert.True(t, IsStackable(TypeLoot))
	assert.False(t, IsStackable(TypeWeapon))
	assert.False(t, IsStackable(TypeBackpack))
}

func TestClone_IsDeep(t *testing.T) {
	equipped := true
	orig := &Item{
		ID:     "abc",
		Name:   "Potion of Healing",
		Type:   TypeConsumable,
		System: System{Quantity: 1, Equipped: &equipped, Uses: map[string]any{"max": float64(1)}},
		Flags:  map[string]any{"core": map[string]any{"note": "x"}},
	}

	clone, err := orig.Clone()
	require.NoError(t, err)

	*clone.System.Equipped = false
	clone.System.Uses["max"] = float64(3)
	clone.Name = "Changed"

	assert.True(t, *orig.System.Equipped)
	assert.Equal(t, float64(1), orig.System.Uses["max"])
	assert.Equal(t, "Potion of Healing", orig.Name)
}

func TestForGrant(t *testing.T) {
	equipped := true
	attuned := true
	prof := 1
	template := &Item{
		ID:   "longsword",
		Name: "Flame Tongue",
		Type: TypeWeapon,
		System: System{
			Quantity:   1,
			Equipped:   &equipped,
			Attunement: AttunementRequired,
			Attuned:    &attuned,
			Proficient: &prof,
		},
	}

	snap, err := template.ForGrant("Item.longsword", 3)
	require.NoError(t, err)

	assert.Empty(t, snap.ID)
	assert.Equal(t, "Item.longsword", snap.Source)
	assert.Equal(t, 3, snap.System.Quantity)
	assert.Nil(t, snap.System.Equipped)
	assert.Nil(t, snap.System.Attuned)
	assert.Nil(t, snap.System.Proficient)
	assert.Equal(t, AttunementOptional, snap.System.Attunement)

	// template is untouched
	assert.Equal(t, "longsword", template.ID)
	assert.Equal(t, AttunementRequired, template.System.Attunement)
	assert.NotNil(t, template.System.Equipped)
}

func TestForGrant_KeepsLowAttunement(t *testing.T) {
	template := &Item{ID: "ring", Type: TypeEquipment, System: System{Attunement: AttunementOptional}}
	snap, err := template.ForGrant("Item.ring", 1)
	require.NoError(t, err)
	assert.Equal(t, AttunementOptional, snap.System.Attunement)
}
