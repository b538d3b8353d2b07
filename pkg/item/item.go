package item

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Item categories known to the loot list
const (
	TypeWeapon     = "weapon"
	TypeEquipment  = "equipment"
	TypeConsumable = "consumable"
	TypeTool       = "tool"
	TypeLoot       = "loot"
	TypeBackpack   = "backpack"
)

// Attunement levels. Anything above AttunementOptional means the item demands attunement.
const (
	AttunementNone     = 0
	AttunementOptional = 1
	AttunementRequired = 2
)

// ValidTypes are the item categories that carry a quantity and may be put on a loot list
var ValidTypes = []string{TypeWeapon, TypeEquipment, TypeConsumable, TypeTool, TypeLoot, TypeBackpack}

// StackableTypes are merged into an existing stack on grant instead of duplicated
var StackableTypes = []string{TypeConsumable, TypeLoot}

// System holds the game-system fields of an item
type System struct {
	Quantity    int             `json:"quantity"`
	Weight      float64         `json:"weight,omitempty"`
	Price       json.RawMessage `json:"price,omitempty"`
	Description string          `json:"description,omitempty"`
	Rarity      string          `json:"rarity,omitempty"`
	Equipped    *bool           `json:"equipped,omitempty"`
	Attunement  int             `json:"attunement,omitempty"`
	Attuned     *bool           `json:"attuned,omitempty"`
	Proficient  *int            `json:"proficient,omitempty"`
	Uses        map[string]any  `json:"uses,omitempty"`
}

// Item is an item document, either a world/compendium template or a copy
// embedded in an actor's inventory.
type Item struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Img    string         `json:"img,omitempty"`
	System System         `json:"system"`
	Source string         `json:"source,omitempty"` // reference of the document this was instantiated from
	Flags  map[string]any `json:"flags,omitempty"`
}

// IsValidType reports whether t may appear on a loot list
func IsValidType(t string) bool {
	return slices.Contains(ValidTypes, t)
}

// IsStackable reports whether items of category t merge into existing stacks
func IsStackable(t string) bool {
	return slices.Contains(StackableTypes, t)
}

// Clone returns a deep copy of the item.
func (i *Item) Clone() (*Item, error) {
	if i == nil {
		return nil, fmt.Errorf("cannot clone nil item")
	}
	data, err := json.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item %s: %w", i.ID, err)
	}
	var out Item
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item %s: %w", i.ID, err)
	}
	return &out, nil
}

// ForGrant builds the snapshot created on a recipient from a template item.
// The copy keeps the template's data, takes the given quantity and provenance,
// and drops the state that belongs to whoever held the template.
func (i *Item) ForGrant(source string, quantity int) (*Item, error) {
	out, err := i.Clone()
	if err != nil {
		return nil, err
	}
	out.ID = ""
	out.Source = source
	out.System.Quantity = quantity
	out.System.Equipped = nil
	out.System.Attuned = nil
	out.System.Proficient = nil
	if out.System.Attunement > AttunementOptional {
		out.System.Attunement = AttunementOptional
	}
	return out, nil
}

// QuantityPatch sets the quantity of an embedded item
type QuantityPatch struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}
