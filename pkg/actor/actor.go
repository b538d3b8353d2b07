package actor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jwebster45206/loot-list/pkg/item"
)

// Actor record types
const (
	TypeCharacter = "character"
	TypeNPC       = "npc"
)

// Stats5e represents the six core D&D 5e ability scores
type Stats5e struct {
	Strength     int `json:"strength"`
	Dexterity    int `json:"dexterity"`
	Constitution int `json:"constitution"`
	Intelligence int `json:"intelligence"`
	Wisdom       int `json:"wisdom"`
	Charisma     int `json:"charisma"`
}

// ToAttributes converts Stats5e to a map for d20.Actor compatibility
func (s *Stats5e) ToAttributes() map[string]int {
	return map[string]int{
		"strength":     s.Strength,
		"dexterity":    s.Dexterity,
		"constitution": s.Constitution,
		"intelligence": s.Intelligence,
		"wisdom":       s.Wisdom,
		"charisma":     s.Charisma,
	}
}

// Record is the serializable actor document. NPC records own loot lists
// (stored in Flags); character records receive grants.
type Record struct {
	ID              string                                `json:"id"`
	Name            string                                `json:"name,omitempty"`
	Type            string                                `json:"type,omitempty"`
	Level           int                                   `json:"level,omitempty"`
	Stats           Stats5e                               `json:"stats,omitempty"`
	HP              int                                   `json:"hp,omitempty"`
	MaxHP           int                                   `json:"max_hp,omitempty"`
	AC              int                                   `json:"ac,omitempty"`
	CombatModifiers map[string]int                        `json:"combat_modifiers,omitempty"`
	Attributes      map[string]int                        `json:"attributes,omitempty"`
	Currency        map[string]int                        `json:"currency,omitempty"`
	Items           []item.Item                           `json:"items,omitempty"`
	Flags           map[string]map[string]json.RawMessage `json:"flags,omitempty"`
}

// LoadRecord loads a record from a JSON file.
// The filename (without .json extension) overrides any ID in the JSON
func LoadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read actor file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actor: %w", err)
	}
	rec.ID = strings.TrimSuffix(filepath.Base(path), ".json")

	return &rec, nil
}

// Clone returns a deep copy of the record, keeping its ID
func (r *Record) Clone() (*Record, error) {
	if r == nil {
		return nil, fmt.Errorf("cannot clone nil actor")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal actor %s: %w", r.ID, err)
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actor %s: %w", r.ID, err)
	}
	return &out, nil
}

// FindItem returns the embedded item with the given ID
func (r *Record) FindItem(id string) (*item.Item, bool) {
	for i := range r.Items {
		if r.Items[i].ID == id {
			return &r.Items[i], true
		}
	}
	return nil, false
}

// ItemsFromSource returns the embedded items whose provenance is source, in inventory order
func (r *Record) ItemsFromSource(source string) []*item.Item {
	var out []*item.Item
	for i := range r.Items {
		if r.Items[i].Source != "" && r.Items[i].Source == source {
			out = append(out, &r.Items[i])
		}
	}
	return out
}

// CurrencyAmount returns the held amount for a currency code (0 when absent)
func (r *Record) CurrencyAmount(code string) int {
	if r.Currency == nil {
		return 0
	}
	return r.Currency[code]
}

// GetFlag returns the raw value stored under namespace/key
func (r *Record) GetFlag(namespace, key string) (json.RawMessage, bool) {
	scope, ok := r.Flags[namespace]
	if !ok {
		return nil, false
	}
	raw, ok := scope[key]
	return raw, ok
}

// SetFlag stores value under namespace/key as JSON
func (r *Record) SetFlag(namespace, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal flag %s.%s: %w", namespace, key, err)
	}
	if r.Flags == nil {
		r.Flags = make(map[string]map[string]json.RawMessage)
	}
	if r.Flags[namespace] == nil {
		r.Flags[namespace] = make(map[string]json.RawMessage)
	}
	r.Flags[namespace][key] = data
	return nil
}

// UnsetFlag removes namespace/key; the namespace is dropped when it becomes empty
func (r *Record) UnsetFlag(namespace, key string) {
	scope, ok := r.Flags[namespace]
	if !ok {
		return
	}
	delete(scope, key)
	if len(scope) == 0 {
		delete(r.Flags, namespace)
	}
}
