package storage

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jwebster45206/loot-list/pkg/actor"
	"github.com/jwebster45206/loot-list/pkg/item"
)

// ApplyCurrency overwrites the listed currency totals on rec
func ApplyCurrency(rec *actor.Record, totals map[string]int) {
	if len(totals) == 0 {
		return
	}
	if rec.Currency == nil {
		rec.Currency = make(map[string]int, len(totals))
	}
	for code, total := range totals {
		rec.Currency[code] = total
	}
}

// ApplyQuantityPatches sets the quantities of embedded items. Every patched
// item must exist; on error rec is left unchanged.
func ApplyQuantityPatches(rec *actor.Record, patches []item.QuantityPatch) error {
	for _, p := range patches {
		if _, ok := rec.FindItem(p.ID); !ok {
			return fmt.Errorf("item %s on actor %s: %w", p.ID, rec.ID, ErrNotFound)
		}
	}
	for _, p := range patches {
		owned, _ := rec.FindItem(p.ID)
		owned.System.Quantity = p.Quantity
	}
	return nil
}

// AppendItems embeds copies of items in rec with fresh IDs and returns the created copies
func AppendItems(rec *actor.Record, items []item.Item) ([]item.Item, error) {
	created := make([]item.Item, 0, len(items))
	for i := range items {
		c, err := items[i].Clone()
		if err != nil {
			return nil, err
		}
		c.ID = uuid.NewString()
		created = append(created, *c)
	}
	rec.Items = append(rec.Items, created...)
	return created, nil
}
