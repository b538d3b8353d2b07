// Package grant materializes a loot list onto a target record: it resolves
// every item reference, rolls quantities and currency amounts against the
// target, merges stackable items into existing stacks and applies the
// resulting batch through the record mutation API.
package grant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jwebster45206/loot-list/pkg/actor"
	"github.com/jwebster45206/loot-list/pkg/dice"
	"github.com/jwebster45206/loot-list/pkg/item"
	"github.com/jwebster45206/loot-list/pkg/loot"
)

// ErrNoTarget is returned when a grant has no target record
var ErrNoTarget = errors.New("no grant target")

// Skip reasons
const (
	ReasonUnresolved  = "unresolved"
	ReasonBadFormula  = "bad_formula"
	ReasonNonPositive = "non_positive"
)

// Resolver turns an item reference into a copy of the item it points to
type Resolver interface {
	Resolve(ctx context.Context, reference string) (*item.Item, error)
}

// Roller evaluates formulas against a numeric context
type Roller interface {
	Evaluate(formula string, vars map[string]float64) (dice.Result, error)
}

// Mutator is the record mutation API a grant applies its batch through
type Mutator interface {
	UpdateCurrency(ctx context.Context, actorID string, totals map[string]int) error
	UpdateEmbeddedItems(ctx context.Context, actorID string, patches []item.QuantityPatch) error
	CreateEmbeddedItems(ctx context.Context, actorID string, items []item.Item) ([]item.Item, error)
}

// Batch is the pending mutation of one grant. Pre-grant observers may edit
// it in place; post-grant observers see what was applied.
type Batch struct {
	GrantID        string
	Target         *actor.Record
	CurrencyUpdate map[string]int // new totals by currency code
	ItemUpdates    []item.QuantityPatch
	ItemCreates    []item.Item
}

// Observer is called before or after a grant is applied
type Observer func(ctx context.Context, b *Batch) error

// Skip records a list entry or currency that granted nothing
type Skip struct {
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
	Detail    string `json:"detail,omitempty"`
}

// CurrencyDelta reports a currency holding changed by a grant
type CurrencyDelta struct {
	Code     string `json:"code"`
	Added    int    `json:"added"`
	NewTotal int    `json:"new_total"`
}

// Result summarizes what a grant did
type Result struct {
	GrantID           string               `json:"grant_id"`
	TargetID          string               `json:"target_id"`
	CreatedItems      []item.Item          `json:"created_items"`
	UpdatedItemDeltas []item.QuantityPatch `json:"updated_item_deltas"`
	CurrencyDeltas    []CurrencyDelta      `json:"currency_deltas"`
	Skipped           []Skip               `json:"skipped"`
	SkippedCurrencies []Skip               `json:"skipped_currencies"` // Reference holds the currency code
}

// Engine grants loot lists to records
type Engine struct {
	cfg      loot.Config
	resolver Resolver
	roller   Roller
	mutator  Mutator
	logger   *slog.Logger

	observerMu sync.RWMutex
	pre        []Observer
	post       []Observer
}

// NewEngine creates a grant engine
func NewEngine(
	cfg loot.Config,
	resolver Resolver,
	roller Roller,
	mutator Mutator,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		resolver: resolver,
		roller:   roller,
		mutator:  mutator,
		logger:   logger,
	}
}

// OnPreGrant registers an observer run before the batch is applied.
// An observer error aborts the grant with nothing mutated.
func (e *Engine) OnPreGrant(o Observer) {
	e.observerMu.Lock()
	defer e.observerMu.Unlock()
	e.pre = append(e.pre, o)
}

// OnPostGrant registers an observer run after the batch is applied
func (e *Engine) OnPostGrant(o Observer) {
	e.observerMu.Lock()
	defer e.observerMu.Unlock()
	e.post = append(e.post, o)
}

// Grant rolls items and currencies against target and applies the result.
//
// Entries that fail to resolve, whose formula does not evaluate, or whose
// quantity is not positive are skipped and reported in Result.Skipped.
// Currency, stack updates and creates are applied in that order as separate
// mutations; a failed mutation does not undo the others. When any mutation
// fails the returned error joins the failures and the Result still reports
// what was applied.
func (e *Engine) Grant(ctx context.Context, items []loot.Entry, currencies loot.CurrencyMap, target *actor.Record) (*Result, error) {
	if target == nil || target.ID == "" {
		return nil, ErrNoTarget
	}

	vars, err := actor.RollData(target)
	if err != nil {
		return nil, fmt.Errorf("failed to build roll data for %s: %w", target.ID, err)
	}

	batch := &Batch{
		GrantID:        uuid.NewString(),
		Target:         target,
		CurrencyUpdate: make(map[string]int),
	}
	result := &Result{
		GrantID:           batch.GrantID,
		TargetID:          target.ID,
		CreatedItems:      []item.Item{},
		UpdatedItemDeltas: []item.QuantityPatch{},
		CurrencyDeltas:    []CurrencyDelta{},
		Skipped:           []Skip{},
		SkippedCurrencies: []Skip{},
	}

	for _, entry := range items {
		if skip := e.planItem(ctx, entry, vars, batch); skip != nil {
			e.logger.Warn("Skipping loot entry",
				"grant_id", batch.GrantID,
				"target_id", target.ID,
				"reference", skip.Reference,
				"reason", skip.Reason,
				"detail", skip.Detail)
			result.Skipped = append(result.Skipped, *skip)
		}
	}
	result.SkippedCurrencies = append(result.SkippedCurrencies, e.planCurrencies(currencies, vars, batch)...)

	e.observerMu.RLock()
	pre := append([]Observer(nil), e.pre...)
	post := append([]Observer(nil), e.post...)
	e.observerMu.RUnlock()

	for _, o := range pre {
		if err := o(ctx, batch); err != nil {
			return nil, fmt.Errorf("pre-grant observer rejected grant %s: %w", batch.GrantID, err)
		}
	}

	var errs []error
	if len(batch.CurrencyUpdate) > 0 {
		if err := e.mutator.UpdateCurrency(ctx, target.ID, batch.CurrencyUpdate); err != nil {
			e.logger.Warn("Failed to update currency", "grant_id", batch.GrantID, "target_id", target.ID, "error", err)
			errs = append(errs, fmt.Errorf("failed to update currency: %w", err))
		} else {
			result.CurrencyDeltas = currencyDeltas(target, batch.CurrencyUpdate)
		}
	}
	if len(batch.ItemUpdates) > 0 {
		if err := e.mutator.UpdateEmbeddedItems(ctx, target.ID, batch.ItemUpdates); err != nil {
			e.logger.Warn("Failed to update item stacks", "grant_id", batch.GrantID, "target_id", target.ID, "error", err)
			errs = append(errs, fmt.Errorf("failed to update items: %w", err))
		} else {
			result.UpdatedItemDeltas = append(result.UpdatedItemDeltas, batch.ItemUpdates...)
		}
	}
	if len(batch.ItemCreates) > 0 {
		created, err := e.mutator.CreateEmbeddedItems(ctx, target.ID, batch.ItemCreates)
		if err != nil {
			e.logger.Warn("Failed to create items", "grant_id", batch.GrantID, "target_id", target.ID, "error", err)
			errs = append(errs, fmt.Errorf("failed to create items: %w", err))
		} else {
			result.CreatedItems = append(result.CreatedItems, created...)
		}
	}

	for _, o := range post {
		if err := o(ctx, batch); err != nil {
			e.logger.Warn("Post-grant observer failed", "grant_id", batch.GrantID, "error", err)
			errs = append(errs, fmt.Errorf("post-grant observer: %w", err))
		}
	}

	e.logger.Info("Granted loot",
		"grant_id", batch.GrantID,
		"target_id", target.ID,
		"created", len(result.CreatedItems),
		"updated", len(result.UpdatedItemDeltas),
		"skipped", len(result.Skipped),
		"currencies", len(result.CurrencyDeltas),
		"skipped_currencies", len(result.SkippedCurrencies))

	return result, errors.Join(errs...)
}

// planItem adds one entry to the batch, or returns why it was skipped
func (e *Engine) planItem(ctx context.Context, entry loot.Entry, vars map[string]float64, batch *Batch) *Skip {
	ref := strings.TrimSpace(entry.Reference)
	source, err := e.resolver.Resolve(ctx, ref)
	if err != nil {
		return &Skip{Reference: ref, Reason: ReasonUnresolved, Detail: err.Error()}
	}

	qty, err := e.roll(entry.Quantity, vars)
	if err != nil {
		return &Skip{Reference: ref, Reason: ReasonBadFormula, Detail: err.Error()}
	}
	if qty <= 0 {
		return &Skip{Reference: ref, Reason: ReasonNonPositive, Detail: fmt.Sprintf("rolled %d", qty)}
	}

	if stack := e.heldStack(batch.Target, ref); stack != nil {
		batch.ItemUpdates = append(batch.ItemUpdates, item.QuantityPatch{
			ID:       stack.ID,
			Quantity: pendingQuantity(batch, stack) + qty,
		})
		return nil
	}

	snapshot, err := source.ForGrant(ref, qty)
	if err != nil {
		return &Skip{Reference: ref, Reason: ReasonUnresolved, Detail: err.Error()}
	}
	batch.ItemCreates = append(batch.ItemCreates, *snapshot)
	return nil
}

// heldStack returns the first item of target granted from ref whose own
// category stacks
func (e *Engine) heldStack(target *actor.Record, ref string) *item.Item {
	for _, held := range target.ItemsFromSource(ref) {
		if e.cfg.IsStackable(held.Type) {
			return held
		}
	}
	return nil
}

// pendingQuantity is the stack's quantity including updates already planned
// for it in this batch
func pendingQuantity(batch *Batch, stack *item.Item) int {
	for i := len(batch.ItemUpdates) - 1; i >= 0; i-- {
		if batch.ItemUpdates[i].ID == stack.ID {
			return batch.ItemUpdates[i].Quantity
		}
	}
	return stack.System.Quantity
}

// planCurrencies rolls every currency in enumeration order. A formula that
// fails to evaluate adds nothing and is returned as a skip; negative rolls
// add nothing.
func (e *Engine) planCurrencies(currencies loot.CurrencyMap, vars map[string]float64, batch *Batch) []Skip {
	var skipped []Skip
	for _, c := range loot.Currencies {
		formula, ok := currencies[c.Code]
		if !ok {
			continue
		}
		added, err := e.roll(formula, vars)
		if err != nil {
			e.logger.Warn("Failed to roll currency",
				"grant_id", batch.GrantID,
				"currency", c.Code,
				"formula", formula,
				"error", err)
			skipped = append(skipped, Skip{Reference: c.Code, Reason: ReasonBadFormula, Detail: err.Error()})
			continue
		}
		added = max(0, added)
		if added == 0 {
			continue
		}
		batch.CurrencyUpdate[c.Code] = batch.Target.CurrencyAmount(c.Code) + added
	}
	return skipped
}

// roll evaluates formula and floors the total. Non-finite totals are errors.
func (e *Engine) roll(formula string, vars map[string]float64) (int, error) {
	formula = strings.TrimSpace(formula)
	if formula == "" {
		return 0, fmt.Errorf("%w: empty formula", dice.ErrInvalidFormula)
	}
	res, err := e.roller.Evaluate(formula, vars)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(res.Total) || math.IsInf(res.Total, 0) {
		return 0, fmt.Errorf("%w: %q rolled %v", dice.ErrInvalidFormula, formula, res.Total)
	}
	total := math.Floor(res.Total)
	if total > math.MaxInt32 {
		total = math.MaxInt32
	}
	if total < math.MinInt32 {
		total = math.MinInt32
	}
	return int(total), nil
}

func currencyDeltas(target *actor.Record, totals map[string]int) []CurrencyDelta {
	deltas := make([]CurrencyDelta, 0, len(totals))
	for _, c := range loot.Currencies {
		total, ok := totals[c.Code]
		if !ok {
			continue
		}
		deltas = append(deltas, CurrencyDelta{
			Code:     c.Code,
			Added:    total - target.CurrencyAmount(c.Code),
			NewTotal: total,
		})
	}
	return deltas
}
