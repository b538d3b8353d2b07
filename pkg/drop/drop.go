// Package drop turns a dropped document (an item, a folder of items, a
// random table or a compendium pack) into the item references it adds to a
// loot list. The pipeline is ParsePayload, then Validator.Validate, then
// AddToStore.
package drop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jwebster45206/loot-list/pkg/document"
	"github.com/jwebster45206/loot-list/pkg/item"
	"github.com/jwebster45206/loot-list/pkg/loot"
)

var (
	// ErrInvalidDocument is returned for payloads of an unsupported kind or
	// items of a category a loot list does not hold
	ErrInvalidDocument = errors.New("invalid document")
	// ErrEmptyDocument is returned when a container holds no valid items
	ErrEmptyDocument = errors.New("document contains no valid items")
	// ErrOwnedItem is returned for items that belong to an actor
	ErrOwnedItem = errors.New("items owned by an actor cannot be added")
)

// TypeError reports an item whose category a loot list does not hold
type TypeError struct {
	Type string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: item type %q", ErrInvalidDocument, e.Type)
}

func (e *TypeError) Unwrap() error {
	return ErrInvalidDocument
}

// Payload is the data carried by a drop
type Payload struct {
	Type string `json:"type"`
	UUID string `json:"uuid,omitempty"`
	ID   string `json:"id,omitempty"` // pack ID of a compendium drop
}

// Candidate is one item a drop would add
type Candidate struct {
	Reference string `json:"reference"`
	Name      string `json:"name"`
}

// ParsePayload decodes drop data
func ParsePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	p.Type = strings.TrimSpace(p.Type)
	p.UUID = strings.TrimSpace(p.UUID)
	p.ID = strings.TrimSpace(p.ID)
	return p, nil
}

// Resolver looks up the documents a drop can reference
type Resolver interface {
	Resolve(ctx context.Context, raw string) (*item.Item, error)
	ResolveFolder(ctx context.Context, raw string) (*document.Folder, error)
	ResolveTable(ctx context.Context, raw string) (*document.RollTable, error)
	ResolvePack(ctx context.Context, id string) (*document.Pack, error)
}

// Validator expands drops into valid item references
type Validator struct {
	cfg      loot.Config
	resolver Resolver
}

// NewValidator creates a validator that accepts the item categories in cfg
func NewValidator(cfg loot.Config, resolver Resolver) *Validator {
	return &Validator{cfg: cfg, resolver: resolver}
}

// Validate returns the valid items a payload holds. An error means nothing
// from the drop may be added.
func (v *Validator) Validate(ctx context.Context, p Payload) ([]Candidate, error) {
	switch p.Type {
	case document.KindItem:
		return v.single(ctx, p.UUID)
	case document.KindFolder:
		return v.folder(ctx, p.UUID)
	case document.KindRollTable:
		return v.table(ctx, p.UUID)
	case document.KindCompendium:
		return v.pack(ctx, p)
	}
	return nil, fmt.Errorf("%w: unsupported drop type %q", ErrInvalidDocument, p.Type)
}

func (v *Validator) single(ctx context.Context, raw string) ([]Candidate, error) {
	ref, err := document.ParseReference(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if ref.IsEmbedded() {
		return nil, fmt.Errorf("%w: %s", ErrOwnedItem, raw)
	}
	it, err := v.resolver.Resolve(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if !v.cfg.IsValidType(it.Type) {
		return nil, &TypeError{Type: it.Type}
	}
	return []Candidate{{Reference: ref.String(), Name: it.Name}}, nil
}

func (v *Validator) folder(ctx context.Context, raw string) ([]Candidate, error) {
	f, err := v.resolver.ResolveFolder(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if f.Type != document.KindItem {
		return nil, fmt.Errorf("%w: folder %s holds %s documents", ErrInvalidDocument, f.Name, f.Type)
	}
	refs := make([]string, 0, len(f.Contents))
	for _, id := range f.Contents {
		refs = append(refs, document.ItemRef(id))
	}
	return v.keepValid(ctx, refs)
}

// table keeps only the results that point at documents of a valid category
func (v *Validator) table(ctx context.Context, raw string) ([]Candidate, error) {
	t, err := v.resolver.ResolveTable(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	var refs []string
	for _, r := range t.Results {
		if ref, ok := r.Reference(); ok {
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: table %s", ErrEmptyDocument, t.Name)
	}
	return v.keepValid(ctx, refs)
}

func (v *Validator) pack(ctx context.Context, p Payload) ([]Candidate, error) {
	id := p.ID
	if id == "" {
		id = strings.TrimPrefix(p.UUID, document.KindCompendium+".")
	}
	if id == "" {
		return nil, fmt.Errorf("%w: compendium drop without pack", ErrInvalidDocument)
	}
	pack, err := v.resolver.ResolvePack(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if pack.Type != document.KindItem {
		return nil, fmt.Errorf("%w: pack %s holds %s documents", ErrInvalidDocument, pack.ID, pack.Type)
	}
	var out []Candidate
	for _, it := range pack.Items {
		if !v.cfg.IsValidType(it.Type) {
			continue
		}
		out = append(out, Candidate{Reference: document.CompendiumRef(pack.ID, document.KindItem, it.ID), Name: it.Name})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: pack %s", ErrEmptyDocument, pack.ID)
	}
	return out, nil
}

// keepValid resolves refs and keeps the items of a valid category.
// References that do not resolve are left out.
func (v *Validator) keepValid(ctx context.Context, refs []string) ([]Candidate, error) {
	var out []Candidate
	for _, ref := range refs {
		it, err := v.resolver.Resolve(ctx, ref)
		if err != nil || !v.cfg.IsValidType(it.Type) {
			continue
		}
		out = append(out, Candidate{Reference: ref, Name: it.Name})
	}
	if len(out) == 0 {
		return nil, ErrEmptyDocument
	}
	return out, nil
}

// AddToStore upserts every candidate into s with no explicit quantity, so
// items already on the list are incremented
func AddToStore(s *loot.Store, candidates []Candidate) error {
	for _, c := range candidates {
		if err := s.UpsertItem(c.Reference, ""); err != nil {
			return fmt.Errorf("failed to add %s: %w", c.Reference, err)
		}
	}
	return nil
}
