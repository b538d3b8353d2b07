package loot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jwebster45206/loot-list/pkg/dice"
)

var (
	// ErrSessionClosed is returned by a Store that was committed or discarded
	ErrSessionClosed = errors.New("loot list session is closed")
	// ErrEmptyReference is returned when an item reference is blank
	ErrEmptyReference = errors.New("item reference is empty")
)

// FlagStore reads and writes namespaced flags on a record
type FlagStore interface {
	GetFlag(ctx context.Context, actorID, namespace, key string) (json.RawMessage, error)
	SetFlag(ctx context.Context, actorID, namespace, key string, value any) error
}

// Store is the working copy of one record's loot list during an editing
// session. Mutations touch only the copy until Commit.
type Store struct {
	mu       sync.Mutex
	cfg      Config
	flags    FlagStore
	sourceID string
	working  *List
	closed   bool
}

// ReadList returns the committed list of a record. A record that never had
// a list yields an empty one.
func ReadList(ctx context.Context, flags FlagStore, cfg Config, sourceID string) (*List, error) {
	rawItems, err := flags.GetFlag(ctx, sourceID, cfg.Namespace, cfg.ListKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read loot list of %s: %w", sourceID, err)
	}
	rawCurrencies, err := flags.GetFlag(ctx, sourceID, cfg.Namespace, cfg.CurrenciesKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read currencies of %s: %w", sourceID, err)
	}

	var items []Entry
	if len(rawItems) > 0 {
		if err := json.Unmarshal(rawItems, &items); err != nil {
			return nil, fmt.Errorf("failed to decode loot list of %s: %w", sourceID, err)
		}
	}
	currencies := map[string]string{}
	if len(rawCurrencies) > 0 {
		if err := json.Unmarshal(rawCurrencies, &currencies); err != nil {
			return nil, fmt.Errorf("failed to decode currencies of %s: %w", sourceID, err)
		}
	}
	return Normalize(items, currencies), nil
}

// Load opens an editing session on the loot list of sourceID
func Load(ctx context.Context, flags FlagStore, cfg Config, sourceID string) (*Store, error) {
	list, err := ReadList(ctx, flags, cfg, sourceID)
	if err != nil {
		return nil, err
	}
	return &Store{
		cfg:      cfg,
		flags:    flags,
		sourceID: sourceID,
		working:  list,
	}, nil
}

// SourceID returns the record owning the list
func (s *Store) SourceID() string {
	return s.sourceID
}

// Config returns the configuration the store was opened with
func (s *Store) Config() Config {
	return s.cfg
}

// Read returns a copy of the working list
func (s *Store) Read() (*List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.working.Clone(), nil
}

// UpsertItem adds reference to the list. An empty quantity means none was
// given: a new entry starts at "1" and an existing one is incremented by
// one, with the composed formula simplified. A given quantity replaces the
// existing formula.
func (s *Store) UpsertItem(reference, quantity string) error {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return ErrEmptyReference
	}
	quantity = strings.TrimSpace(quantity)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	i := s.working.Index(reference)
	if i < 0 {
		if quantity == "" {
			quantity = "1"
		}
		s.working.Items = append(s.working.Items, Entry{Reference: reference, Quantity: quantity})
		return nil
	}
	if quantity == "" {
		quantity = increment(s.working.Items[i].Quantity)
	}
	s.working.Items[i].Quantity = quantity
	return nil
}

// increment composes "<formula> + 1" and simplifies it. A formula that does
// not parse keeps the composed text so the stored value is never lost.
func increment(formula string) string {
	composed := formula + " + 1"
	simplified, err := dice.Simplify(composed)
	if err != nil {
		return composed
	}
	return simplified
}

// RemoveItem deletes the entry for reference; absent references are ignored
func (s *Store) RemoveItem(reference string) error {
	reference = strings.TrimSpace(reference)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if i := s.working.Index(reference); i >= 0 {
		s.working.Items = append(s.working.Items[:i], s.working.Items[i+1:]...)
	}
	return nil
}

// Clear empties the items and sets every currency formula to "0"
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.working = NewList()
	return nil
}

// SetCurrency sets the formula of a currency. Unrecognized codes are
// dropped and a blank formula becomes "0".
func (s *Store) SetCurrency(code, formula string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if !IsCurrency(code) {
		return nil
	}
	formula = strings.TrimSpace(formula)
	if formula == "" {
		formula = "0"
	}
	s.working.Currencies[code] = formula
	return nil
}

// Replace swaps the working copy for a normalized copy of list
func (s *Store) Replace(list *List) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.working = Normalize(list.Items, list.Currencies)
	return nil
}

// Commit writes the working copy to the source record, replacing the stored
// list wholesale, and ends the session. A failed write leaves the session
// open so the commit can be retried.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if err := s.flags.SetFlag(ctx, s.sourceID, s.cfg.Namespace, s.cfg.ListKey, s.working.Items); err != nil {
		return fmt.Errorf("failed to save loot list of %s: %w", s.sourceID, err)
	}
	if err := s.flags.SetFlag(ctx, s.sourceID, s.cfg.Namespace, s.cfg.CurrenciesKey, s.working.Currencies); err != nil {
		return fmt.Errorf("failed to save currencies of %s: %w", s.sourceID, err)
	}
	s.closed = true
	return nil
}

// Discard ends the session without writing anything
func (s *Store) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Closed reports whether the session has ended
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
