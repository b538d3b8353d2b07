// Package editor runs loot list editing sessions. A session loads the
// working copy of one record's list, renders it as a view model, accepts
// edits and drops, grants the working copy to a target, and finally commits
// or discards it.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/loot-list/internal/logger"
	"github.com/jwebster45206/loot-list/internal/notify"
	"github.com/jwebster45206/loot-list/pkg/actor"
	"github.com/jwebster45206/loot-list/pkg/document"
	"github.com/jwebster45206/loot-list/pkg/drop"
	"github.com/jwebster45206/loot-list/pkg/grant"
	"github.com/jwebster45206/loot-list/pkg/loot"
	"github.com/jwebster45206/loot-list/pkg/storage"
)

// ErrSessionNotFound is returned for unknown or finished session IDs
var ErrSessionNotFound = errors.New("editing session not found")

// ItemView is one list entry as shown in the editor
type ItemView struct {
	Reference string `json:"reference"`
	Quantity  string `json:"quantity"`
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`
	Img       string `json:"img,omitempty"`
	Missing   bool   `json:"missing,omitempty"`
}

// CurrencyView is one currency formula as shown in the editor
type CurrencyView struct {
	Code    string `json:"code"`
	Label   string `json:"label"`
	Formula string `json:"formula"`
}

// ViewModel is the rendered state of a session
type ViewModel struct {
	SessionID  string         `json:"session_id"`
	ActorID    string         `json:"actor_id"`
	ActorName  string         `json:"actor_name"`
	Items      []ItemView     `json:"items"`
	Currencies []CurrencyView `json:"currencies"`
}

// List converts a submitted view model back into a loot list
func (vm *ViewModel) List() *loot.List {
	l := &loot.List{
		Items:      make([]loot.Entry, 0, len(vm.Items)),
		Currencies: make(loot.CurrencyMap, len(vm.Currencies)),
	}
	for _, it := range vm.Items {
		l.Items = append(l.Items, loot.Entry{Reference: it.Reference, Quantity: it.Quantity})
	}
	for _, c := range vm.Currencies {
		l.Currencies[c.Code] = c.Formula
	}
	return l
}

type session struct {
	id        string
	actorID   string
	actorName string
	store     *loot.Store
	lastUsed  atomic.Int64 // unix nanoseconds
}

func (sess *session) touch(now time.Time) {
	sess.lastUsed.Store(now.UnixNano())
}

func (sess *session) idle(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, sess.lastUsed.Load()))
}

// Service owns the open editing sessions
type Service struct {
	storage   storage.Storage
	cfg       loot.Config
	resolver  *document.Resolver
	validator *drop.Validator
	engine    *grant.Engine
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewService creates an editing service
func NewService(store storage.Storage, cfg loot.Config, engine *grant.Engine, logger *slog.Logger) *Service {
	resolver := document.NewResolver(store)
	return &Service{
		storage:   store,
		cfg:       cfg,
		resolver:  resolver,
		validator: drop.NewValidator(cfg, resolver),
		engine:    engine,
		logger:    logger,
		sessions:  make(map[string]*session),
	}
}

// Open loads the working copy of actorID's list and returns the session ID
func (s *Service) Open(ctx context.Context, actorID string) (string, error) {
	rec, err := s.storage.GetActor(ctx, actorID)
	if err != nil {
		return "", fmt.Errorf("failed to load actor: %w", err)
	}
	store, err := loot.Load(ctx, s.storage, s.cfg, rec.ID)
	if err != nil {
		return "", err
	}

	sess := &session{
		id:        uuid.NewString(),
		actorID:   rec.ID,
		actorName: rec.Name,
		store:     store,
	}
	sess.touch(time.Now())
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	logger.WithSession(s.logger, sess.id).Info("Opened loot list session", "actor_id", rec.ID)
	return sess.id, nil
}

func (s *Service) get(id string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.touch(time.Now())
	return sess, nil
}

func (s *Service) end(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// ExpireIdle discards every session unused for longer than maxIdle and
// returns how many were discarded
func (s *Service) ExpireIdle(maxIdle time.Duration) int {
	return s.expireIdle(time.Now(), maxIdle)
}

func (s *Service) expireIdle(now time.Time, maxIdle time.Duration) int {
	s.mu.Lock()
	var expired []*session
	for id, sess := range s.sessions {
		if sess.idle(now) > maxIdle {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.store.Discard()
		logger.WithSession(s.logger, sess.id).Info("Expired idle loot list session", "actor_id", sess.actorID)
	}
	return len(expired)
}

// RunExpiry sweeps idle sessions every interval until ctx is done
func (s *Service) RunExpiry(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ExpireIdle(maxIdle)
		}
	}
}

// Sessions returns the number of open sessions
func (s *Service) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Render builds the view model of a session. Items are resolved for their
// names and sorted by name; references that no longer resolve stay in the
// view flagged as missing.
func (s *Service) Render(ctx context.Context, id string, n *notify.Notifier) (*ViewModel, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	list, err := sess.store.Read()
	if err != nil {
		return nil, err
	}

	vm := &ViewModel{
		SessionID:  sess.id,
		ActorID:    sess.actorID,
		ActorName:  sess.actorName,
		Items:      make([]ItemView, 0, len(list.Items)),
		Currencies: make([]CurrencyView, 0, len(loot.Currencies)),
	}
	for _, e := range list.Items {
		view := ItemView{Reference: e.Reference, Quantity: e.Quantity, Name: e.Reference}
		it, err := s.resolver.Resolve(ctx, e.Reference)
		if err != nil {
			view.Missing = true
		} else {
			view.Name = it.Name
			view.Type = it.Type
			view.Img = it.Img
		}
		vm.Items = append(vm.Items, view)
	}
	notify.SortByName(n, vm.Items, func(v ItemView) string { return v.Name })

	for _, c := range loot.Currencies {
		vm.Currencies = append(vm.Currencies, CurrencyView{Code: c.Code, Label: c.Label, Formula: list.Currencies[c.Code]})
	}
	return vm, nil
}

// Submit replaces the working copy with the submitted view model, commits it
// to the source record and ends the session
func (s *Service) Submit(ctx context.Context, id string, vm *ViewModel, n *notify.Notifier) (*loot.List, []notify.Notification, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, nil, err
	}
	if vm != nil {
		if err := sess.store.Replace(vm.List()); err != nil {
			return nil, nil, err
		}
	}
	list, err := sess.store.Read()
	if err != nil {
		return nil, nil, err
	}
	if err := sess.store.Commit(ctx); err != nil {
		logger.WithError(logger.WithSession(s.logger, id), err).Error("Failed to commit loot list", "actor_id", sess.actorID)
		return nil, nil, err
	}
	s.end(id)

	logger.WithSession(s.logger, id).Info("Committed loot list", "actor_id", sess.actorID, "items", len(list.Items))
	return list, []notify.Notification{n.Info(notify.KeySaved, sess.actorName)}, nil
}

// Discard ends a session without saving
func (s *Service) Discard(id string) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	sess.store.Discard()
	s.end(id)
	logger.WithSession(s.logger, id).Info("Discarded loot list session", "actor_id", sess.actorID)
	return nil
}

// UpsertItem adds or updates an entry of the working copy
func (s *Service) UpsertItem(id, reference, quantity string) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	return sess.store.UpsertItem(reference, quantity)
}

// RemoveItem removes an entry of the working copy
func (s *Service) RemoveItem(id, reference string) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	return sess.store.RemoveItem(reference)
}

// Clear empties the working copy
func (s *Service) Clear(id string) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	return sess.store.Clear()
}

// SetCurrencies sets currency formulas; unrecognized codes are ignored
func (s *Service) SetCurrencies(id string, formulas map[string]string) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	for code, formula := range formulas {
		if err := sess.store.SetCurrency(code, formula); err != nil {
			return err
		}
	}
	return nil
}

// Drop validates a dropped document and adds its items to the working
// copy. A rejected drop adds nothing and returns a warning with the error.
func (s *Service) Drop(ctx context.Context, id string, p drop.Payload, n *notify.Notifier) ([]notify.Notification, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	candidates, err := s.validator.Validate(ctx, p)
	if err != nil {
		logger.WithSession(s.logger, id).Warn("Rejected drop", "type", p.Type, "uuid", p.UUID, "error", err)
		return []notify.Notification{dropWarning(n, err)}, err
	}
	if err := drop.AddToStore(sess.store, candidates); err != nil {
		return nil, err
	}
	return []notify.Notification{n.Info(notify.KeyAddedItems, len(candidates), sess.actorName)}, nil
}

func dropWarning(n *notify.Notifier, err error) notify.Notification {
	var typeErr *drop.TypeError
	switch {
	case errors.Is(err, drop.ErrOwnedItem):
		return n.Warn(notify.KeyActorItem)
	case errors.Is(err, drop.ErrEmptyDocument):
		return n.Warn(notify.KeyEmptyDocument)
	case errors.As(err, &typeErr):
		return n.Warn(notify.KeyInvalidType, typeErr.Type)
	default:
		return n.Warn(notify.KeyInvalidDocument)
	}
}

// Grant rolls the session's working copy onto targetID. The working copy
// itself is left unchanged.
func (s *Service) Grant(ctx context.Context, id, targetID string, n *notify.Notifier) (*grant.Result, []notify.Notification, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, nil, err
	}
	list, err := sess.store.Read()
	if err != nil {
		return nil, nil, err
	}

	target, err := s.target(ctx, targetID)
	if err != nil {
		return nil, []notify.Notification{n.Warn(notify.KeyNoTarget)}, err
	}

	result, err := s.engine.Grant(ctx, list.Items, list.Currencies, target)
	if result == nil {
		if errors.Is(err, grant.ErrNoTarget) {
			return nil, []notify.Notification{n.Warn(notify.KeyNoTarget)}, err
		}
		return nil, nil, err
	}
	return result, GrantNotifications(n, result, target.Name), err
}

func (s *Service) target(ctx context.Context, targetID string) (*actor.Record, error) {
	if targetID == "" {
		return nil, grant.ErrNoTarget
	}
	target, err := s.storage.GetActor(ctx, targetID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", grant.ErrNoTarget, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load target: %w", err)
	}
	return target, nil
}

// GrantNotifications reports the outcome of a grant: one warning per
// unresolved reference and per currency that failed to roll, then created,
// updated and skipped counts
func GrantNotifications(n *notify.Notifier, r *grant.Result, targetName string) []notify.Notification {
	var out []notify.Notification
	for _, skip := range r.Skipped {
		if skip.Reason == grant.ReasonUnresolved {
			out = append(out, n.Warn(notify.KeyItemNotFound, skip.Reference))
		}
	}
	for _, skip := range r.SkippedCurrencies {
		out = append(out, n.Warn(notify.KeyBadCurrency, skip.Reference))
	}
	out = append(out, n.Info(notify.KeyCreatedItems, len(r.CreatedItems), targetName))
	if len(r.UpdatedItemDeltas) > 0 {
		out = append(out, n.Info(notify.KeyUpdatedItems, len(r.UpdatedItemDeltas), targetName))
	}
	if len(r.Skipped) > 0 {
		out = append(out, n.Warn(notify.KeySkippedItems, len(r.Skipped)))
	}
	return out
}

// AddItemsToActor adds references straight to the committed list of
// actorID, outside any session. Owned items and items of an invalid
// category are left out. It returns how many references were added.
func (s *Service) AddItemsToActor(ctx context.Context, actorID string, references []string) (int, error) {
	store, err := loot.Load(ctx, s.storage, s.cfg, actorID)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, raw := range references {
		candidates, err := s.validator.Validate(ctx, drop.Payload{Type: document.KindItem, UUID: raw})
		if err != nil {
			s.logger.Debug("Skipping reference", "actor_id", actorID, "reference", raw, "error", err)
			continue
		}
		if err := drop.AddToStore(store, candidates); err != nil {
			store.Discard()
			return 0, err
		}
		added += len(candidates)
	}
	if added == 0 {
		store.Discard()
		return 0, nil
	}
	if err := store.Commit(ctx); err != nil {
		return 0, err
	}
	return added, nil
}
