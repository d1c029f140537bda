package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/courtside/matchbook/internal/model"
)

// MemoryStore implements Store with in-memory state. Used for testing and
// development. Not suitable for production (no persistence).
//
// Positions are held in a slice so list methods return them in creation
// order, which is the order netting consumes them in.
type MemoryStore struct {
	mu        sync.RWMutex
	txMu      sync.Mutex
	matches   map[string]*model.Match
	events    map[string]*model.Event
	history   map[string][]model.PricePoint
	positions []*model.Position
	accounts  map[string]*model.Account
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		matches:  make(map[string]*model.Match),
		events:   make(map[string]*model.Event),
		history:  make(map[string][]model.PricePoint),
		accounts: make(map[string]*model.Account),
	}
}

// RunInTx serializes transactions with a dedicated mutex, snapshots all
// state, and restores the snapshot if fn fails. Not reentrant.
func (s *MemoryStore) RunInTx(_ context.Context, fn func(Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	matches   map[string]*model.Match
	events    map[string]*model.Event
	history   map[string][]model.PricePoint
	positions []*model.Position
	accounts  map[string]*model.Account
}

func (s *MemoryStore) snapshot() memSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := memSnapshot{
		matches:   make(map[string]*model.Match, len(s.matches)),
		events:    make(map[string]*model.Event, len(s.events)),
		history:   make(map[string][]model.PricePoint, len(s.history)),
		positions: make([]*model.Position, 0, len(s.positions)),
		accounts:  make(map[string]*model.Account, len(s.accounts)),
	}
	for id, m := range s.matches {
		c := *m
		snap.matches[id] = &c
	}
	for id, e := range s.events {
		c := *e
		snap.events[id] = &c
	}
	for id, h := range s.history {
		snap.history[id] = append([]model.PricePoint(nil), h...)
	}
	for _, p := range s.positions {
		c := *p
		snap.positions = append(snap.positions, &c)
	}
	for id, a := range s.accounts {
		c := *a
		snap.accounts[id] = &c
	}
	return snap
}

func (s *MemoryStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = snap.matches
	s.events = snap.events
	s.history = snap.history
	s.positions = snap.positions
	s.accounts = snap.accounts
}

// --- Matches ---

func (s *MemoryStore) CreateMatch(_ context.Context, m *model.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.matches[m.ID]; ok {
		return fmt.Errorf("match %s already exists", m.ID)
	}
	c := *m
	s.matches[m.ID] = &c
	return nil
}

func (s *MemoryStore) GetMatch(_ context.Context, id string) (*model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.matches[id]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	c := *m
	return &c, nil
}

func (s *MemoryStore) ListMatches(_ context.Context) ([]model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]model.Match, 0, len(s.matches))
	for _, m := range s.matches {
		matches = append(matches, *m)
	}
	return matches, nil
}

// --- Events ---

func (s *MemoryStore) CreateEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[e.ID]; ok {
		return fmt.Errorf("event %s already exists", e.ID)
	}
	c := *e
	s.events[e.ID] = &c
	return nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	c := *e
	return &c, nil
}

func (s *MemoryStore) ListEvents(_ context.Context) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]model.Event, 0, len(s.events))
	for _, e := range s.events {
		events = append(events, *e)
	}
	return events, nil
}

func (s *MemoryStore) ListUnresolvedEvents(_ context.Context) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []model.Event
	for _, e := range s.events {
		if !e.Resolved {
			events = append(events, *e)
		}
	}
	return events, nil
}

func (s *MemoryStore) UpdateAggregates(_ context.Context, id string, deltaYes, deltaNo decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	e.TotalYes = e.TotalYes.Add(deltaYes)
	e.TotalNo = e.TotalNo.Add(deltaNo)
	return nil
}

func (s *MemoryStore) AppendPricePoint(_ context.Context, p *model.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[p.EventID] = append(s.history[p.EventID], *p)
	return nil
}

func (s *MemoryStore) GetPriceHistory(_ context.Context, eventID string) ([]model.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.PricePoint(nil), s.history[eventID]...), nil
}

func (s *MemoryStore) MarkResolved(_ context.Context, id, winner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	e.Resolved = true
	e.Winner = winner
	return nil
}

// --- Positions ---

func (s *MemoryStore) CreatePosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *p
	s.positions = append(s.positions, &c)
	return nil
}

func (s *MemoryStore) ListPositionsByUserAndEvent(_ context.Context, userID, eventID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, p := range s.positions {
		if p.UserID == userID && p.EventID == eventID {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListPositionsByEvent(_ context.Context, eventID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, p := range s.positions {
		if p.EventID == eventID {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListPositionsByUser(_ context.Context, userID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, p := range s.positions {
		if p.UserID == userID {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListPositionsWithLimit(_ context.Context) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, p := range s.positions {
		if p.LimitPrice != nil {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (s *MemoryStore) UpdatePosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.positions {
		if existing.ID == p.ID {
			existing.Amount = p.Amount
			existing.LimitPrice = p.LimitPrice
			return nil
		}
	}
	return fmt.Errorf("position %s: %w", p.ID, ErrNotFound)
}

func (s *MemoryStore) DeletePosition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.positions {
		if p.ID == id {
			s.positions = append(s.positions[:i], s.positions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("position %s: %w", id, ErrNotFound)
}

// --- Accounts ---

func (s *MemoryStore) CreateAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.UserID]; ok {
		return fmt.Errorf("account %s already exists", a.UserID)
	}
	c := *a
	s.accounts[a.UserID] = &c
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, userID string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	c := *a
	return &c, nil
}

func (s *MemoryStore) Credit(_ context.Context, userID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	a.Balance = a.Balance.Add(amount)
	return nil
}

func (s *MemoryStore) Debit(_ context.Context, userID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	if a.Balance.LessThan(amount) {
		return fmt.Errorf("account %s: %w", userID, ErrInsufficientFunds)
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

func (s *MemoryStore) ApplyBalance(_ context.Context, userID string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	a.Balance = a.Balance.Add(delta)
	return nil
}
