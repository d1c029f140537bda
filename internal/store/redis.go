package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/courtside/matchbook/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot reads: events (quoted on every order and sweep pass) and
// account balances. Writes go to the primary store and invalidate the cache.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// RunInTx delegates to the primary store's transaction. The transactional
// view records every event and account it touches so their cache keys can be
// dropped once the commit succeeds.
func (s *CachedStore) RunInTx(ctx context.Context, fn func(Store) error) error {
	rec := &txRecorder{
		events: make(map[string]struct{}),
		users:  make(map[string]struct{}),
	}
	err := s.primary.RunInTx(ctx, func(tx Store) error {
		rec.Store = tx
		return fn(rec)
	})
	if err != nil {
		return err
	}
	for id := range rec.events {
		s.rdb.Del(ctx, eventKey(id))
	}
	for id := range rec.users {
		s.rdb.Del(ctx, accountKey(id))
	}
	return nil
}

// txRecorder wraps a transactional store and records which cache keys the
// transaction dirties.
type txRecorder struct {
	Store
	events map[string]struct{}
	users  map[string]struct{}
}

func (r *txRecorder) UpdateAggregates(ctx context.Context, id string, deltaYes, deltaNo decimal.Decimal) error {
	r.events[id] = struct{}{}
	return r.Store.UpdateAggregates(ctx, id, deltaYes, deltaNo)
}

func (r *txRecorder) MarkResolved(ctx context.Context, id, winner string) error {
	r.events[id] = struct{}{}
	return r.Store.MarkResolved(ctx, id, winner)
}

func (r *txRecorder) Credit(ctx context.Context, userID string, amount decimal.Decimal) error {
	r.users[userID] = struct{}{}
	return r.Store.Credit(ctx, userID, amount)
}

func (r *txRecorder) Debit(ctx context.Context, userID string, amount decimal.Decimal) error {
	r.users[userID] = struct{}{}
	return r.Store.Debit(ctx, userID, amount)
}

func (r *txRecorder) ApplyBalance(ctx context.Context, userID string, delta decimal.Decimal) error {
	r.users[userID] = struct{}{}
	return r.Store.ApplyBalance(ctx, userID, delta)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	data, err := s.rdb.Get(ctx, eventKey(id)).Bytes()
	if err == nil {
		var e model.Event
		if json.Unmarshal(data, &e) == nil {
			return &e, nil
		}
	}

	e, err := s.primary.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheEvent(ctx, e)
	return e, nil
}

func (s *CachedStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(userID)).Bytes()
	if err == nil {
		var a model.Account
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, accountKey(userID), data, s.ttl)
	}
	return a, nil
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateEvent(ctx context.Context, e *model.Event) error {
	if err := s.primary.CreateEvent(ctx, e); err != nil {
		return err
	}
	s.cacheEvent(ctx, e)
	return nil
}

func (s *CachedStore) UpdateAggregates(ctx context.Context, id string, deltaYes, deltaNo decimal.Decimal) error {
	if err := s.primary.UpdateAggregates(ctx, id, deltaYes, deltaNo); err != nil {
		return err
	}
	s.rdb.Del(ctx, eventKey(id))
	return nil
}

func (s *CachedStore) MarkResolved(ctx context.Context, id, winner string) error {
	if err := s.primary.MarkResolved(ctx, id, winner); err != nil {
		return err
	}
	s.rdb.Del(ctx, eventKey(id))
	return nil
}

func (s *CachedStore) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.CreateAccount(ctx, a); err != nil {
		return err
	}
	s.rdb.Del(ctx, accountKey(a.UserID))
	return nil
}

func (s *CachedStore) Credit(ctx context.Context, userID string, amount decimal.Decimal) error {
	if err := s.primary.Credit(ctx, userID, amount); err != nil {
		return err
	}
	s.rdb.Del(ctx, accountKey(userID))
	return nil
}

func (s *CachedStore) Debit(ctx context.Context, userID string, amount decimal.Decimal) error {
	if err := s.primary.Debit(ctx, userID, amount); err != nil {
		return err
	}
	s.rdb.Del(ctx, accountKey(userID))
	return nil
}

func (s *CachedStore) ApplyBalance(ctx context.Context, userID string, delta decimal.Decimal) error {
	if err := s.primary.ApplyBalance(ctx, userID, delta); err != nil {
		return err
	}
	s.rdb.Del(ctx, accountKey(userID))
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) CreateMatch(ctx context.Context, m *model.Match) error {
	return s.primary.CreateMatch(ctx, m)
}

func (s *CachedStore) GetMatch(ctx context.Context, id string) (*model.Match, error) {
	return s.primary.GetMatch(ctx, id)
}

func (s *CachedStore) ListMatches(ctx context.Context) ([]model.Match, error) {
	return s.primary.ListMatches(ctx)
}

func (s *CachedStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.primary.ListEvents(ctx)
}

func (s *CachedStore) ListUnresolvedEvents(ctx context.Context) ([]model.Event, error) {
	return s.primary.ListUnresolvedEvents(ctx)
}

func (s *CachedStore) AppendPricePoint(ctx context.Context, p *model.PricePoint) error {
	return s.primary.AppendPricePoint(ctx, p)
}

func (s *CachedStore) GetPriceHistory(ctx context.Context, eventID string) ([]model.PricePoint, error) {
	return s.primary.GetPriceHistory(ctx, eventID)
}

func (s *CachedStore) CreatePosition(ctx context.Context, p *model.Position) error {
	return s.primary.CreatePosition(ctx, p)
}

func (s *CachedStore) ListPositionsByUserAndEvent(ctx context.Context, userID, eventID string) ([]model.Position, error) {
	return s.primary.ListPositionsByUserAndEvent(ctx, userID, eventID)
}

func (s *CachedStore) ListPositionsByEvent(ctx context.Context, eventID string) ([]model.Position, error) {
	return s.primary.ListPositionsByEvent(ctx, eventID)
}

func (s *CachedStore) ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	return s.primary.ListPositionsByUser(ctx, userID)
}

func (s *CachedStore) ListPositionsWithLimit(ctx context.Context) ([]model.Position, error) {
	return s.primary.ListPositionsWithLimit(ctx)
}

func (s *CachedStore) UpdatePosition(ctx context.Context, p *model.Position) error {
	return s.primary.UpdatePosition(ctx, p)
}

func (s *CachedStore) DeletePosition(ctx context.Context, id string) error {
	return s.primary.DeletePosition(ctx, id)
}

// --- Cache helpers ---

func (s *CachedStore) cacheEvent(ctx context.Context, e *model.Event) {
	if data, err := json.Marshal(e); err == nil {
		s.rdb.Set(ctx, eventKey(e.ID), data, s.ttl)
	}
}

func eventKey(id string) string    { return fmt.Sprintf("event:%s", id) }
func accountKey(uid string) string { return fmt.Sprintf("account:%s", uid) }
