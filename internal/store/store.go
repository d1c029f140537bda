// Package store defines the persistence interface for the exchange.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/courtside/matchbook/internal/model"
)

var (
	// ErrNotFound is returned when a match, event, position, or account
	// does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrInsufficientFunds is returned by Debit when the balance would go
	// negative. Settlement bypasses this check via ApplyBalance.
	ErrInsufficientFunds = errors.New("store: insufficient funds")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
//
// Every mutating method is composable inside RunInTx: the engine computes a
// full order or settlement plan, then applies all of its mutations in one
// transaction so readers never observe a partially-applied operation.
type Store interface {
	// RunInTx executes fn against a transactional view of the store. All
	// mutations made through fn's argument commit together, or roll back
	// entirely if fn returns an error.
	RunInTx(ctx context.Context, fn func(Store) error) error

	// --- Matches ---

	CreateMatch(ctx context.Context, m *model.Match) error
	GetMatch(ctx context.Context, id string) (*model.Match, error)
	ListMatches(ctx context.Context) ([]model.Match, error)

	// --- Events ---

	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)

	// ListUnresolvedEvents returns events not yet resolved, joined with
	// their match for eligibility checks.
	ListUnresolvedEvents(ctx context.Context) ([]model.Event, error)

	// UpdateAggregates applies signed deltas to the event's open-interest
	// counters.
	UpdateAggregates(ctx context.Context, id string, deltaYes, deltaNo decimal.Decimal) error

	// AppendPricePoint appends to the event's append-only price history.
	AppendPricePoint(ctx context.Context, p *model.PricePoint) error

	// GetPriceHistory returns the event's price history in append order.
	GetPriceHistory(ctx context.Context, eventID string) ([]model.PricePoint, error)

	// MarkResolved sets the terminal resolved flag and winner. It fails
	// with ErrNotFound for unknown events and is an error to call twice
	// only at the engine layer; the store overwrites blindly.
	MarkResolved(ctx context.Context, id, winner string) error

	// --- Positions ---

	CreatePosition(ctx context.Context, p *model.Position) error

	// ListPositionsByUserAndEvent returns the user's open positions on one
	// event in creation order. Netting consumes them in this order.
	ListPositionsByUserAndEvent(ctx context.Context, userID, eventID string) ([]model.Position, error)

	// ListPositionsByEvent returns all open positions on an event.
	ListPositionsByEvent(ctx context.Context, eventID string) ([]model.Position, error)

	// ListPositionsByUser returns all of a user's open positions.
	ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error)

	// ListPositionsWithLimit returns every position carrying a limit price,
	// across all events. The stop-order sweep iterates these.
	ListPositionsWithLimit(ctx context.Context) ([]model.Position, error)

	// UpdatePosition overwrites a position's amount and limit price.
	UpdatePosition(ctx context.Context, p *model.Position) error

	DeletePosition(ctx context.Context, id string) error

	// --- Accounts ---

	CreateAccount(ctx context.Context, a *model.Account) error
	GetAccount(ctx context.Context, userID string) (*model.Account, error)

	// Credit adds amount (>= 0) to the balance.
	Credit(ctx context.Context, userID string, amount decimal.Decimal) error

	// Debit subtracts amount (>= 0), failing with ErrInsufficientFunds if
	// the balance would go negative.
	Debit(ctx context.Context, userID string, amount decimal.Decimal) error

	// ApplyBalance adds a signed delta with no floor. Settlement losses and
	// netting P&L go through here.
	ApplyBalance(ctx context.Context, userID string, delta decimal.Decimal) error
}
