// Package model defines the core domain types shared across the exchange.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is the binary proposition being traded.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// Valid reports whether o is a recognized outcome.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Side is the direction of an order: buy opens/increases exposure,
// sell closes/shorts it.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a recognized side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Match is one sporting fixture discovered by ingestion. Betting opens
// five hours before tip-off and closes 75 minutes after.
type Match struct {
	ID           string    `json:"id" db:"id"`
	Team1        string    `json:"team1" db:"team1"`
	Team2        string    `json:"team2" db:"team2"`
	League       string    `json:"league" db:"league"`
	MatchTime    time.Time `json:"match_time" db:"match_time"`
	BetStartTime time.Time `json:"bet_start_time" db:"bet_start_time"`
	BetEndTime   time.Time `json:"bet_end_time" db:"bet_end_time"`
}

// Event is the tradable binary market attached to a match: "will team1 win?".
// TotalYes/TotalNo are signed open-interest counters (sells subtract, so they
// may go negative transiently). Resolved transitions exactly once, after which
// no position on the event may be created, modified, or netted.
type Event struct {
	ID        string          `json:"id" db:"id"`
	MatchID   string          `json:"match_id" db:"match_id"`
	Question  string          `json:"question" db:"question"`
	TotalYes  decimal.Decimal `json:"total_yes" db:"total_yes"`
	TotalNo   decimal.Decimal `json:"total_no" db:"total_no"`
	Resolved  bool            `json:"resolved" db:"resolved"`
	Winner    string          `json:"winner,omitempty" db:"winner"` // team name or "draw"
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// PricePoint is one entry in an event's append-only price history.
type PricePoint struct {
	EventID   string          `json:"event_id" db:"event_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
	YesPct    decimal.Decimal `json:"yes_pct" db:"yes_pct"`
	NoPct     decimal.Decimal `json:"no_pct" db:"no_pct"`
}

// Position is one user's open stake on an event. A user holds at most one
// outcome per event; the matching engine rejects orders that would create
// both. Amount stays positive while the position is open — netting reduces
// it and the position is deleted at zero.
type Position struct {
	ID         string           `json:"id" db:"id"`
	UserID     string           `json:"user_id" db:"user_id"`
	EventID    string           `json:"event_id" db:"event_id"`
	Outcome    Outcome          `json:"outcome" db:"outcome"`
	Side       Side             `json:"side" db:"side"`
	Amount     decimal.Decimal  `json:"amount" db:"amount"`
	EntryPrice decimal.Decimal  `json:"entry_price" db:"entry_price"` // 0–100
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty" db:"limit_price"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
}

// Account holds a user's balance in sweeps points. Only the matching engine
// and settlement mutate it, always inside the same transaction that changes
// the triggering position or event.
type Account struct {
	UserID    string          `json:"user_id" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// StartingBalance is the sweeps-points grant for a new account.
var StartingBalance = decimal.NewFromInt(5000)
