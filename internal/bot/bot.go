// Package bot runs the automated trading participant. It interacts with the
// exchange only through the public engine contract — Quote and PlaceOrder —
// and delegates win-probability estimation to an injected Estimator, so the
// prediction model itself stays external.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/courtside/matchbook/internal/market"
	"github.com/courtside/matchbook/internal/model"
	"github.com/courtside/matchbook/internal/store"
)

// Estimator predicts the win probabilities for the two teams of a match.
// p1 + p2 should sum to 1.
type Estimator interface {
	WinProbabilities(ctx context.Context, team1, team2 string) (p1, p2 float64, err error)
}

// Trader places buy orders on events whose betting window is open, favouring
// the outcome the estimator prefers. Stake size shrinks as the predicted gap
// widens, to avoid piling onto near-certain outcomes at bad prices.
type Trader struct {
	store     store.Store
	engine    *market.Engine
	estimator Estimator
	userID    string
	rng       *rand.Rand
}

// NewTrader creates a bot trading as userID.
func NewTrader(st store.Store, eng *market.Engine, est Estimator, userID string) *Trader {
	return &Trader{
		store:     st,
		engine:    eng,
		estimator: est,
		userID:    userID,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// PlaceBets runs one pass: for every open event it asks the estimator for
// probabilities and submits a buy order at the quoted price. Per-event
// failures are logged and do not abort the pass. Returns the number of
// orders placed.
func (t *Trader) PlaceBets(ctx context.Context, now time.Time) (int, error) {
	events, err := t.store.ListUnresolvedEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}

	placed := 0
	for i := range events {
		ev := &events[i]

		match, err := t.store.GetMatch(ctx, ev.MatchID)
		if err != nil {
			slog.Error("bot: match lookup failed", "event", ev.ID, "err", err)
			continue
		}
		if now.After(match.BetEndTime) {
			continue
		}

		if err := t.betOnEvent(ctx, ev, match); err != nil {
			slog.Warn("bot: bet skipped", "event", ev.ID, "err", err)
			continue
		}
		placed++
	}
	return placed, nil
}

func (t *Trader) betOnEvent(ctx context.Context, ev *model.Event, match *model.Match) error {
	p1, p2, err := t.estimator.WinProbabilities(ctx, match.Team1, match.Team2)
	if err != nil {
		return fmt.Errorf("estimate %s vs %s: %w", match.Team1, match.Team2, err)
	}

	// "yes" is team1 winning.
	outcome := model.OutcomeYes
	gap := p1 - p2
	if p2 > p1 {
		outcome = model.OutcomeNo
		gap = p2 - p1
	}

	quantity := t.stake(gap)
	if !quantity.IsPositive() {
		return nil
	}

	quote, err := t.engine.Quote(ctx, ev.ID, model.SideBuy)
	if err != nil {
		return err
	}
	price := quote.Yes
	if outcome == model.OutcomeNo {
		price = quote.No
	}

	result, err := t.engine.PlaceOrder(ctx, market.OrderRequest{
		UserID:   t.userID,
		EventID:  ev.ID,
		Outcome:  outcome,
		Side:     model.SideBuy,
		Quantity: quantity,
		Price:    price,
	})
	if err != nil {
		return err
	}

	slog.Info("bot: bet placed",
		"event", ev.ID,
		"outcome", outcome,
		"qty", quantity.String(),
		"price", price.String(),
		"filled", result.FilledQuantity.String(),
	)
	return nil
}

// stake sizes a bet from a random 1–10 base, scaled down when the predicted
// probability gap is large.
func (t *Trader) stake(gap float64) decimal.Decimal {
	base := decimal.NewFromInt(int64(t.rng.Intn(10)) + 1)
	switch {
	case gap > 0.8:
		return base.Mul(decimal.NewFromFloat(0.5)).Floor()
	case gap > 0.6:
		return base.Mul(decimal.NewFromFloat(0.75)).Floor()
	default:
		return base
	}
}
