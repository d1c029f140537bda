// Package market implements the trading core: order matching with position
// netting, the stop-order sweep, and event settlement.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Every mutating operation is serialized per event and committed as one
// store transaction, so a concurrent reader never observes a half-applied
// order, netting pass, or settlement.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/courtside/matchbook/internal/metrics"
	"github.com/courtside/matchbook/internal/model"
	"github.com/courtside/matchbook/internal/oracle"
	"github.com/courtside/matchbook/internal/pricing"
	"github.com/courtside/matchbook/internal/store"
)

// DefaultSettleDelay is how long after tip-off an event becomes eligible for
// settlement.
const DefaultSettleDelay = 3 * time.Hour

var hundred = decimal.NewFromInt(100)

// Broadcaster pushes market updates to subscribers (WebSocket hub).
// Pass nil to disable broadcasting.
type Broadcaster interface {
	PriceUpdate(eventID string, yes, no decimal.Decimal)
	EventSettled(eventID, winner string)
}

// Engine executes orders against the position ledger and runs the two
// periodic sweeps. All mutating paths go through a per-event lock plus a
// store transaction.
type Engine struct {
	store       store.Store
	oracle      oracle.MatchOracle
	locks       *eventLocks
	hub         Broadcaster
	settleDelay time.Duration
}

// NewEngine creates an engine. Pass nil for hub if broadcasting is not
// needed; settleDelay <= 0 selects DefaultSettleDelay.
func NewEngine(st store.Store, orc oracle.MatchOracle, hub Broadcaster, settleDelay time.Duration) *Engine {
	if settleDelay <= 0 {
		settleDelay = DefaultSettleDelay
	}
	return &Engine{
		store:       st,
		oracle:      orc,
		locks:       newEventLocks(),
		hub:         hub,
		settleDelay: settleDelay,
	}
}

// OrderRequest is one order submission.
type OrderRequest struct {
	UserID     string           `json:"user_id"`
	EventID    string           `json:"event_id"`
	Outcome    model.Outcome    `json:"outcome"`
	Side       model.Side       `json:"side"`
	Quantity   decimal.Decimal  `json:"quantity"`
	Price      decimal.Decimal  `json:"price"` // 0–100
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
}

// OrderResult reports a committed order.
type OrderResult struct {
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	ProfitLoss     decimal.Decimal `json:"profit_or_loss"`
}

// Quote returns the current buy or sell quote for an event.
func (e *Engine) Quote(ctx context.Context, eventID string, side model.Side) (pricing.Quote, error) {
	if !side.Valid() {
		return pricing.Quote{}, fmt.Errorf("%w: side must be buy or sell", ErrInvalidInput)
	}
	ev, err := e.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return pricing.Quote{}, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
		}
		return pricing.Quote{}, err
	}
	return pricing.ForSide(ev.TotalYes, ev.TotalNo, side)
}

// PlaceOrder validates and executes an order as one atomic unit:
// netting against the user's opposing positions, opening or augmenting the
// remainder, debiting the buy cost, updating the event aggregates, and
// appending a price-history snapshot. Any failure rolls the whole order
// back — netting already computed included.
func (e *Engine) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	start := time.Now()
	res, err := e.placeOrder(ctx, req)
	if err != nil {
		metrics.OrderRejections.WithLabelValues(rejectReason(err)).Inc()
		return res, err
	}
	metrics.OrdersTotal.WithLabelValues(string(req.Side), string(req.Outcome)).Inc()
	metrics.OrderLatency.WithLabelValues(string(req.Side)).Observe(time.Since(start).Seconds())
	return res, nil
}

func (e *Engine) placeOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if err := validateOrder(req); err != nil {
		return OrderResult{}, err
	}

	lock := e.locks.get(req.EventID)
	lock.Lock()
	defer lock.Unlock()

	var (
		result  OrderResult
		snapYes decimal.Decimal
		snapNo  decimal.Decimal
	)

	err := e.store.RunInTx(ctx, func(tx store.Store) error {
		ev, err := tx.GetEvent(ctx, req.EventID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrEventNotFound, req.EventID)
			}
			return err
		}
		if ev.Resolved {
			return fmt.Errorf("%w: %s", ErrEventResolved, ev.ID)
		}

		acct, err := tx.GetAccount(ctx, req.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrUserNotFound, req.UserID)
			}
			return err
		}

		positions, err := tx.ListPositionsByUserAndEvent(ctx, req.UserID, req.EventID)
		if err != nil {
			return err
		}

		// Single-outcome-per-event invariant: reject the whole order,
		// nothing is netted.
		for _, p := range positions {
			if p.Outcome != req.Outcome {
				return fmt.Errorf("%w: existing position is %s", ErrConflictingOutcome, p.Outcome)
			}
		}

		// Net against opposing positions in retrieval order. Per-unit
		// P&L uses the request price against the position's entry price;
		// only the price difference is realized — the closed position's
		// entry cost is not refunded.
		remaining := req.Quantity
		pnl := decimal.Zero

		for i := range positions {
			p := &positions[i]
			if p.Side == req.Side || !p.Amount.IsPositive() {
				continue
			}
			if !remaining.IsPositive() {
				break
			}

			traded := remaining
			if p.Amount.LessThan(traded) {
				traded = p.Amount
			}
			pnl = pnl.Add(traded.Mul(req.Price.Sub(p.EntryPrice)).Div(hundred))

			if p.Amount.GreaterThan(remaining) {
				p.Amount = p.Amount.Sub(remaining)
				remaining = decimal.Zero
				if err := tx.UpdatePosition(ctx, p); err != nil {
					return err
				}
				break
			}
			remaining = remaining.Sub(p.Amount)
			if err := tx.DeletePosition(ctx, p.ID); err != nil {
				return err
			}
		}

		if !pnl.IsZero() {
			if err := tx.ApplyBalance(ctx, req.UserID, pnl); err != nil {
				return err
			}
		}

		// Open or augment the unmatched remainder. The balance check
		// covers netting and opening as one unit: it sees the balance
		// after the netting credit, and a failure rolls everything back.
		if remaining.IsPositive() {
			if req.Side == model.SideBuy {
				cost := req.Price.Div(hundred).Mul(remaining)
				if acct.Balance.Add(pnl).LessThan(cost) {
					return fmt.Errorf("%w: balance %s, cost %s",
						ErrInsufficientFunds, acct.Balance.Add(pnl), cost)
				}
				if err := tx.Debit(ctx, req.UserID, cost); err != nil {
					if errors.Is(err, store.ErrInsufficientFunds) {
						return fmt.Errorf("%w: %s", ErrInsufficientFunds, req.UserID)
					}
					return err
				}
			}

			if err := openOrAugment(ctx, tx, req, positions, remaining); err != nil {
				return err
			}
		}

		deltaYes, deltaNo := aggregateDeltas(req)
		if err := tx.UpdateAggregates(ctx, req.EventID, deltaYes, deltaNo); err != nil {
			return err
		}

		snapYes, snapNo = pricing.Snapshot(ev.TotalYes.Add(deltaYes), ev.TotalNo.Add(deltaNo))
		if err := tx.AppendPricePoint(ctx, &model.PricePoint{
			EventID:   req.EventID,
			Timestamp: time.Now().UTC(),
			YesPct:    snapYes,
			NoPct:     snapNo,
		}); err != nil {
			return err
		}

		result = OrderResult{
			FilledQuantity: req.Quantity,
			ProfitLoss:     pnl.Round(pricing.PriceScale),
		}
		return nil
	})
	if err != nil {
		return OrderResult{}, err
	}

	slog.Info("order executed",
		"user", req.UserID,
		"event", req.EventID,
		"outcome", req.Outcome,
		"side", req.Side,
		"qty", req.Quantity.String(),
		"price", req.Price.String(),
		"pnl", result.ProfitLoss.String(),
	)

	if e.hub != nil {
		e.hub.PriceUpdate(req.EventID, snapYes, snapNo)
	}
	return result, nil
}

// openOrAugment folds the remainder into an existing same-side position or
// creates a new one at the request price.
func openOrAugment(ctx context.Context, tx store.Store, req OrderRequest, positions []model.Position, remaining decimal.Decimal) error {
	for i := range positions {
		p := &positions[i]
		if p.Side != req.Side || p.Outcome != req.Outcome {
			continue
		}
		p.Amount = p.Amount.Add(remaining)
		if req.LimitPrice != nil {
			p.LimitPrice = req.LimitPrice
		}
		return tx.UpdatePosition(ctx, p)
	}

	return tx.CreatePosition(ctx, &model.Position{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		EventID:    req.EventID,
		Outcome:    req.Outcome,
		Side:       req.Side,
		Amount:     remaining,
		EntryPrice: req.Price,
		LimitPrice: req.LimitPrice,
		CreatedAt:  time.Now().UTC(),
	})
}

// aggregateDeltas maps the order onto signed open-interest deltas: buys add
// the full order quantity to the outcome's counter, sells subtract it.
func aggregateDeltas(req OrderRequest) (deltaYes, deltaNo decimal.Decimal) {
	qty := req.Quantity
	if req.Side == model.SideSell {
		qty = qty.Neg()
	}
	if req.Outcome == model.OutcomeYes {
		return qty, decimal.Zero
	}
	return decimal.Zero, qty
}

func validateOrder(req OrderRequest) error {
	switch {
	case !req.Side.Valid():
		return fmt.Errorf("%w: side must be buy or sell", ErrInvalidInput)
	case !req.Outcome.Valid():
		return fmt.Errorf("%w: outcome must be yes or no", ErrInvalidInput)
	case !req.Quantity.IsPositive():
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	case req.Price.IsNegative() || req.Price.GreaterThan(hundred):
		return fmt.Errorf("%w: price must be between 0 and 100", ErrInvalidInput)
	}
	return nil
}

// rejectReason labels order failures for metrics.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "validation"
	case errors.Is(err, ErrConflictingOutcome), errors.Is(err, ErrEventResolved):
		return "conflict"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrUserNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
