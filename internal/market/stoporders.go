package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/courtside/matchbook/internal/metrics"
	"github.com/courtside/matchbook/internal/model"
	"github.com/courtside/matchbook/internal/pricing"
	"github.com/courtside/matchbook/internal/store"
)

// SweepReport summarizes one pass of a periodic sweep.
type SweepReport struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// SweepStopOrders evaluates every resting limit order against the current
// quote and executes the ones that trigger. A buy position fires when the
// market price drops to or below its limit; a sell position fires when the
// market rises to or above it. Triggered positions are closed fill-or-kill
// at the market price and deleted.
//
// Each position is processed independently: a failure is logged and counted,
// and the sweep continues.
func (e *Engine) SweepStopOrders(ctx context.Context) (SweepReport, error) {
	positions, err := e.store.ListPositionsWithLimit(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("list limit positions: %w", err)
	}

	var report SweepReport
	for i := range positions {
		p := &positions[i]
		if !p.Outcome.Valid() {
			continue
		}

		triggered, err := e.fireStopOrder(ctx, p)
		if err != nil {
			report.Failed++
			metrics.SweepFailures.WithLabelValues("stop_orders").Inc()
			slog.Error("stop order failed", "position", p.ID, "event", p.EventID, "err", err)
			continue
		}
		if triggered {
			report.Processed++
			metrics.StopOrdersTriggered.Inc()
		}
	}
	return report, nil
}

// fireStopOrder checks one position's limit condition and, if met, closes it
// at market inside the event's critical section. Returns whether the
// position was closed.
func (e *Engine) fireStopOrder(ctx context.Context, p *model.Position) (bool, error) {
	ev, err := e.store.GetEvent(ctx, p.EventID)
	if err != nil {
		return false, err
	}
	if ev.Resolved {
		return false, nil
	}

	// Buy positions check the buy quote, sell positions the sell quote.
	quote, err := pricing.ForSide(ev.TotalYes, ev.TotalNo, p.Side)
	if err != nil {
		return false, err
	}
	marketPrice := quote.Yes
	if p.Outcome == model.OutcomeNo {
		marketPrice = quote.No
	}

	if !limitHit(p.Side, marketPrice, *p.LimitPrice) {
		return false, nil
	}

	lock := e.locks.get(p.EventID)
	lock.Lock()
	defer lock.Unlock()

	err = e.store.RunInTx(ctx, func(tx store.Store) error {
		transfer := marketPrice.Div(hundred).Mul(p.Amount)

		if p.Side == model.SideBuy {
			if err := tx.Debit(ctx, p.UserID, transfer); err != nil {
				if errors.Is(err, store.ErrInsufficientFunds) {
					// Leave the position for a later sweep.
					return fmt.Errorf("%w: close of %s", ErrInsufficientFunds, p.ID)
				}
				return err
			}
		} else {
			if err := tx.Credit(ctx, p.UserID, transfer); err != nil {
				return err
			}
		}
		return tx.DeletePosition(ctx, p.ID)
	})
	if err != nil {
		return false, err
	}

	slog.Info("stop order executed",
		"position", p.ID,
		"user", p.UserID,
		"event", p.EventID,
		"side", p.Side,
		"market_price", marketPrice.String(),
		"limit_price", p.LimitPrice.String(),
	)
	return true, nil
}

func limitHit(side model.Side, marketPrice, limitPrice decimal.Decimal) bool {
	if side == model.SideBuy {
		return marketPrice.LessThanOrEqual(limitPrice)
	}
	return marketPrice.GreaterThanOrEqual(limitPrice)
}
