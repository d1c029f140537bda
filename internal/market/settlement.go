package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/courtside/matchbook/internal/metrics"
	"github.com/courtside/matchbook/internal/model"
	"github.com/courtside/matchbook/internal/oracle"
	"github.com/courtside/matchbook/internal/store"
)

// SettleEligibleEvents sweeps unresolved events whose match ended at least
// the eligibility delay ago, fetches the result from the oracle, and pays
// out. Oracle unavailability is not fatal: the event stays unresolved and is
// retried on the next pass. Per-event failures are logged and counted
// without aborting the sweep.
func (e *Engine) SettleEligibleEvents(ctx context.Context, now time.Time) (SweepReport, error) {
	events, err := e.store.ListUnresolvedEvents(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("list unresolved events: %w", err)
	}

	var report SweepReport
	for i := range events {
		ev := &events[i]

		err := e.SettleEvent(ctx, ev.ID, now)
		switch {
		case err == nil:
			report.Processed++
		case errors.Is(err, ErrNotYetEligible), errors.Is(err, ErrEventResolved):
			// Not yet due, or raced with another settler.
		case errors.Is(err, ErrOracleUnavailable):
			report.Failed++
			slog.Warn("settlement deferred", "event", ev.ID, "err", err)
		default:
			report.Failed++
			metrics.SweepFailures.WithLabelValues("settlement").Inc()
			slog.Error("settlement failed", "event", ev.ID, "err", err)
		}
	}
	return report, nil
}

// SettleEvent settles one event: obtains the final result, distributes
// payouts to every open position, deletes them, and marks the event
// resolved — all as one atomic unit. Once resolved, re-invocation is a
// no-op (ErrEventResolved).
//
// Draw policy: buy positions are refunded their entry cost, sell positions
// close with no transfer, and the event resolves with winner "draw".
func (e *Engine) SettleEvent(ctx context.Context, eventID string, now time.Time) error {
	ev, err := e.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
		}
		return err
	}
	if ev.Resolved {
		return fmt.Errorf("%w: %s", ErrEventResolved, eventID)
	}

	match, err := e.store.GetMatch(ctx, ev.MatchID)
	if err != nil {
		return fmt.Errorf("match for event %s: %w", eventID, err)
	}
	if now.Before(match.MatchTime.Add(e.settleDelay)) {
		return fmt.Errorf("%w: eligible at %s", ErrNotYetEligible,
			match.MatchTime.Add(e.settleDelay).Format(time.RFC3339))
	}

	// Oracle I/O happens before the per-event critical section.
	result, err := e.oracle.GetResult(ctx, match.Team1, match.Team2)
	if err != nil || !result.Final() {
		return fmt.Errorf("%w: %s vs %s (%s): %v",
			ErrOracleUnavailable, match.Team1, match.Team2, result, err)
	}

	winningOutcome, winner := mapResult(result, match)

	lock := e.locks.get(eventID)
	lock.Lock()
	defer lock.Unlock()

	err = e.store.RunInTx(ctx, func(tx store.Store) error {
		// Re-check under the lock: another trigger may have settled it.
		current, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if current.Resolved {
			return fmt.Errorf("%w: %s", ErrEventResolved, eventID)
		}

		positions, err := tx.ListPositionsByEvent(ctx, eventID)
		if err != nil {
			return err
		}

		for i := range positions {
			p := &positions[i]
			delta := payout(p, winningOutcome)
			if !delta.IsZero() {
				// Settlement losses bypass the non-negative floor.
				if err := tx.ApplyBalance(ctx, p.UserID, delta); err != nil {
					return err
				}
			}
			if err := tx.DeletePosition(ctx, p.ID); err != nil {
				return err
			}
		}

		return tx.MarkResolved(ctx, eventID, winner)
	})
	if err != nil {
		return err
	}

	metrics.EventsSettled.Inc()
	slog.Info("event settled",
		"event", eventID,
		"winner", winner,
		"result", result,
	)
	if e.hub != nil {
		e.hub.EventSettled(eventID, winner)
	}
	return nil
}

// mapResult translates the oracle result into the winning outcome and the
// recorded winner name. "yes" means team1 wins.
func mapResult(r oracle.Result, m *model.Match) (model.Outcome, string) {
	switch r {
	case oracle.HomeWin:
		return model.OutcomeYes, m.Team1
	case oracle.AwayWin:
		return model.OutcomeNo, m.Team2
	default:
		return "", "draw"
	}
}

// payout computes the signed balance change for one position at settlement.
//
//	winning buy:  +amount·(100−entry)/100
//	winning sell: +amount·entry/100
//	losing buy:   −amount·entry/100
//	losing sell:  −amount·(100−entry)/100
//	draw:          buys refunded entry cost, sells unwound for free
func payout(p *model.Position, winningOutcome model.Outcome) decimal.Decimal {
	entryFrac := p.EntryPrice.Div(hundred)
	inverseFrac := hundred.Sub(p.EntryPrice).Div(hundred)

	if winningOutcome == "" { // draw
		if p.Side == model.SideBuy {
			return p.Amount.Mul(entryFrac)
		}
		return decimal.Zero
	}

	won := p.Outcome == winningOutcome
	switch {
	case won && p.Side == model.SideBuy:
		return p.Amount.Mul(inverseFrac)
	case won:
		return p.Amount.Mul(entryFrac)
	case p.Side == model.SideBuy:
		return p.Amount.Mul(entryFrac).Neg()
	default:
		return p.Amount.Mul(inverseFrac).Neg()
	}
}
