// Package schedule drives the periodic jobs: the stop-order sweep, the
// settlement sweep, and the automated trader pass.
package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/courtside/matchbook/internal/bot"
	"github.com/courtside/matchbook/internal/market"
)

// Runner schedules the background sweeps on cron expressions.
type Runner struct {
	cron    *cron.Cron
	baseCtx context.Context
}

// New creates a runner whose jobs inherit baseCtx. Cancelling baseCtx makes
// in-flight jobs wind down; Stop waits for them.
func New(baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(),
		baseCtx: baseCtx,
	}
}

// Add registers a job on a cron spec ("@every 10m" or standard five-field).
func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		job(r.baseCtx)
	})
}

// AddStopOrderSweep registers the stop-order sweep.
func (r *Runner) AddStopOrderSweep(eng *market.Engine, spec string) error {
	_, err := r.Add(spec, func(ctx context.Context) {
		report, err := eng.SweepStopOrders(ctx)
		if err != nil {
			slog.Error("stop-order sweep failed", "err", err)
			return
		}
		slog.Info("stop-order sweep done",
			"processed", report.Processed,
			"failed", report.Failed,
		)
	})
	return err
}

// AddSettlementSweep registers the settlement sweep.
func (r *Runner) AddSettlementSweep(eng *market.Engine, spec string) error {
	_, err := r.Add(spec, func(ctx context.Context) {
		report, err := eng.SettleEligibleEvents(ctx, time.Now().UTC())
		if err != nil {
			slog.Error("settlement sweep failed", "err", err)
			return
		}
		slog.Info("settlement sweep done",
			"settled", report.Processed,
			"failed", report.Failed,
		)
	})
	return err
}

// AddTraderPass registers the automated trader pass.
func (r *Runner) AddTraderPass(trader *bot.Trader, spec string) error {
	_, err := r.Add(spec, func(ctx context.Context) {
		placed, err := trader.PlaceBets(ctx, time.Now().UTC())
		if err != nil {
			slog.Error("trader pass failed", "err", err)
			return
		}
		slog.Info("trader pass done", "placed", placed)
	})
	return err
}

// Start begins the schedule. Jobs run in their own goroutines.
func (r *Runner) Start() {
	slog.Info("schedule started")
	r.cron.Start()
}

// Stop halts the schedule and waits for running jobs to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	slog.Info("schedule stopped")
}
