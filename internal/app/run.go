package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"tributary/internal/scheduler"
	"tributary/internal/service"
)

// Run starts the recurring distribution daemon. Each round collects a fresh
// snapshot and executes a new distribution of the configured amount.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Config.RequireSigner(); err != nil {
		return err
	}

	amount := a.Config.Scheduler.RunAmount
	if opts.Amount != "" {
		amount = opts.Amount
	}
	if amount == "" {
		return errors.New("scheduler.run_amount (or --amount) is required for the daemon")
	}

	mode := a.Config.Distribution.Mode
	if opts.Mode != "" {
		mode = opts.Mode
	}

	interval := a.Config.Scheduler.Interval
	if opts.Interval > 0 {
		interval = opts.Interval
	}

	led, closeLedger, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	if led == nil {
		return errors.New("database.dsn not configured; the daemon needs the ledger")
	}
	defer closeLedger()

	sched := scheduler.New(scheduler.Options{
		Interval:     interval,
		AlignToStart: a.Config.Scheduler.AlignToInterval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	roundFn := func(ctx context.Context, round time.Time) error {
		rec, err := a.Execute(ctx, ExecuteOptions{
			Simulate: SimulateOptions{TotalAmount: amount, Mode: mode},
		})
		if err != nil {
			return err
		}
		a.Logger.Info().
			Time("round", round).
			Stringer("request_id", rec.Request.ID).
			Int("confirmed", rec.ConfirmedCount()).
			Int("failed", rec.FailedCount()).
			Msg("round complete")
		return nil
	}

	daemon := service.New(sched, roundFn, led, a.Config.Scheduler.AdvisoryLockKey, a.Logger)

	a.Logger.Info().
		Dur("interval", interval).
		Str("amount", amount).
		Str("mode", mode).
		Msg("distribution daemon starting")

	return daemon.Run(ctx)
}
