package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tributary/internal/alerting"
	"tributary/internal/allocation"
	"tributary/internal/distribution"
	"tributary/internal/engine"
)

// Execute runs a full distribution: snapshot, allocation, batched transfers,
// ledger updates. With opts.Resume set it re-enters an existing request id
// instead of building a new plan; confirmed recipients are never re-submitted.
func (a *App) Execute(ctx context.Context, opts ExecuteOptions) (*distribution.Record, error) {
	if err := a.Config.RequireSigner(); err != nil {
		return nil, err
	}

	led, closeLedger, err := a.openLedger(ctx)
	if err != nil {
		return nil, err
	}
	if led == nil {
		return nil, errors.New("database.dsn not configured; execute needs the ledger")
	}
	defer closeLedger()

	var req distribution.Request
	if opts.Resume != "" {
		id, err := uuid.Parse(opts.Resume)
		if err != nil {
			return nil, fmt.Errorf("parse resume id %q: %w", opts.Resume, err)
		}
		rec, err := led.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		req = rec.Request
		a.Logger.Info().Stringer("request_id", id).Msg("resuming distribution run")
	} else {
		req, err = a.buildRequest(ctx, opts)
		if err != nil {
			return nil, err
		}
	}

	// Resumed requests carry their own mint, which may differ from config.
	gw, err := a.newGateway(req.Mint)
	if err != nil {
		return nil, err
	}

	batchSize := req.BatchSize
	if opts.BatchSize > 0 {
		batchSize = opts.BatchSize
	}

	coordinator := engine.NewCoordinator(gw, led, a.Logger)
	rec, runErr := coordinator.Execute(ctx, req, engine.Options{
		BatchSize:           batchSize,
		MaxRetries:          a.Config.Distribution.MaxRetries,
		ConfirmPollInterval: a.Config.Distribution.ConfirmPollInterval,
		OnUpdate: func(result distribution.Result) {
			a.Logger.Info().
				Str("recipient", result.Recipient).
				Str("status", string(result.Status)).
				Int("attempts", result.Attempts).
				Msg("recipient update")
		},
	})

	if rec != nil {
		a.notifyRun(ctx, rec, runErr)
	}
	return rec, runErr
}

func (a *App) buildRequest(ctx context.Context, opts ExecuteOptions) (distribution.Request, error) {
	snap, err := a.Collect(ctx, opts.Simulate.Collect)
	if err != nil {
		return distribution.Request{}, err
	}

	total, mode, err := a.resolvePlan(opts.Simulate)
	if err != nil {
		return distribution.Request{}, err
	}

	result, err := allocation.Allocate(snap, total, mode)
	if err != nil {
		return distribution.Request{}, err
	}
	if result.Remainder.Sign() > 0 {
		a.Logger.Warn().
			Str("remainder", result.Remainder.String()).
			Msg("rounding remainder stays undistributed")
	}

	batchSize := a.Config.Distribution.BatchSize
	if opts.BatchSize > 0 {
		batchSize = opts.BatchSize
	}

	return distribution.NewRequest(snap.Mint, total, mode, batchSize, result.Entries)
}

func (a *App) notifyRun(ctx context.Context, rec *distribution.Record, runErr error) {
	notifier := a.newNotifier()
	if notifier == nil {
		return
	}

	note := alerting.Notification{
		RequestID:   rec.Request.ID.String(),
		Mint:        rec.Request.Mint,
		TotalAmount: rec.Request.TotalAmount,
		Mode:        string(rec.Request.Mode),
		Recipients:  len(rec.Results),
		Confirmed:   rec.ConfirmedCount(),
		Failed:      rec.FailedCount(),
		Remainder:   remainderOf(rec),
	}
	if rec.CompletedAt != nil {
		note.CompletedAt = *rec.CompletedAt
	}
	if runErr != nil {
		note.ErrorMsg = runErr.Error()
	}

	// Notify even when ctx was cancelled mid-run; the summary is the operator's
	// pointer to the resumable request id.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	if err := notifier.Notify(notifyCtx, note); err != nil {
		a.Logger.Error().Err(err).Msg("run notification failed")
	}
}

func remainderOf(rec *distribution.Record) decimal.Decimal {
	remainder := rec.Request.TotalAmount
	for _, entry := range rec.Request.Entries {
		remainder = remainder.Sub(entry.Amount)
	}
	return remainder
}
