package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tributary/internal/allocation"
	"tributary/internal/distribution"
)

// Simulate computes the allocation a run would execute, without touching the
// ledger or submitting anything. Identical inputs yield the identical plan
// the execute command acts on.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) (allocation.Result, error) {
	snap, err := a.Collect(ctx, opts.Collect)
	if err != nil {
		return allocation.Result{}, err
	}

	total, mode, err := a.resolvePlan(opts)
	if err != nil {
		return allocation.Result{}, err
	}

	return allocation.Allocate(snap, total, mode)
}

// resolvePlan parses the amount and mode, falling back to configured defaults.
func (a *App) resolvePlan(opts SimulateOptions) (decimal.Decimal, distribution.Mode, error) {
	if opts.TotalAmount == "" {
		return decimal.Decimal{}, "", fmt.Errorf("--amount is required")
	}
	total, err := decimal.NewFromString(opts.TotalAmount)
	if err != nil {
		return decimal.Decimal{}, "", fmt.Errorf("parse amount %q: %w", opts.TotalAmount, err)
	}

	modeStr := opts.Mode
	if modeStr == "" {
		modeStr = a.Config.Distribution.Mode
	}
	mode, err := distribution.ParseMode(modeStr)
	if err != nil {
		return decimal.Decimal{}, "", err
	}

	return total, mode, nil
}
