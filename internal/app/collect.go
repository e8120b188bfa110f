package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tributary/internal/snapshot"
)

// Collect builds a holder snapshot for the configured mint, or for the
// mint passed as an override.
func (a *App) Collect(ctx context.Context, opts CollectOptions) (*snapshot.Snapshot, error) {
	if a.Config.Solana.RPCURL == "" {
		return nil, fmt.Errorf("solana.rpc_url is required")
	}
	mint := a.Config.Solana.Mint
	if opts.Mint != "" {
		mint = opts.Mint
	}
	if mint == "" {
		return nil, fmt.Errorf("mint is required, set solana.mint or pass --mint")
	}

	gw, err := a.newGateway(mint)
	if err != nil {
		return nil, err
	}

	filters, err := a.resolveFilters(opts)
	if err != nil {
		return nil, err
	}

	builder := a.newBuilder(gw, !opts.NoCache)
	return builder.Build(ctx, mint, filters)
}

// resolveFilters merges CLI overrides onto the configured collection section.
func (a *App) resolveFilters(opts CollectOptions) (snapshot.Filters, error) {
	thresholdStr := a.Config.Collection.Threshold
	if opts.Threshold != "" {
		thresholdStr = opts.Threshold
	}
	if thresholdStr == "" {
		thresholdStr = "0"
	}

	threshold, err := decimal.NewFromString(thresholdStr)
	if err != nil {
		return snapshot.Filters{}, fmt.Errorf("parse threshold %q: %w", thresholdStr, err)
	}
	if threshold.Sign() < 0 {
		return snapshot.Filters{}, fmt.Errorf("threshold cannot be negative")
	}

	excluded := a.Config.Collection.ExcludeAddresses
	if len(opts.Exclude) > 0 {
		excluded = opts.Exclude
	}

	maxHolders := a.Config.Collection.MaxHolders
	if opts.MaxHolders > 0 {
		maxHolders = opts.MaxHolders
	}

	return snapshot.Filters{
		Threshold:  threshold,
		Excluded:   excluded,
		MaxHolders: maxHolders,
	}, nil
}
