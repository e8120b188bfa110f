package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tributary/internal/alerting"
	"tributary/internal/config"
	"tributary/internal/gateway"
	"tributary/internal/ledger"
	"tributary/internal/snapshot"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	cache *snapshot.Cache
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		cache:  snapshot.NewCache(),
	}
}

func (a *App) newGateway(mint string) (gateway.Gateway, error) {
	sol := a.Config.Solana
	return gateway.NewSolana(gateway.SolanaOptions{
		Endpoint:       sol.RPCURL,
		Mint:           mint,
		AdminKeypair:   sol.AdminKeypair,
		Commitment:     sol.Commitment,
		RequestTimeout: sol.RequestTimeout,
		PageSize:       sol.PageSize,
		SkipPreflight:  sol.SkipPreflight,
		Retry:          gateway.RetryPolicy{MaxAttempts: sol.RetryAttempts},
	}, a.Logger)
}

func (a *App) newBuilder(gw gateway.Gateway, useCache bool) *snapshot.Builder {
	ttl := a.Config.Collection.CacheTTL
	cache := a.cache
	if !useCache {
		cache = nil
	}
	return snapshot.NewBuilder(gw, cache, ttl, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

// openLedger connects the Postgres ledger and applies the schema. Returns a
// nil ledger when no DSN is configured.
func (a *App) openLedger(ctx context.Context) (*ledger.Postgres, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := ledger.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	led := ledger.NewPostgres(pool)
	if err := led.Migrate(ctx); err != nil {
		led.Close()
		return nil, nil, err
	}

	closer := func() {
		led.Close()
	}
	return led, closer, nil
}

// CollectOptions parameterise the collect operation; zero values fall back to
// the configured collection section.
type CollectOptions struct {
	Mint       string
	Threshold  string
	Exclude    []string
	MaxHolders int
	NoCache    bool
}

// SimulateOptions parameterise a dry allocation run.
type SimulateOptions struct {
	Collect     CollectOptions
	TotalAmount string
	Mode        string
}

// ExecuteOptions parameterise a full distribution run.
type ExecuteOptions struct {
	Simulate  SimulateOptions
	BatchSize int
	Resume    string
}

// RunOptions tune the recurring daemon; zero values fall back to the
// scheduler section.
type RunOptions struct {
	Amount   string
	Mode     string
	Interval time.Duration
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Mint   string
	Status string
	From   *time.Time
	To     *time.Time
	Limit  int
}

// ExportOptions hold parameters for exporting historical runs.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	CSVPath   string
	PNGPath   string
	MaxPoints int
}
