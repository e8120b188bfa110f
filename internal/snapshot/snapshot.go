package snapshot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tributary/internal/gateway"
)

// HolderBalance is one holder's raw balance at capture time.
type HolderBalance struct {
	Address string          `json:"address"`
	Balance decimal.Decimal `json:"balance"`
}

// Filters are the rules applied while collecting holders. They form part of
// the cache key: a snapshot is only reused for an identical filter set.
type Filters struct {
	Threshold  decimal.Decimal `json:"threshold"`
	Excluded   []string        `json:"excluded,omitempty"`
	MaxHolders int             `json:"max_holders,omitempty"`
}

func (f Filters) cacheKey(mint string) string {
	excluded := append([]string(nil), f.Excluded...)
	sort.Strings(excluded)
	return fmt.Sprintf("%s|%s|%s|%d", mint, f.Threshold.String(), strings.Join(excluded, ","), f.MaxHolders)
}

// Snapshot is an immutable capture of holder balances for one mint. Holders
// are sorted ascending by address so downstream allocation and batch order
// are reproducible across runs.
type Snapshot struct {
	Mint       string          `json:"mint"`
	CapturedAt time.Time       `json:"captured_at"`
	Holders    []HolderBalance `json:"holders"`
	Filters    Filters         `json:"filters"`
	Truncated  bool            `json:"truncated,omitempty"`
}

// TotalBalance sums all holder balances in the snapshot.
func (s *Snapshot) TotalBalance() decimal.Decimal {
	total := decimal.Zero
	for _, h := range s.Holders {
		total = total.Add(h.Balance)
	}
	return total
}

// Builder pages holder accounts through the gateway and materialises filtered,
// deterministic snapshots, optionally served from a TTL cache.
type Builder struct {
	gateway gateway.Gateway
	cache   *Cache
	ttl     time.Duration
	logger  zerolog.Logger
}

// NewBuilder constructs a Builder. A nil cache or non-positive ttl disables caching.
func NewBuilder(gw gateway.Gateway, cache *Cache, ttl time.Duration, logger zerolog.Logger) *Builder {
	return &Builder{
		gateway: gw,
		cache:   cache,
		ttl:     ttl,
		logger:  logger.With().Str("component", "snapshot_builder").Logger(),
	}
}

// Build collects the current holder set for mint under the given filters.
// Any network failure while paging aborts the whole build: no partial
// snapshot is cached or returned.
func (b *Builder) Build(ctx context.Context, mint string, filters Filters) (*Snapshot, error) {
	key := filters.cacheKey(mint)
	if b.cacheEnabled() {
		if snap, ok := b.cache.Get(key); ok {
			b.logger.Debug().Str("mint", mint).Msg("snapshot served from cache")
			return snap, nil
		}
	}

	byAddress := make(map[string]decimal.Decimal)
	cursor := ""
	pages := 0
	for {
		page, err := b.gateway.FetchTokenAccounts(ctx, mint, cursor)
		if err != nil {
			return nil, fmt.Errorf("fetch token accounts: %w", err)
		}
		pages++

		// Duplicate addresses across pages are possible when the holder set
		// shifts mid-walk; the last-seen balance wins.
		for _, acc := range page.Accounts {
			byAddress[acc.Address] = acc.Balance
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	excluded := make(map[string]struct{}, len(filters.Excluded))
	for _, addr := range filters.Excluded {
		excluded[addr] = struct{}{}
	}

	holders := make([]HolderBalance, 0, len(byAddress))
	for addr, balance := range byAddress {
		if _, skip := excluded[addr]; skip {
			continue
		}
		if balance.LessThan(filters.Threshold) {
			continue
		}
		holders = append(holders, HolderBalance{Address: addr, Balance: balance})
	}

	sort.Slice(holders, func(i, j int) bool {
		return holders[i].Address < holders[j].Address
	})

	truncated := false
	if filters.MaxHolders > 0 && len(holders) > filters.MaxHolders {
		holders = keepLargest(holders, filters.MaxHolders)
		truncated = true
	}

	snap := &Snapshot{
		Mint:       mint,
		CapturedAt: time.Now().UTC(),
		Holders:    holders,
		Filters:    filters,
		Truncated:  truncated,
	}

	b.logger.Info().
		Str("mint", mint).
		Int("pages", pages).
		Int("holders", len(holders)).
		Bool("truncated", truncated).
		Msg("snapshot built")

	if b.cacheEnabled() {
		b.cache.Put(key, snap, b.ttl)
	}

	return snap, nil
}

func (b *Builder) cacheEnabled() bool {
	return b.cache != nil && b.ttl > 0
}

// keepLargest retains the max highest balances (ties broken by address
// ascending) and restores the canonical address ordering afterwards.
func keepLargest(holders []HolderBalance, max int) []HolderBalance {
	byBalance := append([]HolderBalance(nil), holders...)
	sort.Slice(byBalance, func(i, j int) bool {
		if !byBalance[i].Balance.Equal(byBalance[j].Balance) {
			return byBalance[i].Balance.GreaterThan(byBalance[j].Balance)
		}
		return byBalance[i].Address < byBalance[j].Address
	})

	kept := byBalance[:max]
	sort.Slice(kept, func(i, j int) bool {
		return kept[i].Address < kept[j].Address
	})
	return kept
}
