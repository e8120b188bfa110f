package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tributary/internal/gateway"
)

// fakeGateway serves scripted pages and records how many fetches happened.
type fakeGateway struct {
	pages   []gateway.Page
	fetches int
	failAt  int // 1-based fetch index that returns a network error; 0 disables
}

func (f *fakeGateway) FetchTokenAccounts(_ context.Context, _, cursor string) (gateway.Page, error) {
	f.fetches++
	if f.failAt > 0 && f.fetches == f.failAt {
		return gateway.Page{}, &gateway.NetworkError{Op: "getProgramAccounts", Err: errors.New("connection reset")}
	}

	idx := 0
	if cursor != "" {
		for i, p := range f.pages {
			if p.NextCursor == cursor {
				idx = i + 1
				break
			}
		}
	}
	if idx >= len(f.pages) {
		return gateway.Page{}, nil
	}
	return f.pages[idx], nil
}

func (f *fakeGateway) SubmitTransfer(context.Context, string, decimal.Decimal) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeGateway) Confirm(context.Context, string) (gateway.Confirmation, error) {
	return gateway.Confirmation{}, errors.New("not implemented")
}

func acct(addr, bal string) gateway.TokenAccount {
	return gateway.TokenAccount{Address: addr, Balance: decimal.RequireFromString(bal)}
}

func newTestBuilder(gw gateway.Gateway, cache *Cache, ttl time.Duration) *Builder {
	return NewBuilder(gw, cache, ttl, zerolog.Nop())
}

func TestBuildPagesAndSorts(t *testing.T) {
	gw := &fakeGateway{pages: []gateway.Page{
		{Accounts: []gateway.TokenAccount{acct("ccc", "30"), acct("aaa", "10")}, NextCursor: "p2"},
		{Accounts: []gateway.TokenAccount{acct("bbb", "20")}},
	}}

	snap, err := newTestBuilder(gw, nil, 0).Build(context.Background(), "mint", Filters{})
	require.NoError(t, err)
	require.Equal(t, 2, gw.fetches)

	require.Len(t, snap.Holders, 3)
	require.Equal(t, "aaa", snap.Holders[0].Address)
	require.Equal(t, "bbb", snap.Holders[1].Address)
	require.Equal(t, "ccc", snap.Holders[2].Address)
	require.False(t, snap.Truncated)
	require.True(t, snap.TotalBalance().Equal(decimal.NewFromInt(60)))
}

func TestBuildLastSeenBalanceWins(t *testing.T) {
	gw := &fakeGateway{pages: []gateway.Page{
		{Accounts: []gateway.TokenAccount{acct("aaa", "10")}, NextCursor: "p2"},
		{Accounts: []gateway.TokenAccount{acct("aaa", "99")}},
	}}

	snap, err := newTestBuilder(gw, nil, 0).Build(context.Background(), "mint", Filters{})
	require.NoError(t, err)
	require.Len(t, snap.Holders, 1)
	require.True(t, snap.Holders[0].Balance.Equal(decimal.NewFromInt(99)))
}

func TestBuildThresholdIsInclusive(t *testing.T) {
	gw := &fakeGateway{pages: []gateway.Page{
		{Accounts: []gateway.TokenAccount{acct("below", "9"), acct("exact", "10"), acct("above", "11")}},
	}}

	snap, err := newTestBuilder(gw, nil, 0).Build(context.Background(), "mint", Filters{
		Threshold: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	addrs := make([]string, 0, len(snap.Holders))
	for _, h := range snap.Holders {
		addrs = append(addrs, h.Address)
	}
	require.ElementsMatch(t, []string{"exact", "above"}, addrs)
}

func TestBuildExcludesAddresses(t *testing.T) {
	gw := &fakeGateway{pages: []gateway.Page{
		{Accounts: []gateway.TokenAccount{acct("treasury", "1000000"), acct("aaa", "5")}},
	}}

	snap, err := newTestBuilder(gw, nil, 0).Build(context.Background(), "mint", Filters{
		Excluded: []string{"treasury"},
	})
	require.NoError(t, err)
	require.Len(t, snap.Holders, 1)
	require.Equal(t, "aaa", snap.Holders[0].Address)
}

func TestBuildMaxHoldersKeepsLargest(t *testing.T) {
	gw := &fakeGateway{pages: []gateway.Page{
		{Accounts: []gateway.TokenAccount{
			acct("ddd", "40"), acct("aaa", "10"), acct("ccc", "30"), acct("bbb", "20"),
		}},
	}}

	snap, err := newTestBuilder(gw, nil, 0).Build(context.Background(), "mint", Filters{MaxHolders: 2})
	require.NoError(t, err)
	require.True(t, snap.Truncated)
	require.Len(t, snap.Holders, 2)
	// Largest two survive, re-sorted by address.
	require.Equal(t, "ccc", snap.Holders[0].Address)
	require.Equal(t, "ddd", snap.Holders[1].Address)
}

func TestBuildMaxHoldersTiesBreakByAddress(t *testing.T) {
	gw := &fakeGateway{pages: []gateway.Page{
		{Accounts: []gateway.TokenAccount{acct("zzz", "10"), acct("aaa", "10"), acct("mmm", "10")}},
	}}

	snap, err := newTestBuilder(gw, nil, 0).Build(context.Background(), "mint", Filters{MaxHolders: 2})
	require.NoError(t, err)
	require.Equal(t, "aaa", snap.Holders[0].Address)
	require.Equal(t, "mmm", snap.Holders[1].Address)
}

func TestBuildServesFromCache(t *testing.T) {
	gw := &fakeGateway{pages: []gateway.Page{
		{Accounts: []gateway.TokenAccount{acct("aaa", "10")}},
	}}
	builder := newTestBuilder(gw, NewCache(), time.Minute)

	first, err := builder.Build(context.Background(), "mint", Filters{})
	require.NoError(t, err)

	second, err := builder.Build(context.Background(), "mint", Filters{})
	require.NoError(t, err)
	require.Equal(t, 1, gw.fetches, "second build must not hit the gateway")
	require.Same(t, first, second)
}

func TestBuildCacheKeyedByFilters(t *testing.T) {
	gw := &fakeGateway{pages: []gateway.Page{
		{Accounts: []gateway.TokenAccount{acct("aaa", "10"), acct("bbb", "20")}},
	}}
	builder := newTestBuilder(gw, NewCache(), time.Minute)

	_, err := builder.Build(context.Background(), "mint", Filters{})
	require.NoError(t, err)

	// A different filter set must rebuild, not reuse.
	snap, err := builder.Build(context.Background(), "mint", Filters{Threshold: decimal.NewFromInt(15)})
	require.NoError(t, err)
	require.Equal(t, 2, gw.fetches)
	require.Len(t, snap.Holders, 1)
}

func TestBuildNetworkFailureAbortsAndCachesNothing(t *testing.T) {
	gw := &fakeGateway{
		pages: []gateway.Page{
			{Accounts: []gateway.TokenAccount{acct("aaa", "10")}, NextCursor: "p2"},
			{Accounts: []gateway.TokenAccount{acct("bbb", "20")}},
		},
		failAt: 2,
	}
	cache := NewCache()
	builder := newTestBuilder(gw, cache, time.Minute)

	_, err := builder.Build(context.Background(), "mint", Filters{})
	require.Error(t, err)

	var netErr *gateway.NetworkError
	require.ErrorAs(t, err, &netErr)

	// Retrying after the fault must rebuild from scratch, not serve a partial.
	gw.failAt = 0
	snap, err := builder.Build(context.Background(), "mint", Filters{})
	require.NoError(t, err)
	require.Len(t, snap.Holders, 2)
}
