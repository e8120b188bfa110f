package allocation

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"tributary/internal/distribution"
	"tributary/internal/snapshot"
)

func holders(pairs ...string) *snapshot.Snapshot {
	snap := &snapshot.Snapshot{Mint: "mint"}
	for i := 0; i+1 < len(pairs); i += 2 {
		snap.Holders = append(snap.Holders, snapshot.HolderBalance{
			Address: pairs[i],
			Balance: decimal.RequireFromString(pairs[i+1]),
		})
	}
	return snap
}

func TestAllocateEqualSplitsEvenly(t *testing.T) {
	snap := holders("aaa", "5", "bbb", "10", "ccc", "20")

	result, err := Allocate(snap, decimal.NewFromInt(99), distribution.ModeEqual)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(result.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(result.Entries))
	}
	for _, e := range result.Entries {
		if !e.Amount.Equal(decimal.NewFromInt(33)) {
			t.Fatalf("expected 33 per recipient, got %s for %s", e.Amount, e.Recipient)
		}
	}
	if !result.Remainder.IsZero() {
		t.Fatalf("expected zero remainder, got %s", result.Remainder)
	}
}

func TestAllocateEqualReportsRemainder(t *testing.T) {
	snap := holders("aaa", "1", "bbb", "1", "ccc", "1")

	result, err := Allocate(snap, decimal.NewFromInt(100), distribution.ModeEqual)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	for _, e := range result.Entries {
		if !e.Amount.Equal(decimal.NewFromInt(33)) {
			t.Fatalf("expected 33, got %s", e.Amount)
		}
	}
	if !result.Remainder.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected remainder 1, got %s", result.Remainder)
	}
}

func TestAllocateEqualOmitsAllWhenShareRoundsToZero(t *testing.T) {
	snap := holders("aaa", "1", "bbb", "1", "ccc", "1", "ddd", "1")

	result, err := Allocate(snap, decimal.NewFromInt(3), distribution.ModeEqual)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(result.Entries) != 0 {
		t.Fatalf("per-recipient share is 0; expected no entries, got %d", len(result.Entries))
	}
	if !result.Remainder.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected whole total as remainder, got %s", result.Remainder)
	}
}

func TestAllocateProportionalFloorsShares(t *testing.T) {
	// Balances 5/10/20: shares of 100 are floor(100*5/35)=14,
	// floor(100*10/35)=28, floor(100*20/35)=57, remainder 1.
	snap := holders("aaa", "5", "bbb", "10", "ccc", "20")

	result, err := Allocate(snap, decimal.NewFromInt(100), distribution.ModeProportional)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	want := map[string]int64{"aaa": 14, "bbb": 28, "ccc": 57}
	if len(result.Entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(result.Entries))
	}
	for _, e := range result.Entries {
		if !e.Amount.Equal(decimal.NewFromInt(want[e.Recipient])) {
			t.Fatalf("recipient %s: expected %d, got %s", e.Recipient, want[e.Recipient], e.Amount)
		}
	}
	if !result.Remainder.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected remainder 1, got %s", result.Remainder)
	}
}

func TestAllocateProportionalExactRatio(t *testing.T) {
	// Balances 100/200/300 with total 600: every ratio is exact, so the
	// full total is distributed and nothing remains.
	snap := holders("h1", "100", "h2", "200", "h3", "300")

	result, err := Allocate(snap, decimal.NewFromInt(600), distribution.ModeProportional)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	want := map[string]int64{"h1": 100, "h2": 200, "h3": 300}
	for _, e := range result.Entries {
		if !e.Amount.Equal(decimal.NewFromInt(want[e.Recipient])) {
			t.Fatalf("recipient %s: expected %d, got %s", e.Recipient, want[e.Recipient], e.Amount)
		}
	}
	if !result.Remainder.IsZero() {
		t.Fatalf("exact ratios leave no remainder, got %s", result.Remainder)
	}
}

func TestAllocateEqualSmallTotal(t *testing.T) {
	snap := holders("h1", "100", "h2", "200", "h3", "300")

	result, err := Allocate(snap, decimal.NewFromInt(10), distribution.ModeEqual)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	for _, e := range result.Entries {
		if !e.Amount.Equal(decimal.NewFromInt(3)) {
			t.Fatalf("expected 3 each, got %s", e.Amount)
		}
	}
	if !result.Remainder.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected 1 unit undistributed, got %s", result.Remainder)
	}
}

func TestAllocateProportionalOmitsZeroShares(t *testing.T) {
	snap := holders("aaa", "0", "bbb", "1", "ccc", "1000000")

	result, err := Allocate(snap, decimal.NewFromInt(10), distribution.ModeProportional)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	for _, e := range result.Entries {
		if e.Recipient == "aaa" || e.Recipient == "bbb" {
			t.Fatalf("recipient %s rounds to zero and must be omitted", e.Recipient)
		}
		if e.Amount.Sign() <= 0 {
			t.Fatalf("entry for %s has non-positive amount %s", e.Recipient, e.Amount)
		}
	}
}

func TestAllocateConservation(t *testing.T) {
	snap := holders("aaa", "7", "bbb", "13", "ccc", "29", "ddd", "31", "eee", "41")
	total := decimal.NewFromInt(123457)

	for _, mode := range []distribution.Mode{distribution.ModeEqual, distribution.ModeProportional} {
		result, err := Allocate(snap, total, mode)
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		sum := result.Remainder
		for _, e := range result.Entries {
			sum = sum.Add(e.Amount)
		}
		if !sum.Equal(total) {
			t.Fatalf("%s: entries + remainder = %s, want %s", mode, sum, total)
		}
		if result.Remainder.Sign() < 0 {
			t.Fatalf("%s: negative remainder %s", mode, result.Remainder)
		}
	}
}

func TestAllocateDeterministic(t *testing.T) {
	snap := holders("aaa", "17", "bbb", "23", "ccc", "91")
	total := decimal.NewFromInt(1000003)

	first, err := Allocate(snap, total, distribution.ModeProportional)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Allocate(snap, total, distribution.ModeProportional)
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		if len(again.Entries) != len(first.Entries) {
			t.Fatalf("entry count changed between runs")
		}
		for j := range again.Entries {
			// decimal.Decimal wraps a pointer, so compare by value.
			if again.Entries[j].Recipient != first.Entries[j].Recipient ||
				!again.Entries[j].Amount.Equal(first.Entries[j].Amount) {
				t.Fatalf("entry %d changed between runs: %+v vs %+v", j, again.Entries[j], first.Entries[j])
			}
		}
		if !again.Remainder.Equal(first.Remainder) {
			t.Fatalf("remainder changed between runs: %s vs %s", again.Remainder, first.Remainder)
		}
	}
}

func TestAllocateRejectsBadInput(t *testing.T) {
	snap := holders("aaa", "1")

	if _, err := Allocate(snap, decimal.NewFromInt(0), distribution.ModeEqual); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero total: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := Allocate(snap, decimal.NewFromInt(-5), distribution.ModeEqual); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative total: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := Allocate(snap, decimal.RequireFromString("1.5"), distribution.ModeEqual); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("fractional total: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := Allocate(&snapshot.Snapshot{}, decimal.NewFromInt(10), distribution.ModeEqual); !errors.Is(err, ErrEmptySnapshot) {
		t.Fatalf("empty snapshot: expected ErrEmptySnapshot, got %v", err)
	}
	if _, err := Allocate(snap, decimal.NewFromInt(10), distribution.Mode("weighted")); err == nil {
		t.Fatal("unknown mode must error")
	}
}
