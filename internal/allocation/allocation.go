package allocation

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"

	"tributary/internal/distribution"
	"tributary/internal/snapshot"
)

var (
	// ErrEmptySnapshot indicates the snapshot has no holders left after filtering.
	ErrEmptySnapshot = errors.New("allocation: snapshot has no holders")
	// ErrInvalidAmount indicates a non-positive or fractional total amount.
	ErrInvalidAmount = errors.New("allocation: total amount must be a positive integer of base units")
)

// Result carries the computed entries plus the rounding remainder, which is
// reported but never distributed.
type Result struct {
	Entries   []distribution.Entry
	Remainder decimal.Decimal
}

// Allocate splits total across the snapshot's holders under the given mode.
// It is a pure function of its inputs: identical snapshot, total, and mode
// produce identical output on every call. All arithmetic is exact integer
// math at the token's smallest unit; the floor remainder is returned, never
// assigned to a recipient.
func Allocate(snap *snapshot.Snapshot, total decimal.Decimal, mode distribution.Mode) (Result, error) {
	if !total.IsInteger() || total.Sign() <= 0 {
		return Result{}, ErrInvalidAmount
	}
	if snap == nil || len(snap.Holders) == 0 {
		return Result{}, ErrEmptySnapshot
	}

	switch mode {
	case distribution.ModeEqual:
		return allocateEqual(snap, total), nil
	case distribution.ModeProportional:
		return allocateProportional(snap, total), nil
	default:
		return Result{}, errors.New("allocation: unknown mode " + string(mode))
	}
}

func allocateEqual(snap *snapshot.Snapshot, total decimal.Decimal) Result {
	count := big.NewInt(int64(len(snap.Holders)))
	per, rem := new(big.Int).QuoRem(total.BigInt(), count, new(big.Int))

	perRecipient := decimal.NewFromBigInt(per, 0)
	entries := make([]distribution.Entry, 0, len(snap.Holders))
	if perRecipient.Sign() > 0 {
		for _, h := range snap.Holders {
			entries = append(entries, distribution.Entry{Recipient: h.Address, Amount: perRecipient})
		}
	}

	return Result{Entries: entries, Remainder: decimal.NewFromBigInt(rem, 0)}
}

func allocateProportional(snap *snapshot.Snapshot, total decimal.Decimal) Result {
	sum := new(big.Int)
	for _, h := range snap.Holders {
		sum.Add(sum, h.Balance.BigInt())
	}
	if sum.Sign() == 0 {
		return Result{Remainder: total}
	}

	totalInt := total.BigInt()
	distributed := new(big.Int)
	entries := make([]distribution.Entry, 0, len(snap.Holders))
	for _, h := range snap.Holders {
		// floor(total * balance / sumBalances)
		share := new(big.Int).Mul(totalInt, h.Balance.BigInt())
		share.Quo(share, sum)
		if share.Sign() <= 0 {
			// Zero-balance (or rounded-to-zero) holders are omitted entirely.
			continue
		}
		distributed.Add(distributed, share)
		entries = append(entries, distribution.Entry{Recipient: h.Address, Amount: decimal.NewFromBigInt(share, 0)})
	}

	remainder := new(big.Int).Sub(totalInt, distributed)
	return Result{Entries: entries, Remainder: decimal.NewFromBigInt(remainder, 0)}
}
