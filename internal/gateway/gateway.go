package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// TokenAccount pairs a holder wallet with its raw balance (base units) for one mint.
type TokenAccount struct {
	Address string
	Balance decimal.Decimal
}

// Page is one chunk of a paginated holder listing. An empty NextCursor means the
// listing is exhausted.
type Page struct {
	Accounts   []TokenAccount
	NextCursor string
}

// ConfirmationState classifies the network's view of a submitted transaction.
type ConfirmationState int

const (
	ConfirmationPending ConfirmationState = iota
	ConfirmationConfirmed
	ConfirmationFailed
)

// Confirmation is the result of polling a transaction.
type Confirmation struct {
	State  ConfirmationState
	Reason string
}

// Gateway is the only component allowed to reach the network. Implementations
// retry transient transport failures internally and surface everything else
// unchanged; they interpret no business rules.
type Gateway interface {
	// FetchTokenAccounts lists holder accounts of a mint one page at a time.
	// Pass an empty cursor to start; an empty NextCursor in the returned page
	// ends the walk. Returns ErrNotFound when the mint does not exist.
	FetchTokenAccounts(ctx context.Context, mint, cursor string) (Page, error)

	// SubmitTransfer sends amount base units of the configured mint from the
	// admin account to recipient and returns the transaction id.
	SubmitTransfer(ctx context.Context, recipient string, amount decimal.Decimal) (string, error)

	// Confirm polls the status of a previously submitted transaction. Safe to
	// call repeatedly until a terminal state is observed.
	Confirm(ctx context.Context, txID string) (Confirmation, error)
}
