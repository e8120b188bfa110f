package gateway

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// splTokenAccountSize is the byte length of an SPL token account, used to
	// filter program accounts down to token accounts only.
	splTokenAccountSize = 165

	defaultPageSize       = 1000
	pageSessionTTL        = 5 * time.Minute
	defaultRequestTimeout = 15 * time.Second
)

// SolanaOptions parameterise the RPC gateway.
type SolanaOptions struct {
	Endpoint       string
	Mint           string
	AdminKeypair   string
	Commitment     string
	RequestTimeout time.Duration
	PageSize       int
	SkipPreflight  bool
	Retry          RetryPolicy
}

// Solana talks to a Solana JSON-RPC node via the solana-go SDK.
type Solana struct {
	client     *rpc.Client
	mint       solana.PublicKey
	admin      solana.PrivateKey
	adminATA   solana.PublicKey
	commitment rpc.CommitmentType
	timeout    time.Duration
	pageSize   int
	preflight  bool
	retry      RetryPolicy
	logger     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*pageSession
}

type pageSession struct {
	accounts  []TokenAccount
	createdAt time.Time
}

// NewSolana constructs the gateway, loading the admin keypair from disk and
// deriving its associated token account for the configured mint.
func NewSolana(opts SolanaOptions, logger zerolog.Logger) (*Solana, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("solana rpc endpoint is required")
	}

	mint, err := solana.PublicKeyFromBase58(opts.Mint)
	if err != nil {
		return nil, fmt.Errorf("parse mint address: %w", err)
	}

	admin, err := solana.PrivateKeyFromSolanaKeygenFile(opts.AdminKeypair)
	if err != nil {
		return nil, fmt.Errorf("load admin keypair: %w", err)
	}

	adminATA, _, err := solana.FindAssociatedTokenAddress(admin.PublicKey(), mint)
	if err != nil {
		return nil, fmt.Errorf("derive admin token account: %w", err)
	}

	commitment := rpc.CommitmentConfirmed
	if opts.Commitment != "" {
		commitment = rpc.CommitmentType(opts.Commitment)
	}

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	retry := opts.Retry
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}

	return &Solana{
		client:     rpc.New(opts.Endpoint),
		mint:       mint,
		admin:      admin,
		adminATA:   adminATA,
		commitment: commitment,
		timeout:    timeout,
		pageSize:   pageSize,
		preflight:  !opts.SkipPreflight,
		retry:      retry,
		logger:     logger.With().Str("component", "solana_gateway").Logger(),
		sessions:   make(map[string]*pageSession),
	}, nil
}

// FetchTokenAccounts lists holders of the configured mint. getProgramAccounts
// returns the full set in one response, so the first call fetches everything
// and subsequent cursors serve fixed-size slices from a short-lived session.
// This bounds what callers hold in flight without re-hitting the node per page.
func (g *Solana) FetchTokenAccounts(ctx context.Context, mint, cursor string) (Page, error) {
	if mint != g.mint.String() {
		return Page{}, fmt.Errorf("%w: gateway configured for mint %s", ErrInvalidAddress, g.mint)
	}

	if cursor != "" {
		return g.nextSessionPage(cursor)
	}

	if err := g.ensureMintExists(ctx); err != nil {
		return Page{}, err
	}

	accounts, err := g.fetchAllHolders(ctx)
	if err != nil {
		return Page{}, err
	}

	g.logger.Debug().Int("accounts", len(accounts)).Msg("fetched token accounts")
	return g.openSession(accounts), nil
}

func (g *Solana) ensureMintExists(ctx context.Context) error {
	return g.withRetry(ctx, "getAccountInfo", func(callCtx context.Context) error {
		info, err := g.client.GetAccountInfo(callCtx, g.mint)
		if err != nil {
			if errors.Is(err, rpc.ErrNotFound) {
				return fmt.Errorf("%w: mint %s", ErrNotFound, g.mint)
			}
			return err
		}
		if info.Value == nil {
			return fmt.Errorf("%w: mint %s", ErrNotFound, g.mint)
		}
		return nil
	})
}

func (g *Solana) fetchAllHolders(ctx context.Context) ([]TokenAccount, error) {
	var result rpc.GetProgramAccountsResult
	err := g.withRetry(ctx, "getProgramAccounts", func(callCtx context.Context) error {
		var rpcErr error
		result, rpcErr = g.client.GetProgramAccountsWithOpts(callCtx, solana.TokenProgramID, &rpc.GetProgramAccountsOpts{
			Commitment: g.commitment,
			Encoding:   solana.EncodingBase64,
			Filters: []rpc.RPCFilter{
				{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(g.mint[:])}},
				{DataSize: splTokenAccountSize},
			},
		})
		return rpcErr
	})
	if err != nil {
		return nil, err
	}

	accounts := make([]TokenAccount, 0, len(result))
	for _, keyed := range result {
		if keyed == nil || keyed.Account == nil {
			continue
		}
		data := keyed.Account.Data.GetBinary()
		if len(data) < splTokenAccountSize {
			continue
		}
		owner := solana.PublicKeyFromBytes(data[32:64])
		amount := binary.LittleEndian.Uint64(data[64:72])
		accounts = append(accounts, TokenAccount{
			Address: owner.String(),
			Balance: decimal.NewFromUint64(amount),
		})
	}
	return accounts, nil
}

func (g *Solana) openSession(accounts []TokenAccount) Page {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.evictStaleSessionsLocked()

	if len(accounts) <= g.pageSize {
		return Page{Accounts: accounts}
	}

	id := uuid.NewString()
	g.sessions[id] = &pageSession{accounts: accounts[g.pageSize:], createdAt: time.Now()}
	return Page{Accounts: accounts[:g.pageSize], NextCursor: id}
}

func (g *Solana) nextSessionPage(cursor string) (Page, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sess, ok := g.sessions[cursor]
	if !ok {
		return Page{}, fmt.Errorf("unknown or expired page cursor %q", cursor)
	}

	if len(sess.accounts) <= g.pageSize {
		delete(g.sessions, cursor)
		return Page{Accounts: sess.accounts}, nil
	}

	page := Page{Accounts: sess.accounts[:g.pageSize], NextCursor: cursor}
	sess.accounts = sess.accounts[g.pageSize:]
	return page, nil
}

func (g *Solana) evictStaleSessionsLocked() {
	cutoff := time.Now().Add(-pageSessionTTL)
	for id, sess := range g.sessions {
		if sess.createdAt.Before(cutoff) {
			delete(g.sessions, id)
		}
	}
}

// SubmitTransfer moves amount base units of the mint from the admin's token
// account to the recipient's associated token account, creating the latter
// when it does not exist yet.
func (g *Solana) SubmitTransfer(ctx context.Context, recipient string, amount decimal.Decimal) (string, error) {
	wallet, err := solana.PublicKeyFromBase58(recipient)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, recipient)
	}

	units, err := amountToUnits(amount)
	if err != nil {
		return "", err
	}

	recipientATA, _, err := solana.FindAssociatedTokenAddress(wallet, g.mint)
	if err != nil {
		return "", fmt.Errorf("derive recipient token account: %w", err)
	}

	instructions := make([]solana.Instruction, 0, 2)
	hasATA, err := g.accountExists(ctx, recipientATA)
	if err != nil {
		return "", err
	}
	if !hasATA {
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(
			g.admin.PublicKey(),
			wallet,
			g.mint,
		).Build())
	}

	instructions = append(instructions, token.NewTransferInstruction(
		units,
		g.adminATA,
		recipientATA,
		g.admin.PublicKey(),
		nil,
	).Build())

	var blockhash solana.Hash
	err = g.withRetry(ctx, "getLatestBlockhash", func(callCtx context.Context) error {
		out, rpcErr := g.client.GetLatestBlockhash(callCtx, g.commitment)
		if rpcErr != nil {
			return rpcErr
		}
		blockhash = out.Value.Blockhash
		return nil
	})
	if err != nil {
		return "", err
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(g.admin.PublicKey()))
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(g.admin.PublicKey()) {
			return &g.admin
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	var sig solana.Signature
	err = g.withRetry(ctx, "sendTransaction", func(callCtx context.Context) error {
		var rpcErr error
		sig, rpcErr = g.client.SendTransactionWithOpts(callCtx, tx, rpc.TransactionOpts{
			SkipPreflight:       !g.preflight,
			PreflightCommitment: g.commitment,
		})
		return rpcErr
	})
	if err != nil {
		return "", err
	}

	g.logger.Debug().Str("recipient", recipient).Str("signature", sig.String()).Msg("transfer submitted")
	return sig.String(), nil
}

// Confirm polls the signature status once. Unknown signatures count as still
// pending: the node may not have observed the transaction yet.
func (g *Solana) Confirm(ctx context.Context, txID string) (Confirmation, error) {
	sig, err := solana.SignatureFromBase58(txID)
	if err != nil {
		return Confirmation{}, fmt.Errorf("%w: transaction id %q", ErrInvalidAddress, txID)
	}

	var out *rpc.GetSignatureStatusesResult
	err = g.withRetry(ctx, "getSignatureStatuses", func(callCtx context.Context) error {
		var rpcErr error
		out, rpcErr = g.client.GetSignatureStatuses(callCtx, true, sig)
		return rpcErr
	})
	if err != nil {
		return Confirmation{}, err
	}

	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return Confirmation{State: ConfirmationPending}, nil
	}

	status := out.Value[0]
	if status.Err != nil {
		return Confirmation{State: ConfirmationFailed, Reason: fmt.Sprintf("%v", status.Err)}, nil
	}

	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return Confirmation{State: ConfirmationConfirmed}, nil
	default:
		return Confirmation{State: ConfirmationPending}, nil
	}
}

func (g *Solana) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	exists := false
	err := g.withRetry(ctx, "getAccountInfo", func(callCtx context.Context) error {
		info, rpcErr := g.client.GetAccountInfo(callCtx, account)
		if rpcErr != nil {
			if errors.Is(rpcErr, rpc.ErrNotFound) {
				exists = false
				return nil
			}
			return rpcErr
		}
		exists = info.Value != nil
		return nil
	})
	return exists, err
}

// withRetry applies the per-call timeout, classifies failures, and retries
// only the transient class.
func (g *Solana) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return g.retry.Do(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		if err := fn(callCtx); err != nil {
			return g.classify(op, err)
		}
		return nil
	})
}

func (g *Solana) classify(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidAddress), errors.Is(err, ErrInsufficientFunds):
		return err
	case isInsufficientFunds(err):
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	default:
		return &NetworkError{Op: op, Err: err}
	}
}

func isInsufficientFunds(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "insufficient funds") || strings.Contains(msg, "insufficient lamports")
}

func amountToUnits(amount decimal.Decimal) (uint64, error) {
	if !amount.IsInteger() || amount.Sign() <= 0 {
		return 0, fmt.Errorf("transfer amount must be a positive integer of base units, got %s", amount)
	}
	bi := amount.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("transfer amount %s overflows u64", amount)
	}
	return bi.Uint64(), nil
}

var _ Gateway = (*Solana)(nil)
