package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"tributary/internal/distribution"
)

var (
	// ErrNotConfigured indicates the backing store was not initialised.
	ErrNotConfigured = errors.New("ledger: store not configured")
	// ErrDuplicateRequest indicates a request id already exists in the ledger.
	ErrDuplicateRequest = errors.New("ledger: duplicate request id")
	// ErrRecordNotFound indicates the requested record does not exist.
	ErrRecordNotFound = errors.New("ledger: record not found")
)

// Filter narrows history queries.
type Filter struct {
	Mint   string
	Status distribution.Status
	From   *time.Time
	To     *time.Time
	Limit  int
}

// Ledger is the append-only record of distribution runs and the single source
// of truth for per-recipient result state.
type Ledger interface {
	// Record creates a new distribution record with every result pending.
	// Fails with ErrDuplicateRequest when the request id already exists.
	Record(ctx context.Context, req distribution.Request) error

	// Get loads one record by request id.
	Get(ctx context.Context, id uuid.UUID) (*distribution.Record, error)

	// UpdateResult overwrites the result for one recipient. Safe to call
	// concurrently for different recipients; per recipient the last write
	// wins, except that a terminal status is never regressed.
	UpdateResult(ctx context.Context, id uuid.UUID, result distribution.Result) error

	// Finalize stamps the record completed once every result is terminal.
	// Calling it again, or before completion, is a no-op.
	Finalize(ctx context.Context, id uuid.UUID) error

	// Query streams matching records to fn without holding the whole ledger
	// in memory. A non-nil error from fn stops the walk.
	Query(ctx context.Context, filter Filter, fn func(*distribution.Record) error) error
}
