package distribution

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mode selects how the total amount is split across recipients.
type Mode string

const (
	ModeEqual        Mode = "equal"
	ModeProportional Mode = "proportional"
)

// ParseMode validates a mode string from config or flags.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeEqual, ModeProportional:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown distribution mode %q", s)
}

// Status tracks a single recipient transfer through the execution state machine.
type Status string

const (
	StatusPending              Status = "pending"
	StatusSubmitting           Status = "submitting"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusRetryPending         Status = "retry_pending"
	StatusConfirmed            Status = "confirmed"
	StatusFailed               Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Entry is one recipient's share of a distribution.
type Entry struct {
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
}

// Request is an immutable description of one distribution run.
type Request struct {
	ID          uuid.UUID       `json:"id"`
	Mint        string          `json:"mint"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Mode        Mode            `json:"mode"`
	BatchSize   int             `json:"batch_size"`
	Entries     []Entry         `json:"entries"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewRequest assembles a request and enforces recipient uniqueness.
func NewRequest(mint string, total decimal.Decimal, mode Mode, batchSize int, entries []Entry) (Request, error) {
	if batchSize <= 0 {
		return Request{}, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if len(entries) == 0 {
		return Request{}, fmt.Errorf("request needs at least one entry")
	}

	seen := make(map[string]struct{}, len(entries))
	sum := decimal.Zero
	for _, e := range entries {
		if _, dup := seen[e.Recipient]; dup {
			return Request{}, fmt.Errorf("duplicate recipient %s", e.Recipient)
		}
		seen[e.Recipient] = struct{}{}
		sum = sum.Add(e.Amount)
	}
	if sum.GreaterThan(total) {
		return Request{}, fmt.Errorf("allocated %s exceeds total %s", sum, total)
	}

	return Request{
		ID:          uuid.New(),
		Mint:        mint,
		TotalAmount: total,
		Mode:        mode,
		BatchSize:   batchSize,
		Entries:     entries,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Result is the recorded outcome for one recipient. It is mutated only by the
// execution coordinator and never regresses out of a terminal status.
type Result struct {
	Recipient     string          `json:"recipient"`
	Amount        decimal.Decimal `json:"amount"`
	Status        Status          `json:"status"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Error         string          `json:"error,omitempty"`
	Attempts      int             `json:"attempts"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Record is one ledger entry: a request plus the per-recipient outcomes.
type Record struct {
	Request     Request    `json:"request"`
	Results     []Result   `json:"results"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Complete reports whether every result reached a terminal status.
func (r *Record) Complete() bool {
	for _, res := range r.Results {
		if !res.Status.Terminal() {
			return false
		}
	}
	return len(r.Results) > 0
}

// ConfirmedCount counts results in the confirmed state.
func (r *Record) ConfirmedCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusConfirmed {
			n++
		}
	}
	return n
}

// FailedCount counts results in the failed state.
func (r *Record) FailedCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			n++
		}
	}
	return n
}
