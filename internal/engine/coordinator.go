package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tributary/internal/distribution"
	"tributary/internal/gateway"
	"tributary/internal/ledger"
)

// Options tune one execution run.
type Options struct {
	BatchSize           int
	MaxRetries          int
	ConfirmPollInterval time.Duration
	// OnUpdate mirrors every ledger write, letting the caller render progress.
	OnUpdate func(distribution.Result)
}

// Coordinator drives a distribution request through batched, bounded-concurrency
// transfer submission with confirmation polling and bounded retries. The ledger
// receives an update after every state transition, so a crash mid-batch leaves
// a recoverable record of exactly which recipients are confirmed.
type Coordinator struct {
	gateway gateway.Gateway
	ledger  ledger.Ledger
	logger  zerolog.Logger
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(gw gateway.Gateway, led ledger.Ledger, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		gateway: gw,
		ledger:  led,
		logger:  logger.With().Str("component", "coordinator").Logger(),
	}
}

// workItem is one recipient moving through the state machine.
type workItem struct {
	result distribution.Result
}

// Execute runs (or resumes) the request. A duplicate request id resumes the
// existing ledger record: recipients already in a terminal state are skipped,
// everything else re-enters the state machine. Cancellation is observed
// between batches only; unexecuted entries stay pending for a later resume.
func (c *Coordinator) Execute(ctx context.Context, req distribution.Request, opts Options) (*distribution.Record, error) {
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.MaxRetries <= 0 {
		return nil, fmt.Errorf("max retries must be positive, got %d", opts.MaxRetries)
	}
	if opts.ConfirmPollInterval <= 0 {
		opts.ConfirmPollInterval = 2 * time.Second
	}

	resumed := false
	if err := c.ledger.Record(ctx, req); err != nil {
		if !errors.Is(err, ledger.ErrDuplicateRequest) {
			return nil, err
		}
		resumed = true
	}

	rec, err := c.ledger.Get(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	var work []*workItem
	for _, result := range rec.Results {
		if result.Status.Terminal() {
			continue
		}
		work = append(work, &workItem{result: result})
	}

	c.logger.Info().
		Stringer("request_id", req.ID).
		Bool("resumed", resumed).
		Int("total", len(rec.Results)).
		Int("outstanding", len(work)).
		Msg("starting execution")

	pool := pond.NewPool(opts.BatchSize)
	defer pool.StopAndWait()

	var runErr error
	for start := 0; start < len(work); start += opts.BatchSize {
		// Cancellation is honoured here, between batches, never mid-transfer.
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		end := start + opts.BatchSize
		if end > len(work) {
			end = len(work)
		}
		batch := work[start:end]

		group := pool.NewGroupContext(ctx)
		for _, item := range batch {
			item := item
			group.SubmitErr(func() error {
				return c.processEntry(ctx, req.ID, item, opts)
			})
		}

		if err := group.Wait(); err != nil {
			runErr = err
			break
		}

		c.logger.Debug().
			Stringer("request_id", req.ID).
			Int("batch_start", start).
			Int("batch_size", len(batch)).
			Msg("batch settled")
	}

	// The closing reads must survive cancellation; the caller needs the
	// record to print the resume id.
	closeCtx := context.WithoutCancel(ctx)
	if err := c.ledger.Finalize(closeCtx, req.ID); err != nil && runErr == nil {
		runErr = err
	}

	final, getErr := c.ledger.Get(closeCtx, req.ID)
	if getErr != nil && runErr == nil {
		runErr = getErr
	}
	return final, runErr
}

// processEntry walks one recipient through
// pending -> submitting -> awaiting_confirmation -> {confirmed|retry_pending|failed}.
// retry_pending loops back to submitting until attempts reaches MaxRetries.
func (c *Coordinator) processEntry(ctx context.Context, id uuid.UUID, item *workItem, opts Options) error {
	// A resumed entry that already has a transaction in flight goes straight
	// back to polling; resubmitting would risk a double transfer.
	if item.result.Status == distribution.StatusAwaitingConfirmation && item.result.TransactionID != "" {
		return c.pollConfirmation(ctx, id, item, opts)
	}

	for {
		item.result.Attempts++
		if err := c.transition(ctx, id, item, distribution.StatusSubmitting, "", opts); err != nil {
			return err
		}

		txID, err := c.gateway.SubmitTransfer(ctx, item.result.Recipient, item.result.Amount)
		if err != nil {
			if gateway.IsTransient(err) {
				if retryErr := c.handleTransient(ctx, id, item, opts, err); retryErr != nil {
					return retryErr
				}
				if item.result.Status == distribution.StatusFailed {
					return nil
				}
				continue
			}
			// Caller-input and funding failures are fatal per entry and
			// consume no retry.
			return c.transition(ctx, id, item, distribution.StatusFailed, err.Error(), opts)
		}

		item.result.TransactionID = txID
		if err := c.transition(ctx, id, item, distribution.StatusAwaitingConfirmation, "", opts); err != nil {
			return err
		}

		return c.pollConfirmation(ctx, id, item, opts)
	}
}

// pollConfirmation polls until the transaction reaches a terminal state. A
// transient polling failure keeps the signature and retries the status check;
// the submitted transaction may still land, so resubmitting here would risk a
// double transfer. On context cancellation or persistent polling failure the
// entry is left awaiting_confirmation in the ledger and picked up again on
// resume.
func (c *Coordinator) pollConfirmation(ctx context.Context, id uuid.UUID, item *workItem, opts Options) error {
	ticker := time.NewTicker(opts.ConfirmPollInterval)
	defer ticker.Stop()

	pollFailures := 0
	for {
		confirmation, err := c.gateway.Confirm(ctx, item.result.TransactionID)
		switch {
		case err == nil:
			pollFailures = 0
			switch confirmation.State {
			case gateway.ConfirmationConfirmed:
				return c.transition(ctx, id, item, distribution.StatusConfirmed, "", opts)
			case gateway.ConfirmationFailed:
				// Rejected by the network with a definite reason: terminal.
				return c.transition(ctx, id, item, distribution.StatusFailed, confirmation.Reason, opts)
			}
		case gateway.IsTransient(err):
			pollFailures++
			if pollFailures >= opts.MaxRetries {
				return fmt.Errorf("confirm %s for %s: %w", item.result.TransactionID, item.result.Recipient, err)
			}
			c.logger.Warn().
				Str("recipient", item.result.Recipient).
				Str("transaction_id", item.result.TransactionID).
				Err(err).
				Msg("confirmation poll failed, retrying")
		default:
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// handleTransient requeues a failed submission while it has retries left,
// otherwise marks it failed.
func (c *Coordinator) handleTransient(ctx context.Context, id uuid.UUID, item *workItem, opts Options, cause error) error {
	if item.result.Attempts >= opts.MaxRetries {
		return c.transition(ctx, id, item, distribution.StatusFailed, cause.Error(), opts)
	}
	item.result.TransactionID = ""
	return c.transition(ctx, id, item, distribution.StatusRetryPending, cause.Error(), opts)
}

func (c *Coordinator) transition(ctx context.Context, id uuid.UUID, item *workItem, status distribution.Status, errMsg string, opts Options) error {
	item.result.Status = status
	item.result.Error = errMsg
	item.result.UpdatedAt = time.Now().UTC()

	if err := c.ledger.UpdateResult(ctx, id, item.result); err != nil {
		return fmt.Errorf("record %s transition for %s: %w", status, item.result.Recipient, err)
	}

	c.logger.Debug().
		Stringer("request_id", id).
		Str("recipient", item.result.Recipient).
		Str("status", string(status)).
		Int("attempts", item.result.Attempts).
		Msg("state transition")

	if opts.OnUpdate != nil {
		opts.OnUpdate(item.result)
	}
	return nil
}
