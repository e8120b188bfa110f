package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"tributary/internal/distribution"
)

//go:embed schema.sql
var schemaSQL string

const (
	insertRequestSQL = `INSERT INTO distribution_requests (
        id, mint, total_amount, mode, batch_size, created_at
    ) VALUES ($1,$2,$3,$4,$5,$6);`

	insertResultSQL = `INSERT INTO distribution_results (
        request_id, position, recipient, amount, status, attempts, updated_at
    ) VALUES ($1,$2,$3,$4,$5,0,$6);`

	selectRequestSQL = `SELECT id, mint, total_amount, mode, batch_size, created_at, completed_at
    FROM distribution_requests
    WHERE id = $1;`

	selectResultsSQL = `SELECT recipient, amount, status, transaction_id, error, attempts, updated_at
    FROM distribution_results
    WHERE request_id = $1
    ORDER BY position;`

	updateResultSQL = `UPDATE distribution_results
    SET status = $3,
        transaction_id = NULLIF($4, ''),
        error = NULLIF($5, ''),
        attempts = $6,
        updated_at = $7
    WHERE request_id = $1
      AND recipient = $2
      AND status NOT IN ('confirmed', 'failed');`

	finalizeSQL = `UPDATE distribution_requests
    SET completed_at = $2
    WHERE id = $1
      AND completed_at IS NULL
      AND NOT EXISTS (
          SELECT 1 FROM distribution_results
          WHERE request_id = $1 AND status NOT IN ('confirmed', 'failed')
      );`

	resultExistsSQL = `SELECT EXISTS (
        SELECT 1 FROM distribution_results
        WHERE request_id = $1 AND recipient = $2
    );`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Postgres persists distribution records in PostgreSQL via pgx.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wires a pgx pool into a ledger.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close releases the underlying pool resources.
func (p *Postgres) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

// Migrate applies the embedded schema. Statements are idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

func (p *Postgres) getPool() (*pgxpool.Pool, error) {
	if p == nil || p.pool == nil {
		return nil, ErrNotConfigured
	}
	return p.pool, nil
}

// Record inserts the request and one pending result per entry in a single
// transaction.
func (p *Postgres) Record(ctx context.Context, req distribution.Request) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, insertRequestSQL,
		req.ID,
		req.Mint,
		req.TotalAmount.String(),
		string(req.Mode),
		req.BatchSize,
		req.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateRequest, req.ID)
		}
		return fmt.Errorf("insert request: %w", err)
	}

	now := time.Now().UTC()
	for i, entry := range req.Entries {
		if _, err := tx.Exec(ctx, insertResultSQL,
			req.ID,
			i,
			entry.Recipient,
			entry.Amount.String(),
			string(distribution.StatusPending),
			now,
		); err != nil {
			return fmt.Errorf("insert result %s: %w", entry.Recipient, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit record tx: %w", err)
	}
	return nil
}

// Get loads a record; entries are reconstructed from the stored results in
// their original order.
func (p *Postgres) Get(ctx context.Context, id uuid.UUID) (*distribution.Record, error) {
	pool, err := p.getPool()
	if err != nil {
		return nil, err
	}

	rec, err := scanRequest(pool.QueryRow(ctx, selectRequestSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		return nil, err
	}

	if err := p.loadResults(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (p *Postgres) loadResults(ctx context.Context, rec *distribution.Record) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}

	rows, err := pool.Query(ctx, selectResultsSQL, rec.Request.ID)
	if err != nil {
		return fmt.Errorf("load results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return err
		}
		rec.Results = append(rec.Results, result)
		rec.Request.Entries = append(rec.Request.Entries, distribution.Entry{
			Recipient: result.Recipient,
			Amount:    result.Amount,
		})
	}
	return rows.Err()
}

// UpdateResult overwrites one recipient's result unless it already reached a
// terminal status; writes for different recipients never conflict. An unknown
// recipient is ErrRecordNotFound, matching the in-memory ledger.
func (p *Postgres) UpdateResult(ctx context.Context, id uuid.UUID, result distribution.Result) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}

	tag, err := pool.Exec(ctx, updateResultSQL,
		id,
		result.Recipient,
		string(result.Status),
		result.TransactionID,
		result.Error,
		result.Attempts,
		result.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update result %s: %w", result.Recipient, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows is either the guard holding a terminal result in place, which
	// is a no-op, or a recipient that was never part of the request.
	var exists bool
	if err := pool.QueryRow(ctx, resultExistsSQL, id, result.Recipient).Scan(&exists); err != nil {
		return fmt.Errorf("check result %s: %w", result.Recipient, err)
	}
	if !exists {
		return fmt.Errorf("%w: recipient %s in request %s", ErrRecordNotFound, result.Recipient, id)
	}
	return nil
}

// Finalize sets completed_at once all results are terminal; repeat calls and
// premature calls affect no rows.
func (p *Postgres) Finalize(ctx context.Context, id uuid.UUID) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, finalizeSQL, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("finalize request: %w", err)
	}
	return nil
}

// Query streams matching records ordered by creation time descending.
func (p *Postgres) Query(ctx context.Context, filter Filter, fn func(*distribution.Record) error) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}

	query := `SELECT id, mint, total_amount, mode, batch_size, created_at, completed_at
    FROM distribution_requests r
    WHERE ($1 = '' OR mint = $1)
      AND ($2::timestamptz IS NULL OR created_at >= $2)
      AND ($3::timestamptz IS NULL OR created_at < $3)
      AND ($4 = '' OR EXISTS (
          SELECT 1 FROM distribution_results
          WHERE request_id = r.id AND status = $4
      ))
    ORDER BY created_at DESC`

	args := []any{filter.Mint, filter.From, filter.To, string(filter.Status)}
	if filter.Limit > 0 {
		query += ` LIMIT $5`
		args = append(args, filter.Limit)
	}

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query records: %w", err)
	}

	var headers []*distribution.Record
	for rows.Next() {
		rec, err := scanRequest(rows)
		if err != nil {
			rows.Close()
			return err
		}
		headers = append(headers, rec)
	}
	rows.Close()
	if rows.Err() != nil {
		return rows.Err()
	}

	for _, rec := range headers {
		if err := p.loadResults(ctx, rec); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// TryAdvisoryLock attempts a postgres advisory lock and returns a release func.
// Used by the recurring runner so only one process executes distributions.
func (p *Postgres) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := p.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*distribution.Record, error) {
	var (
		id          uuid.UUID
		mint        string
		totalStr    string
		mode        string
		batchSize   int
		createdAt   time.Time
		completedAt sql.NullTime
	)

	if err := row.Scan(&id, &mint, &totalStr, &mode, &batchSize, &createdAt, &completedAt); err != nil {
		return nil, err
	}

	total, err := decimal.NewFromString(totalStr)
	if err != nil {
		return nil, fmt.Errorf("parse total amount: %w", err)
	}

	rec := &distribution.Record{
		Request: distribution.Request{
			ID:          id,
			Mint:        mint,
			TotalAmount: total,
			Mode:        distribution.Mode(mode),
			BatchSize:   batchSize,
			CreatedAt:   createdAt,
		},
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return rec, nil
}

func scanResult(rows pgx.Rows) (distribution.Result, error) {
	var (
		recipient string
		amountStr string
		status    string
		txID      sql.NullString
		errMsg    sql.NullString
		attempts  int
		updatedAt time.Time
	)

	if err := rows.Scan(&recipient, &amountStr, &status, &txID, &errMsg, &attempts, &updatedAt); err != nil {
		return distribution.Result{}, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return distribution.Result{}, fmt.Errorf("parse result amount: %w", err)
	}

	result := distribution.Result{
		Recipient: recipient,
		Amount:    amount,
		Status:    distribution.Status(status),
		Attempts:  attempts,
		UpdatedAt: updatedAt,
	}
	if txID.Valid {
		result.TransactionID = txID.String
	}
	if errMsg.Valid {
		result.Error = errMsg.String
	}
	return result, nil
}

var _ Ledger = (*Postgres)(nil)
