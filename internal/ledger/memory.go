package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tributary/internal/distribution"
)

// Memory is an in-process ledger used by tests and dry runs. It honours the
// same contract as the Postgres implementation.
type Memory struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*distribution.Record
}

// NewMemory constructs an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{records: make(map[uuid.UUID]*distribution.Record)}
}

func (m *Memory) Record(_ context.Context, req distribution.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[req.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRequest, req.ID)
	}

	now := time.Now().UTC()
	results := make([]distribution.Result, len(req.Entries))
	for i, entry := range req.Entries {
		results[i] = distribution.Result{
			Recipient: entry.Recipient,
			Amount:    entry.Amount,
			Status:    distribution.StatusPending,
			UpdatedAt: now,
		}
	}

	m.records[req.ID] = &distribution.Record{Request: req, Results: results}
	return nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (*distribution.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return cloneRecord(rec), nil
}

func (m *Memory) UpdateResult(_ context.Context, id uuid.UUID, result distribution.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}

	for i := range rec.Results {
		if rec.Results[i].Recipient != result.Recipient {
			continue
		}
		if rec.Results[i].Status.Terminal() {
			// Terminal results never regress.
			return nil
		}
		rec.Results[i] = result
		return nil
	}
	return fmt.Errorf("%w: recipient %s in request %s", ErrRecordNotFound, result.Recipient, id)
}

func (m *Memory) Finalize(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if rec.CompletedAt != nil || !rec.Complete() {
		return nil
	}
	now := time.Now().UTC()
	rec.CompletedAt = &now
	return nil
}

func (m *Memory) Query(_ context.Context, filter Filter, fn func(*distribution.Record) error) error {
	m.mu.RLock()
	matched := make([]*distribution.Record, 0, len(m.records))
	for _, rec := range m.records {
		if matches(rec, filter) {
			matched = append(matched, cloneRecord(rec))
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Request.CreatedAt.After(matched[j].Request.CreatedAt)
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	for _, rec := range matched {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func matches(rec *distribution.Record, filter Filter) bool {
	if filter.Mint != "" && rec.Request.Mint != filter.Mint {
		return false
	}
	if filter.From != nil && rec.Request.CreatedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && !rec.Request.CreatedAt.Before(*filter.To) {
		return false
	}
	if filter.Status != "" {
		found := false
		for _, res := range rec.Results {
			if res.Status == filter.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func cloneRecord(rec *distribution.Record) *distribution.Record {
	clone := &distribution.Record{
		Request: rec.Request,
		Results: append([]distribution.Result(nil), rec.Results...),
	}
	clone.Request.Entries = append([]distribution.Entry(nil), rec.Request.Entries...)
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		clone.CompletedAt = &t
	}
	return clone
}

var _ Ledger = (*Memory)(nil)
