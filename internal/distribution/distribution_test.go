package distribution

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewRequestValidation(t *testing.T) {
	entries := []Entry{
		{Recipient: "aaa", Amount: decimal.NewFromInt(4)},
		{Recipient: "bbb", Amount: decimal.NewFromInt(6)},
	}

	req, err := NewRequest("mint", decimal.NewFromInt(10), ModeEqual, 2, entries)
	if err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
	if req.ID.String() == "" || req.CreatedAt.IsZero() {
		t.Fatal("request must get an id and timestamp")
	}

	if _, err := NewRequest("mint", decimal.NewFromInt(10), ModeEqual, 0, entries); err == nil {
		t.Fatal("zero batch size must be rejected")
	}
	if _, err := NewRequest("mint", decimal.NewFromInt(10), ModeEqual, 2, nil); err == nil {
		t.Fatal("empty entries must be rejected")
	}
	if _, err := NewRequest("mint", decimal.NewFromInt(9), ModeEqual, 2, entries); err == nil {
		t.Fatal("allocations above the total must be rejected")
	}

	dup := []Entry{
		{Recipient: "aaa", Amount: decimal.NewFromInt(1)},
		{Recipient: "aaa", Amount: decimal.NewFromInt(1)},
	}
	if _, err := NewRequest("mint", decimal.NewFromInt(10), ModeEqual, 2, dup); err == nil {
		t.Fatal("duplicate recipients must be rejected")
	}
}

func TestParseMode(t *testing.T) {
	if _, err := ParseMode("equal"); err != nil {
		t.Fatalf("equal: %v", err)
	}
	if _, err := ParseMode("proportional"); err != nil {
		t.Fatalf("proportional: %v", err)
	}
	if _, err := ParseMode("weighted"); err == nil {
		t.Fatal("unknown mode must error")
	}
}

func TestStatusTerminal(t *testing.T) {
	for status, terminal := range map[Status]bool{
		StatusPending:              false,
		StatusSubmitting:           false,
		StatusAwaitingConfirmation: false,
		StatusRetryPending:         false,
		StatusConfirmed:            true,
		StatusFailed:               true,
	} {
		if status.Terminal() != terminal {
			t.Fatalf("%s: terminal should be %v", status, terminal)
		}
	}
}

func TestRecordCounters(t *testing.T) {
	rec := &Record{Results: []Result{
		{Status: StatusConfirmed},
		{Status: StatusConfirmed},
		{Status: StatusFailed},
		{Status: StatusRetryPending},
	}}

	if rec.ConfirmedCount() != 2 {
		t.Fatalf("confirmed count: %d", rec.ConfirmedCount())
	}
	if rec.FailedCount() != 1 {
		t.Fatalf("failed count: %d", rec.FailedCount())
	}
	if rec.Complete() {
		t.Fatal("record with non-terminal results is not complete")
	}

	rec.Results[3].Status = StatusFailed
	if !rec.Complete() {
		t.Fatal("all-terminal record is complete")
	}

	empty := &Record{}
	if empty.Complete() {
		t.Fatal("empty record is never complete")
	}
}
