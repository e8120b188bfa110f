package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testNote() Notification {
	return Notification{
		RequestID:   "11111111-2222-3333-4444-555555555555",
		Mint:        "So11111111111111111111111111111111111111112",
		TotalAmount: decimal.NewFromInt(1000),
		Mode:        "proportional",
		Recipients:  10,
		Confirmed:   9,
		Failed:      1,
		Remainder:   decimal.NewFromInt(3),
		CompletedAt: time.Now(),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), testNote()); err != nil {
		t.Fatalf("notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("wrong chat_id: %#v", received)
	}
	text := received["text"]
	if !strings.Contains(text, "confirmed 9") || !strings.Contains(text, "failed 1") {
		t.Fatalf("summary missing outcome counts: %q", text)
	}
	if !strings.Contains(text, "remainder: 3") {
		t.Fatalf("summary missing remainder: %q", text)
	}
}

func TestTelegramNotifierOKFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), testNote()); err == nil {
		t.Fatal("ok=false must error")
	}
}

func TestTelegramNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), testNote()); err == nil {
		t.Fatal("HTTP 502 must error")
	}
}

func TestRenderMessageOmitsEmptySections(t *testing.T) {
	note := testNote()
	note.Remainder = decimal.Zero
	note.CompletedAt = time.Time{}
	note.ErrorMsg = ""

	text := renderMessage(note)
	if strings.Contains(text, "remainder") {
		t.Fatalf("zero remainder should be omitted: %q", text)
	}
	if strings.Contains(text, "Completed:") {
		t.Fatalf("zero completion time should be omitted: %q", text)
	}
	if strings.Contains(text, "Error:") {
		t.Fatalf("empty error should be omitted: %q", text)
	}

	note.ErrorMsg = "context canceled"
	if !strings.Contains(renderMessage(note), "Error: context canceled") {
		t.Fatal("error message should be rendered")
	}
}
