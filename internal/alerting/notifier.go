package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification summarises a finished (or aborted) distribution run.
type Notification struct {
	RequestID   string
	Mint        string
	TotalAmount decimal.Decimal
	Mode        string
	Recipients  int
	Confirmed   int
	Failed      int
	CompletedAt time.Time
	Remainder   decimal.Decimal
	ErrorMsg    string
}

// Notifier delivers run summaries to an external channel.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify sends the run summary via the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram responded with status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().
		Str("request_id", note.RequestID).
		Int("confirmed", note.Confirmed).
		Int("failed", note.Failed).
		Msg("run notification sent (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Tributary Distribution]\n")
	builder.WriteString(fmt.Sprintf("Request: %s\n", note.RequestID))
	builder.WriteString(fmt.Sprintf("Mint: %s\n", note.Mint))
	builder.WriteString(fmt.Sprintf("Mode: %s\n", note.Mode))
	builder.WriteString(fmt.Sprintf("Total: %s base units\n", note.TotalAmount.String()))
	builder.WriteString(fmt.Sprintf("Recipients: %d (confirmed %d, failed %d)\n", note.Recipients, note.Confirmed, note.Failed))
	if note.Remainder.Sign() > 0 {
		builder.WriteString(fmt.Sprintf("Undistributed remainder: %s\n", note.Remainder.String()))
	}
	if !note.CompletedAt.IsZero() {
		builder.WriteString(fmt.Sprintf("Completed: %s UTC\n", note.CompletedAt.UTC().Format(time.RFC3339)))
	}
	if note.ErrorMsg != "" {
		builder.WriteString(fmt.Sprintf("Error: %s\n", note.ErrorMsg))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
