package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification describes the outcome of one cache-mode run.
type Notification struct {
	// Source labels the deployment that ran, e.g. "windowavg/production".
	Source         string
	RunID          string
	Finished       time.Time
	Workers        int
	Succeeded      []int
	Failed         []int
	ClientAverages []float64
	GlobalAverage  float64
	// Err is set when the run produced no global average.
	Err error
}

// Notifier delivers run notifications.
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

type sendMessageRequest struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify posts the rendered run outcome. Successful runs are sent silently.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	msg := sendMessageRequest{
		ChatID:              n.chatID,
		Text:                renderMessage(note),
		DisableNotification: note.Err == nil,
	}
	if err := n.call(ctx, "sendMessage", msg); err != nil {
		return err
	}

	n.logger.Info().Str("run_id", note.RunID).Bool("failed", note.Err != nil).Msg("run notification sent")
	return nil
}

func (n *TelegramNotifier) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	endpoint := n.baseURL + "/bot" + n.botToken + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of the error.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var out apiResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)
	switch {
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("telegram %s: status %d %s", method, resp.StatusCode, out.Description)
	case decodeErr != nil:
		return fmt.Errorf("telegram %s: decode response: %w", method, decodeErr)
	case !out.OK:
		return fmt.Errorf("telegram %s: not ok: %s", method, out.Description)
	}
	return nil
}

func renderMessage(note Notification) string {
	source := note.Source
	if source == "" {
		source = "windowavg"
	}
	builder := strings.Builder{}
	if note.Err != nil {
		builder.WriteString(fmt.Sprintf("[%s] RUN FAILED\n", source))
	} else {
		builder.WriteString(fmt.Sprintf("[%s] Run complete\n", source))
	}
	if note.RunID != "" {
		builder.WriteString(fmt.Sprintf("Run: %s\n", note.RunID))
	}
	if !note.Finished.IsZero() {
		builder.WriteString(fmt.Sprintf("Finished: %s UTC\n", note.Finished.UTC().Format(time.RFC3339)))
	}
	builder.WriteString(fmt.Sprintf("Workers: %d (ok %d, failed %d)\n", note.Workers, len(note.Succeeded), len(note.Failed)))
	if len(note.Failed) > 0 {
		builder.WriteString(fmt.Sprintf("Failed workers: %s\n", joinInts(note.Failed)))
	}
	if note.Err != nil {
		builder.WriteString(fmt.Sprintf("Error: %s\n", note.Err))
		return builder.String()
	}

	averages := make([]string, len(note.ClientAverages))
	for i, avg := range note.ClientAverages {
		averages[i] = decimal.NewFromFloat(avg).StringFixed(4)
	}
	builder.WriteString(fmt.Sprintf("Client averages: %s\n", strings.Join(averages, ", ")))
	builder.WriteString(fmt.Sprintf("Global average: %s\n", decimal.NewFromFloat(note.GlobalAverage).StringFixed(4)))
	return builder.String()
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}

var _ Notifier = (*TelegramNotifier)(nil)
