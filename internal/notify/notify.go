package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dshills/auditlens/internal/review"
)

// Webhook posts notifications as JSON to an HTTP endpoint, e.g. a mail or
// chat relay that resolves recipient roles to people.
type Webhook struct {
	url    string
	client *http.Client
}

var _ review.Notifier = (*Webhook)(nil)

// NewWebhook creates a Webhook notifier for url.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Message is the JSON body sent to the webhook.
type Message struct {
	Recipients []string  `json:"recipients"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sentAt"`
}

// Notify posts the message and expects a 2xx reply.
func (w *Webhook) Notify(ctx context.Context, recipients []string, subject, body string) error {
	if w.url == "" || w.client == nil {
		return errors.New("webhook notifier misconfigured")
	}
	payload, err := json.Marshal(Message{
		Recipients: recipients,
		Subject:    subject,
		Body:       body,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook error: %s", resp.Status)
	}
	return nil
}

// Log writes notifications to a logger. It is the fallback when no webhook
// is configured.
type Log struct {
	logger *slog.Logger
}

var _ review.Notifier = (*Log)(nil)

// NewLog creates a Log notifier; nil uses slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(_ context.Context, recipients []string, subject, body string) error {
	l.logger.Info("notification", "recipients", recipients, "subject", subject, "body", body)
	return nil
}

// New returns a Webhook notifier when url is set and a Log notifier otherwise.
func New(url string, logger *slog.Logger) review.Notifier {
	if url != "" {
		return NewWebhook(url)
	}
	return NewLog(logger)
}
