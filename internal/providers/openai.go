package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/auditlens/internal/config"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 1500
	maxResponseBytes = 4 << 20
	maxErrorBody     = 1024
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, OpenRouter, Ollama's /v1 API, ...).
type OpenAI struct {
	name     string
	endpoint string
	apiKey   string
	timeout  time.Duration
	client   *http.Client
	now      func() time.Time
}

// NewOpenAI creates a client for the named provider. A provider that names an
// API key variable must have it set.
func NewOpenAI(name string, cfg config.ProviderConfig, timeout time.Duration) (*OpenAI, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("provider %s: endpoint is not configured", name)
	}
	key := cfg.APIKey()
	if cfg.APIKeyEnv != "" && key == "" {
		return nil, fmt.Errorf("%s environment variable is not set", cfg.APIKeyEnv)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OpenAI{
		name:     name,
		endpoint: cfg.Endpoint,
		apiKey:   key,
		timeout:  timeout,
		// The per-call deadline comes from the request context.
		client: &http.Client{},
		now:    time.Now,
	}, nil
}

// New creates the client for the active provider in cfg.
func New(cfg config.Config) (Client, error) {
	p, err := cfg.ActiveProvider()
	if err != nil {
		return nil, err
	}
	return NewOpenAI(cfg.Provider, p, cfg.Retry.Timeout())
}

func (o *OpenAI) Name() string { return o.name }

// Send performs one HTTP call bounded by the client timeout.
func (o *OpenAI) Send(ctx context.Context, req Request) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	body := chatRequest{
		Model:       req.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		se := &StatusError{
			StatusCode: httpResp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(respBody)), maxErrorBody),
		}
		if httpResp.StatusCode == http.StatusTooManyRequests {
			se.RetryAfter = parseRetryAfter(httpResp.Header.Get("Retry-After"), o.now())
		}
		return nil, se
	}

	if err := validateEnvelope(respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// validateEnvelope checks for a first choice carrying a message object.
// Whether that message has usable text is the normalizer's concern.
func validateEnvelope(body []byte) error {
	var env struct {
		Choices []struct {
			Message json.RawMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return &EnvelopeError{Reason: err.Error()}
	}
	if len(env.Choices) == 0 {
		return &EnvelopeError{Reason: "no choices in response"}
	}
	msg := bytes.TrimSpace(env.Choices[0].Message)
	if len(msg) == 0 || bytes.Equal(msg, []byte("null")) || bytes.Equal(msg, []byte("{}")) {
		return &EnvelopeError{Reason: "first choice has no message"}
	}
	return nil
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
