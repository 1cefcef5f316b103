package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Request is one enrichment prompt addressed to a concrete model.
type Request struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Client issues a single provider call. On success it returns the raw
// response body, which is guaranteed to carry a non-empty first choice.
type Client interface {
	Send(ctx context.Context, req Request) ([]byte, error)
	Name() string
}

// Class is the classification of one provider call.
type Class int

const (
	ClassSuccess Class = iota
	ClassRateLimited
	ClassHardError
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassRateLimited:
		return "rate_limited"
	default:
		return "hard_error"
	}
}

var (
	// ErrRateLimited marks provider 429 responses and calls refused by the rate-limit gate.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrExhausted marks a call that used up every retry attempt.
	ErrExhausted = errors.New("provider retries exhausted")
	// ErrHardFailed marks a call that stopped early on a non-retryable error.
	ErrHardFailed = errors.New("provider call failed")
)

// StatusError is a non-200 HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
	// RetryAfter is the provider's hint on 429 responses; zero when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.StatusCode == http.StatusTooManyRequests {
		return fmt.Sprintf("rate limited (status 429): %s", e.Body)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}

// EnvelopeError is a 200 response whose body is not a usable chat completion.
type EnvelopeError struct {
	Reason string
}

func (e *EnvelopeError) Error() string { return "invalid response envelope: " + e.Reason }

// Classify maps the result of Client.Send onto success, rate-limited or hard error.
// Transport failures, timeouts, malformed envelopes and every non-429 status
// are hard errors.
func Classify(err error) Class {
	if err == nil {
		return ClassSuccess
	}
	if errors.Is(err, ErrRateLimited) {
		return ClassRateLimited
	}
	return ClassHardError
}

// IsClientError reports whether err is a 4xx response that retrying cannot fix.
func IsClientError(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return se.StatusCode >= 400 && se.StatusCode < 500
}

// RetryAfterHint extracts the provider's retry hint from err, if any.
func RetryAfterHint(err error) time.Duration {
	var se *StatusError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}
