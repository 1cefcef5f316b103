package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// State is a step of the per-enrichment retry state machine.
type State string

const (
	StateIdle        State = "idle"
	StateSending     State = "sending"
	StateSuccess     State = "success"
	StateRateLimited State = "rate_limited"
	StateHardError   State = "hard_error"
	StateExhausted   State = "exhausted"
	StateHardFailed  State = "hard_failed"
)

// Attempt records one network call.
type Attempt struct {
	Number     int           `json:"number"`
	State      State         `json:"state"`
	StatusCode int           `json:"statusCode,omitempty"`
	Error      string        `json:"error,omitempty"`
	Wait       time.Duration `json:"wait,omitempty"`
}

// Outcome is the terminal result of Retrier.Do.
type Outcome struct {
	State    State
	Payload  []byte
	Attempts []Attempt
}

// Policy bounds the retries of one logical provider call.
type Policy struct {
	MaxAttempts int
	// Backoff is indexed by attempt number; the last value repeats.
	Backoff []time.Duration
	// MaxRetryAfter caps provider Retry-After hints; zero means no cap.
	MaxRetryAfter time.Duration
	// FailFastClientErrors stops on 4xx responses other than 408 and 429
	// instead of spending the remaining attempts on them.
	FailFastClientErrors bool
}

// ExhaustedError is returned once MaxAttempts calls have failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

func (e *ExhaustedError) Unwrap() error { return e.Last }

// HardFailedError is returned when retrying was abandoned early.
type HardFailedError struct {
	Attempts int
	Err      error
}

func (e *HardFailedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *HardFailedError) Is(target error) bool { return target == ErrHardFailed }

func (e *HardFailedError) Unwrap() error { return e.Err }

// Retrier drives repeated provider calls with provider-informed backoff.
type Retrier struct {
	policy Policy
	gate   *Gate
	sleep  func(context.Context, time.Duration) error
	logger *slog.Logger
}

// NewRetrier creates a Retrier. gate may be nil to disable fail-fast.
func NewRetrier(policy Policy, gate *Gate, logger *slog.Logger) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{policy: policy, gate: gate, sleep: sleepContext, logger: logger}
}

// Gate returns the shared rate-limit gate.
func (r *Retrier) Gate() *Gate { return r.gate }

// Do calls send until it succeeds, a non-retryable error occurs, or
// MaxAttempts calls have been made. It never makes more than MaxAttempts calls
// and sleeps only between attempts.
func (r *Retrier) Do(ctx context.Context, send func(context.Context) ([]byte, error)) (Outcome, error) {
	out := Outcome{State: StateIdle}
	if err := r.gate.Check(); err != nil {
		return out, err
	}

	for n := 1; n <= r.policy.MaxAttempts; n++ {
		out.State = StateSending
		payload, err := send(ctx)
		if err == nil {
			out.Attempts = append(out.Attempts, Attempt{Number: n, State: StateSuccess})
			out.State = StateSuccess
			out.Payload = payload
			return out, nil
		}

		att := Attempt{Number: n, Error: err.Error()}
		var se *StatusError
		if errors.As(err, &se) {
			att.StatusCode = se.StatusCode
		}

		if ctx.Err() != nil {
			att.State = StateHardError
			out.Attempts = append(out.Attempts, att)
			out.State = StateHardFailed
			return out, &HardFailedError{Attempts: n, Err: ctx.Err()}
		}

		var wait time.Duration
		switch Classify(err) {
		case ClassRateLimited:
			att.State = StateRateLimited
			wait = r.rateLimitWait(n, RetryAfterHint(err))
			r.gate.BlockFor(wait)
		default:
			att.State = StateHardError
			if r.policy.FailFastClientErrors && IsClientError(err) {
				out.Attempts = append(out.Attempts, att)
				out.State = StateHardFailed
				return out, &HardFailedError{Attempts: n, Err: err}
			}
			wait = r.backoff(n)
		}

		if n == r.policy.MaxAttempts {
			out.Attempts = append(out.Attempts, att)
			out.State = StateExhausted
			return out, &ExhaustedError{Attempts: n, Last: err}
		}

		att.Wait = wait
		out.Attempts = append(out.Attempts, att)
		r.logger.Debug("provider attempt failed, retrying",
			"attempt", n, "state", att.State, "wait", wait, "error", err)

		if err := r.sleep(ctx, wait); err != nil {
			out.State = StateHardFailed
			return out, &HardFailedError{Attempts: n, Err: err}
		}
	}
	// Unreachable: the loop returns on its last iteration.
	return out, &ExhaustedError{Attempts: r.policy.MaxAttempts}
}

func (r *Retrier) backoff(attempt int) time.Duration {
	if len(r.policy.Backoff) == 0 {
		return 0
	}
	i := attempt - 1
	if i >= len(r.policy.Backoff) {
		i = len(r.policy.Backoff) - 1
	}
	return r.policy.Backoff[i]
}

func (r *Retrier) rateLimitWait(attempt int, hint time.Duration) time.Duration {
	if hint <= 0 {
		return r.backoff(attempt)
	}
	if r.policy.MaxRetryAfter > 0 && hint > r.policy.MaxRetryAfter {
		return r.policy.MaxRetryAfter
	}
	return hint
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
