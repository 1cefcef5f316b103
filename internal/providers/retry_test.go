package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// recordSleeps replaces the retrier's sleep with an instant recorder.
func recordSleeps(r *Retrier) *[]time.Duration {
	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return &slept
}

var defaultPolicy = Policy{
	MaxAttempts:   3,
	Backoff:       []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second},
	MaxRetryAfter: time.Minute,
}

func TestRetrier_RetryAfterThenSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	r := NewRetrier(defaultPolicy, NewGate(), nil)
	slept := recordSleeps(r)

	out, err := r.Do(context.Background(), func(ctx context.Context) ([]byte, error) {
		return client.Send(ctx, Request{Model: "m", Prompt: "p"})
	})
	if err != nil {
		t.Fatalf("Do error: %v", err)
	}
	if out.State != StateSuccess {
		t.Errorf("State = %s, want success", out.State)
	}
	if len(out.Attempts) != 2 {
		t.Errorf("Attempts = %d, want 2", len(out.Attempts))
	}
	if len(*slept) != 1 || (*slept)[0] != 7*time.Second {
		t.Errorf("slept = %v, want [7s]", *slept)
	}
	if out.Attempts[0].State != StateRateLimited || out.Attempts[0].StatusCode != 429 {
		t.Errorf("first attempt = %+v", out.Attempts[0])
	}
}

func TestRetrier_NeverExceedsMaxAttempts(t *testing.T) {
	failures := []struct {
		name string
		err  error
	}{
		{"rate limited", &StatusError{StatusCode: 429}},
		{"server error", &StatusError{StatusCode: 502}},
		{"bad request", &StatusError{StatusCode: 400}},
		{"transport", errors.New("connection reset by peer")},
	}
	for _, f := range failures {
		for _, max := range []int{1, 2, 3, 5} {
			policy := defaultPolicy
			policy.MaxAttempts = max
			r := NewRetrier(policy, NewGate(), nil)
			slept := recordSleeps(r)

			calls := 0
			out, err := r.Do(context.Background(), func(context.Context) ([]byte, error) {
				calls++
				return nil, f.err
			})
			if calls != max {
				t.Errorf("%s/max=%d: calls = %d", f.name, max, calls)
			}
			if !errors.Is(err, ErrExhausted) {
				t.Errorf("%s/max=%d: err = %v, want ErrExhausted", f.name, max, err)
			}
			if out.State != StateExhausted {
				t.Errorf("%s/max=%d: state = %s", f.name, max, out.State)
			}
			if len(*slept) != max-1 {
				t.Errorf("%s/max=%d: sleeps = %d, want %d", f.name, max, len(*slept), max-1)
			}
		}
	}
}

func TestRetrier_BackoffSchedule(t *testing.T) {
	r := NewRetrier(defaultPolicy, NewGate(), nil)
	slept := recordSleeps(r)

	r.Do(context.Background(), func(context.Context) ([]byte, error) {
		return nil, &StatusError{StatusCode: 503}
	})
	want := []time.Duration{5 * time.Second, 10 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("slept = %v, want %v", *slept, want)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, (*slept)[i], want[i])
		}
	}
}

func TestRetrier_RateLimitFallsBackToSchedule(t *testing.T) {
	r := NewRetrier(defaultPolicy, NewGate(), nil)
	slept := recordSleeps(r)
	r.Do(context.Background(), func(context.Context) ([]byte, error) {
		return nil, &StatusError{StatusCode: 429}
	})
	if len(*slept) != 2 || (*slept)[0] != 5*time.Second || (*slept)[1] != 10*time.Second {
		t.Errorf("slept = %v, want [5s 10s]", *slept)
	}
}

func TestRetrier_RetryAfterIsCapped(t *testing.T) {
	r := NewRetrier(defaultPolicy, NewGate(), nil)
	slept := recordSleeps(r)
	r.Do(context.Background(), func(context.Context) ([]byte, error) {
		return nil, &StatusError{StatusCode: 429, RetryAfter: time.Hour}
	})
	for _, d := range *slept {
		if d != time.Minute {
			t.Errorf("sleep = %v, want capped 1m", d)
		}
	}
}

func TestRetrier_GateFailsFast(t *testing.T) {
	gate := NewGate()
	r := NewRetrier(defaultPolicy, gate, nil)
	recordSleeps(r)

	r.Do(context.Background(), func(context.Context) ([]byte, error) {
		return nil, &StatusError{StatusCode: 429, RetryAfter: 30 * time.Second}
	})

	calls := 0
	out, err := r.Do(context.Background(), func(context.Context) ([]byte, error) {
		calls++
		return []byte(`{}`), nil
	})
	if calls != 0 {
		t.Errorf("calls = %d, want 0 while gate is closed", calls)
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
	var ge *GateError
	if !errors.As(err, &ge) {
		t.Errorf("err = %T, want *GateError", err)
	}
	if out.State != StateIdle || len(out.Attempts) != 0 {
		t.Errorf("outcome = %+v, want idle without attempts", out)
	}
}

func TestGate_Reopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewGate()
	g.now = func() time.Time { return now }

	g.BlockFor(10 * time.Second)
	g.BlockFor(2 * time.Second) // never shortens
	if g.Check() == nil {
		t.Fatal("gate should be closed")
	}
	now = now.Add(5 * time.Second)
	if g.Check() == nil {
		t.Error("shorter block must not shorten the deadline")
	}
	now = now.Add(6 * time.Second)
	if err := g.Check(); err != nil {
		t.Errorf("gate should reopen, got %v", err)
	}
}

func TestRetrier_FailFastClientErrors(t *testing.T) {
	policy := defaultPolicy
	policy.FailFastClientErrors = true
	r := NewRetrier(policy, NewGate(), nil)
	recordSleeps(r)

	calls := 0
	out, err := r.Do(context.Background(), func(context.Context) ([]byte, error) {
		calls++
		return nil, &StatusError{StatusCode: 400, Body: "bad model"}
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, ErrHardFailed) {
		t.Errorf("err = %v, want ErrHardFailed", err)
	}
	if out.State != StateHardFailed {
		t.Errorf("state = %s, want hard_failed", out.State)
	}

	// 5xx still retries with the option on.
	calls = 0
	r.Do(context.Background(), func(context.Context) ([]byte, error) {
		calls++
		return nil, &StatusError{StatusCode: 500}
	})
	if calls != 3 {
		t.Errorf("5xx calls = %d, want 3", calls)
	}
}

func TestRetrier_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetrier(defaultPolicy, NewGate(), nil)
	recordSleeps(r)

	calls := 0
	_, err := r.Do(ctx, func(context.Context) ([]byte, error) {
		calls++
		cancel()
		return nil, errors.New("interrupted")
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestExhaustedError_UnwrapsLast(t *testing.T) {
	err := error(&ExhaustedError{Attempts: 3, Last: &StatusError{StatusCode: 429}})
	if !errors.Is(err, ErrExhausted) {
		t.Error("should match ErrExhausted")
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Error("should expose the last rate-limit reason")
	}
}
