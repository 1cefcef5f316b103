package quota

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
}

func TestManager_Boundary(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	m := NewManager(NewMemory(), 3, WithClock(clk.now))

	for i := 0; i < 3; i++ {
		if !m.HasBudget(ctx) {
			t.Fatalf("call %d: HasBudget = false, want true", i+1)
		}
		if err := m.Consume(ctx); err != nil {
			t.Fatalf("call %d: Consume error: %v", i+1, err)
		}
	}
	if m.HasBudget(ctx) {
		t.Error("HasBudget after N calls should be false")
	}
	err := m.Consume(ctx)
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("Consume past max = %v, want ErrExhausted", err)
	}
	snap, _ := m.Snapshot(ctx)
	if snap.CallsUsed != 3 {
		t.Errorf("CallsUsed = %d, want 3 (never exceeds max)", snap.CallsUsed)
	}
	if snap.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", snap.Remaining())
	}
}

func TestManager_LazyRollover(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	m := NewManager(NewMemory(), 1, WithClock(clk.now))

	if err := m.Consume(ctx); err != nil {
		t.Fatalf("Consume error: %v", err)
	}
	if m.HasBudget(ctx) {
		t.Fatal("budget should be spent")
	}

	clk.advance(24 * time.Hour)
	if !m.HasBudget(ctx) {
		t.Error("new day should restore the budget")
	}
	snap, _ := m.Snapshot(ctx)
	if snap.Date != "2026-05-05" || snap.CallsUsed != 0 {
		t.Errorf("Snapshot = %+v, want fresh 2026-05-05", snap)
	}
}

func TestManager_DayBoundaryUsesLocation(t *testing.T) {
	ctx := context.Background()
	loc := time.FixedZone("UTC+3", 3*3600)
	// 22:30 UTC is already the next day at UTC+3.
	clk := &clock{t: time.Date(2026, 5, 4, 22, 30, 0, 0, time.UTC)}
	m := NewManager(NewMemory(), 5, WithClock(clk.now), WithLocation(loc))

	snap, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Date != "2026-05-05" {
		t.Errorf("Date = %s, want 2026-05-05", snap.Date)
	}
}

func TestManager_Reset(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemory(), 2, WithClock(newClock().now))
	m.Consume(ctx)
	m.Consume(ctx)
	if m.HasBudget(ctx) {
		t.Fatal("budget should be spent")
	}
	if err := m.Reset(ctx); err != nil {
		t.Fatalf("Reset error: %v", err)
	}
	if !m.HasBudget(ctx) {
		t.Error("Reset should restore the budget")
	}
}

func TestManager_ConcurrentConsumeNeverOvershoots(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemory(), 10, WithClock(newClock().now))

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Consume(ctx); err == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if granted.Load() != 10 {
		t.Errorf("granted = %d, want exactly 10", granted.Load())
	}
	snap, _ := m.Snapshot(ctx)
	if snap.CallsUsed != 10 {
		t.Errorf("CallsUsed = %d, want 10", snap.CallsUsed)
	}
}

type brokenStore struct{}

func (brokenStore) Load(context.Context, string) (int, error) {
	return 0, errors.New("disk on fire")
}

func (brokenStore) Increment(context.Context, string, int) (int, bool, error) {
	return 0, false, errors.New("disk on fire")
}

func (brokenStore) Reset(context.Context, string) error { return errors.New("disk on fire") }

func TestManager_FailsClosed(t *testing.T) {
	ctx := context.Background()
	m := NewManager(brokenStore{}, 100)
	if m.HasBudget(ctx) {
		t.Error("HasBudget should fail closed on store error")
	}
	if err := m.Consume(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Consume = %v, want ErrUnavailable", err)
	}
	if _, err := m.Snapshot(ctx); err == nil {
		t.Error("Snapshot should fail on store error")
	}
}

func TestManager_SetMax(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemory(), 1, WithClock(newClock().now))
	m.Consume(ctx)
	m.SetMax(2)
	if !m.HasBudget(ctx) {
		t.Error("raising the max should restore budget")
	}
}

func TestRedis_Store(t *testing.T) {
	addr := os.Getenv("AUDITLENS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("skipping: AUDITLENS_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	s := NewRedis(client, "auditlens:test:quota")
	defer client.Del(ctx, "auditlens:test:quota")
	if err := s.Reset(ctx, "2026-05-04"); err != nil {
		t.Fatalf("Reset error: %v", err)
	}

	for i := 1; i <= 2; i++ {
		used, ok, err := s.Increment(ctx, "2026-05-04", 2)
		if err != nil || !ok || used != i {
			t.Fatalf("Increment %d = (%d, %v, %v)", i, used, ok, err)
		}
	}
	if _, ok, _ := s.Increment(ctx, "2026-05-04", 2); ok {
		t.Error("third increment should be refused")
	}
	used, err := s.Load(ctx, "2026-05-05")
	if err != nil || used != 0 {
		t.Errorf("Load on new day = (%d, %v), want (0, nil)", used, err)
	}
}
