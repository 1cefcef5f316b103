package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrExhausted is returned by Consume once today's calls are used up.
	ErrExhausted = errors.New("daily call quota exhausted")
	// ErrUnavailable wraps store failures. Callers must treat it like
	// ErrExhausted: the budget fails closed.
	ErrUnavailable = errors.New("quota store unavailable")
)

const dayLayout = "2006-01-02"

// State is the quota as observed for one day.
type State struct {
	Date      string `json:"date"`
	CallsUsed int    `json:"callsUsed"`
	CallsMax  int    `json:"callsMax"`
}

// Remaining returns the calls still available today.
func (s State) Remaining() int {
	if s.CallsUsed >= s.CallsMax {
		return 0
	}
	return s.CallsMax - s.CallsUsed
}

// Store persists the counter. Implementations must make Increment an atomic
// check-and-increment and must treat a stored date different from day as a
// counter of zero (lazy rollover).
type Store interface {
	// Load returns the calls used on day, resetting the stored counter when
	// it belongs to an earlier day.
	Load(ctx context.Context, day string) (int, error)
	// Increment adds one call on day unless max calls are already used.
	Increment(ctx context.Context, day string, max int) (used int, ok bool, err error)
	// Reset zeroes the counter and stamps it with day.
	Reset(ctx context.Context, day string) error
}

// Manager enforces the daily call budget. It is safe for concurrent use; the
// check and the increment in Consume happen in one critical section, guarded
// by the manager's mutex in-process and by the store across processes.
type Manager struct {
	mu     sync.Mutex
	store  Store
	max    int
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock used to decide what "today" is.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLocation sets the timezone in which the day boundary falls.
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) {
		if loc != nil {
			m.loc = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a Manager allowing callsMax calls per day.
func NewManager(store Store, callsMax int, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		max:    callsMax,
		loc:    time.UTC,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HasBudget reports whether a call is still allowed today. Store failures
// fail closed.
func (m *Manager) HasBudget(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	used, err := m.store.Load(ctx, m.today())
	if err != nil {
		m.logger.Warn("quota store unavailable, treating budget as exhausted", "error", err)
		return false
	}
	return used < m.max
}

// Consume records one call. It re-checks the budget atomically and returns
// ErrExhausted instead of pushing the counter past the daily maximum.
func (m *Manager) Consume(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := m.today()
	used, ok, err := m.store.Increment(ctx, day, m.max)
	if err != nil {
		return fmt.Errorf("consuming quota: %w: %w", ErrUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w (%d/%d calls on %s)", ErrExhausted, used, m.max, day)
	}
	return nil
}

// Reset zeroes today's counter.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Reset(ctx, m.today()); err != nil {
		return fmt.Errorf("resetting quota: %w: %w", ErrUnavailable, err)
	}
	return nil
}

// Snapshot returns today's state.
func (m *Manager) Snapshot(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := m.today()
	used, err := m.store.Load(ctx, day)
	if err != nil {
		return State{}, fmt.Errorf("loading quota: %w: %w", ErrUnavailable, err)
	}
	return State{Date: day, CallsUsed: used, CallsMax: m.max}, nil
}

// SetMax changes the daily maximum, e.g. after a config reload.
func (m *Manager) SetMax(n int) {
	m.mu.Lock()
	m.max = n
	m.mu.Unlock()
}

func (m *Manager) today() string {
	return m.now().In(m.loc).Format(dayLayout)
}

// Memory keeps the counter in process memory.
type Memory struct {
	mu   sync.Mutex
	date string
	used int
}

// NewMemory creates an in-process store.
func NewMemory() *Memory {
	return &Memory{}
}

func (s *Memory) Load(_ context.Context, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover(day)
	return s.used, nil
}

func (s *Memory) Increment(_ context.Context, day string, max int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover(day)
	if s.used >= max {
		return s.used, false, nil
	}
	s.used++
	return s.used, true, nil
}

func (s *Memory) Reset(_ context.Context, day string) error {
	s.mu.Lock()
	s.date = day
	s.used = 0
	s.mu.Unlock()
	return nil
}

func (s *Memory) rollover(day string) {
	if s.date != day {
		s.date = day
		s.used = 0
	}
}
