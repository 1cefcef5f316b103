package providers

import (
	"fmt"
	"sync"
	"time"
)

// Gate remembers until when the provider asked us to back off. It is shared
// by every reviewer in the process so that calls made during a provider
// back-off fail fast instead of hitting the network.
type Gate struct {
	mu    sync.Mutex
	until time.Time
	now   func() time.Time
}

// NewGate creates an open gate.
func NewGate() *Gate {
	return &Gate{now: time.Now}
}

// BlockFor closes the gate for d from now. An earlier deadline never
// shortens a later one.
func (g *Gate) BlockFor(d time.Duration) {
	if g == nil || d <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if until := g.now().Add(d); until.After(g.until) {
		g.until = until
	}
}

// Check returns a *GateError while the gate is closed.
func (g *Gate) Check() error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.now().Before(g.until) {
		return &GateError{Until: g.until}
	}
	return nil
}

// Until returns the current back-off deadline (zero when never blocked).
func (g *Gate) Until() time.Time {
	if g == nil {
		return time.Time{}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.until
}

// GateError is returned without any network call while the gate is closed.
type GateError struct {
	Until time.Time
}

func (e *GateError) Error() string {
	return fmt.Sprintf("provider rate limited until %s", e.Until.Format(time.RFC3339))
}

func (e *GateError) Is(target error) bool { return target == ErrRateLimited }
