package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Entry is a cached provider payload keyed by enrichment fingerprint.
type Entry struct {
	Fingerprint string          `json:"fingerprint"`
	Payload     json.RawMessage `json:"payload"`
	CachedAt    time.Time       `json:"cachedAt"`
	TTLSeconds  int             `json:"ttlSeconds"`
}

// Expired reports whether the entry is past its TTL at now. A zero TTL never expires.
func (e Entry) Expired(now time.Time) bool {
	if e.TTLSeconds <= 0 {
		return false
	}
	return now.Sub(e.CachedAt) > time.Duration(e.TTLSeconds)*time.Second
}

// Store is a best-effort response cache. Get reports a miss for absent,
// expired and unreadable entries alike.
type Store interface {
	Get(ctx context.Context, fingerprint string) (Entry, bool)
	Put(ctx context.Context, fingerprint string, payload []byte, ttl time.Duration) error
}

// Stats describes the contents of a cache.
type Stats struct {
	Backend    string `json:"backend"`
	Location   string `json:"location,omitempty"`
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"totalBytes"`
	Expired    int    `json:"expired"`
}

// Admin is implemented by stores that support inspection and clearing.
type Admin interface {
	Stats(ctx context.Context) (Stats, error)
	Clear(ctx context.Context) error
}

// Nop is a disabled cache: every Get misses and Put discards.
type Nop struct{}

func (Nop) Get(context.Context, string) (Entry, bool) { return Entry{}, false }

func (Nop) Put(context.Context, string, []byte, time.Duration) error { return nil }

// Memory is an in-process cache, mostly for tests and single-shot CLI runs.
type Memory struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, fingerprint string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[fingerprint]
	if !ok {
		return Entry{}, false
	}
	if e.Expired(m.now()) {
		delete(m.entries, fingerprint)
		return Entry{}, false
	}
	return e, true
}

func (m *Memory) Put(_ context.Context, fingerprint string, payload []byte, ttl time.Duration) error {
	e, err := newEntry(fingerprint, payload, ttl, m.now())
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[fingerprint] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Stats(context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{Backend: "memory"}
	now := m.now()
	for _, e := range m.entries {
		s.Entries++
		s.TotalBytes += int64(len(e.Payload))
		if e.Expired(now) {
			s.Expired++
		}
	}
	return s, nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]Entry)
	m.mu.Unlock()
	return nil
}

// HashKey creates a SHA-256 hash of the given key material.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)
}

func newEntry(fingerprint string, payload []byte, ttl time.Duration, now time.Time) (Entry, error) {
	if !json.Valid(payload) {
		return Entry{}, fmt.Errorf("cache payload for %s is not valid JSON", fingerprint)
	}
	// Round up: a zero TTLSeconds means the entry never expires.
	secs := 0
	if ttl > 0 {
		secs = int((ttl + time.Second - 1) / time.Second)
	}
	return Entry{
		Fingerprint: fingerprint,
		Payload:     json.RawMessage(append([]byte(nil), payload...)),
		CachedAt:    now,
		TTLSeconds:  secs,
	}, nil
}
