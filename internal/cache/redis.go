package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "auditlens:enrichment:"

// Redis shares cached payloads between processes. Redis enforces the TTL;
// Get re-checks it so clock skew never serves a stale entry.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, now: time.Now}
}

func (c *Redis) Get(ctx context.Context, fingerprint string) (Entry, bool) {
	data, err := c.client.Get(ctx, redisPrefix+fingerprint).Bytes()
	if err != nil {
		return Entry{}, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.client.Del(ctx, redisPrefix+fingerprint)
		return Entry{}, false
	}
	if entry.Expired(c.now()) {
		return Entry{}, false
	}
	return entry, true
}

func (c *Redis) Put(ctx context.Context, fingerprint string, payload []byte, ttl time.Duration) error {
	entry, err := newEntry(fingerprint, payload, ttl, c.now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	if err := c.client.Set(ctx, redisPrefix+fingerprint, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *Redis) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Backend: "redis", Location: c.client.Options().Addr}
	iter := c.client.Scan(ctx, 0, redisPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := c.client.StrLen(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		stats.Entries++
		stats.TotalBytes += n
	}
	if err := iter.Err(); err != nil {
		return stats, fmt.Errorf("scanning cache keys: %w", err)
	}
	return stats, nil
}

func (c *Redis) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, redisPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("deleting %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning cache keys: %w", err)
	}
	return nil
}
