package quota

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding the shared counter.
const DefaultRedisKey = "auditlens:quota"

// The scripts run atomically inside Redis, so every process sharing the key
// sees one serialized sequence of check-and-increment operations.
var (
	loadScript = redis.NewScript(`
local date = redis.call('HGET', KEYS[1], 'date')
if date ~= ARGV[1] then
  redis.call('HSET', KEYS[1], 'date', ARGV[1], 'used', 0)
  return 0
end
return tonumber(redis.call('HGET', KEYS[1], 'used') or '0')
`)

	incrementScript = redis.NewScript(`
local date = redis.call('HGET', KEYS[1], 'date')
local used = tonumber(redis.call('HGET', KEYS[1], 'used') or '0')
if date ~= ARGV[1] then
  used = 0
end
if used >= tonumber(ARGV[2]) then
  redis.call('HSET', KEYS[1], 'date', ARGV[1], 'used', used)
  return {0, used}
end
used = used + 1
redis.call('HSET', KEYS[1], 'date', ARGV[1], 'used', used)
return {1, used}
`)
)

// Redis keeps the counter in a Redis hash shared by all processes.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis creates a Redis-backed store. An empty key uses DefaultRedisKey.
func NewRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{client: client, key: key}
}

func (s *Redis) Load(ctx context.Context, day string) (int, error) {
	n, err := loadScript.Run(ctx, s.client, []string{s.key}, day).Int()
	if err != nil {
		return 0, fmt.Errorf("redis quota load: %w", err)
	}
	return n, nil
}

func (s *Redis) Increment(ctx context.Context, day string, max int) (int, bool, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{s.key}, day, max).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("redis quota increment: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("redis quota increment: unexpected reply %v", res)
	}
	return int(res[1]), res[0] == 1, nil
}

func (s *Redis) Reset(ctx context.Context, day string) error {
	if err := s.client.HSet(ctx, s.key, "date", day, "used", 0).Err(); err != nil {
		return fmt.Errorf("redis quota reset: %w", err)
	}
	return nil
}
