package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS: current window, previous window. ARGV: limit, window ms, elapsed ms.
var slidingWindowScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local prev = tonumber(redis.call('GET', KEYS[2]) or '0')
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local elapsed = tonumber(ARGV[3])
local est = math.floor(prev * (window - elapsed) / window) + cur
if est >= limit then
  return {0, est}
end
redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], window * 2)
return {1, est + 1}
`)

// RedisStore keeps counters in Redis so that all instances share them.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis server at url, e.g. redis://localhost:6379/0.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

func (s *RedisStore) Hit(ctx context.Context, key string, w Window, limit int64) (int64, bool, error) {
	keys := []string{
		key + ":" + strconv.FormatInt(w.Index, 10),
		key + ":" + strconv.FormatInt(w.Index-1, 10),
	}
	res, err := slidingWindowScript.Run(ctx, s.client, keys, limit, w.Length.Milliseconds(), w.Elapsed.Milliseconds()).Result()
	if err != nil {
		return 0, false, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return 0, false, fmt.Errorf("unexpected redis script result: %v", res)
	}
	allowed, _ := vals[0].(int64)
	est, _ := vals[1].(int64)
	return est, allowed == 1, nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Status(ctx context.Context) string {
	if err := s.Ping(ctx); err != nil {
		return "redis unavailable"
	}
	return "redis"
}

// Close closes the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// pingTimeout bounds the start-up connectivity check.
const pingTimeout = 2 * time.Second
