package ratelimit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRule(t *testing.T) {
	tests := []struct {
		name   string
		rule   string
		limit  int64
		window time.Duration
		text   string
		fails  bool
	}{
		{name: "per minute", rule: "5/minute", limit: 5, window: time.Minute, text: "5 per 1 minute"},
		{name: "plural unit", rule: " 1000 / hours ", limit: 1000, window: time.Hour, text: "1000 per 1 hour"},
		{name: "per day", rule: "3/Day", limit: 3, window: 24 * time.Hour, text: "3 per 1 day"},
		{name: "per second", rule: "10/second", limit: 10, window: time.Second, text: "10 per 1 second"},
		{name: "missing slash", rule: "5 minute", fails: true},
		{name: "zero limit", rule: "0/minute", fails: true},
		{name: "unknown unit", rule: "5/week", fails: true},
		{name: "garbage", rule: "x/minute", fails: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := ParseRule("test", tt.rule)
			if tt.fails {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.limit, rule.Limit)
			assert.Equal(t, tt.window, rule.Window)
			assert.Equal(t, tt.text, rule.String())
		})
	}
}

func TestParseRules(t *testing.T) {
	rules, err := ParseRules("100/minute", "5/minute", "30/minute")
	require.NoError(t, err)
	assert.Equal(t, "auth", rules.Auth.Name)
	assert.Equal(t, int64(30), rules.Write.Limit)

	_, err = ParseRules("100/minute", "5/minute", "lots")
	assert.Error(t, err)
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

// windowStart is aligned to minute windows.
var windowStart = time.Unix(0, 0).Add(1000 * time.Minute)

func checkSlidingWindow(t *testing.T, store Store, c *clock) {
	log := zerolog.Nop()
	limiter := NewLimiter(store, &log)
	limiter.now = c.now
	rule, err := ParseRule("test", "3/minute")
	require.NoError(t, err)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		res := limiter.Allow(ctx, rule, "user:1")
		require.True(t, res.Allowed, "hit %d", i)
		assert.Equal(t, 3-i, res.Remaining)
		assert.Equal(t, time.Minute, res.Reset)
	}
	res := limiter.Allow(ctx, rule, "user:1")
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)

	// identities do not share counters
	assert.True(t, limiter.Allow(ctx, rule, "user:2").Allowed)

	// half way into the next window half of the previous count still applies
	c.t = windowStart.Add(90 * time.Second)
	assert.True(t, limiter.Allow(ctx, rule, "user:1").Allowed)
	res = limiter.Allow(ctx, rule, "user:1")
	assert.True(t, res.Allowed)
	assert.Equal(t, 30*time.Second, res.Reset)
	assert.False(t, limiter.Allow(ctx, rule, "user:1").Allowed)

	c.t = windowStart.Add(119 * time.Second)
	assert.True(t, limiter.Allow(ctx, rule, "user:1").Allowed)

	// two windows later nothing is left
	c.t = windowStart.Add(5 * time.Minute)
	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(ctx, rule, "user:1").Allowed)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	c := &clock{t: windowStart}
	store.now = c.now
	checkSlidingWindow(t, store, c)
}

func TestMemoryStoreSweepsStaleCounters(t *testing.T) {
	store := NewMemoryStore()
	c := &clock{t: windowStart}
	store.now = c.now
	w := Window{Index: windowStart.UnixNano() / int64(time.Minute), Length: time.Minute}
	_, _, err := store.Hit(context.Background(), "a", w, 10)
	require.NoError(t, err)
	require.Len(t, store.counters, 1)

	c.t = windowStart.Add(3 * time.Minute)
	w.Index += 3
	_, _, err = store.Hit(context.Background(), "b", w, 10)
	require.NoError(t, err)
	assert.Len(t, store.counters, 1)
	assert.Contains(t, store.counters, "b")
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + mr.Addr())
	require.NoError(t, err)
	defer store.Close()
	checkSlidingWindow(t, store, &clock{t: windowStart})
	assert.Equal(t, "redis", store.Status(context.Background()))

	ttl := mr.TTL("test:user:2:" + strconv.FormatInt(windowStart.UnixNano()/int64(time.Minute), 10))
	assert.Equal(t, 2*time.Minute, ttl)
}

func TestFallbackStore(t *testing.T) {
	log := zerolog.Nop()
	mr := miniredis.RunT(t)
	redisStore, err := NewRedisStore("redis://" + mr.Addr())
	require.NoError(t, err)
	defer redisStore.Close()
	store := NewFallbackStore(redisStore, NewMemoryStore(), &log)
	ctx := context.Background()
	assert.Equal(t, "redis", store.Status(ctx))

	w := Window{Index: 1, Length: time.Minute}
	_, allowed, err := store.Hit(ctx, "k", w, 1)
	require.NoError(t, err)
	assert.True(t, allowed)

	mr.Close()
	assert.Equal(t, "memory (fallback)", store.Status(ctx))
	// the memory store starts from scratch
	_, allowed, err = store.Hit(ctx, "k", w, 1)
	require.NoError(t, err)
	assert.True(t, allowed)
	_, allowed, err = store.Hit(ctx, "k", w, 1)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestNewStore(t *testing.T) {
	log := zerolog.Nop()
	ctx := context.Background()
	assert.IsType(t, &MemoryStore{}, NewStore(ctx, "", &log))
	assert.IsType(t, &MemoryStore{}, NewStore(ctx, "not a url", &log))

	mr := miniredis.RunT(t)
	assert.IsType(t, &FallbackStore{}, NewStore(ctx, "redis://"+mr.Addr(), &log))
	addr := mr.Addr()
	mr.Close()
	assert.IsType(t, &MemoryStore{}, NewStore(ctx, "redis://"+addr, &log))
}
