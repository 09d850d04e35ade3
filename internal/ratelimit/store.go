package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Window locates a hit inside the fixed windows of a rule.
type Window struct {
	Index   int64
	Elapsed time.Duration
	Length  time.Duration
}

// Store records hits. Hit returns the sliding estimate including the hit when it is allowed.
type Store interface {
	Hit(ctx context.Context, key string, w Window, limit int64) (int64, bool, error)
	Status(ctx context.Context) string
}

func estimate(prev, cur int64, w Window) int64 {
	length := w.Length.Milliseconds()
	return prev*(length-w.Elapsed.Milliseconds())/length + cur
}

type counter struct {
	index  int64
	cur    int64
	prev   int64
	window time.Duration
}

// MemoryStore keeps counters in process memory.
type MemoryStore struct {
	mu        sync.Mutex
	counters  map[string]*counter
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryStore initializes an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

func (m *MemoryStore) Hit(_ context.Context, key string, w Window, limit int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	c, ok := m.counters[key]
	if !ok {
		c = &counter{index: w.Index, window: w.Length}
		m.counters[key] = c
	}
	switch {
	case c.index == w.Index:
	case c.index == w.Index-1:
		c.prev, c.cur, c.index = c.cur, 0, w.Index
	case c.index < w.Index:
		c.prev, c.cur, c.index = 0, 0, w.Index
	}
	est := estimate(c.prev, c.cur, w)
	if est >= limit {
		return est, false, nil
	}
	c.cur++
	return est + 1, true, nil
}

// sweep drops counters that no longer influence any estimate, at most once a minute.
func (m *MemoryStore) sweep() {
	now := m.now()
	if now.Sub(m.lastSweep) < time.Minute {
		return
	}
	m.lastSweep = now
	for key, c := range m.counters {
		if now.UnixNano()/int64(c.window)-c.index > 1 {
			delete(m.counters, key)
		}
	}
}

func (m *MemoryStore) Status(context.Context) string {
	return "memory"
}

// FallbackStore answers from primary and switches to secondary whenever primary fails.
type FallbackStore struct {
	primary   Store
	secondary Store
	log       *zerolog.Logger
}

// NewFallbackStore combines two stores.
func NewFallbackStore(primary, secondary Store, log *zerolog.Logger) *FallbackStore {
	return &FallbackStore{primary: primary, secondary: secondary, log: log}
}

func (f *FallbackStore) Hit(ctx context.Context, key string, w Window, limit int64) (int64, bool, error) {
	est, allowed, err := f.primary.Hit(ctx, key, w, limit)
	if err == nil {
		return est, allowed, nil
	}
	f.log.Warn().Err(err).Msg("rate limit store unavailable, counting in memory")
	return f.secondary.Hit(ctx, key, w, limit)
}

func (f *FallbackStore) Status(ctx context.Context) string {
	status := f.primary.Status(ctx)
	if status == "redis" {
		return status
	}
	return f.secondary.Status(ctx) + " (fallback)"
}

// Close releases the primary store when it holds a connection.
func (f *FallbackStore) Close() error {
	if closer, ok := f.primary.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
