package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Result describes the outcome of a hit.
type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	// Reset is the time left until the current fixed window ends.
	Reset time.Duration
}

// Limiter applies rules to identities.
type Limiter struct {
	store Store
	log   *zerolog.Logger
	now   func() time.Time
}

// NewLimiter initializes a limiter over store.
func NewLimiter(store Store, log *zerolog.Logger) *Limiter {
	return &Limiter{store: store, log: log, now: time.Now}
}

// NewStore picks the store for redisURL. An empty URL, a malformed one or an unreachable server leave only
// the memory store; otherwise Redis is used with memory as fallback.
func NewStore(ctx context.Context, redisURL string, log *zerolog.Logger) Store {
	memory := NewMemoryStore()
	if redisURL == "" {
		log.Info().Msg("rate limiting counts in memory")
		return memory
	}
	redisStore, err := NewRedisStore(redisURL)
	if err != nil {
		log.Warn().Err(err).Msg("invalid REDIS_URL, rate limiting counts in memory")
		return memory
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err = redisStore.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Msg("redis is unreachable, rate limiting counts in memory")
		redisStore.Close()
		return memory
	}
	log.Info().Msg("rate limiting counts in redis")
	return NewFallbackStore(redisStore, memory, log)
}

// Allow records a hit of identity against rule. Store failures let the request through.
func (l *Limiter) Allow(ctx context.Context, rule Rule, identity string) Result {
	now := l.now()
	index := now.UnixNano() / int64(rule.Window)
	w := Window{
		Index:   index,
		Elapsed: now.Sub(time.Unix(0, index*int64(rule.Window))),
		Length:  rule.Window,
	}
	res := Result{Allowed: true, Limit: rule.Limit, Remaining: rule.Limit, Reset: rule.Window - w.Elapsed}
	est, allowed, err := l.store.Hit(ctx, rule.Name+":"+identity, w, rule.Limit)
	if err != nil {
		l.log.Error().Err(err).Msgf("rate limit rule %s could not be applied", rule.Name)
		return res
	}
	res.Allowed = allowed
	res.Remaining = rule.Limit - est
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	return res
}

// Status reports the backend currently counting hits.
func (l *Limiter) Status(ctx context.Context) string {
	return l.store.Status(ctx)
}
