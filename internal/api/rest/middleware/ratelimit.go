package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/api/rest/response"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/metrics"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelprincipal"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/ratelimit"
)

// RateLimiter applies the configured rules. A nil limiter disables limiting.
type RateLimiter struct {
	limiter *ratelimit.Limiter
	rules   *ratelimit.Rules
	log     *zerolog.Logger
}

// NewRateLimiter initializes rate limiting middleware.
func NewRateLimiter(limiter *ratelimit.Limiter, rules *ratelimit.Rules, log *zerolog.Logger) *RateLimiter {
	if limiter == nil || rules == nil {
		return &RateLimiter{log: log}
	}
	return &RateLimiter{limiter: limiter, rules: rules, log: log}
}

// Auth limits login and registration per client address.
func (rl *RateLimiter) Auth() func(http.Handler) http.Handler {
	if rl.limiter == nil {
		return passThrough
	}
	return rl.limit(rl.rules.Auth)
}

// Default limits every authenticated route per principal.
func (rl *RateLimiter) Default() func(http.Handler) http.Handler {
	if rl.limiter == nil {
		return passThrough
	}
	return rl.limit(rl.rules.Default)
}

// Write additionally limits ledger writes.
func (rl *RateLimiter) Write() func(http.Handler) http.Handler {
	if rl.limiter == nil {
		return passThrough
	}
	return rl.limit(rl.rules.Write)
}

func passThrough(next http.Handler) http.Handler {
	return next
}

func identity(r *http.Request) string {
	if p, ok := modelprincipal.FromContext(r.Context()); ok {
		return p.Identity()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func seconds(d time.Duration) string {
	s := int64(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return strconv.FormatInt(s, 10)
}

func (rl *RateLimiter) limit(rule ratelimit.Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := rl.limiter.Allow(r.Context(), rule, identity(r))
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", seconds(res.Reset))
			if !res.Allowed {
				metrics.RateLimitRejections.WithLabelValues(rule.Name).Inc()
				rl.log.Debug().Msgf("rate limit %s exceeded by %s", rule.Name, identity(r))
				w.Header().Set("Retry-After", seconds(res.Reset))
				response.Error(w, http.StatusTooManyRequests, "rate limit exceeded: "+rule.String(), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
