// Package throttle provides per-user request rate limiting for query
// submission: an in-process limiter for single-node deployments and a
// Redis-backed fixed window for multi-node ones.
package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/BaSui01/researchflow/types"
)

// Limiter answers whether a user may submit another query right now.
type Limiter interface {
	// Allow consumes one submission slot for userID. It returns a
	// RATE_LIMITED error when the user's window is exhausted.
	Allow(ctx context.Context, userID string) error
}

// Config holds throttle parameters.
type Config struct {
	// Limit is the number of submissions allowed per Period per user.
	Limit int `json:"limit" yaml:"limit"`

	// Period is the throttle window.
	Period time.Duration `json:"period" yaml:"period"`
}

// DefaultConfig matches the upstream agent throttle of 10 per minute.
func DefaultConfig() Config {
	return Config{Limit: 10, Period: time.Minute}
}

func (c *Config) normalize() {
	if c.Limit <= 0 {
		c.Limit = 10
	}
	if c.Period <= 0 {
		c.Period = time.Minute
	}
}

// LocalLimiter keeps one token bucket per user in process memory. Idle
// buckets are reclaimed after two full periods.
type LocalLimiter struct {
	cfg Config

	mu       sync.Mutex
	limiters map[string]*userLimiter
	lastReap time.Time
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates an in-process limiter.
func NewLocalLimiter(cfg Config) *LocalLimiter {
	cfg.normalize()
	return &LocalLimiter{
		cfg:      cfg,
		limiters: make(map[string]*userLimiter),
		lastReap: time.Now(),
	}
}

// Allow consumes one slot from the user's bucket.
func (l *LocalLimiter) Allow(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.reapLocked(now)

	ul, ok := l.limiters[userID]
	if !ok {
		limit := rate.Every(l.cfg.Period / time.Duration(l.cfg.Limit))
		ul = &userLimiter{limiter: rate.NewLimiter(limit, l.cfg.Limit)}
		l.limiters[userID] = ul
	}
	ul.lastSeen = now

	if !ul.limiter.Allow() {
		return types.Terminal(types.ErrRateLimited,
			fmt.Sprintf("user %s exceeded %d requests per %s", userID, l.cfg.Limit, l.cfg.Period)).
			WithHTTPStatus(429)
	}
	return nil
}

func (l *LocalLimiter) reapLocked(now time.Time) {
	if now.Sub(l.lastReap) < l.cfg.Period {
		return
	}
	cutoff := now.Add(-2 * l.cfg.Period)
	for userID, ul := range l.limiters {
		if ul.lastSeen.Before(cutoff) {
			delete(l.limiters, userID)
		}
	}
	l.lastReap = now
}

// RedisLimiter implements a fixed-window counter shared across processes:
// INCR on a per-user-per-window key, EXPIRE on first increment.
type RedisLimiter struct {
	cfg    Config
	client redis.UniversalClient
	prefix string
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(cfg Config, client redis.UniversalClient) *RedisLimiter {
	cfg.normalize()
	return &RedisLimiter{
		cfg:    cfg,
		client: client,
		prefix: "researchflow:throttle",
	}
}

// Allow atomically increments the user's window counter.
func (l *RedisLimiter) Allow(ctx context.Context, userID string) error {
	window := time.Now().Unix() / int64(l.cfg.Period.Seconds())
	key := fmt.Sprintf("%s:%s:%d", l.prefix, userID, window)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.cfg.Period)
	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open: a throttle outage must not block all submissions.
		return nil
	}

	if incr.Val() > int64(l.cfg.Limit) {
		return types.Terminal(types.ErrRateLimited,
			fmt.Sprintf("user %s exceeded %d requests per %s", userID, l.cfg.Limit, l.cfg.Period)).
			WithHTTPStatus(429)
	}
	return nil
}
