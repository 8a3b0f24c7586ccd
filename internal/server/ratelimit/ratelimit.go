// Package ratelimit provides per-client request throttling with token buckets.
package ratelimit

import (
	"sync"
	"time"
)

// Info describes the throttling state returned with every decision. The
// server turns it into X-RateLimit-* and Retry-After headers.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// bucket is a token bucket plus the bookkeeping the janitor needs. Tokens
// refill continuously; a request consumes one whole token.
type bucket struct {
	capacity float64
	rate     float64 // tokens per second
	tokens   float64
	updated  time.Time
	lastSeen time.Time
}

// refill advances the bucket to now.
func (b *bucket) refill(now time.Time) {
	b.tokens += now.Sub(b.updated).Seconds() * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.updated = now
}

// resetAt reports when the bucket refills completely.
func (b *bucket) resetAt(now time.Time) time.Time {
	if b.tokens >= b.capacity {
		return now
	}
	missing := b.capacity - b.tokens
	return now.Add(time.Duration(missing / b.rate * float64(time.Second)))
}

// Limiter throttles clients per endpoint tier. Buckets are keyed by
// client + path + method and evicted after an hour of inactivity.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  *Config
	stop    chan struct{}
	once    sync.Once
}

// NewLimiter creates a rate limiter and, when cleanup is configured, starts
// its eviction goroutine. Stop releases it.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{
			Enabled:         true,
			DefaultLimit:    1000,
			DefaultWindow:   time.Minute,
			CleanupInterval: 5 * time.Minute,
		}
	}

	l := &Limiter{
		buckets: make(map[string]*bucket),
		config:  config,
		stop:    make(chan struct{}),
	}

	if config.Enabled && config.CleanupInterval > 0 {
		go l.janitor(config.CleanupInterval)
	}

	return l
}

// Allow decides whether a request from clientID to method+path may proceed.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}
	if l.config.Blacklist[clientID] {
		return false, Info{}
	}

	tier := MatchEndpoint(path, method, l.config.EndpointConfigs)
	if tier == nil {
		tier = &EndpointConfig{
			Limit:  l.config.DefaultLimit,
			Window: l.config.DefaultWindow,
		}
	}
	if tier.Limit <= 0 {
		// Unlimited tier, e.g. the health check.
		return true, Info{Allowed: true}
	}

	now := time.Now()
	key := clientID + ":" + path + ":" + method

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		capacity := tier.Burst
		if capacity <= 0 {
			capacity = tier.Limit
		}
		b = &bucket{
			capacity: float64(capacity),
			rate:     float64(tier.Limit) / tier.Window.Seconds(),
			tokens:   float64(capacity),
			updated:  now,
		}
		l.buckets[key] = b
	}
	b.lastSeen = now

	b.refill(now)
	allowed := b.tokens >= 1
	if allowed {
		b.tokens--
	}
	remaining := int(b.tokens)
	reset := b.resetAt(now)
	l.mu.Unlock()

	info := Info{
		Allowed:   allowed,
		Limit:     tier.Limit,
		Remaining: remaining,
		ResetTime: reset,
	}
	if !allowed {
		if retry := time.Until(reset); retry > 0 {
			info.RetryAfter = retry
		}
	}
	return allowed, info
}

// janitor evicts buckets idle for over an hour.
func (l *Limiter) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-time.Hour)
			l.mu.Lock()
			for key, b := range l.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Stop terminates the eviction goroutine. Safe to call more than once.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}
