package auth

import (
	"sync"
	"time"
)

// LimitScope names the bucket that refused a login.
type LimitScope string

const (
	// ScopeAccount counts failures for one username from one client.
	ScopeAccount LimitScope = "account"
	// ScopeClient counts failures from one client across all usernames.
	ScopeClient LimitScope = "client"
)

// RateLimitConfig contains configuration for the rate limiter.
type RateLimitConfig struct {
	MaxAttempts          int           // failures per username and client (default: 5)
	MaxAttemptsPerClient int           // failures per client over all usernames (default: 4x MaxAttempts)
	WindowDuration       time.Duration // default: 15m
	LockoutDuration      time.Duration // default: 15m
	CleanupInterval      time.Duration // default: 5m
}

// LimitDecision is the outcome of a rate limit check.
type LimitDecision struct {
	Allowed    bool
	Scope      LimitScope
	RetryAfter time.Duration
}

type failureBucket struct {
	failures    int
	windowStart time.Time
	lockedUntil time.Time
}

func (b *failureBucket) locked(now time.Time) bool {
	return now.Before(b.lockedUntil)
}

// RateLimiter locks out local logins after repeated failures. Each failure
// counts against the account bucket and the client bucket, and either one
// reaching its limit refuses further attempts until the lockout passes.
// A success clears only the account bucket, so one valid account cannot
// launder failures sprayed across other usernames.
type RateLimiter struct {
	mu       sync.Mutex
	accounts map[string]*failureBucket
	clients  map[string]*failureBucket

	maxPerAccount int
	maxPerClient  int
	window        time.Duration
	lockout       time.Duration

	now         func() time.Time
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewRateLimiter creates a rate limiter and starts its cleanup goroutine.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.MaxAttemptsPerClient <= 0 {
		cfg.MaxAttemptsPerClient = 4 * cfg.MaxAttempts
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = 15 * time.Minute
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	rl := &RateLimiter{
		accounts:      make(map[string]*failureBucket),
		clients:       make(map[string]*failureBucket),
		maxPerAccount: cfg.MaxAttempts,
		maxPerClient:  cfg.MaxAttemptsPerClient,
		window:        cfg.WindowDuration,
		lockout:       cfg.LockoutDuration,
		now:           time.Now,
		stopCleanup:   make(chan struct{}),
	}

	go rl.cleanupLoop(cfg.CleanupInterval)

	return rl
}

// Stop stops the background cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

func accountKey(ip, username string) string {
	return ip + "|" + username
}

// Allow reports whether ip may try to log in as username. A client lockout
// takes precedence over an account lockout.
func (rl *RateLimiter) Allow(ip, username string) LimitDecision {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if b, ok := rl.clients[ip]; ok && b.locked(now) {
		return LimitDecision{Scope: ScopeClient, RetryAfter: b.lockedUntil.Sub(now)}
	}
	if b, ok := rl.accounts[accountKey(ip, username)]; ok && b.locked(now) {
		return LimitDecision{Scope: ScopeAccount, RetryAfter: b.lockedUntil.Sub(now)}
	}
	return LimitDecision{Allowed: true}
}

// RecordFailure counts a failed attempt in both buckets. It returns the scope
// whose lockout this failure started, or "" if none did.
func (rl *RateLimiter) RecordFailure(ip, username string) LimitScope {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	var started LimitScope
	if rl.count(rl.accounts, accountKey(ip, username), rl.maxPerAccount, now) {
		started = ScopeAccount
	}
	if rl.count(rl.clients, ip, rl.maxPerClient, now) {
		started = ScopeClient
	}
	return started
}

// count adds a failure to the bucket at key and reports whether it just locked.
func (rl *RateLimiter) count(buckets map[string]*failureBucket, key string, limit int, now time.Time) bool {
	b, ok := buckets[key]
	if !ok || (now.Sub(b.windowStart) > rl.window && !b.locked(now)) {
		b = &failureBucket{windowStart: now}
		buckets[key] = b
	}
	if b.locked(now) {
		return false
	}

	b.failures++
	if b.failures < limit {
		return false
	}
	b.lockedUntil = now.Add(rl.lockout)
	return true
}

// RecordSuccess clears the account bucket after a successful login.
func (rl *RateLimiter) RecordSuccess(ip, username string) {
	rl.mu.Lock()
	delete(rl.accounts, accountKey(ip, username))
	rl.mu.Unlock()
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup drops buckets whose window and lockout have both passed.
func (rl *RateLimiter) cleanup() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for _, buckets := range []map[string]*failureBucket{rl.accounts, rl.clients} {
		for k, b := range buckets {
			if now.Sub(b.windowStart) > rl.window && !b.locked(now) {
				delete(buckets, k)
			}
		}
	}
}
