// Package ratelimit applies per-client token bucket limits to HTTP endpoints.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Info describes the limit applied to a request.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	limit    int
	lastSeen time.Time
}

// Limiter tracks one token bucket per client and rule.
type Limiter struct {
	cfg     *Config
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]*entry
	stop    chan struct{}
	once    sync.Once
}

// NewLimiter creates a limiter and starts its cleanup loop.
func NewLimiter(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	l := &Limiter{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
	if cfg.Enabled && cfg.CleanupInterval > 0 {
		go l.cleanupLoop(cfg.CleanupInterval)
	}
	return l
}

// Allow consumes one token for the client on the matching rule.
func (l *Limiter) Allow(clientID, path, method string) Info {
	if !l.cfg.Enabled || l.cfg.Whitelist[clientID] {
		return Info{Allowed: true}
	}

	rule := Match(path, method, l.cfg.Rules)
	key := clientID + " " + method + " " + path
	if rule == nil {
		rule = &l.cfg.Default
		key = clientID + " default"
	} else if rule.Path != "" {
		key = clientID + " " + rule.Method + " " + rule.Path
	}
	if rule.Limit <= 0 || rule.Window <= 0 {
		return Info{Allowed: true}
	}

	now := l.now()
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		burst := rule.Burst
		if burst <= 0 {
			burst = rule.Limit
		}
		e = &entry{
			limiter: rate.NewLimiter(rate.Every(rule.Window/time.Duration(rule.Limit)), burst),
			limit:   rule.Limit,
		}
		l.entries[key] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	info := Info{Limit: e.limit}
	if e.limiter.AllowN(now, 1) {
		info.Allowed = true
	} else {
		r := e.limiter.ReserveN(now, 1)
		info.RetryAfter = r.DelayFrom(now)
		r.CancelAt(now)
	}
	if tokens := e.limiter.TokensAt(now); tokens > 0 {
		info.Remaining = int(tokens)
	}
	return info
}

// Cleanup drops entries idle for longer than IdleTTL.
func (l *Limiter) Cleanup() int {
	cutoff := l.now().Add(-l.cfg.IdleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

func (l *Limiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Cleanup()
		case <-l.stop:
			return
		}
	}
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}
