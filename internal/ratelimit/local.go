package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	localIdleTTL       = 3 * time.Minute
	localSweepInterval = time.Minute
)

type localClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter is a per-key token bucket held in process memory.
// It refills limit tokens per window and allows bursts up to limit.
type LocalLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	clients   map[string]*localClient
	lastSweep time.Time
	now       func() time.Time
}

// NewLocalLimiter creates an in-process limiter for single-instance deployments.
func NewLocalLimiter(limit int, window time.Duration) (*LocalLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	return &LocalLimiter{
		limit:     rate.Every(window / time.Duration(limit)),
		burst:     limit,
		clients:   make(map[string]*localClient),
		lastSweep: time.Now(),
		now:       time.Now,
	}, nil
}

// Allow consumes one token for key.
func (l *LocalLimiter) Allow(_ context.Context, key string) bool {
	if l == nil {
		return false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) >= localSweepInterval {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > localIdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}
	c, ok := l.clients[key]
	if !ok {
		c = &localClient{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Close is a no-op.
func (l *LocalLimiter) Close() error {
	return nil
}

func (l *LocalLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
