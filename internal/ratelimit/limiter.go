package ratelimit

import "context"

// Limiter decides whether a keyed request is within quota.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
	Close() error
}
