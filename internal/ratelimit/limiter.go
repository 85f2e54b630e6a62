package ratelimit

import "context"

// RateLimiter controls forward throughput per destination host.
type RateLimiter interface {
	Allow(ctx context.Context, destination string) (bool, error)
	Wait(ctx context.Context, destination string) error
}
