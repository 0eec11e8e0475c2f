package driven

import "context"

// RateLimiter decides whether a user may send another message right now.
type RateLimiter interface {
	Allow(ctx context.Context, username string) (bool, error)
}
