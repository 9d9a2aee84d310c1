// Package ratelimit paces sends with a token bucket.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/torosent/courier/internal/httpclient"
)

// NewLimiter returns a limiter allowing rps sends per second with a burst of
// rps. A non-positive rps means unlimited.
func NewLimiter(rps int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rps), rps)
}

// Middleware returns a request hook that waits for a token before the send
// continues. A cancelled context fails the send.
func Middleware(l *rate.Limiter) *httpclient.Pipeline {
	return httpclient.NewPipeline().OnRequest(func(ctx context.Context, pr *httpclient.PendingRequest) (*httpclient.Response, error) {
		if err := l.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
		return nil, nil
	})
}

// PerSecond is Middleware(NewLimiter(rps)).
func PerSecond(rps int) *httpclient.Pipeline {
	return Middleware(NewLimiter(rps))
}
