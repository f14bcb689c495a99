package providers

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited spaces out calls to a Provider so the bot stays under the
// backend's requests-per-minute quota instead of tripping it.
type RateLimited struct {
	Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps p with a limit of rpm requests per minute.
// rpm <= 0 returns p unchanged.
func NewRateLimited(p Provider, rpm int) Provider {
	if rpm <= 0 {
		return p
	}
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		Provider: p,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), burst),
	}
}

func (r *RateLimited) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: throttle: %w", r.Name(), err)
	}
	return r.Provider.Chat(ctx, req)
}
