package resilience

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Guard bundles the protections applied to every upstream platform call:
// a circuit breaker, transient retries and a timeout per attempt.
type Guard struct {
	Breaker *Breaker
	Retry   RetryConfig
	Timeout time.Duration
}

// Call runs fn under g. A nil guard runs fn directly.
func Call[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	if g == nil {
		return fn(ctx)
	}

	attempt := func(ctx context.Context) (T, error) {
		if g.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.Timeout)
			defer cancel()
		}
		if g.Breaker == nil {
			return fn(ctx)
		}
		return Execute(ctx, g.Breaker, fn)
	}

	retry := g.Retry
	if retry.ShouldRetry == nil {
		// An open circuit will not close within a retry window.
		retry.ShouldRetry = func(err error) bool {
			return IsTransient(err) && !isCircuitOpen(err)
		}
	}
	return Retry(ctx, retry, attempt)
}

func isCircuitOpen(err error) bool {
	return eris.Is(err, ErrCircuitOpen)
}
