package resilience

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Settle runs fn over items with at most limit in flight and waits for all of
// them. Failed items are logged and counted, never propagated; successes come
// back in input order.
func Settle[T, R any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, int) {
	if limit <= 0 {
		limit = 1
	}

	type slot struct {
		val R
		ok  bool
	}
	slots := make([]slot, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			val, err := fn(gctx, item)
			if err != nil {
				zap.L().Debug("fan-out item failed", zap.Int("index", i), zap.Error(err))
				return nil
			}
			slots[i] = slot{val: val, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]R, 0, len(items))
	failed := 0
	for _, s := range slots {
		if s.ok {
			out = append(out, s.val)
		} else {
			failed++
		}
	}
	return out, failed
}
