// Package search finds candidate promoters on each supported platform.
package search

import (
	"context"
	"slices"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/affiliate-scout/internal/model"
	"github.com/sells-group/affiliate-scout/internal/resilience"
)

// DefaultLimit is the result pool size when a query does not set one.
const DefaultLimit = 25

// Query is one keyword search at one rubric tier.
type Query struct {
	Keyword  string
	Tier     model.Tier
	Location string
	RadiusKM float64
	Limit    int
}

// pool is how many accounts to pull for this query. Looser tiers see a
// wider pool.
func (q Query) pool() int {
	n := q.Limit
	if n <= 0 {
		n = DefaultLimit
	}
	switch q.Tier {
	case model.TierMedium:
		n = n * 3 / 2
	case model.TierEasy:
		n *= 2
	}
	return n
}

// Adapter searches one platform. A returned error means the whole keyword
// search failed; failed per-account detail lookups only drop that account.
type Adapter interface {
	Platform() model.Platform
	Search(ctx context.Context, q Query) ([]model.RawCandidate, error)
}

// Options are the call protections shared by every adapter.
type Options struct {
	Guard             *resilience.Guard
	Limiter           *rate.Limiter
	DetailConcurrency int
}

func (o Options) detailLimit() int {
	if o.DetailConcurrency <= 0 {
		return 5
	}
	return o.DetailConcurrency
}

// call runs one upstream request under the adapter's rate limit and guard.
func call[T any](ctx context.Context, o Options, fn func(context.Context) (T, error)) (T, error) {
	return resilience.Call(ctx, o.Guard, func(ctx context.Context) (T, error) {
		if o.Limiter != nil {
			if err := o.Limiter.Wait(ctx); err != nil {
				var zero T
				return zero, eris.Wrap(err, "search: rate limit")
			}
		}
		return fn(ctx)
	})
}

// Registry maps platforms to adapters.
type Registry struct {
	adapters map[model.Platform]Adapter
}

// NewRegistry indexes adapters by platform. Later duplicates win.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[model.Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// Get returns the adapter for p.
func (r *Registry) Get(p model.Platform) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, eris.Errorf("search: platform %q is not configured", p)
	}
	return a, nil
}

// Platforms lists the configured platforms in a stable order.
func (r *Registry) Platforms() []model.Platform {
	out := make([]model.Platform, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

func int64p(v int64) *int64 { return &v }
