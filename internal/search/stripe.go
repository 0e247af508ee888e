package search

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/affiliate-scout/internal/model"
	"github.com/sells-group/affiliate-scout/internal/resilience"
	"github.com/sells-group/affiliate-scout/pkg/stripe"
)

// Stripe mines the merchant's own customers: people who already pay for the
// product are natural promoters.
type Stripe struct {
	client stripe.Client
	opts   Options
}

// NewStripe creates the Stripe adapter.
func NewStripe(client stripe.Client, opts Options) *Stripe {
	return &Stripe{client: client, opts: opts}
}

// Platform implements Adapter.
func (a *Stripe) Platform() model.Platform { return model.PlatformStripe }

// Search implements Adapter. Location is ignored.
func (a *Stripe) Search(ctx context.Context, q Query) ([]model.RawCandidate, error) {
	customers, err := call(ctx, a.opts, func(ctx context.Context) ([]stripe.Customer, error) {
		return a.client.SearchCustomers(ctx, q.Keyword, q.pool())
	})
	if err != nil {
		return nil, eris.Wrapf(err, "search: stripe keyword %q", q.Keyword)
	}

	out, failed := resilience.Settle(ctx, a.opts.detailLimit(), customers, func(ctx context.Context, c stripe.Customer) (model.RawCandidate, error) {
		charges, err := call(ctx, a.opts, func(ctx context.Context) ([]stripe.Charge, error) {
			return a.client.ListCharges(ctx, c.ID)
		})
		if err != nil {
			return model.RawCandidate{}, err
		}
		return customerCandidate(c, charges), nil
	})
	if failed > 0 {
		zap.L().Warn("search: stripe charge lookups failed",
			zap.String("keyword", q.Keyword), zap.Int("failed", failed))
	}
	return out, nil
}

func customerCandidate(c stripe.Customer, charges []stripe.Charge) model.RawCandidate {
	spend, count := stripe.Spend(charges)

	name := c.Name
	if name == "" {
		name = c.Email
	}

	bio := c.Description
	if len(c.Metadata) > 0 {
		keys := make([]string, 0, len(c.Metadata))
		for k := range c.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+c.Metadata[k])
		}
		bio = strings.TrimSpace(bio + "\n" + strings.Join(parts, "\n"))
	}

	return model.RawCandidate{
		Platform:    model.PlatformStripe,
		Handle:      c.ID,
		DisplayName: name,
		ProfileURL:  "https://dashboard.stripe.com/customers/" + c.ID,
		Bio:         bio,
		Metrics: model.Metrics{
			Posts: int64p(int64(count)),
			Extra: map[string]float64{
				"lifetime_spend": float64(spend) / 100,
				"charges":        float64(count),
			},
		},
	}
}
