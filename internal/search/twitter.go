package search

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/affiliate-scout/internal/model"
	"github.com/sells-group/affiliate-scout/internal/resilience"
	"github.com/sells-group/affiliate-scout/pkg/twitter"
)

// Twitter finds accounts posting about a keyword via recent search.
type Twitter struct {
	client twitter.Client
	opts   Options
}

// NewTwitter creates the X adapter.
func NewTwitter(client twitter.Client, opts Options) *Twitter {
	return &Twitter{client: client, opts: opts}
}

// Platform implements Adapter.
func (a *Twitter) Platform() model.Platform { return model.PlatformTwitter }

// Search implements Adapter. Location is ignored: recent search has no
// geographic filter on the standard tier.
func (a *Twitter) Search(ctx context.Context, q Query) ([]model.RawCandidate, error) {
	authors, err := call(ctx, a.opts, func(ctx context.Context) ([]twitter.User, error) {
		return a.client.SearchRecent(ctx, q.Keyword, q.pool())
	})
	if err != nil {
		return nil, eris.Wrapf(err, "search: twitter keyword %q", q.Keyword)
	}

	// Authors not expanded in the search response need a lookup for their metrics.
	out, failed := resilience.Settle(ctx, a.opts.detailLimit(), authors, func(ctx context.Context, u twitter.User) (model.RawCandidate, error) {
		if u.Username == "" {
			full, err := call(ctx, a.opts, func(ctx context.Context) (*twitter.User, error) {
				return a.client.GetUser(ctx, u.ID)
			})
			if err != nil {
				return model.RawCandidate{}, err
			}
			u = *full
		}
		if u.Username == "" {
			return model.RawCandidate{}, eris.Errorf("search: twitter user %s has no username", u.ID)
		}
		return userCandidate(u), nil
	})
	if failed > 0 {
		zap.L().Warn("search: twitter user lookups failed",
			zap.String("keyword", q.Keyword), zap.Int("failed", failed))
	}
	return out, nil
}

func userCandidate(u twitter.User) model.RawCandidate {
	m := u.PublicMetrics
	raw := model.RawCandidate{
		Platform:    model.PlatformTwitter,
		Handle:      strings.ToLower(u.Username),
		DisplayName: u.Name,
		AvatarURL:   u.ProfileImageURL,
		ProfileURL:  u.URL(),
		Bio:         u.Description,
		Metrics: model.Metrics{
			Followers: int64p(m.FollowersCount),
			Posts:     int64p(m.TweetCount),
			Extra: map[string]float64{
				"following": float64(m.FollowingCount),
				"listed":    float64(m.ListedCount),
			},
		},
	}
	if u.Verified {
		raw.Metrics.Extra["verified"] = 1
	}
	return raw
}
