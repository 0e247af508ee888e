package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/affiliate-scout/internal/model"
	"github.com/sells-group/affiliate-scout/internal/resilience"
	"github.com/sells-group/affiliate-scout/pkg/google"
	"github.com/sells-group/affiliate-scout/pkg/youtube"
)

// defaultRadiusKM applies when a location is given without a radius.
const defaultRadiusKM = 50

// YouTube finds channels via search.list and enriches each with channels.list.
type YouTube struct {
	client youtube.Client
	geo    google.Client
	opts   Options
}

// NewYouTube creates the YouTube adapter. geo may be nil, which disables
// location filtering.
func NewYouTube(client youtube.Client, geo google.Client, opts Options) *YouTube {
	return &YouTube{client: client, geo: geo, opts: opts}
}

// Platform implements Adapter.
func (a *YouTube) Platform() model.Platform { return model.PlatformYouTube }

// Search implements Adapter.
func (a *YouTube) Search(ctx context.Context, q Query) ([]model.RawCandidate, error) {
	req := youtube.SearchRequest{Query: q.Keyword, Type: "channel", MaxResults: q.pool()}

	// YouTube only filters videos by location, so a located search looks for
	// videos and keeps their channels.
	if q.Location != "" && a.geo != nil {
		loc, err := call(ctx, a.opts, func(ctx context.Context) (*google.Location, error) {
			return a.geo.Geocode(ctx, q.Location)
		})
		if err != nil {
			zap.L().Warn("search: geocode failed, searching without location",
				zap.String("location", q.Location), zap.Error(err))
		} else {
			radius := q.RadiusKM
			if radius <= 0 {
				radius = defaultRadiusKM
			}
			req.Type = "video"
			req.Location = fmt.Sprintf("%.6f,%.6f", loc.Lat, loc.Lng)
			req.LocationRadius = fmt.Sprintf("%.0fkm", min(radius, 1000))
		}
	}

	items, err := call(ctx, a.opts, func(ctx context.Context) ([]youtube.SearchItem, error) {
		return a.client.Search(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "search: youtube keyword %q", q.Keyword)
	}

	ids := distinctChannels(items)
	out, failed := resilience.Settle(ctx, a.opts.detailLimit(), ids, func(ctx context.Context, id string) (model.RawCandidate, error) {
		ch, err := call(ctx, a.opts, func(ctx context.Context) (*youtube.Channel, error) {
			return a.client.GetChannel(ctx, id)
		})
		if err != nil {
			return model.RawCandidate{}, err
		}
		return channelCandidate(ch), nil
	})
	if failed > 0 {
		zap.L().Warn("search: youtube channel lookups failed",
			zap.String("keyword", q.Keyword), zap.Int("failed", failed), zap.Int("found", len(ids)))
	}
	return out, nil
}

func distinctChannels(items []youtube.SearchItem) []string {
	seen := make(map[string]bool, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it.ChannelID == "" || seen[it.ChannelID] {
			continue
		}
		seen[it.ChannelID] = true
		ids = append(ids, it.ChannelID)
	}
	return ids
}

func channelCandidate(ch *youtube.Channel) model.RawCandidate {
	handle := ch.ID
	if ch.CustomURL != "" {
		handle = strings.ToLower(ch.CustomURL)
	}
	return model.RawCandidate{
		Platform:    model.PlatformYouTube,
		Handle:      handle,
		DisplayName: ch.Title,
		AvatarURL:   ch.Thumbnail,
		ProfileURL:  ch.URL(),
		Bio:         ch.Description,
		Metrics: model.Metrics{
			Followers: ch.Subscribers,
			Views:     int64p(ch.Views),
			Posts:     int64p(ch.Videos),
		},
	}
}
