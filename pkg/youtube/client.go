// Package youtube is a minimal YouTube Data API v3 client covering channel
// discovery: search.list and channels.list.
package youtube

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/affiliate-scout/internal/resilience"
)

const defaultBaseURL = "https://www.googleapis.com/youtube/v3"

// ErrChannelNotFound is returned by GetChannel for an unknown ID.
var ErrChannelNotFound = eris.New("youtube: channel not found")

// Client performs YouTube Data API operations.
type Client interface {
	Search(ctx context.Context, req SearchRequest) ([]SearchItem, error)
	GetChannel(ctx context.Context, channelID string) (*Channel, error)
}

// SearchRequest maps onto search.list parameters.
type SearchRequest struct {
	Query string
	// Type is "channel" or "video". Location filters only apply to videos.
	Type       string
	MaxResults int
	// Location is "lat,lng"; LocationRadius like "50km".
	Location       string
	LocationRadius string
}

// SearchItem is one search hit reduced to its channel.
type SearchItem struct {
	ChannelID    string
	ChannelTitle string
	Description  string
	Thumbnail    string
}

// Channel carries a channel's profile and public statistics.
type Channel struct {
	ID          string
	Title       string
	Description string
	CustomURL   string
	Thumbnail   string
	Subscribers *int64
	Views       int64
	Videos      int64
}

// URL is the public channel page.
func (c *Channel) URL() string {
	if c.CustomURL != "" {
		return "https://www.youtube.com/" + c.CustomURL
	}
	return "https://www.youtube.com/channel/" + c.ID
}

type thumbnails struct {
	Default struct {
		URL string `json:"url"`
	} `json:"default"`
}

type searchResponse struct {
	Items []struct {
		ID struct {
			Kind      string `json:"kind"`
			ChannelID string `json:"channelId"`
		} `json:"id"`
		Snippet struct {
			ChannelID    string     `json:"channelId"`
			ChannelTitle string     `json:"channelTitle"`
			Title        string     `json:"title"`
			Description  string     `json:"description"`
			Thumbnails   thumbnails `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

type channelsResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title       string     `json:"title"`
			Description string     `json:"description"`
			CustomURL   string     `json:"customUrl"`
			Thumbnails  thumbnails `json:"thumbnails"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount             string `json:"viewCount"`
			SubscriberCount       string `json:"subscriberCount"`
			HiddenSubscriberCount bool   `json:"hiddenSubscriberCount"`
			VideoCount            string `json:"videoCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a YouTube Data API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) ([]SearchItem, error) {
	params := url.Values{
		"part": {"snippet"},
		"q":    {req.Query},
		"type": {"channel"},
	}
	if req.Type != "" {
		params.Set("type", req.Type)
	}
	if req.MaxResults > 0 {
		params.Set("maxResults", strconv.Itoa(min(req.MaxResults, 50)))
	}
	if req.Location != "" && params.Get("type") == "video" {
		params.Set("location", req.Location)
		params.Set("locationRadius", req.LocationRadius)
	}

	var resp searchResponse
	if err := c.get(ctx, "/search", params, &resp); err != nil {
		return nil, eris.Wrap(err, "youtube: search")
	}

	items := make([]SearchItem, 0, len(resp.Items))
	for _, it := range resp.Items {
		id := it.Snippet.ChannelID
		if id == "" {
			id = it.ID.ChannelID
		}
		if id == "" {
			continue
		}
		items = append(items, SearchItem{
			ChannelID:    id,
			ChannelTitle: it.Snippet.ChannelTitle,
			Description:  it.Snippet.Description,
			Thumbnail:    it.Snippet.Thumbnails.Default.URL,
		})
	}
	return items, nil
}

func (c *httpClient) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	params := url.Values{
		"part": {"snippet,statistics"},
		"id":   {channelID},
	}

	var resp channelsResponse
	if err := c.get(ctx, "/channels", params, &resp); err != nil {
		return nil, eris.Wrapf(err, "youtube: get channel %s", channelID)
	}
	if len(resp.Items) == 0 {
		return nil, eris.Wrapf(ErrChannelNotFound, "youtube: %s", channelID)
	}

	it := resp.Items[0]
	ch := &Channel{
		ID:          it.ID,
		Title:       it.Snippet.Title,
		Description: it.Snippet.Description,
		CustomURL:   it.Snippet.CustomURL,
		Thumbnail:   it.Snippet.Thumbnails.Default.URL,
		Views:       parseCount(it.Statistics.ViewCount),
		Videos:      parseCount(it.Statistics.VideoCount),
	}
	if !it.Statistics.HiddenSubscriberCount {
		subs := parseCount(it.Statistics.SubscriberCount)
		ch.Subscribers = &subs
	}
	return ch, nil
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return resilience.HTTPStatusError("youtube", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "unmarshal response")
	}
	return nil
}

// parseCount reads the API's string-encoded counters; garbage reads as 0.
func parseCount(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
