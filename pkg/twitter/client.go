// Package twitter is a minimal X (Twitter) API v2 client: recent search and
// user lookup with public metrics.
package twitter

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

const defaultBaseURL = "https://api.twitter.com/2"

const userFields = "description,profile_image_url,public_metrics,verified,location"

// ErrUserNotFound is returned by GetUser for an unknown or suspended account.
var ErrUserNotFound = eris.New("twitter: user not found")

// Client performs X API v2 operations.
type Client interface {
	// SearchRecent returns the distinct authors of recent posts matching query.
	SearchRecent(ctx context.Context, query string, maxResults int) ([]User, error)
	GetUser(ctx context.Context, id string) (*User, error)
}

// User is an account with its public metrics.
type User struct {
	ID              string        `json:"id"`
	Username        string        `json:"username"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	ProfileImageURL string        `json:"profile_image_url"`
	Location        string        `json:"location"`
	Verified        bool          `json:"verified"`
	PublicMetrics   PublicMetrics `json:"public_metrics"`
}

// URL is the account's public profile.
func (u *User) URL() string {
	return "https://x.com/" + u.Username
}

// PublicMetrics are the counters X exposes for every account.
type PublicMetrics struct {
	FollowersCount int64 `json:"followers_count"`
	FollowingCount int64 `json:"following_count"`
	TweetCount     int64 `json:"tweet_count"`
	ListedCount    int64 `json:"listed_count"`
}

type searchResponse struct {
	Data []struct {
		ID       string `json:"id"`
		AuthorID string `json:"author_id"`
	} `json:"data"`
	Includes struct {
		Users []User `json:"users"`
	} `json:"includes"`
}

type userResponse struct {
	Data   *User `json:"data"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
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
	bearerToken string
	baseURL     string
	http        *http.Client
}

// NewClient creates an X API v2 client using app-only bearer auth.
func NewClient(bearerToken string, opts ...Option) Client {
	c := &httpClient{
		bearerToken: bearerToken,
		baseURL:     defaultBaseURL,
		http:        &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchRecent(ctx context.Context, query string, maxResults int) ([]User, error) {
	// The endpoint accepts 10..100.
	maxResults = min(max(maxResults, 10), 100)
	params := url.Values{
		"query":       {query + " -is:retweet"},
		"max_results": {strconv.Itoa(maxResults)},
		"expansions":  {"author_id"},
		"user.fields": {userFields},
	}

	var resp searchResponse
	if err := c.get(ctx, "/tweets/search/recent", params, &resp); err != nil {
		return nil, eris.Wrap(err, "twitter: search recent")
	}

	byID := make(map[string]User, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		byID[u.ID] = u
	}

	seen := make(map[string]bool)
	var users []User
	for _, tw := range resp.Data {
		if tw.AuthorID == "" || seen[tw.AuthorID] {
			continue
		}
		seen[tw.AuthorID] = true
		u, ok := byID[tw.AuthorID]
		if !ok {
			u = User{ID: tw.AuthorID}
		}
		users = append(users, u)
	}
	return users, nil
}

func (c *httpClient) GetUser(ctx context.Context, id string) (*User, error) {
	params := url.Values{"user.fields": {userFields}}

	var resp userResponse
	if err := c.get(ctx, "/users/"+url.PathEscape(id), params, &resp); err != nil {
		return nil, eris.Wrapf(err, "twitter: get user %s", id)
	}
	if resp.Data == nil {
		return nil, eris.Wrapf(ErrUserNotFound, "twitter: %s", id)
	}
	return resp.Data, nil
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

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
		return resilience.HTTPStatusError("twitter", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "unmarshal response")
	}
	return nil
}
