// Package google geocodes free-form locations with the Google Geocoding API.
package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/affiliate-scout/internal/resilience"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api"

// ErrNoMatch is returned when the API finds nothing for an address.
var ErrNoMatch = eris.New("google: no geocoding match")

// Client performs Google Geocoding API operations.
type Client interface {
	Geocode(ctx context.Context, address string) (*Location, error)
}

// Location is the best match for a geocoded address.
type Location struct {
	Lat              float64
	Lng              float64
	FormattedAddress string
	LocationType     string
}

type geocodeResponse struct {
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"`
		} `json:"geometry"`
	} `json:"results"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
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

// NewClient creates a Google Geocoding API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Geocode(ctx context.Context, address string) (*Location, error) {
	params := url.Values{
		"address": {address},
		"key":     {c.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/geocode/json?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.HTTPStatusError("google", resp.StatusCode, body)
	}

	var result geocodeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal response")
	}

	switch result.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, eris.Wrapf(ErrNoMatch, "google: %q", address)
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return nil, resilience.NewTransientError(eris.Errorf("google: status %s", result.Status), http.StatusTooManyRequests)
	default:
		return nil, eris.Errorf("google: status %s: %s", result.Status, result.ErrorMessage)
	}
	if len(result.Results) == 0 {
		return nil, eris.Wrapf(ErrNoMatch, "google: %q", address)
	}

	best := result.Results[0]
	return &Location{
		Lat:              best.Geometry.Location.Lat,
		Lng:              best.Geometry.Location.Lng,
		FormattedAddress: best.FormattedAddress,
		LocationType:     best.Geometry.LocationType,
	}, nil
}
