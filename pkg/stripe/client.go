// Package stripe is a read-only Stripe REST client for mining a merchant's
// own customer base: customer search and per-customer charge history.
package stripe

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/affiliate-scout/internal/resilience"
)

const (
	defaultBaseURL = "https://api.stripe.com/v1"
	// maxChargePages bounds pagination per customer.
	maxChargePages = 5
)

// Client performs Stripe API operations.
type Client interface {
	SearchCustomers(ctx context.Context, keyword string, limit int) ([]Customer, error)
	ListCharges(ctx context.Context, customerID string) ([]Charge, error)
}

// Customer is a Stripe customer record.
type Customer struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Email       string            `json:"email"`
	Description string            `json:"description"`
	Created     int64             `json:"created"`
	Metadata    map[string]string `json:"metadata"`
}

// Charge is a single payment attempt; Amount is in the currency's minor unit.
type Charge struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Paid     bool   `json:"paid"`
	Refunded bool   `json:"refunded"`
	Status   string `json:"status"`
}

// Spend sums successful, unrefunded charges.
func Spend(charges []Charge) (total int64, count int) {
	for _, c := range charges {
		if c.Paid && !c.Refunded && c.Status == "succeeded" {
			total += c.Amount
			count++
		}
	}
	return total, count
}

type listResponse[T any] struct {
	Data    []T  `json:"data"`
	HasMore bool `json:"has_more"`
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
	secretKey string
	baseURL   string
	http      *http.Client
}

// NewClient creates a Stripe client authenticated with a secret or restricted key.
func NewClient(secretKey string, opts ...Option) Client {
	c := &httpClient{
		secretKey: secretKey,
		baseURL:   defaultBaseURL,
		http:      &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchCustomers(ctx context.Context, keyword string, limit int) ([]Customer, error) {
	term := escapeSearch(keyword)
	params := url.Values{
		"query": {`name~"` + term + `" OR email~"` + term + `"`},
		"limit": {strconv.Itoa(min(max(limit, 1), 100))},
	}

	var resp listResponse[Customer]
	if err := c.get(ctx, "/customers/search", params, &resp); err != nil {
		return nil, eris.Wrap(err, "stripe: search customers")
	}
	return resp.Data, nil
}

func (c *httpClient) ListCharges(ctx context.Context, customerID string) ([]Charge, error) {
	var all []Charge
	params := url.Values{
		"customer": {customerID},
		"limit":    {"100"},
	}
	for page := 0; page < maxChargePages; page++ {
		var resp listResponse[Charge]
		if err := c.get(ctx, "/charges", params, &resp); err != nil {
			return nil, eris.Wrapf(err, "stripe: list charges for %s", customerID)
		}
		all = append(all, resp.Data...)
		if !resp.HasMore || len(resp.Data) == 0 {
			break
		}
		params.Set("starting_after", resp.Data[len(resp.Data)-1].ID)
	}
	return all, nil
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

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
		return resilience.HTTPStatusError("stripe", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "unmarshal response")
	}
	return nil
}

// escapeSearch quotes a term for Stripe's search query language.
func escapeSearch(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(strings.TrimSpace(s))
}
