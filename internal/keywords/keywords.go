// Package keywords derives platform search keywords from a product description.
package keywords

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/affiliate-scout/internal/model"
	"github.com/sells-group/affiliate-scout/pkg/anthropic"
)

// DefaultMax caps the keyword list when no limit is configured.
const DefaultMax = 5

const systemPrompt = `You generate search keywords for finding people who could promote a product.
Respond with a JSON array of short lowercase keyword phrases and nothing else.`

var platformHints = map[model.Platform]string{
	model.PlatformYouTube: "Keywords will be used to search YouTube for channels whose audience would buy this product. Prefer topics, niches and video themes.",
	model.PlatformTwitter: "Keywords will be used to search recent posts on X. Prefer phrases people actually post about, hashtags without the # sign, and community names.",
	model.PlatformStripe:  "Keywords will be matched against existing customers' names and emails in a payment processor. Prefer short brand, domain and niche fragments.",
}

// Deriver turns a product into search keywords. It never fails: any model
// problem yields an empty list.
type Deriver struct {
	client    anthropic.Client
	model     string
	max       int
	timeout   time.Duration
	maxTokens int64
}

// Option configures a Deriver.
type Option func(*Deriver)

// WithMax sets the keyword cap.
func WithMax(n int) Option {
	return func(d *Deriver) {
		if n > 0 {
			d.max = n
		}
	}
}

// WithTimeout bounds the model call.
func WithTimeout(t time.Duration) Option {
	return func(d *Deriver) {
		d.timeout = t
	}
}

// New creates a Deriver using the given model.
func New(client anthropic.Client, model string, opts ...Option) *Deriver {
	d := &Deriver{
		client:    client,
		model:     model,
		max:       DefaultMax,
		timeout:   30 * time.Second,
		maxTokens: 256,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Derive returns up to the configured number of normalized keywords.
func (d *Deriver) Derive(ctx context.Context, product model.Product, platform model.Platform) []string {
	if strings.TrimSpace(product.Name) == "" && strings.TrimSpace(product.Description) == "" {
		return nil
	}

	log := zap.L().With(zap.String("product_id", product.ID), zap.String("platform", string(platform)))

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	temp := 0.2
	resp, err := d.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       d.model,
		MaxTokens:   d.maxTokens,
		System:      []anthropic.SystemBlock{{Text: systemPrompt}},
		Messages:    []anthropic.Message{{Role: "user", Content: d.prompt(product, platform)}},
		Temperature: &temp,
	})
	if err != nil {
		log.Warn("keywords: model call failed", zap.Error(err))
		return nil
	}
	resp.Usage.LogCost(d.model, "keywords")

	raw, err := anthropic.ExtractJSONArray(resp.Text())
	if err != nil {
		log.Warn("keywords: no JSON array in response", zap.Error(err))
		return nil
	}
	var parsed []string
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		log.Warn("keywords: malformed JSON array", zap.Error(err))
		return nil
	}

	out := Normalize(parsed, d.max)
	log.Debug("keywords derived", zap.Strings("keywords", out))
	return out
}

func (d *Deriver) prompt(product model.Product, platform model.Platform) string {
	return fmt.Sprintf("%s\n\nReturn at most %d keywords.\n\nProduct name: %s\nProduct description: %s",
		platformHints[platform], d.max, product.Name, product.Description)
}

// Normalize trims, lowercases and de-duplicates keywords, keeping the first
// limit in order.
func Normalize(in []string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMax
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, min(len(in), limit))
	for _, k := range in {
		k = strings.Join(strings.Fields(strings.ToLower(k)), " ")
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
		if len(out) == limit {
			break
		}
	}
	return out
}
