// Package evaluate scores raw candidates against a tier rubric with an LLM.
package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/affiliate-scout/internal/model"
	"github.com/sells-group/affiliate-scout/pkg/anthropic"
)

// ReasonError is the reason recorded on every fail-closed verdict.
const ReasonError = "evaluation error"

const systemPrompt = `You vet potential affiliate promoters for a product.
Judge the candidate against the rubric and reply with one JSON object only:
{"accept": true|false, "tag": "nano"|"micro"|"mid-tier"|"macro"|"mega", "reason": "<one sentence>"}
The tag describes the candidate's audience size: nano <1k, micro 1k-10k, mid-tier 10k-100k, macro 100k-1M, mega >1M.`

// Evaluator judges candidates. Every failure becomes a rejection.
type Evaluator struct {
	client    anthropic.Client
	model     string
	rubrics   Rubrics
	timeout   time.Duration
	maxTokens int64
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithRubrics replaces the built-in rubrics.
func WithRubrics(r Rubrics) Option {
	return func(e *Evaluator) { e.rubrics = r }
}

// WithTimeout bounds each model call.
func WithTimeout(t time.Duration) Option {
	return func(e *Evaluator) { e.timeout = t }
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int64) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// New creates an Evaluator.
func New(client anthropic.Client, model string, opts ...Option) *Evaluator {
	e := &Evaluator{
		client:    client,
		model:     model,
		rubrics:   DefaultRubrics(),
		timeout:   30 * time.Second,
		maxTokens: 512,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type verdictJSON struct {
	Accept *bool  `json:"accept"`
	Tag    string `json:"tag"`
	Reason string `json:"reason"`
}

// Evaluate judges raw for product at tier.
func (e *Evaluator) Evaluate(ctx context.Context, product model.Product, raw model.RawCandidate, tier model.Tier) model.Verdict {
	v, err := e.evaluate(ctx, product, raw, tier)
	if err != nil {
		zap.L().Warn("evaluate: failing closed",
			zap.String("handle", raw.Handle),
			zap.String("platform", string(raw.Platform)),
			zap.Stringer("tier", tier),
			zap.Error(err),
		)
		return model.Verdict{Accept: false, Reason: ReasonError}
	}
	return v
}

func (e *Evaluator) evaluate(ctx context.Context, product model.Product, raw model.RawCandidate, tier model.Tier) (model.Verdict, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	temp := 0.0
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System: []anthropic.SystemBlock{
			{Text: systemPrompt, CacheControl: &anthropic.CacheControl{TTL: "5m"}},
			{Text: "Rubric (" + tier.String() + "):\n" + e.rubrics.For(tier)},
		},
		Messages:    []anthropic.Message{{Role: "user", Content: candidatePrompt(product, raw)}},
		Temperature: &temp,
	})
	if err != nil {
		return model.Verdict{}, err
	}
	resp.Usage.LogCost(e.model, "evaluate")

	return parseVerdict(resp.Text(), raw)
}

// parseVerdict validates the model output. An accepted verdict needs a known
// tag; an empty one is derived from the audience, anything else is malformed.
func parseVerdict(text string, raw model.RawCandidate) (model.Verdict, error) {
	obj, err := anthropic.ExtractJSONObject(text)
	if err != nil {
		return model.Verdict{}, err
	}
	var vj verdictJSON
	if err := json.Unmarshal([]byte(obj), &vj); err != nil {
		return model.Verdict{}, eris.Wrap(err, "evaluate: decode verdict")
	}
	if vj.Accept == nil {
		return model.Verdict{}, eris.New("evaluate: verdict missing accept")
	}

	v := model.Verdict{Accept: *vj.Accept, Reason: strings.TrimSpace(vj.Reason)}
	if tag, ok := model.ParseInfluencerTier(vj.Tag); ok {
		v.Tag = tag
	} else if strings.TrimSpace(vj.Tag) != "" && v.Accept {
		return model.Verdict{}, eris.Errorf("evaluate: unknown tag %q", vj.Tag)
	}
	if v.Accept && v.Tag == "" {
		v.Tag = model.InfluencerTierForAudience(raw.Metrics.Audience())
	}
	return v, nil
}

func candidatePrompt(product model.Product, raw model.RawCandidate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Product: %s\n%s\n\n", product.Name, product.Description)
	fmt.Fprintf(&sb, "Candidate on %s\nHandle: %s\nName: %s\n", raw.Platform, raw.Handle, raw.DisplayName)
	if raw.ProfileURL != "" {
		fmt.Fprintf(&sb, "Profile: %s\n", raw.ProfileURL)
	}
	if raw.Bio != "" {
		fmt.Fprintf(&sb, "Bio: %s\n", raw.Bio)
	}
	m := raw.Metrics
	if m.Followers != nil {
		fmt.Fprintf(&sb, "Followers: %d\n", *m.Followers)
	}
	if m.Views != nil {
		fmt.Fprintf(&sb, "Total views: %d\n", *m.Views)
	}
	if m.Posts != nil {
		fmt.Fprintf(&sb, "Posts: %d\n", *m.Posts)
	}
	for _, k := range slices.Sorted(maps.Keys(m.Extra)) {
		fmt.Fprintf(&sb, "%s: %g\n", k, m.Extra[k])
	}
	return sb.String()
}
