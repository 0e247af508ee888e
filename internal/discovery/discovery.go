// Package discovery runs one campaign's search, evaluate and merge cycle
// under tier escalation.
package discovery

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/affiliate-scout/internal/escalation"
	"github.com/sells-group/affiliate-scout/internal/evaluate"
	"github.com/sells-group/affiliate-scout/internal/merge"
	"github.com/sells-group/affiliate-scout/internal/model"
	"github.com/sells-group/affiliate-scout/internal/resilience"
	"github.com/sells-group/affiliate-scout/internal/search"
	"github.com/sells-group/affiliate-scout/internal/store"
)

// ErrRunInProgress is returned when another run holds the campaign.
var ErrRunInProgress = eris.New("discovery: run already in progress for campaign")

// KeywordDeriver turns a product into search terms.
type KeywordDeriver interface {
	Derive(ctx context.Context, product model.Product, platform model.Platform) []string
}

// Evaluator judges one raw candidate at one tier. It never fails; errors
// come back as rejected verdicts.
type Evaluator interface {
	Evaluate(ctx context.Context, product model.Product, raw model.RawCandidate, tier model.Tier) model.Verdict
}

// Adapters resolves the search adapter for a platform.
type Adapters interface {
	Get(p model.Platform) (search.Adapter, error)
}

// Store is the persistence a discovery run needs.
type Store interface {
	store.CampaignStore
	store.AggregateStore
}

// Config tunes a Service.
type Config struct {
	ResultsPerKeyword   int
	EvaluateConcurrency int
}

// Request starts a run for a stored campaign. Zero or nil fields fall back to
// the campaign's own values.
type Request struct {
	CampaignID string
	Difficulty *model.Tier
	Quota      int
	Location   string
	RadiusKM   float64
}

// Result summarizes one run.
type Result struct {
	CampaignID         string            `json:"campaign_id"`
	Platform           model.Platform    `json:"platform"`
	Tier               model.Tier        `json:"tier"`
	Attempted          []model.Tier      `json:"attempted"`
	Keywords           []string          `json:"keywords"`
	Added              int               `json:"added"`
	Total              int               `json:"total"`
	Version            int64             `json:"version"`
	Candidates         []model.Candidate `json:"candidates"`
	SearchFailures     int               `json:"search_failures"`
	EvaluationFailures int               `json:"evaluation_failures"`
}

// Service composes keyword derivation, search, evaluation, escalation and
// merge into one discovery run.
type Service struct {
	store    Store
	adapters Adapters
	keywords KeywordDeriver
	eval     Evaluator
	cfg      Config
	locks    *RunLock
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRunLock shares a lock between services in one process.
func WithRunLock(l *RunLock) Option {
	return func(s *Service) { s.locks = l }
}

// WithClock overrides the discovery timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(st Store, adapters Adapters, kw KeywordDeriver, eval Evaluator, cfg Config, opts ...Option) *Service {
	if cfg.EvaluateConcurrency <= 0 {
		cfg.EvaluateConcurrency = 5
	}
	s := &Service{
		store:    st,
		adapters: adapters,
		keywords: kw,
		eval:     eval,
		cfg:      cfg,
		locks:    NewRunLock(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run loads the campaign and product for req and runs discovery.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	campaign, err := s.store.GetCampaign(ctx, req.CampaignID)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: load campaign")
	}
	product, err := s.store.GetProduct(ctx, campaign.ProductID)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: load product")
	}

	if req.Quota > 0 {
		campaign.Quota = req.Quota
	}
	if req.Location != "" {
		campaign.Location = req.Location
	}
	if req.RadiusKM > 0 {
		campaign.RadiusKM = req.RadiusKM
	}
	start := campaign.Difficulty
	if req.Difficulty != nil {
		start = *req.Difficulty
	}
	return s.RunCampaign(ctx, *campaign, *product, start)
}

// RunCampaign runs discovery for campaign starting at tier start. Only one
// run per campaign may be active in this process.
func (s *Service) RunCampaign(ctx context.Context, campaign model.Campaign, product model.Product, start model.Tier) (*Result, error) {
	if err := campaign.Validate(); err != nil {
		return nil, eris.Wrap(err, "discovery: invalid campaign")
	}
	unlock, ok := s.locks.TryLock(campaign.ID)
	if !ok {
		return nil, eris.Wrapf(ErrRunInProgress, "discovery: campaign %s", campaign.ID)
	}
	defer unlock()

	res, err := s.run(ctx, campaign, product, start)
	if err != nil {
		// The run context may already be cancelled; the status write must still land.
		if serr := s.store.UpdateCampaignStatus(context.WithoutCancel(ctx), campaign.ID, model.CampaignStatusFailed); serr != nil {
			zap.L().Warn("discovery: mark campaign failed", zap.String("campaign_id", campaign.ID), zap.Error(serr))
		}
		return nil, err
	}
	return res, nil
}

func (s *Service) run(ctx context.Context, campaign model.Campaign, product model.Product, start model.Tier) (*Result, error) {
	log := zap.L().With(
		zap.String("campaign_id", campaign.ID),
		zap.String("platform", string(campaign.Platform)),
	)

	agg, err := s.store.GetAggregate(ctx, campaign.ID)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: read aggregate")
	}
	var (
		existing []model.Candidate
		version  int64
	)
	if agg != nil {
		existing = agg.Candidates
		version = agg.Version
	}

	res := &Result{
		CampaignID: campaign.ID,
		Platform:   campaign.Platform,
		Tier:       start,
		Total:      len(existing),
		Version:    version,
		Candidates: existing,
	}

	remaining := merge.Remaining(existing, campaign.Quota)
	if remaining == 0 {
		log.Info("discovery: quota already met", zap.Int("quota", campaign.Quota))
		return res, nil
	}

	adapter, err := s.adapters.Get(campaign.Platform)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateCampaignStatus(ctx, campaign.ID, model.CampaignStatusDiscovering); err != nil {
		return nil, eris.Wrap(err, "discovery: mark discovering")
	}

	res.Keywords = s.keywords.Derive(ctx, product, campaign.Platform)
	log.Info("discovery: starting",
		zap.Strings("keywords", res.Keywords),
		zap.Stringer("start_tier", start),
		zap.Int("remaining", remaining),
	)

	t := &tierRun{
		svc:       s,
		adapter:   adapter,
		campaign:  campaign,
		product:   product,
		keywords:  res.Keywords,
		existing:  existing,
		remaining: remaining,
	}
	var accepted []model.Candidate
	outcome, err := escalation.Run(ctx, start, func(ctx context.Context, tier model.Tier) (int, error) {
		found, err := t.attempt(ctx, tier)
		accepted = found
		return len(found), err
	})
	res.Tier = outcome.Final
	res.Attempted = outcome.Attempted
	res.SearchFailures = t.searchFailures
	res.EvaluationFailures = t.evalFailures
	if err != nil {
		return nil, eris.Wrap(err, "discovery: escalate")
	}

	merged := merge.Apply(existing, accepted, campaign.Quota)
	res.Added = merged.Added
	res.Candidates = merged.Candidates
	res.Total = len(merged.Candidates)

	status := model.CampaignStatusNoCandidates
	if merged.Added > 0 {
		v, err := s.store.ReplaceAggregate(ctx, model.Aggregate{
			CampaignID: campaign.ID,
			Platform:   campaign.Platform,
			TierUsed:   outcome.Final,
			Candidates: merged.Candidates,
		}, version)
		if err != nil {
			return nil, eris.Wrap(err, "discovery: write aggregate")
		}
		res.Version = v
		status = model.CampaignStatusCompleted
	}
	if err := s.store.UpdateCampaignStatus(ctx, campaign.ID, status); err != nil {
		return nil, eris.Wrap(err, "discovery: update status")
	}

	log.Info("discovery: finished",
		zap.Stringer("tier", res.Tier),
		zap.Int("added", res.Added),
		zap.Int("total", res.Total),
		zap.Int("search_failures", res.SearchFailures),
		zap.Int("evaluation_failures", res.EvaluationFailures),
	)
	return res, nil
}

// tierRun holds the state shared by every tier attempt of one run.
type tierRun struct {
	svc       *Service
	adapter   search.Adapter
	campaign  model.Campaign
	product   model.Product
	keywords  []string
	existing  []model.Candidate
	remaining int

	searchFailures int
	evalFailures   int
}

type judged struct {
	raw     model.RawCandidate
	verdict model.Verdict
}

// attempt searches every keyword at tier until enough fresh candidates are
// accepted, and returns them in discovery order.
func (t *tierRun) attempt(ctx context.Context, tier model.Tier) ([]model.Candidate, error) {
	log := zap.L().With(zap.String("campaign_id", t.campaign.ID), zap.Stringer("tier", tier))

	seen := make(map[string]struct{}, len(t.existing))
	for _, c := range t.existing {
		seen[merge.Key(c.Handle)] = struct{}{}
	}

	var fresh []model.Candidate
	for _, kw := range t.keywords {
		if len(fresh) >= t.remaining {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raws, err := t.adapter.Search(ctx, search.Query{
			Keyword:  kw,
			Tier:     tier,
			Location: t.campaign.Location,
			RadiusKM: t.campaign.RadiusKM,
			Limit:    t.svc.cfg.ResultsPerKeyword,
		})
		if err != nil {
			t.searchFailures++
			log.Warn("discovery: search failed", zap.String("keyword", kw), zap.Error(err))
			continue
		}

		var batch []model.RawCandidate
		for _, raw := range raws {
			k := merge.Key(raw.Handle)
			if k == "" {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			batch = append(batch, raw)
		}

		results, failed := resilience.Settle(ctx, t.svc.cfg.EvaluateConcurrency, batch,
			func(ctx context.Context, raw model.RawCandidate) (judged, error) {
				return judged{raw: raw, verdict: t.svc.eval.Evaluate(ctx, t.product, raw, tier)}, nil
			})
		t.evalFailures += failed

		now := t.svc.now()
		accepted := 0
		for _, j := range results {
			if j.verdict.Reason == evaluate.ReasonError && !j.verdict.Accept {
				t.evalFailures++
			}
			if !j.verdict.Accept {
				continue
			}
			fresh = append(fresh, model.NewCandidate(j.raw, j.verdict, t.campaign.RunMode, now))
			accepted++
		}
		log.Debug("discovery: keyword evaluated",
			zap.String("keyword", kw),
			zap.Int("found", len(raws)),
			zap.Int("evaluated", len(batch)),
			zap.Int("accepted", accepted),
		)
	}
	return fresh, nil
}
