package discovery

import (
	"context"
	"sync"

	"github.com/sells-group/affiliate-scout/internal/evaluate"
	"github.com/sells-group/affiliate-scout/internal/model"
	"github.com/sells-group/affiliate-scout/internal/search"
	"github.com/sells-group/affiliate-scout/internal/store"
)

// memStore implements Store in memory.
type memStore struct {
	mu         sync.Mutex
	campaigns  map[string]model.Campaign
	products   map[string]model.Product
	aggregates map[string]model.Aggregate
	statuses   []model.CampaignStatus
	replaceErr error
	writes     int
}

func newMemStore() *memStore {
	return &memStore{
		campaigns:  make(map[string]model.Campaign),
		products:   make(map[string]model.Product),
		aggregates: make(map[string]model.Aggregate),
	}
}

func (m *memStore) CreateProduct(_ context.Context, p model.Product) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		m.products[p.ID] = p
	}
	out := m.products[p.ID]
	return &out, nil
}

func (m *memStore) GetProduct(_ context.Context, id string) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (m *memStore) CreateCampaign(_ context.Context, c model.Campaign) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.campaigns[c.ID]; !ok {
		m.campaigns[c.ID] = c
	}
	out := m.campaigns[c.ID]
	return &out, nil
}

func (m *memStore) GetCampaign(_ context.Context, id string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (m *memStore) UpdateCampaignStatus(_ context.Context, id string, status model.CampaignStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Status = status
	m.campaigns[id] = c
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *memStore) GetAggregate(_ context.Context, campaignID string) (*model.Aggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agg, ok := m.aggregates[campaignID]
	if !ok {
		return nil, nil
	}
	agg.Candidates = append([]model.Candidate(nil), agg.Candidates...)
	return &agg, nil
}

func (m *memStore) ReplaceAggregate(_ context.Context, agg model.Aggregate, expected int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return 0, m.replaceErr
	}
	cur, ok := m.aggregates[agg.CampaignID]
	if (ok && cur.Version != expected) || (!ok && expected != 0) {
		return 0, store.ErrVersionConflict
	}
	agg.Version = expected + 1
	m.aggregates[agg.CampaignID] = agg
	m.writes++
	return agg.Version, nil
}

// fakeAdapter returns canned results per keyword and records queries.
type fakeAdapter struct {
	mu      sync.Mutex
	results map[string][]model.RawCandidate
	errs    map[string]error
	queries []search.Query
}

func (a *fakeAdapter) Platform() model.Platform { return model.PlatformYouTube }

func (a *fakeAdapter) Search(_ context.Context, q search.Query) ([]model.RawCandidate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queries = append(a.queries, q)
	if err := a.errs[q.Keyword]; err != nil {
		return nil, err
	}
	return a.results[q.Keyword], nil
}

func (a *fakeAdapter) keywordsAt(tier model.Tier) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, q := range a.queries {
		if q.Tier == tier {
			out = append(out, q.Keyword)
		}
	}
	return out
}

type fixedKeywords []string

func (k fixedKeywords) Derive(context.Context, model.Product, model.Platform) []string { return k }

// tierEvaluator accepts the handles listed for each tier. Handles in broken
// fail closed the way the real evaluator does.
type tierEvaluator struct {
	mu     sync.Mutex
	accept map[model.Tier]map[string]bool
	broken map[string]bool
	calls  int
}

func (e *tierEvaluator) Evaluate(_ context.Context, _ model.Product, raw model.RawCandidate, tier model.Tier) model.Verdict {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.broken[raw.Handle] {
		return model.Verdict{Accept: false, Reason: evaluate.ReasonError}
	}
	if e.accept[tier][raw.Handle] {
		return model.Verdict{Accept: true, Tag: model.InfluencerMicro, Reason: "fits " + tier.String()}
	}
	return model.Verdict{Accept: false, Reason: "not a fit"}
}

func accepts(tier model.Tier, handles ...string) map[model.Tier]map[string]bool {
	set := make(map[string]bool, len(handles))
	for _, h := range handles {
		set[h] = true
	}
	return map[model.Tier]map[string]bool{tier: set}
}

func raws(handles ...string) []model.RawCandidate {
	out := make([]model.RawCandidate, len(handles))
	for i, h := range handles {
		out[i] = model.RawCandidate{Platform: model.PlatformYouTube, Handle: h, DisplayName: h}
	}
	return out
}
