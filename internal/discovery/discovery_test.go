package discovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/affiliate-scout/internal/model"
	"github.com/sells-group/affiliate-scout/internal/search"
	"github.com/sells-group/affiliate-scout/internal/store"
)

var fixedNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	store   *memStore
	adapter *fakeAdapter
	eval    *tierEvaluator
	svc     *Service
}

func newHarness(t *testing.T, quota int, kws ...string) *harness {
	t.Helper()
	h := &harness{
		store:   newMemStore(),
		adapter: &fakeAdapter{results: map[string][]model.RawCandidate{}, errs: map[string]error{}},
		eval:    &tierEvaluator{accept: map[model.Tier]map[string]bool{}},
	}
	ctx := context.Background()
	_, err := h.store.CreateProduct(ctx, model.Product{ID: "prod-1", Name: "Trail Mix", Description: "snacks for runners"})
	require.NoError(t, err)
	_, err = h.store.CreateCampaign(ctx, model.Campaign{
		ID: "camp-1", ProductID: "prod-1", Name: "Spring", Quota: quota,
		Platform: model.PlatformYouTube, RunMode: model.RunModeManual, Status: model.CampaignStatusCreated,
	})
	require.NoError(t, err)

	h.svc = New(h.store, search.NewRegistry(h.adapter), fixedKeywords(kws), h.eval,
		Config{ResultsPerKeyword: 25, EvaluateConcurrency: 4}, WithClock(func() time.Time { return fixedNow }))
	return h
}

func (h *harness) seed(t *testing.T, handles ...string) {
	t.Helper()
	var cs []model.Candidate
	for _, hd := range handles {
		cs = append(cs, model.Candidate{Handle: hd, Accepted: true, Status: model.CandidateActive, Reason: "seeded"})
	}
	_, err := h.store.ReplaceAggregate(context.Background(), model.Aggregate{
		CampaignID: "camp-1", Platform: model.PlatformYouTube, TierUsed: model.TierHard, Candidates: cs,
	}, 0)
	require.NoError(t, err)
}

func handlesOf(cs []model.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Handle
	}
	return out
}

func TestRun_QuotaTruncatesNewCandidates(t *testing.T) {
	h := newHarness(t, 5, "trail snacks")
	h.seed(t, "old1", "old2")
	h.adapter.results["trail snacks"] = raws("n1", "n2", "n3", "n4")
	h.eval.accept = accepts(model.TierHard, "n1", "n2", "n3", "n4")

	res, err := h.svc.Run(context.Background(), Request{CampaignID: "camp-1"})
	require.NoError(t, err)

	assert.Equal(t, model.TierHard, res.Tier)
	assert.Equal(t, 3, res.Added)
	assert.Equal(t, []string{"old1", "old2", "n1", "n2", "n3"}, handlesOf(res.Candidates))

	agg, err := h.store.GetAggregate(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, model.TierHard, agg.TierUsed)
	assert.Equal(t, int64(2), agg.Version)
	assert.Len(t, agg.Candidates, 5)
	assert.Equal(t, fixedNow, agg.Candidates[4].DiscoveredAt)
	assert.Equal(t, model.RunModeManual, agg.Candidates[4].RunMode)
}

func TestRun_EscalatesToEasy(t *testing.T) {
	h := newHarness(t, 3, "kw")
	h.adapter.results["kw"] = raws("a", "b", "c", "d")
	h.eval.accept = accepts(model.TierEasy, "b", "d")

	res, err := h.svc.Run(context.Background(), Request{CampaignID: "camp-1"})
	require.NoError(t, err)

	assert.Equal(t, model.TierEasy, res.Tier)
	assert.Equal(t, []model.Tier{model.TierHard, model.TierMedium, model.TierEasy}, res.Attempted)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, []string{"b", "d"}, handlesOf(res.Candidates))

	agg, _ := h.store.GetAggregate(context.Background(), "camp-1")
	assert.Equal(t, model.TierEasy, agg.TierUsed)
	assert.Equal(t, model.CampaignStatusCompleted, h.store.campaigns["camp-1"].Status)
}

func TestRun_MediumNotTriedWhenHardFindsOne(t *testing.T) {
	h := newHarness(t, 10, "kw")
	h.adapter.results["kw"] = raws("a", "b", "c")
	h.eval.accept = map[model.Tier]map[string]bool{
		model.TierHard:   {"a": true},
		model.TierMedium: {"a": true, "b": true, "c": true},
	}

	res, err := h.svc.Run(context.Background(), Request{CampaignID: "camp-1"})
	require.NoError(t, err)
	assert.Equal(t, model.TierHard, res.Tier)
	assert.Equal(t, 1, res.Added)
	assert.Empty(t, h.adapter.keywordsAt(model.TierMedium))
}

func TestRun_ExistingDuplicatesDoNotCount(t *testing.T) {
	h := newHarness(t, 10, "kw")
	h.seed(t, "a")
	h.adapter.results["kw"] = raws("A", "b")
	h.eval.accept = map[model.Tier]map[string]bool{
		model.TierHard:   {"A": true},
		model.TierMedium: {"b": true},
	}

	res, err := h.svc.Run(context.Background(), Request{CampaignID: "camp-1"})
	require.NoError(t, err)
	// "A" matches the stored "a", so hard found nothing new
	assert.Equal(t, model.TierMedium, res.Tier)
	assert.Equal(t, []string{"a", "b"}, handlesOf(res.Candidates))
}

func TestRun_Idempotent(t *testing.T) {
	h := newHarness(t, 10, "kw")
	h.adapter.results["kw"] = raws("a", "b", "c")
	h.eval.accept = accepts(model.TierHard, "a", "b", "c")
	ctx := context.Background()

	first, err := h.svc.Run(ctx, Request{CampaignID: "camp-1"})
	require.NoError(t, err)
	require.Equal(t, 3, first.Added)

	// outreach marks one inactive between runs
	agg, _ := h.store.GetAggregate(ctx, "camp-1")
	agg.Candidates[1].Status = model.CandidateInactive
	_, err = h.store.ReplaceAggregate(ctx, *agg, agg.Version)
	require.NoError(t, err)
	before, _ := h.store.GetAggregate(ctx, "camp-1")
	writes := h.store.writes

	second, err := h.svc.Run(ctx, Request{CampaignID: "camp-1"})
	require.NoError(t, err)
	assert.Zero(t, second.Added)
	assert.Equal(t, writes, h.store.writes, "nothing new means no write")

	after, _ := h.store.GetAggregate(ctx, "camp-1")
	assert.Equal(t, before.Candidates, after.Candidates)
	assert.Equal(t, model.CandidateInactive, after.Candidates[1].Status)
	assert.Equal(t, model.CampaignStatusNoCandidates, h.store.campaigns["camp-1"].Status)
}

func TestRun_EvaluationFailureSkipsOnlyThatCandidate(t *testing.T) {
	h := newHarness(t, 20, "kw")
	var all []string
	for i := range 10 {
		all = append(all, fmt.Sprintf("c%d", i))
	}
	h.adapter.results["kw"] = raws(all...)
	h.eval.accept = accepts(model.TierHard, all...)
	h.eval.broken = map[string]bool{"c4": true}

	res, err := h.svc.Run(context.Background(), Request{CampaignID: "camp-1"})
	require.NoError(t, err)

	assert.Equal(t, 9, res.Added)
	assert.Equal(t, 1, res.EvaluationFailures)
	assert.NotContains(t, handlesOf(res.Candidates), "c4")
	assert.Equal(t, []string{"c0", "c1", "c2", "c3", "c5", "c6", "c7", "c8", "c9"}, handlesOf(res.Candidates))
}

func TestRun_SearchFailureSkipsKeyword(t *testing.T) {
	h := newHarness(t, 5, "broken", "works")
	h.adapter.errs["broken"] = errors.New("youtube: unexpected status 503")
	h.adapter.results["works"] = raws("a")
	h.eval.accept = accepts(model.TierHard, "a")

	res, err := h.svc.Run(context.Background(), Request{CampaignID: "camp-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.SearchFailures)
}

func TestRun_KeywordLoopStopsAtQuota(t *testing.T) {
	h := newHarness(t, 2, "first", "second", "third")
	h.adapter.results["first"] = raws("a", "b", "c")
	h.adapter.results["second"] = raws("d")
	h.eval.accept = accepts(model.TierHard, "a", "b", "c", "d")

	res, err := h.svc.Run(context.Background(), Request{CampaignID: "camp-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, []string{"first"}, h.adapter.keywordsAt(model.TierHard))
}

func TestRun_QuotaAlreadyMet(t *testing.T) {
	h := newHarness(t, 2, "kw")
	h.seed(t, "a", "b")

	res, err := h.svc.Run(context.Background(), Request{CampaignID: "camp-1"})
	require.NoError(t, err)
	assert.Zero(t, res.Added)
	assert.Equal(t, 2, res.Total)
	assert.Empty(t, h.adapter.queries)
	assert.Zero(t, h.eval.calls)
}

func TestRun_NoKeywords(t *testing.T) {
	h := newHarness(t, 5)

	res, err := h.svc.Run(context.Background(), Request{CampaignID: "camp-1"})
	require.NoError(t, err)
	assert.Zero(t, res.Added)
	assert.Equal(t, model.TierEasy, res.Tier)
	assert.Equal(t, model.CampaignStatusNoCandidates, h.store.campaigns["camp-1"].Status)
}

func TestRun_RequestOverrides(t *testing.T) {
	h := newHarness(t, 1, "kw")
	h.adapter.results["kw"] = raws("a", "b", "c")
	h.eval.accept = map[model.Tier]map[string]bool{
		model.TierMedium: {"a": true, "b": true, "c": true},
	}
	medium := model.TierMedium

	res, err := h.svc.Run(context.Background(), Request{
		CampaignID: "camp-1", Difficulty: &medium, Quota: 3, Location: "Austin, TX", RadiusKM: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, []model.Tier{model.TierMedium}, res.Attempted)
	assert.Equal(t, 3, res.Added)
	require.NotEmpty(t, h.adapter.queries)
	assert.Equal(t, "Austin, TX", h.adapter.queries[0].Location)
	assert.InDelta(t, 40.0, h.adapter.queries[0].RadiusKM, 0.001)
}

func TestRun_CampaignNotFound(t *testing.T) {
	h := newHarness(t, 1, "kw")
	_, err := h.svc.Run(context.Background(), Request{CampaignID: "nope"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, store.ErrNotFound))
}

func TestRun_ConcurrentRunRejected(t *testing.T) {
	h := newHarness(t, 1, "kw")
	unlock, ok := h.svc.locks.TryLock("camp-1")
	require.True(t, ok)
	defer unlock()

	_, err := h.svc.Run(context.Background(), Request{CampaignID: "camp-1"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrRunInProgress))
}

func TestRun_WriteConflictMarksFailed(t *testing.T) {
	h := newHarness(t, 5, "kw")
	h.adapter.results["kw"] = raws("a")
	h.eval.accept = accepts(model.TierHard, "a")
	h.store.replaceErr = store.ErrVersionConflict

	_, err := h.svc.Run(context.Background(), Request{CampaignID: "camp-1"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, store.ErrVersionConflict))
	assert.Equal(t, model.CampaignStatusFailed, h.store.campaigns["camp-1"].Status)
	assert.False(t, h.svc.locks.Held("camp-1"))
}

func TestRun_UnconfiguredPlatform(t *testing.T) {
	h := newHarness(t, 5, "kw")
	c := h.store.campaigns["camp-1"]
	c.Platform = model.PlatformStripe
	h.store.campaigns["camp-1"] = c

	_, err := h.svc.Run(context.Background(), Request{CampaignID: "camp-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestRunLock(t *testing.T) {
	l := NewRunLock()
	unlock, ok := l.TryLock("a")
	require.True(t, ok)
	_, ok = l.TryLock("a")
	assert.False(t, ok)
	_, ok = l.TryLock("b")
	assert.True(t, ok)

	unlock()
	unlock()
	assert.False(t, l.Held("a"))
	_, ok = l.TryLock("a")
	assert.True(t, ok)
}
