package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/sells-group/affiliate-scout/internal/discovery"
	"github.com/sells-group/affiliate-scout/internal/importer"
	"github.com/sells-group/affiliate-scout/internal/model"
	"github.com/sells-group/affiliate-scout/internal/notify"
	"github.com/sells-group/affiliate-scout/internal/store"
)

type memCampaigns struct {
	mu        sync.Mutex
	products  map[string]model.Product
	campaigns map[string]model.Campaign
}

func newMemCampaigns() *memCampaigns {
	return &memCampaigns{products: map[string]model.Product{}, campaigns: map[string]model.Campaign{}}
}

func (m *memCampaigns) CreateProduct(_ context.Context, p model.Product) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		m.products[p.ID] = p
	}
	out := m.products[p.ID]
	return &out, nil
}

func (m *memCampaigns) GetProduct(_ context.Context, id string) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (m *memCampaigns) CreateCampaign(_ context.Context, c model.Campaign) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.campaigns[c.ID]; !ok {
		m.campaigns[c.ID] = c
	}
	out := m.campaigns[c.ID]
	return &out, nil
}

func (m *memCampaigns) GetCampaign(_ context.Context, id string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (m *memCampaigns) UpdateCampaignStatus(_ context.Context, id string, status model.CampaignStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Status = status
	m.campaigns[id] = c
	return nil
}

type fakeDiscoverer struct {
	mu    sync.Mutex
	res   *discovery.Result
	err   error
	calls int
	reqs  []discovery.Request
}

func (f *fakeDiscoverer) Run(_ context.Context, req discovery.Request) (*discovery.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

type scriptedBatches struct {
	mu      sync.Mutex
	results []importer.BatchResult
	calls   int
}

func (s *scriptedBatches) ProcessBatch(_ context.Context, jobID string) (*importer.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.calls, len(s.results)-1)
	s.calls++
	res := s.results[i]
	res.JobID = jobID
	return &res, nil
}

func newEnv(t *testing.T, acts *Activities) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var s testsuite.WorkflowTestSuite
	env := s.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(DiscoveryWorkflow, workflow.RegisterOptions{Name: DiscoveryWorkflowName})
	env.RegisterWorkflowWithOptions(ImportWorkflow, workflow.RegisterOptions{Name: ImportWorkflowName})
	env.RegisterActivityWithOptions(acts.CreateCampaign, activity.RegisterOptions{Name: ActivityCreateCampaign})
	env.RegisterActivityWithOptions(acts.DiscoverCandidates, activity.RegisterOptions{Name: ActivityDiscoverCandidates})
	env.RegisterActivityWithOptions(acts.NotifyOwner, activity.RegisterOptions{Name: ActivityNotifyOwner})
	env.RegisterActivityWithOptions(acts.ProcessImportBatch, activity.RegisterOptions{Name: ActivityProcessImportBatch})
	return env
}

func discoveryInput() DiscoveryInput {
	return DiscoveryInput{
		Campaign: model.Campaign{
			ID:         "camp-1",
			ProductID:  "prod-1",
			OwnerID:    "owner-1",
			OwnerEmail: "owner@example.com",
			Name:       "Spring",
			Quota:      5,
			Platform:   model.PlatformYouTube,
		},
		Product: model.Product{ID: "prod-1", OwnerID: "owner-1", Name: "Trail Mix"},
	}
}

func TestDiscoveryWorkflow_Success(t *testing.T) {
	st := newMemCampaigns()
	disc := &fakeDiscoverer{res: &discovery.Result{CampaignID: "camp-1", Tier: model.TierMedium, Added: 3, Total: 3}}
	n := &recordingNotifier{}
	env := newEnv(t, &Activities{Store: st, Discovery: disc, Notifier: n})

	medium := model.TierMedium
	in := discoveryInput()
	in.Difficulty = &medium
	env.ExecuteWorkflow(DiscoveryWorkflowName, in)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out DiscoveryOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, 3, out.Added)
	assert.Equal(t, model.TierMedium, out.Tier)
	assert.True(t, out.Notified)

	require.Len(t, n.msgs, 1)
	assert.Equal(t, notify.KindDiscoverySucceeded, n.msgs[0].Kind)
	assert.Equal(t, "owner@example.com", n.msgs[0].To)

	require.Len(t, disc.reqs, 1)
	assert.Equal(t, "camp-1", disc.reqs[0].CampaignID)
	require.NotNil(t, disc.reqs[0].Difficulty)
	assert.Equal(t, model.TierMedium, *disc.reqs[0].Difficulty)

	stored, ok := st.campaigns["camp-1"]
	require.True(t, ok)
	assert.Equal(t, model.CampaignStatusCreated, stored.Status)
	assert.Equal(t, model.RunModeManual, stored.RunMode)
}

func TestDiscoveryWorkflow_NoCandidates(t *testing.T) {
	n := &recordingNotifier{}
	disc := &fakeDiscoverer{res: &discovery.Result{CampaignID: "camp-1", Tier: model.TierEasy}}
	env := newEnv(t, &Activities{Store: newMemCampaigns(), Discovery: disc, Notifier: n})

	env.ExecuteWorkflow(DiscoveryWorkflowName, discoveryInput())

	require.NoError(t, env.GetWorkflowError())
	require.Len(t, n.msgs, 1)
	assert.Equal(t, notify.KindDiscoveryNoCandidates, n.msgs[0].Kind)
}

func TestDiscoveryWorkflow_FailureNotifiesOnce(t *testing.T) {
	st := newMemCampaigns()
	n := &recordingNotifier{}
	disc := &fakeDiscoverer{err: errors.New("youtube: unexpected status 503")}
	env := newEnv(t, &Activities{Store: st, Discovery: disc, Notifier: n})

	env.ExecuteWorkflow(DiscoveryWorkflowName, discoveryInput())

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	assert.Equal(t, 3, disc.calls, "discover-candidates is retried")

	require.Len(t, n.msgs, 1)
	assert.Equal(t, notify.KindDiscoveryFailed, n.msgs[0].Kind)
	assert.Contains(t, n.msgs[0].Payload["error"], "503")
	assert.Equal(t, model.CampaignStatusFailed, st.campaigns["camp-1"].Status)
}

func TestDiscoveryWorkflow_NotFoundIsNotRetried(t *testing.T) {
	disc := &fakeDiscoverer{err: eris.Wrap(store.ErrNotFound, "discovery: load campaign")}
	n := &recordingNotifier{}
	env := newEnv(t, &Activities{Store: newMemCampaigns(), Discovery: disc, Notifier: n})

	env.ExecuteWorkflow(DiscoveryWorkflowName, discoveryInput())

	require.Error(t, env.GetWorkflowError())
	assert.Equal(t, 1, disc.calls)
	require.Len(t, n.msgs, 1)
	assert.Equal(t, notify.KindDiscoveryFailed, n.msgs[0].Kind)
}

func TestDiscoveryWorkflow_InvalidCampaign(t *testing.T) {
	disc := &fakeDiscoverer{}
	n := &recordingNotifier{}
	env := newEnv(t, &Activities{Store: newMemCampaigns(), Discovery: disc, Notifier: n})

	in := discoveryInput()
	in.Campaign.Quota = 0
	env.ExecuteWorkflow(DiscoveryWorkflowName, in)

	require.Error(t, env.GetWorkflowError())
	assert.Zero(t, disc.calls)
	assert.Empty(t, n.msgs)
}

func TestDiscoveryWorkflow_NotifyFailureDoesNotFail(t *testing.T) {
	n := &recordingNotifier{err: errors.New("webhook down")}
	disc := &fakeDiscoverer{res: &discovery.Result{Added: 1, Total: 1}}
	env := newEnv(t, &Activities{Store: newMemCampaigns(), Discovery: disc, Notifier: n})

	env.ExecuteWorkflow(DiscoveryWorkflowName, discoveryInput())

	require.NoError(t, env.GetWorkflowError())
	var out DiscoveryOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.False(t, out.Notified)
	assert.Len(t, n.msgs, 1, "no retry")
}

func TestImportWorkflow_RunsUntilDone(t *testing.T) {
	batches := &scriptedBatches{results: []importer.BatchResult{
		{State: importer.StateContinue, Popped: 100, Processed: 100},
		{State: importer.StateContinue, Popped: 100, Processed: 200},
		{State: importer.StateDone, Popped: 7, Processed: 207, Created: 200},
	}}
	env := newEnv(t, &Activities{Store: newMemCampaigns(), Importer: batches, Notifier: notify.Log{}})

	env.ExecuteWorkflow(ImportWorkflowName, ImportInput{JobID: "job-1", BatchesPerRun: 10})

	require.NoError(t, env.GetWorkflowError())
	var out ImportOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, ImportOutput{JobID: "job-1", Processed: 207, Created: 200}, out)
	assert.Equal(t, 3, batches.calls)
}

func TestImportWorkflow_ContinuesAsNew(t *testing.T) {
	batches := &scriptedBatches{results: []importer.BatchResult{{State: importer.StateContinue, Popped: 100}}}
	env := newEnv(t, &Activities{Store: newMemCampaigns(), Importer: batches, Notifier: notify.Log{}})

	env.ExecuteWorkflow(ImportWorkflowName, ImportInput{JobID: "job-1", BatchesPerRun: 2})

	require.True(t, env.IsWorkflowCompleted())
	assert.True(t, workflow.IsContinueAsNewError(env.GetWorkflowError()))
	assert.Equal(t, 2, batches.calls)
}

func TestImportWorkflow_NotConfigured(t *testing.T) {
	env := newEnv(t, &Activities{Store: newMemCampaigns(), Notifier: notify.Log{}})
	env.ExecuteWorkflow(ImportWorkflowName, ImportInput{JobID: "job-1"})
	require.Error(t, env.GetWorkflowError())
}

func TestOwnerMessage(t *testing.T) {
	ok := ownerMessage(NotifyInput{CampaignName: "Spring", OwnerEmail: "o@example.com", Added: 2, Total: 4, Tier: model.TierEasy})
	assert.Equal(t, notify.KindDiscoverySucceeded, ok.Kind)
	assert.Equal(t, "2 new affiliates found for Spring", ok.Subject)
	assert.Equal(t, "easy", ok.Payload["tier"])

	none := ownerMessage(NotifyInput{CampaignName: "Spring", Total: 4})
	assert.Equal(t, notify.KindDiscoveryNoCandidates, none.Kind)

	failed := ownerMessage(NotifyInput{CampaignName: "Spring", Added: 2, Failed: true, Error: "boom"})
	assert.Equal(t, notify.KindDiscoveryFailed, failed.Kind)
	assert.Equal(t, "boom", failed.Payload["error"])
}
