package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/affiliate-scout/internal/discovery"
	"github.com/sells-group/affiliate-scout/internal/importer"
	"github.com/sells-group/affiliate-scout/internal/model"
	"github.com/sells-group/affiliate-scout/internal/store"
	"github.com/sells-group/affiliate-scout/internal/workflow"
)

type fakeReader struct {
	campaigns map[string]*model.Campaign
	aggs      map[string]*model.Aggregate
}

func (f *fakeReader) GetCampaign(_ context.Context, id string) (*model.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeReader) GetAggregate(_ context.Context, id string) (*model.Aggregate, error) {
	return f.aggs[id], nil
}

type fakeDiscoverer struct {
	got discovery.Request
	res *discovery.Result
	err error
}

func (f *fakeDiscoverer) Run(_ context.Context, req discovery.Request) (*discovery.Result, error) {
	f.got = req
	return f.res, f.err
}

type fakeQueue struct {
	ownerID string
	format  importer.Format
	body    string
	jobID   string
	res     *importer.BatchResult
	err     error
}

func (f *fakeQueue) Enqueue(_ context.Context, ownerID, _ string, r io.Reader, format importer.Format, _ string) (string, error) {
	b, _ := io.ReadAll(r)
	f.ownerID, f.format, f.body = ownerID, format, string(b)
	return f.jobID, f.err
}

func (f *fakeQueue) ProcessBatch(_ context.Context, jobID string) (*importer.BatchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type fakeStarter struct {
	discovery []workflow.DiscoveryInput
	imports   []string
	err       error
}

func (f *fakeStarter) StartDiscovery(_ context.Context, in workflow.DiscoveryInput) (string, error) {
	f.discovery = append(f.discovery, in)
	if f.err != nil {
		return "", f.err
	}
	return workflow.DiscoveryWorkflowID(in.Campaign.ID), nil
}

func (f *fakeStarter) StartImport(_ context.Context, jobID string) (string, error) {
	f.imports = append(f.imports, jobID)
	if f.err != nil {
		return "", f.err
	}
	return workflow.ImportWorkflowID(jobID), nil
}

func testCampaign() *model.Campaign {
	return &model.Campaign{
		ID:        "camp-1",
		ProductID: "prod-1",
		OwnerID:   "owner-1",
		Name:      "Spring launch",
		Quota:     5,
		Platform:  model.PlatformYouTube,
	}
}

func newTestAPI() (*api, *fakeReader, *fakeDiscoverer, *fakeQueue) {
	reader := &fakeReader{
		campaigns: map[string]*model.Campaign{"camp-1": testCampaign()},
		aggs:      map[string]*model.Aggregate{},
	}
	disc := &fakeDiscoverer{res: &discovery.Result{CampaignID: "camp-1", Added: 2, Total: 2}}
	queue := &fakeQueue{jobID: "job-1"}
	return &api{store: reader, discovery: disc, imports: queue, maxUpload: 1 << 20}, reader, disc, queue
}

func serve(t *testing.T, a *api, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	newRouter(a, []string{"*"}).ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	a, _, _, _ := newTestAPI()
	rec := serve(t, a, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestDiscover_Success(t *testing.T) {
	a, _, disc, _ := newTestAPI()
	rec := serve(t, a, httptest.NewRequest(http.MethodGet,
		"/discover/youtube?pipeline_id=camp-1&product_id=prod-1&affiliate_count=8&difficulty=medium&location=Austin&radius=25", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "camp-1", disc.got.CampaignID)
	assert.Equal(t, 8, disc.got.Quota)
	require.NotNil(t, disc.got.Difficulty)
	assert.Equal(t, model.TierMedium, *disc.got.Difficulty)
	assert.Equal(t, "Austin", disc.got.Location)
	assert.InDelta(t, 25.0, disc.got.RadiusKM, 0.001)

	result, ok := decodeBody(t, rec)["result"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 2, result["added"])
}

func TestDiscover_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"unknown platform", "/discover/myspace?pipeline_id=camp-1"},
		{"missing pipeline", "/discover/youtube"},
		{"bad count", "/discover/youtube?pipeline_id=camp-1&affiliate_count=-1"},
		{"bad difficulty", "/discover/youtube?pipeline_id=camp-1&difficulty=brutal"},
		{"bad radius", "/discover/youtube?pipeline_id=camp-1&radius=far"},
		{"unknown campaign", "/discover/youtube?pipeline_id=nope"},
		{"platform mismatch", "/discover/stripe?pipeline_id=camp-1"},
		{"product mismatch", "/discover/youtube?pipeline_id=camp-1&product_id=other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _, disc, _ := newTestAPI()
			rec := serve(t, a, httptest.NewRequest(http.MethodGet, tt.url, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decodeBody(t, rec)["error"])
			assert.Empty(t, disc.got.CampaignID, "discovery must not run")
		})
	}
}

func TestDiscover_RunErrors(t *testing.T) {
	a, _, disc, _ := newTestAPI()
	disc.err = discovery.ErrRunInProgress
	rec := serve(t, a, httptest.NewRequest(http.MethodGet, "/discover/youtube?pipeline_id=camp-1", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	disc.err = assert.AnError
	rec = serve(t, a, httptest.NewRequest(http.MethodGet, "/discover/youtube?pipeline_id=camp-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

const campaignBody = `{
	"owner_id": "owner-1",
	"owner_email": "owner@example.com",
	"name": "Spring launch",
	"affiliate_count": 10,
	"platform": "x",
	"difficulty": "easy",
	"commission": {"sale": 12.5},
	"product": {"name": "Widget", "description": "A widget", "price": 19.99}
}`

func TestCreateCampaign_Accepted(t *testing.T) {
	a, _, _, _ := newTestAPI()
	st := &fakeStarter{}
	a.starter = st

	rec := serve(t, a, httptest.NewRequest(http.MethodPost, "/campaigns", strings.NewReader(campaignBody)))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Len(t, st.discovery, 1)
	in := st.discovery[0]
	assert.Equal(t, model.PlatformTwitter, in.Campaign.Platform)
	assert.Equal(t, 10, in.Campaign.Quota)
	assert.Equal(t, model.RunModeManual, in.Campaign.RunMode)
	assert.Equal(t, in.Product.ID, in.Campaign.ProductID)
	assert.InDelta(t, 12.5, in.Campaign.Commission.Sale, 0.001)
	require.NotNil(t, in.Difficulty)
	assert.Equal(t, model.TierEasy, *in.Difficulty)

	body := decodeBody(t, rec)
	assert.Equal(t, in.Campaign.ID, body["campaign_id"])
	assert.Equal(t, workflow.DiscoveryWorkflowID(in.Campaign.ID), body["workflow_id"])
}

func TestCreateCampaign_Errors(t *testing.T) {
	t.Run("no temporal", func(t *testing.T) {
		a, _, _, _ := newTestAPI()
		rec := serve(t, a, httptest.NewRequest(http.MethodPost, "/campaigns", strings.NewReader(campaignBody)))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	invalid := map[string]string{
		"bad json":      `{`,
		"no product":    `{"affiliate_count": 3, "platform": "youtube"}`,
		"bad platform":  `{"affiliate_count": 3, "platform": "myspace", "product": {"name": "W"}}`,
		"bad tier":      `{"affiliate_count": 3, "platform": "youtube", "difficulty": "brutal", "product": {"name": "W"}}`,
		"zero quota":    `{"affiliate_count": 0, "platform": "youtube", "product": {"name": "W"}}`,
		"negative area": `{"affiliate_count": 3, "platform": "youtube", "radius_km": -1, "product": {"name": "W"}}`,
	}
	for name, body := range invalid {
		t.Run(name, func(t *testing.T) {
			a, _, _, _ := newTestAPI()
			st := &fakeStarter{}
			a.starter = st
			rec := serve(t, a, httptest.NewRequest(http.MethodPost, "/campaigns", strings.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, st.discovery)
		})
	}

	t.Run("already running", func(t *testing.T) {
		a, _, _, _ := newTestAPI()
		a.starter = &fakeStarter{err: workflow.ErrAlreadyRunning}
		rec := serve(t, a, httptest.NewRequest(http.MethodPost, "/campaigns", strings.NewReader(campaignBody)))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("start failure", func(t *testing.T) {
		a, _, _, _ := newTestAPI()
		a.starter = &fakeStarter{err: assert.AnError}
		rec := serve(t, a, httptest.NewRequest(http.MethodPost, "/campaigns", strings.NewReader(campaignBody)))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestCandidates(t *testing.T) {
	a, reader, _, _ := newTestAPI()

	rec := serve(t, a, httptest.NewRequest(http.MethodGet, "/campaigns/camp-1/candidates", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	reader.aggs["camp-1"] = &model.Aggregate{
		CampaignID: "camp-1",
		Platform:   model.PlatformYouTube,
		Candidates: []model.Candidate{{Handle: "@chef"}},
		Version:    3,
	}
	rec = serve(t, a, httptest.NewRequest(http.MethodGet, "/campaigns/camp-1/candidates", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 3, body["version"])
	assert.Len(t, body["candidates"], 1)
}

func multipartImport(t *testing.T, fields map[string]string, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestEnqueueImport(t *testing.T) {
	a, _, _, queue := newTestAPI()
	st := &fakeStarter{}
	a.starter = st

	csv := "name,product\nSpring,Widget\n"
	rec := serve(t, a, multipartImport(t, map[string]string{"owner_id": "owner-1"}, "campaigns.csv", csv))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	assert.Equal(t, "owner-1", queue.ownerID)
	assert.Equal(t, importer.FormatCSV, queue.format)
	assert.Equal(t, csv, queue.body)
	assert.Equal(t, []string{"job-1"}, st.imports)

	body := decodeBody(t, rec)
	assert.Equal(t, "job-1", body["job_id"])
	assert.Equal(t, workflow.ImportWorkflowID("job-1"), body["workflow_id"])
}

func TestEnqueueImport_WithoutTemporal(t *testing.T) {
	a, _, _, _ := newTestAPI()
	rec := serve(t, a, multipartImport(t, map[string]string{"owner_id": "owner-1"}, "campaigns.xlsx", "PK"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "job-1", body["job_id"])
	assert.NotContains(t, body, "workflow_id")
}

func TestEnqueueImport_BadRequests(t *testing.T) {
	a, _, _, queue := newTestAPI()

	rec := serve(t, a, multipartImport(t, map[string]string{"owner_id": "owner-1"}, "", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, a, multipartImport(t, nil, "campaigns.csv", "name\nx\n"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	queue.err = assert.AnError
	rec = serve(t, a, multipartImport(t, map[string]string{"owner_id": "owner-1"}, "campaigns.csv", "name\nx\n"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, a, httptest.NewRequest(http.MethodPost, "/import", strings.NewReader("plain")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessImport(t *testing.T) {
	a, _, _, queue := newTestAPI()
	queue.res = &importer.BatchResult{JobID: "job-1", State: importer.StateDone, Popped: 2, Processed: 2, Created: 2}

	rec := serve(t, a, httptest.NewRequest(http.MethodPost, "/import/process", strings.NewReader(`{"job_id":"job-1"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, string(importer.StateDone), body["state"])

	rec = serve(t, a, httptest.NewRequest(http.MethodPost, "/import/process", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	queue.err = store.ErrNotFound
	rec = serve(t, a, httptest.NewRequest(http.MethodPost, "/import/process", strings.NewReader(`{"job_id":"gone"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	queue.err = assert.AnError
	rec = serve(t, a, httptest.NewRequest(http.MethodPost, "/import/process", strings.NewReader(`{"job_id":"job-1"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
