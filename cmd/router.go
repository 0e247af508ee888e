package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/affiliate-scout/internal/discovery"
	"github.com/sells-group/affiliate-scout/internal/importer"
	"github.com/sells-group/affiliate-scout/internal/model"
	"github.com/sells-group/affiliate-scout/internal/store"
	"github.com/sells-group/affiliate-scout/internal/workflow"
)

type discoverer interface {
	Run(ctx context.Context, req discovery.Request) (*discovery.Result, error)
}

type importQueue interface {
	Enqueue(ctx context.Context, ownerID, ownerEmail string, r io.Reader, format importer.Format, charset string) (string, error)
	ProcessBatch(ctx context.Context, jobID string) (*importer.BatchResult, error)
}

type workflowStarter interface {
	StartDiscovery(ctx context.Context, in workflow.DiscoveryInput) (string, error)
	StartImport(ctx context.Context, jobID string) (string, error)
}

type campaignReader interface {
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	GetAggregate(ctx context.Context, campaignID string) (*model.Aggregate, error)
}

// api holds the handler dependencies. starter is nil when Temporal is not
// configured.
type api struct {
	store     campaignReader
	discovery discoverer
	imports   importQueue
	starter   workflowStarter
	maxUpload int64
}

func newRouter(a *api, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/discover/{platform}", a.discover)
	r.Post("/campaigns", a.createCampaign)
	r.Get("/campaigns/{id}/candidates", a.candidates)
	r.Post("/import", a.enqueueImport)
	r.Post("/import/process", a.processImport)
	return r
}

func (a *api) discover(w http.ResponseWriter, r *http.Request) {
	platform, err := model.ParsePlatform(chi.URLParam(r, "platform"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	campaignID := q.Get("pipeline_id")
	if campaignID == "" {
		writeError(w, http.StatusBadRequest, "pipeline_id is required")
		return
	}

	req := discovery.Request{CampaignID: campaignID, Location: strings.TrimSpace(q.Get("location"))}
	if v := q.Get("affiliate_count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "affiliate_count must be a non-negative integer")
			return
		}
		req.Quota = n
	}
	if v := q.Get("difficulty"); v != "" {
		tier, err := model.ParseTier(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Difficulty = &tier
	}
	if v := q.Get("radius"); v != "" {
		km, err := strconv.ParseFloat(v, 64)
		if err != nil || km < 0 {
			writeError(w, http.StatusBadRequest, "radius must be a non-negative number")
			return
		}
		req.RadiusKM = km
	}

	campaign, err := a.store.GetCampaign(r.Context(), campaignID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if campaign.Platform != platform {
		writeError(w, http.StatusBadRequest, "campaign platform is "+string(campaign.Platform))
		return
	}
	if pid := q.Get("product_id"); pid != "" && pid != campaign.ProductID {
		writeError(w, http.StatusBadRequest, "product_id does not match campaign")
		return
	}

	res, err := a.discovery.Run(r.Context(), req)
	if err != nil {
		if eris.Is(err, discovery.ErrRunInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		zap.L().Error("discover request failed", zap.String("campaign_id", campaignID), zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res})
}

type createCampaignRequest struct {
	OwnerID        string           `json:"owner_id"`
	OwnerEmail     string           `json:"owner_email"`
	Name           string           `json:"name"`
	AffiliateCount int              `json:"affiliate_count"`
	Platform       string           `json:"platform"`
	Location       string           `json:"location"`
	RadiusKM       float64          `json:"radius_km"`
	Commission     model.Commission `json:"commission"`
	RunMode        model.RunMode    `json:"run_mode"`
	Difficulty     string           `json:"difficulty"`
	Product        struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Price       float64 `json:"price"`
	} `json:"product"`
}

func (a *api) createCampaign(w http.ResponseWriter, r *http.Request) {
	if a.starter == nil {
		writeError(w, http.StatusServiceUnavailable, "workflows are not configured")
		return
	}
	var req createCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Product.Name == "" {
		writeError(w, http.StatusBadRequest, "product.name is required")
		return
	}
	platform, err := model.ParsePlatform(req.Platform)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tier, err := model.ParseTier(req.Difficulty)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runMode := req.RunMode
	if runMode == "" {
		runMode = model.RunModeManual
	}

	product := model.Product{
		ID:          uuid.NewString(),
		OwnerID:     req.OwnerID,
		Name:        req.Product.Name,
		Description: req.Product.Description,
		Price:       req.Product.Price,
	}
	campaign := model.Campaign{
		ID:         uuid.NewString(),
		ProductID:  product.ID,
		OwnerID:    req.OwnerID,
		OwnerEmail: req.OwnerEmail,
		Name:       req.Name,
		Quota:      req.AffiliateCount,
		Platform:   platform,
		Location:   req.Location,
		RadiusKM:   req.RadiusKM,
		Commission: req.Commission,
		RunMode:    runMode,
		Difficulty: tier,
		Status:     model.CampaignStatusCreated,
	}
	if err := campaign.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	wfID, err := a.starter.StartDiscovery(r.Context(), workflow.DiscoveryInput{Campaign: campaign, Product: product, Difficulty: &tier})
	if err != nil {
		if eris.Is(err, workflow.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		zap.L().Error("start discovery workflow", zap.String("campaign_id", campaign.ID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "could not start discovery")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"workflow_id": wfID,
		"campaign_id": campaign.ID,
		"product_id":  product.ID,
	})
}

func (a *api) candidates(w http.ResponseWriter, r *http.Request) {
	agg, err := a.store.GetAggregate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if agg == nil {
		writeError(w, http.StatusNotFound, "no candidates for campaign")
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (a *api) enqueueImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload)
	if err := r.ParseMultipartForm(a.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close() //nolint:errcheck

	ownerID := r.FormValue("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	jobID, err := a.imports.Enqueue(r.Context(), ownerID, r.FormValue("owner_email"), file,
		importer.FormatFromName(header.Filename), r.FormValue("charset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := map[string]string{"job_id": jobID}
	if a.starter != nil {
		// The start call must outlive a client hangup.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 10*time.Second)
		defer cancel()
		wfID, err := a.starter.StartImport(ctx, jobID)
		if err != nil {
			zap.L().Error("start import workflow", zap.String("job_id", jobID), zap.Error(err))
		} else {
			resp["workflow_id"] = wfID
		}
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (a *api) processImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}
	res, err := a.imports.ProcessBatch(r.Context(), req.JobID)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "import job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs one line per request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			zap.L().Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
