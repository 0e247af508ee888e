// Package workflow runs discovery and bulk import as Temporal workflows.
package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/sells-group/affiliate-scout/internal/discovery"
	"github.com/sells-group/affiliate-scout/internal/importer"
	"github.com/sells-group/affiliate-scout/internal/model"
)

// Registered workflow and activity names.
const (
	DiscoveryWorkflowName = "campaign-discovery"
	ImportWorkflowName    = "campaign-import"

	ActivityCreateCampaign     = "create-campaign"
	ActivityDiscoverCandidates = "discover-candidates"
	ActivityNotifyOwner        = "notify-owner"
	ActivityProcessImportBatch = "process-import-batch"
)

const (
	createTimeout   = 30 * time.Second
	discoverTimeout = 15 * time.Minute
	notifyTimeout   = 30 * time.Second
	batchTimeout    = 10 * time.Minute

	defaultBatchesPerRun = 50
)

// DiscoveryInput starts a discovery workflow. IDs are assigned before start
// so create-campaign can be replayed safely.
type DiscoveryInput struct {
	Campaign   model.Campaign `json:"campaign"`
	Product    model.Product  `json:"product"`
	Difficulty *model.Tier    `json:"difficulty,omitempty"`
}

// DiscoveryOutput is the workflow result.
type DiscoveryOutput struct {
	CampaignID string     `json:"campaign_id"`
	Tier       model.Tier `json:"tier"`
	Added      int        `json:"added"`
	Total      int        `json:"total"`
	Notified   bool       `json:"notified"`
}

// NotifyInput is the notify-owner activity input.
type NotifyInput struct {
	CampaignID   string     `json:"campaign_id"`
	CampaignName string     `json:"campaign_name"`
	OwnerEmail   string     `json:"owner_email"`
	Tier         model.Tier `json:"tier"`
	Added        int        `json:"added"`
	Total        int        `json:"total"`
	Failed       bool       `json:"failed"`
	Error        string     `json:"error,omitempty"`
}

// ImportInput drives one import workflow run.
type ImportInput struct {
	JobID         string `json:"job_id"`
	BatchesPerRun int    `json:"batches_per_run"`
}

// ImportOutput is the final import workflow result.
type ImportOutput struct {
	JobID     string `json:"job_id"`
	Processed int    `json:"processed"`
	Created   int    `json:"created"`
}

// DiscoveryWorkflow creates the campaign, discovers candidates and tells the
// owner how it went. Completed steps are not repeated when the workflow
// resumes. A failed discovery marks the campaign failed and sends the
// failure notice before the workflow fails.
func DiscoveryWorkflow(ctx workflow.Context, in DiscoveryInput) (*DiscoveryOutput, error) {
	logger := workflow.GetLogger(ctx)

	createCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: createTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    500 * time.Millisecond,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    5,
		},
	})
	discoverCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: discoverTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    1 * time.Minute,
			MaximumAttempts:    3,
		},
	})
	notifyCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: notifyTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	notifyOwner := func(n NotifyInput) bool {
		var sent bool
		if err := workflow.ExecuteActivity(notifyCtx, ActivityNotifyOwner, n).Get(ctx, &sent); err != nil {
			logger.Warn("notify-owner failed", "campaign_id", n.CampaignID, "error", err)
			return false
		}
		return sent
	}

	var campaign model.Campaign
	if err := workflow.ExecuteActivity(createCtx, ActivityCreateCampaign, in).Get(ctx, &campaign); err != nil {
		return nil, fmt.Errorf("create-campaign: %w", err)
	}
	logger.Info("campaign ready", "campaign_id", campaign.ID, "platform", campaign.Platform)

	var res discovery.Result
	err := workflow.ExecuteActivity(discoverCtx, ActivityDiscoverCandidates, discovery.Request{
		CampaignID: campaign.ID,
		Difficulty: in.Difficulty,
	}).Get(ctx, &res)
	if err != nil {
		logger.Error("discovery failed", "campaign_id", campaign.ID, "error", err)
		notifyOwner(NotifyInput{
			CampaignID:   campaign.ID,
			CampaignName: campaign.Name,
			OwnerEmail:   campaign.OwnerEmail,
			Failed:       true,
			Error:        err.Error(),
		})
		return nil, fmt.Errorf("discover-candidates: %w", err)
	}

	out := &DiscoveryOutput{
		CampaignID: campaign.ID,
		Tier:       res.Tier,
		Added:      res.Added,
		Total:      res.Total,
	}
	out.Notified = notifyOwner(NotifyInput{
		CampaignID:   campaign.ID,
		CampaignName: campaign.Name,
		OwnerEmail:   campaign.OwnerEmail,
		Tier:         res.Tier,
		Added:        res.Added,
		Total:        res.Total,
	})
	logger.Info("discovery workflow finished", "campaign_id", campaign.ID, "added", res.Added, "tier", res.Tier.String())
	return out, nil
}

// ImportWorkflow processes import batches until the job reports done. After
// BatchesPerRun batches it continues as new to keep history small.
func ImportWorkflow(ctx workflow.Context, in ImportInput) (*ImportOutput, error) {
	logger := workflow.GetLogger(ctx)
	if in.BatchesPerRun <= 0 {
		in.BatchesPerRun = defaultBatchesPerRun
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: batchTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	for range in.BatchesPerRun {
		var res importer.BatchResult
		if err := workflow.ExecuteActivity(ctx, ActivityProcessImportBatch, in.JobID).Get(ctx, &res); err != nil {
			return nil, fmt.Errorf("process-import-batch: %w", err)
		}
		if res.State == importer.StateDone {
			logger.Info("import finished", "job_id", in.JobID, "processed", res.Processed, "created", res.Created)
			return &ImportOutput{JobID: in.JobID, Processed: res.Processed, Created: res.Created}, nil
		}
	}

	logger.Info("import continuing as new", "job_id", in.JobID)
	return nil, workflow.NewContinueAsNewError(ctx, ImportWorkflowName, in)
}
