package workflow

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/affiliate-scout/internal/model"
)

// ErrAlreadyRunning is returned when a workflow with the same ID is still open.
var ErrAlreadyRunning = eris.New("workflow: already running")

// DiscoveryWorkflowID is the workflow ID for a campaign. One discovery
// workflow per campaign may be open at a time.
func DiscoveryWorkflowID(campaignID string) string {
	return "campaign-discovery-" + campaignID
}

// ImportWorkflowID is the workflow ID for an import job.
func ImportWorkflowID(jobID string) string {
	return "campaign-import-" + jobID
}

// Starter starts workflows on a task queue.
type Starter struct {
	client        client.Client
	taskQueue     string
	batchesPerRun int
}

// NewStarter creates a Starter.
func NewStarter(c client.Client, taskQueue string, batchesPerRun int) *Starter {
	return &Starter{client: c, taskQueue: taskQueue, batchesPerRun: batchesPerRun}
}

// StartDiscovery starts a discovery workflow and returns its ID. A workflow
// still open for the same campaign yields ErrAlreadyRunning; a finished one
// may be started again.
func (s *Starter) StartDiscovery(ctx context.Context, in DiscoveryInput) (string, error) {
	id := DiscoveryWorkflowID(in.Campaign.ID)
	run, err := s.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                                       id,
		TaskQueue:                                s.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowIDConflictPolicy:                 enumspb.WORKFLOW_ID_CONFLICT_POLICY_FAIL,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, DiscoveryWorkflowName, in)
	if err != nil {
		return "", startError(err, id)
	}
	zap.L().Info("workflow: discovery started",
		zap.String("workflow_id", run.GetID()),
		zap.String("run_id", run.GetRunID()),
		zap.String("campaign_id", in.Campaign.ID),
	)
	return run.GetID(), nil
}

// TriggerDiscovery starts discovery for a campaign created by an import. A
// run already open for the campaign counts as started.
func (s *Starter) TriggerDiscovery(ctx context.Context, campaign model.Campaign, product model.Product) error {
	_, err := s.StartDiscovery(ctx, DiscoveryInput{Campaign: campaign, Product: product})
	if eris.Is(err, ErrAlreadyRunning) {
		return nil
	}
	return err
}

// StartImport starts the import workflow for a queued job.
func (s *Starter) StartImport(ctx context.Context, jobID string) (string, error) {
	id := ImportWorkflowID(jobID)
	run, err := s.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                                       id,
		TaskQueue:                                s.taskQueue,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, ImportWorkflowName, ImportInput{JobID: jobID, BatchesPerRun: s.batchesPerRun})
	if err != nil {
		return "", startError(err, id)
	}
	zap.L().Info("workflow: import started", zap.String("workflow_id", run.GetID()), zap.String("job_id", jobID))
	return run.GetID(), nil
}

func startError(err error, id string) error {
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		return eris.Wrapf(ErrAlreadyRunning, "workflow: %s", id)
	}
	return eris.Wrapf(err, "workflow: start %s", id)
}
