package workflow

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/sells-group/affiliate-scout/internal/discovery"
	"github.com/sells-group/affiliate-scout/internal/importer"
	"github.com/sells-group/affiliate-scout/internal/model"
	"github.com/sells-group/affiliate-scout/internal/notify"
	"github.com/sells-group/affiliate-scout/internal/store"
)

// Discoverer runs one discovery for a stored campaign.
type Discoverer interface {
	Run(ctx context.Context, req discovery.Request) (*discovery.Result, error)
}

// BatchProcessor processes one import batch.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, jobID string) (*importer.BatchResult, error)
}

// Activities holds the dependencies of every activity. Importer may be nil
// on workers that only run discovery.
type Activities struct {
	Store     store.CampaignStore
	Discovery Discoverer
	Importer  BatchProcessor
	Notifier  notify.Notifier
}

// CreateCampaign stores the product and campaign. Both inserts are no-ops
// when the IDs already exist, so a retry returns the stored campaign.
func (a *Activities) CreateCampaign(ctx context.Context, in DiscoveryInput) (*model.Campaign, error) {
	c := in.Campaign
	if c.ProductID == "" {
		c.ProductID = in.Product.ID
	}
	if c.Status == "" {
		c.Status = model.CampaignStatusCreated
	}
	if c.RunMode == "" {
		c.RunMode = model.RunModeManual
	}
	if err := c.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidCampaign", err)
	}
	if in.Product.ID == "" || in.Product.ID != c.ProductID {
		return nil, temporal.NewNonRetryableApplicationError("product id does not match campaign", "InvalidCampaign", nil)
	}

	if _, err := a.Store.CreateProduct(ctx, in.Product); err != nil {
		return nil, eris.Wrap(err, "workflow: create product")
	}
	stored, err := a.Store.CreateCampaign(ctx, c)
	if err != nil {
		return nil, eris.Wrap(err, "workflow: create campaign")
	}
	return stored, nil
}

// DiscoverCandidates runs discovery. A missing campaign is not retried;
// version conflicts and upstream failures are.
func (a *Activities) DiscoverCandidates(ctx context.Context, req discovery.Request) (*discovery.Result, error) {
	res, err := a.Discovery.Run(ctx, req)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), "NotFound", err)
		}
		return nil, err
	}
	return res, nil
}

// NotifyOwner reports a discovery outcome to the campaign owner. A failure
// notice first marks the campaign failed. It never returns an error;
// delivery problems are logged.
func (a *Activities) NotifyOwner(ctx context.Context, in NotifyInput) (bool, error) {
	if in.Failed {
		if err := a.Store.UpdateCampaignStatus(ctx, in.CampaignID, model.CampaignStatusFailed); err != nil {
			zap.L().Warn("workflow: mark campaign failed",
				zap.String("campaign_id", in.CampaignID),
				zap.Error(err),
			)
		}
	}
	return notify.Send(ctx, a.Notifier, ownerMessage(in)), nil
}

// ProcessImportBatch runs one import batch.
func (a *Activities) ProcessImportBatch(ctx context.Context, jobID string) (*importer.BatchResult, error) {
	if a.Importer == nil {
		return nil, temporal.NewNonRetryableApplicationError("import is not configured on this worker", "NotConfigured", nil)
	}
	res, err := a.Importer.ProcessBatch(ctx, jobID)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), "NotFound", err)
		}
		return nil, err
	}
	return res, nil
}

func ownerMessage(in NotifyInput) notify.Message {
	msg := notify.Message{
		To: in.OwnerEmail,
		Payload: map[string]any{
			"campaign_id":   in.CampaignID,
			"campaign_name": in.CampaignName,
		},
	}
	switch {
	case in.Failed:
		msg.Kind = notify.KindDiscoveryFailed
		msg.Subject = fmt.Sprintf("Discovery failed for %s", in.CampaignName)
		msg.Payload["error"] = in.Error
	case in.Added > 0:
		msg.Kind = notify.KindDiscoverySucceeded
		msg.Subject = fmt.Sprintf("%d new affiliates found for %s", in.Added, in.CampaignName)
		msg.Payload["added"] = in.Added
		msg.Payload["total"] = in.Total
		msg.Payload["tier"] = in.Tier.String()
	default:
		msg.Kind = notify.KindDiscoveryNoCandidates
		msg.Subject = fmt.Sprintf("No new affiliates found for %s", in.CampaignName)
		msg.Payload["total"] = in.Total
	}
	return msg
}
