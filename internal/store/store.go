// Package store persists campaigns, candidate aggregates and import job state.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/affiliate-scout/internal/model"
)

var (
	// ErrNotFound is returned when a campaign, product or import job does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrVersionConflict is returned by ReplaceAggregate when the stored
	// version differs from the expected one.
	ErrVersionConflict = eris.New("store: aggregate version conflict")
	// ErrStaleImportBatch is returned by CommitImportBatch when the batch's
	// rows are no longer queued.
	ErrStaleImportBatch = eris.New("store: import batch already committed")
)

// CampaignStore holds products and campaigns. Creates are idempotent on ID:
// inserting an existing ID leaves the stored row untouched and returns it.
type CampaignStore interface {
	CreateProduct(ctx context.Context, p model.Product) (*model.Product, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	CreateCampaign(ctx context.Context, c model.Campaign) (*model.Campaign, error)
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	UpdateCampaignStatus(ctx context.Context, id string, status model.CampaignStatus) error
}

// AggregateStore holds the single candidate aggregate per campaign.
//
// GetAggregate returns (nil, nil) when the campaign has none yet.
// ReplaceAggregate inserts when expectedVersion is 0 and otherwise updates
// only if the stored version still equals expectedVersion. It returns the new
// version. Concurrent discovery runs for one campaign are not supported; a
// lost race surfaces as ErrVersionConflict.
type AggregateStore interface {
	GetAggregate(ctx context.Context, campaignID string) (*model.Aggregate, error)
	ReplaceAggregate(ctx context.Context, agg model.Aggregate, expectedVersion int64) (int64, error)
}

// ImportStore holds the job-scoped state of a batch import: the row queue,
// the counters, created campaign names and row errors.
type ImportStore interface {
	CreateImportJob(ctx context.Context, job model.ImportJob, rows []model.ImportRow) error
	GetImportJob(ctx context.Context, jobID string) (*model.ImportJob, error)
	// PeekImportRows returns up to n queued rows in row order. Rows stay
	// queued until CommitImportBatch removes them.
	PeekImportRows(ctx context.Context, jobID string, n int) ([]model.ImportRow, error)
	// CommitImportBatch removes queued rows up to b.LastRow, records the
	// batch's row errors and adds to the counters in one transaction. It
	// fails with ErrStaleImportBatch when the rows were already committed.
	CommitImportBatch(ctx context.Context, jobID string, b ImportBatch) error
	// ClaimImportName claims a campaign name for row and returns the row
	// that holds the claim. A row reclaiming its own name gets its own number.
	ClaimImportName(ctx context.Context, jobID, name string, row int) (int, error)
	// ReleaseImportName drops row's claim on name.
	ReleaseImportName(ctx context.Context, jobID, name string, row int) error
	ListImportErrors(ctx context.Context, jobID string) ([]model.ImportRowError, error)
	// DeleteImportJob removes every piece of job state in one transaction.
	DeleteImportJob(ctx context.Context, jobID string) error
}

// ImportBatch is the outcome of one processed import batch.
type ImportBatch struct {
	LastRow   int
	Processed int
	Created   int
	Errors    []model.ImportRowError
}

// Store is the full persistence interface.
type Store interface {
	CampaignStore
	AggregateStore
	ImportStore

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the backend named by driver ("postgres" or "sqlite").
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "postgres":
		s, err := NewPostgres(ctx, dsn, nil)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
