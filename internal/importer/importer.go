// Package importer turns uploaded spreadsheets into campaigns, one bounded
// batch at a time.
package importer

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/affiliate-scout/internal/model"
	"github.com/sells-group/affiliate-scout/internal/notify"
	"github.com/sells-group/affiliate-scout/internal/store"
)

// State tells the scheduler whether another batch is waiting.
type State string

const (
	StateContinue State = "continue"
	StateDone     State = "done"
)

// BatchResult reports one ProcessBatch call. Processed and Created are job
// totals; Errors holds only this batch's row errors.
type BatchResult struct {
	JobID     string                 `json:"job_id"`
	State     State                  `json:"state"`
	Popped    int                    `json:"popped"`
	Processed int                    `json:"processed"`
	Created   int                    `json:"created"`
	Errors    []model.ImportRowError `json:"errors"`
}

// DiscoveryTrigger starts discovery for a freshly created campaign.
type DiscoveryTrigger interface {
	TriggerDiscovery(ctx context.Context, campaign model.Campaign, product model.Product) error
}

// TriggerFunc adapts a function to DiscoveryTrigger.
type TriggerFunc func(ctx context.Context, campaign model.Campaign, product model.Product) error

// TriggerDiscovery calls f.
func (f TriggerFunc) TriggerDiscovery(ctx context.Context, c model.Campaign, p model.Product) error {
	return f(ctx, c, p)
}

// Store is the persistence an import needs.
type Store interface {
	store.CampaignStore
	store.ImportStore
}

// Config tunes a Processor.
type Config struct {
	BatchSize       int
	RowConcurrency  int
	DefaultQuota    int
	DefaultPlatform model.Platform
	DefaultCharset  string
}

// Processor enqueues and drains import jobs.
type Processor struct {
	store    Store
	trigger  DiscoveryTrigger
	notifier notify.Notifier
	cfg      Config
	now      func() time.Time
}

// New creates a Processor.
func New(st Store, trigger DiscoveryTrigger, n notify.Notifier, cfg Config) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RowConcurrency <= 0 {
		cfg.RowConcurrency = 4
	}
	if cfg.DefaultQuota <= 0 {
		cfg.DefaultQuota = 10
	}
	if cfg.DefaultPlatform == "" {
		cfg.DefaultPlatform = model.PlatformYouTube
	}
	if n == nil {
		n = notify.Log{}
	}
	return &Processor{
		store:    st,
		trigger:  trigger,
		notifier: n,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// BatchSize is the number of rows read per batch.
func (p *Processor) BatchSize() int { return p.cfg.BatchSize }

// Enqueue parses an upload and queues its rows under a new job. An empty
// charset uses the configured default.
func (p *Processor) Enqueue(ctx context.Context, ownerID, ownerEmail string, r io.Reader, format Format, charset string) (string, error) {
	if ownerID == "" {
		return "", eris.New("importer: owner id is required")
	}
	if charset == "" {
		charset = p.cfg.DefaultCharset
	}
	rows, err := ReadRows(r, format, charset)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", eris.New("importer: file has no data rows")
	}

	job := model.ImportJob{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		OwnerEmail: ownerEmail,
		CreatedAt:  p.now(),
	}
	if err := p.store.CreateImportJob(ctx, job, rows); err != nil {
		return "", eris.Wrap(err, "importer: create job")
	}
	zap.L().Info("importer: job enqueued",
		zap.String("job_id", job.ID),
		zap.String("owner_id", ownerID),
		zap.Int("rows", len(rows)),
	)
	return job.ID, nil
}

// ProcessBatch processes the next batch of queued rows, creating a campaign
// per valid row and starting its discovery. The rows, their row errors and
// the job counters are committed together, so a failed call can be retried:
// the same rows come back and creates are idempotent on row-derived IDs.
// A short batch finishes the job: every job-scoped record is deleted and
// the owner gets a summary.
func (p *Processor) ProcessBatch(ctx context.Context, jobID string) (*BatchResult, error) {
	log := zap.L().With(zap.String("job_id", jobID))

	job, err := p.store.GetImportJob(ctx, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "importer: load job")
	}
	rows, err := p.store.PeekImportRows(ctx, jobID, p.cfg.BatchSize)
	if err != nil {
		return nil, eris.Wrap(err, "importer: read rows")
	}

	res := &BatchResult{JobID: jobID, State: StateContinue, Popped: len(rows)}

	ready, rowErrs := p.admit(rows)

	// Rows sharing a name run in row order so the first row that creates
	// its campaign keeps the name.
	outcomes := make([]*model.ImportRowError, len(ready))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.RowConcurrency)
	for _, idx := range groupByName(ready) {
		g.Go(func() error {
			for _, i := range idx {
				outcomes[i] = p.create(gctx, *job, ready[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	created := 0
	for _, e := range outcomes {
		if e == nil {
			created++
			continue
		}
		rowErrs = append(rowErrs, *e)
	}
	slices.SortStableFunc(rowErrs, func(a, b model.ImportRowError) int { return a.RowNumber - b.RowNumber })

	if len(rows) > 0 {
		if err := p.store.CommitImportBatch(ctx, jobID, store.ImportBatch{
			LastRow:   rows[len(rows)-1].RowNumber,
			Processed: len(rows),
			Created:   created,
			Errors:    rowErrs,
		}); err != nil {
			return nil, eris.Wrap(err, "importer: commit batch")
		}
	}
	res.Processed = job.Processed + len(rows)
	res.Created = job.Created + created
	res.Errors = rowErrs

	log.Info("importer: batch processed",
		zap.Int("popped", len(rows)),
		zap.Int("created", created),
		zap.Int("row_errors", len(rowErrs)),
	)

	if len(rows) == p.cfg.BatchSize {
		return res, nil
	}

	if err := p.finish(ctx, *job, res); err != nil {
		return nil, err
	}
	res.State = StateDone
	return res, nil
}

// Drain runs batches until the job is done.
func (p *Processor) Drain(ctx context.Context, jobID string) (*BatchResult, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "importer: drain cancelled")
		}
		res, err := p.ProcessBatch(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if res.State == StateDone {
			return res, nil
		}
	}
}

type admitted struct {
	row    model.ImportRow
	name   string
	parsed model.ParsedImportRow
}

// admit validates rows. Rows that fail come back as row errors.
func (p *Processor) admit(rows []model.ImportRow) ([]admitted, []model.ImportRowError) {
	var (
		ready []admitted
		errs  []model.ImportRowError
	)
	for _, r := range rows {
		reject := func(msg string) {
			errs = append(errs, model.ImportRowError{RowNumber: r.RowNumber, CampaignName: r.CampaignName, Message: msg})
		}
		if missing := r.Missing(); len(missing) > 0 {
			reject("missing required fields: " + strings.Join(missing, ", "))
			continue
		}
		parsed, problems := r.Parse(p.cfg.DefaultPlatform, p.cfg.DefaultQuota)
		if len(problems) > 0 {
			reject(strings.Join(problems, "; "))
			continue
		}
		ready = append(ready, admitted{row: r, name: strings.TrimSpace(r.CampaignName), parsed: parsed})
	}
	return ready, errs
}

// groupByName returns indexes into ready grouped by campaign name, each
// group in row order.
func groupByName(ready []admitted) [][]int {
	pos := make(map[string]int)
	var groups [][]int
	for i, a := range ready {
		g, ok := pos[a.name]
		if !ok {
			g = len(groups)
			pos[a.name] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

func duplicateName(r model.ImportRow) *model.ImportRowError {
	return &model.ImportRowError{RowNumber: r.RowNumber, CampaignName: r.CampaignName, Message: "duplicate campaign name"}
}

// create claims the campaign name, stores the product and campaign for one
// row and starts discovery. IDs derive from the job and row so a retried
// batch does not duplicate them. A failed create releases the claim.
func (p *Processor) create(ctx context.Context, job model.ImportJob, a admitted) *model.ImportRowError {
	log := zap.L().With(zap.String("job_id", job.ID), zap.Int("row", a.row.RowNumber))
	fail := func(msg string, err error) *model.ImportRowError {
		log.Warn("importer: row failed", zap.Error(err))
		return &model.ImportRowError{RowNumber: a.row.RowNumber, CampaignName: a.row.CampaignName, Message: msg}
	}

	holder, err := p.store.ClaimImportName(ctx, job.ID, a.name, a.row.RowNumber)
	if err != nil {
		return fail("could not claim campaign name", err)
	}
	if holder != a.row.RowNumber {
		return duplicateName(a.row)
	}
	release := func() {
		if err := p.store.ReleaseImportName(ctx, job.ID, a.name, a.row.RowNumber); err != nil {
			log.Warn("importer: release campaign name", zap.Error(err))
		}
	}

	product, err := p.store.CreateProduct(ctx, model.Product{
		ID:          rowID(job.ID, a.row.RowNumber, "product"),
		OwnerID:     job.OwnerID,
		Name:        strings.TrimSpace(a.row.ProductName),
		Description: strings.TrimSpace(a.row.ProductDescription),
		Price:       a.parsed.Price,
	})
	if err != nil {
		release()
		return fail("could not create product", err)
	}

	campaign, err := p.store.CreateCampaign(ctx, model.Campaign{
		ID:         rowID(job.ID, a.row.RowNumber, "campaign"),
		ProductID:  product.ID,
		OwnerID:    job.OwnerID,
		OwnerEmail: job.OwnerEmail,
		Name:       a.name,
		Quota:      a.parsed.Quota,
		Platform:   a.parsed.Platform,
		Location:   a.parsed.Location,
		RadiusKM:   a.parsed.RadiusKM,
		Commission: a.parsed.Commission,
		RunMode:    model.RunModeManual,
		Difficulty: a.parsed.Difficulty,
		Status:     model.CampaignStatusCreated,
	})
	if err != nil {
		release()
		return fail("could not create campaign", err)
	}

	if p.trigger != nil {
		if err := p.trigger.TriggerDiscovery(ctx, *campaign, *product); err != nil {
			return fail(fmt.Sprintf("campaign %s created but discovery did not start", campaign.ID), err)
		}
	}
	return nil
}

// finish removes the job's state and then notifies the owner. A failed
// delete leaves the job in place so a retry sends the one summary.
func (p *Processor) finish(ctx context.Context, job model.ImportJob, res *BatchResult) error {
	errs, err := p.store.ListImportErrors(ctx, job.ID)
	if err != nil {
		return eris.Wrap(err, "importer: list row errors")
	}
	if errs == nil {
		errs = []model.ImportRowError{}
	}

	if err := p.store.DeleteImportJob(ctx, job.ID); err != nil {
		return eris.Wrap(err, "importer: delete job")
	}

	notify.Send(ctx, p.notifier, notify.Message{
		To:      job.OwnerEmail,
		Subject: fmt.Sprintf("Import finished: %d campaigns created", res.Created),
		Kind:    notify.KindImportSummary,
		Payload: map[string]any{
			"job_id":    job.ID,
			"processed": res.Processed,
			"created":   res.Created,
			"errors":    errs,
		},
	})
	zap.L().Info("importer: job finished",
		zap.String("job_id", job.ID),
		zap.Int("processed", res.Processed),
		zap.Int("created", res.Created),
		zap.Int("row_errors", len(errs)),
	)
	return nil
}

func rowID(jobID string, row int, kind string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(jobID+"/"+strconv.Itoa(row)+"/"+kind)).String()
}
