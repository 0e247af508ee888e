package store

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/affiliate-scout/internal/db"
	"github.com/sells-group/affiliate-scout/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. The caller keeps ownership.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price       DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS campaigns (
	id          TEXT PRIMARY KEY,
	product_id  TEXT NOT NULL REFERENCES products(id),
	owner_id    TEXT NOT NULL,
	owner_email TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL,
	quota       INTEGER NOT NULL,
	platform    TEXT NOT NULL,
	location    TEXT NOT NULL DEFAULT '',
	radius_km   DOUBLE PRECISION NOT NULL DEFAULT 0,
	commission  JSONB NOT NULL DEFAULT '{}',
	run_mode    TEXT NOT NULL DEFAULT 'manual',
	difficulty  TEXT NOT NULL DEFAULT 'hard',
	status      TEXT NOT NULL DEFAULT 'created',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_campaigns_product_id ON campaigns(product_id);
CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);

CREATE TABLE IF NOT EXISTS candidate_aggregates (
	campaign_id TEXT PRIMARY KEY REFERENCES campaigns(id),
	platform    TEXT NOT NULL,
	tier_used   TEXT NOT NULL,
	candidates  JSONB NOT NULL,
	version     BIGINT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS import_jobs (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	owner_email TEXT NOT NULL DEFAULT '',
	processed   INTEGER NOT NULL DEFAULT 0,
	created     INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS import_rows (
	job_id     TEXT NOT NULL,
	row_number INTEGER NOT NULL,
	data       JSONB NOT NULL,
	PRIMARY KEY (job_id, row_number)
);

CREATE TABLE IF NOT EXISTS import_created_names (
	job_id     TEXT NOT NULL,
	name       TEXT NOT NULL,
	row_number INTEGER NOT NULL,
	PRIMARY KEY (job_id, name)
);

CREATE TABLE IF NOT EXISTS import_errors (
	id            BIGSERIAL PRIMARY KEY,
	job_id        TEXT NOT NULL,
	row_number    INTEGER NOT NULL,
	campaign_name TEXT NOT NULL DEFAULT '',
	message       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_import_errors_job_id ON import_errors(job_id);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool if this store opened it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Products and campaigns ---

func (s *PostgresStore) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (id, owner_id, name, description, price, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
		p.ID, p.OwnerID, p.Name, p.Description, p.Price, p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert product %s", p.ID)
	}
	return s.GetProduct(ctx, p.ID)
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, name, description, price, created_at FROM products WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.Price, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: product %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get product %s", id)
	}
	return &p, nil
}

func (s *PostgresStore) CreateCampaign(ctx context.Context, c model.Campaign) (*model.Campaign, error) {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = model.CampaignStatusCreated
	}
	if c.RunMode == "" {
		c.RunMode = model.RunModeManual
	}

	commissionJSON, err := json.Marshal(c.Commission)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal commission")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO campaigns (id, product_id, owner_id, owner_email, name, quota, platform,
		   location, radius_km, commission, run_mode, difficulty, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (id) DO NOTHING`,
		c.ID, c.ProductID, c.OwnerID, c.OwnerEmail, c.Name, c.Quota, string(c.Platform),
		c.Location, c.RadiusKM, commissionJSON, string(c.RunMode), c.Difficulty.String(),
		string(c.Status), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert campaign %s", c.ID)
	}
	return s.GetCampaign(ctx, c.ID)
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	var (
		c              model.Campaign
		platform       string
		runMode        string
		difficulty     string
		status         string
		commissionJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, product_id, owner_id, owner_email, name, quota, platform, location, radius_km,
		   commission, run_mode, difficulty, status, created_at, updated_at
		 FROM campaigns WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.ProductID, &c.OwnerID, &c.OwnerEmail, &c.Name, &c.Quota, &platform,
		&c.Location, &c.RadiusKM, &commissionJSON, &runMode, &difficulty, &status,
		&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: campaign %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get campaign %s", id)
	}
	if err := fillCampaign(&c, platform, runMode, difficulty, status, commissionJSON); err != nil {
		return nil, eris.Wrap(err, "postgres: decode campaign")
	}
	return &c, nil
}

func (s *PostgresStore) UpdateCampaignStatus(ctx context.Context, id string, status model.CampaignStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update campaign status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: campaign %s", id)
	}
	return nil
}

// --- Aggregates ---

func (s *PostgresStore) GetAggregate(ctx context.Context, campaignID string) (*model.Aggregate, error) {
	var (
		agg       model.Aggregate
		platform  string
		tierUsed  string
		candsJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT campaign_id, platform, tier_used, candidates, version, updated_at
		 FROM candidate_aggregates WHERE campaign_id = $1`,
		campaignID,
	).Scan(&agg.CampaignID, &platform, &tierUsed, &candsJSON, &agg.Version, &agg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get aggregate %s", campaignID)
	}
	if err := fillAggregate(&agg, platform, tierUsed, candsJSON); err != nil {
		return nil, eris.Wrap(err, "postgres: decode aggregate")
	}
	return &agg, nil
}

func (s *PostgresStore) ReplaceAggregate(ctx context.Context, agg model.Aggregate, expectedVersion int64) (int64, error) {
	candsJSON, err := marshalCandidates(agg.Candidates)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: marshal candidates")
	}
	now := time.Now().UTC()

	if expectedVersion == 0 {
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO candidate_aggregates (campaign_id, platform, tier_used, candidates, version, updated_at)
			 VALUES ($1, $2, $3, $4, 1, $5) ON CONFLICT (campaign_id) DO NOTHING`,
			agg.CampaignID, string(agg.Platform), agg.TierUsed.String(), candsJSON, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: insert aggregate %s", agg.CampaignID)
		}
		if tag.RowsAffected() == 0 {
			return 0, eris.Wrapf(ErrVersionConflict, "postgres: aggregate %s already exists", agg.CampaignID)
		}
		return 1, nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE candidate_aggregates
		 SET platform = $1, tier_used = $2, candidates = $3, version = version + 1, updated_at = $4
		 WHERE campaign_id = $5 AND version = $6`,
		string(agg.Platform), agg.TierUsed.String(), candsJSON, now, agg.CampaignID, expectedVersion,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: update aggregate %s", agg.CampaignID)
	}
	if tag.RowsAffected() == 0 {
		return 0, eris.Wrapf(ErrVersionConflict, "postgres: aggregate %s expected version %d", agg.CampaignID, expectedVersion)
	}
	return expectedVersion + 1, nil
}

// --- Import jobs ---

var importRowColumns = []string{"job_id", "row_number", "data"}

// importCopyBatch bounds one COPY round trip when queueing large uploads.
const importCopyBatch = 5000

func (s *PostgresStore) CreateImportJob(ctx context.Context, job model.ImportJob, rows []model.ImportRow) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	data := make([][]any, 0, len(rows))
	for _, r := range rows {
		b, err := json.Marshal(r)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal import row %d", r.RowNumber)
		}
		data = append(data, []any{job.ID, r.RowNumber, b})
	}

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO import_jobs (id, owner_id, owner_email, processed, created, created_at)
			 VALUES ($1, $2, $3, 0, 0, $4)`,
			job.ID, job.OwnerID, job.OwnerEmail, job.CreatedAt,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert import job %s", job.ID)
		}
		for i := 0; i < len(data); i += importCopyBatch {
			end := min(i+importCopyBatch, len(data))
			if _, err := tx.CopyFrom(ctx, pgx.Identifier{"import_rows"}, importRowColumns, pgx.CopyFromRows(data[i:end])); err != nil {
				return eris.Wrapf(err, "postgres: copy import rows %d-%d", i, end)
			}
		}
		return nil
	})
}

func (s *PostgresStore) GetImportJob(ctx context.Context, jobID string) (*model.ImportJob, error) {
	var j model.ImportJob
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, owner_email, processed, created, created_at FROM import_jobs WHERE id = $1`,
		jobID,
	).Scan(&j.ID, &j.OwnerID, &j.OwnerEmail, &j.Processed, &j.Created, &j.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: import job %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get import job %s", jobID)
	}
	return &j, nil
}

func (s *PostgresStore) PeekImportRows(ctx context.Context, jobID string, n int) ([]model.ImportRow, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM import_rows WHERE job_id = $1 ORDER BY row_number LIMIT $2`,
		jobID, n,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: select import rows %s", jobID)
	}
	defer rows.Close()

	var out []model.ImportRow
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, eris.Wrap(err, "postgres: scan import row")
		}
		var r model.ImportRow
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal import row")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: select import rows iterate")
	}
	sortRows(out)
	return out, nil
}

func (s *PostgresStore) CommitImportBatch(ctx context.Context, jobID string, b ImportBatch) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM import_rows WHERE job_id = $1 AND row_number <= $2`,
			jobID, b.LastRow,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: delete committed rows %s", jobID)
		}
		if int(tag.RowsAffected()) != b.Processed {
			return eris.Wrapf(ErrStaleImportBatch, "postgres: job %s removed %d of %d rows", jobID, tag.RowsAffected(), b.Processed)
		}

		for _, e := range b.Errors {
			if _, err := tx.Exec(ctx,
				`INSERT INTO import_errors (job_id, row_number, campaign_name, message) VALUES ($1, $2, $3, $4)`,
				jobID, e.RowNumber, e.CampaignName, e.Message,
			); err != nil {
				return eris.Wrapf(err, "postgres: add import error %s", jobID)
			}
		}

		tag, err = tx.Exec(ctx,
			`UPDATE import_jobs SET processed = processed + $1, created = created + $2 WHERE id = $3`,
			b.Processed, b.Created, jobID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: add import progress %s", jobID)
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrNotFound, "postgres: import job %s", jobID)
		}
		return nil
	})
}

func (s *PostgresStore) ClaimImportName(ctx context.Context, jobID, name string, row int) (int, error) {
	var holder int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO import_created_names (job_id, name, row_number) VALUES ($1, $2, $3)
		 ON CONFLICT (job_id, name) DO UPDATE SET row_number = import_created_names.row_number
		 RETURNING row_number`,
		jobID, name, row,
	).Scan(&holder)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: claim import name %s", jobID)
	}
	return holder, nil
}

func (s *PostgresStore) ReleaseImportName(ctx context.Context, jobID, name string, row int) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM import_created_names WHERE job_id = $1 AND name = $2 AND row_number = $3`,
		jobID, name, row,
	)
	return eris.Wrapf(err, "postgres: release import name %s", jobID)
}

func (s *PostgresStore) ListImportErrors(ctx context.Context, jobID string) ([]model.ImportRowError, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT row_number, campaign_name, message FROM import_errors WHERE job_id = $1 ORDER BY row_number, id`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list import errors %s", jobID)
	}
	defer rows.Close()

	var out []model.ImportRowError
	for rows.Next() {
		var e model.ImportRowError
		if err := rows.Scan(&e.RowNumber, &e.CampaignName, &e.Message); err != nil {
			return nil, eris.Wrap(err, "postgres: scan import error")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list import errors iterate")
}

func (s *PostgresStore) DeleteImportJob(ctx context.Context, jobID string) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, q := range deleteImportStatements {
			if _, err := tx.Exec(ctx, q, jobID); err != nil {
				return eris.Wrapf(err, "postgres: delete import job %s", jobID)
			}
		}
		return nil
	})
}

var deleteImportStatements = []string{
	`DELETE FROM import_rows WHERE job_id = $1`,
	`DELETE FROM import_created_names WHERE job_id = $1`,
	`DELETE FROM import_errors WHERE job_id = $1`,
	`DELETE FROM import_jobs WHERE id = $1`,
}

// --- shared decoding ---

func fillCampaign(c *model.Campaign, platform, runMode, difficulty, status string, commissionJSON []byte) error {
	p, err := model.ParsePlatform(platform)
	if err != nil {
		return err
	}
	t, err := model.ParseTier(difficulty)
	if err != nil {
		return err
	}
	c.Platform = p
	c.Difficulty = t
	c.RunMode = model.RunMode(runMode)
	c.Status = model.CampaignStatus(status)
	if len(commissionJSON) > 0 {
		if err := json.Unmarshal(commissionJSON, &c.Commission); err != nil {
			return eris.Wrap(err, "unmarshal commission")
		}
	}
	return nil
}

func fillAggregate(agg *model.Aggregate, platform, tierUsed string, candsJSON []byte) error {
	p, err := model.ParsePlatform(platform)
	if err != nil {
		return err
	}
	t, err := model.ParseTier(tierUsed)
	if err != nil {
		return err
	}
	agg.Platform = p
	agg.TierUsed = t
	if err := json.Unmarshal(candsJSON, &agg.Candidates); err != nil {
		return eris.Wrap(err, "unmarshal candidates")
	}
	return nil
}

func marshalCandidates(cs []model.Candidate) ([]byte, error) {
	if cs == nil {
		cs = []model.Candidate{}
	}
	return json.Marshal(cs)
}

func sortRows(rows []model.ImportRow) {
	slices.SortFunc(rows, func(a, b model.ImportRow) int { return a.RowNumber - b.RowNumber })
}
