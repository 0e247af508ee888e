package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/affiliate-scout/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price       REAL NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
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
	radius_km   REAL NOT NULL DEFAULT 0,
	commission  TEXT NOT NULL DEFAULT '{}',
	run_mode    TEXT NOT NULL DEFAULT 'manual',
	difficulty  TEXT NOT NULL DEFAULT 'hard',
	status      TEXT NOT NULL DEFAULT 'created',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_campaigns_product_id ON campaigns(product_id);

CREATE TABLE IF NOT EXISTS candidate_aggregates (
	campaign_id TEXT PRIMARY KEY REFERENCES campaigns(id),
	platform    TEXT NOT NULL,
	tier_used   TEXT NOT NULL,
	candidates  TEXT NOT NULL,
	version     INTEGER NOT NULL,
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS import_jobs (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	owner_email TEXT NOT NULL DEFAULT '',
	processed   INTEGER NOT NULL DEFAULT 0,
	created     INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS import_rows (
	job_id     TEXT NOT NULL,
	row_number INTEGER NOT NULL,
	data       TEXT NOT NULL,
	PRIMARY KEY (job_id, row_number)
);

CREATE TABLE IF NOT EXISTS import_created_names (
	job_id     TEXT NOT NULL,
	name       TEXT NOT NULL,
	row_number INTEGER NOT NULL,
	PRIMARY KEY (job_id, name)
);

CREATE TABLE IF NOT EXISTS import_errors (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id        TEXT NOT NULL,
	row_number    INTEGER NOT NULL,
	campaign_name TEXT NOT NULL DEFAULT '',
	message       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_import_errors_job_id ON import_errors(job_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing on success.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// --- Products and campaigns ---

func (s *SQLiteStore) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, owner_id, name, description, price, created_at)
		 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		p.ID, p.OwnerID, p.Name, p.Description, p.Price, p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert product %s", p.ID)
	}
	return s.GetProduct(ctx, p.ID)
}

func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, description, price, created_at FROM products WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.Price, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: product %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get product %s", id)
	}
	return &p, nil
}

func (s *SQLiteStore) CreateCampaign(ctx context.Context, c model.Campaign) (*model.Campaign, error) {
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
		return nil, eris.Wrap(err, "sqlite: marshal commission")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, product_id, owner_id, owner_email, name, quota, platform,
		   location, radius_km, commission, run_mode, difficulty, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		c.ID, c.ProductID, c.OwnerID, c.OwnerEmail, c.Name, c.Quota, string(c.Platform),
		c.Location, c.RadiusKM, string(commissionJSON), string(c.RunMode), c.Difficulty.String(),
		string(c.Status), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert campaign %s", c.ID)
	}
	return s.GetCampaign(ctx, c.ID)
}

func (s *SQLiteStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	var (
		c                                               model.Campaign
		platform, runMode, difficulty, status, commJSON string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, product_id, owner_id, owner_email, name, quota, platform, location, radius_km,
		   commission, run_mode, difficulty, status, created_at, updated_at
		 FROM campaigns WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.ProductID, &c.OwnerID, &c.OwnerEmail, &c.Name, &c.Quota, &platform,
		&c.Location, &c.RadiusKM, &commJSON, &runMode, &difficulty, &status,
		&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: campaign %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get campaign %s", id)
	}
	if err := fillCampaign(&c, platform, runMode, difficulty, status, []byte(commJSON)); err != nil {
		return nil, eris.Wrap(err, "sqlite: decode campaign")
	}
	return &c, nil
}

func (s *SQLiteStore) UpdateCampaignStatus(ctx context.Context, id string, status model.CampaignStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update campaign status %s", id)
	}
	return checkRowsAffected(res, "campaign", id)
}

// --- Aggregates ---

func (s *SQLiteStore) GetAggregate(ctx context.Context, campaignID string) (*model.Aggregate, error) {
	var (
		agg                         model.Aggregate
		platform, tierUsed, candsJS string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT campaign_id, platform, tier_used, candidates, version, updated_at
		 FROM candidate_aggregates WHERE campaign_id = ?`,
		campaignID,
	).Scan(&agg.CampaignID, &platform, &tierUsed, &candsJS, &agg.Version, &agg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get aggregate %s", campaignID)
	}
	if err := fillAggregate(&agg, platform, tierUsed, []byte(candsJS)); err != nil {
		return nil, eris.Wrap(err, "sqlite: decode aggregate")
	}
	return &agg, nil
}

func (s *SQLiteStore) ReplaceAggregate(ctx context.Context, agg model.Aggregate, expectedVersion int64) (int64, error) {
	candsJSON, err := marshalCandidates(agg.Candidates)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: marshal candidates")
	}
	now := time.Now().UTC()

	var res sql.Result
	if expectedVersion == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO candidate_aggregates (campaign_id, platform, tier_used, candidates, version, updated_at)
			 VALUES (?, ?, ?, ?, 1, ?) ON CONFLICT (campaign_id) DO NOTHING`,
			agg.CampaignID, string(agg.Platform), agg.TierUsed.String(), string(candsJSON), now,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE candidate_aggregates
			 SET platform = ?, tier_used = ?, candidates = ?, version = version + 1, updated_at = ?
			 WHERE campaign_id = ? AND version = ?`,
			string(agg.Platform), agg.TierUsed.String(), string(candsJSON), now, agg.CampaignID, expectedVersion,
		)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: replace aggregate %s", agg.CampaignID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return 0, eris.Wrapf(ErrVersionConflict, "sqlite: aggregate %s expected version %d", agg.CampaignID, expectedVersion)
	}
	return expectedVersion + 1, nil
}

// --- Import jobs ---

func (s *SQLiteStore) CreateImportJob(ctx context.Context, job model.ImportJob, rows []model.ImportRow) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO import_jobs (id, owner_id, owner_email, processed, created, created_at)
			 VALUES (?, ?, ?, 0, 0, ?)`,
			job.ID, job.OwnerID, job.OwnerEmail, job.CreatedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert import job %s", job.ID)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO import_rows (job_id, row_number, data) VALUES (?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare import row insert")
		}
		defer stmt.Close() //nolint:errcheck

		for _, r := range rows {
			b, err := json.Marshal(r)
			if err != nil {
				return eris.Wrapf(err, "sqlite: marshal import row %d", r.RowNumber)
			}
			if _, err := stmt.ExecContext(ctx, job.ID, r.RowNumber, string(b)); err != nil {
				return eris.Wrapf(err, "sqlite: insert import row %d", r.RowNumber)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetImportJob(ctx context.Context, jobID string) (*model.ImportJob, error) {
	var j model.ImportJob
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, owner_email, processed, created, created_at FROM import_jobs WHERE id = ?`,
		jobID,
	).Scan(&j.ID, &j.OwnerID, &j.OwnerEmail, &j.Processed, &j.Created, &j.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: import job %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get import job %s", jobID)
	}
	return &j, nil
}

func (s *SQLiteStore) PeekImportRows(ctx context.Context, jobID string, n int) ([]model.ImportRow, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM import_rows WHERE job_id = ? ORDER BY row_number LIMIT ?`,
		jobID, n,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: select import rows %s", jobID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ImportRow
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan import row")
		}
		var r model.ImportRow
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal import row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: select import rows iterate")
}

func (s *SQLiteStore) CommitImportBatch(ctx context.Context, jobID string, b ImportBatch) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM import_rows WHERE job_id = ? AND row_number <= ?`,
			jobID, b.LastRow,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: delete committed rows %s", jobID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return eris.Wrap(err, "sqlite: rows affected")
		}
		if int(n) != b.Processed {
			return eris.Wrapf(ErrStaleImportBatch, "sqlite: job %s removed %d of %d rows", jobID, n, b.Processed)
		}

		for _, e := range b.Errors {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO import_errors (job_id, row_number, campaign_name, message) VALUES (?, ?, ?, ?)`,
				jobID, e.RowNumber, e.CampaignName, e.Message,
			); err != nil {
				return eris.Wrapf(err, "sqlite: add import error %s", jobID)
			}
		}

		res, err = tx.ExecContext(ctx,
			`UPDATE import_jobs SET processed = processed + ?, created = created + ? WHERE id = ?`,
			b.Processed, b.Created, jobID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: add import progress %s", jobID)
		}
		return checkRowsAffected(res, "import job", jobID)
	})
}

func (s *SQLiteStore) ClaimImportName(ctx context.Context, jobID, name string, row int) (int, error) {
	var holder int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO import_created_names (job_id, name, row_number) VALUES (?, ?, ?)
		 ON CONFLICT (job_id, name) DO UPDATE SET row_number = import_created_names.row_number
		 RETURNING row_number`,
		jobID, name, row,
	).Scan(&holder)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: claim import name %s", jobID)
	}
	return holder, nil
}

func (s *SQLiteStore) ReleaseImportName(ctx context.Context, jobID, name string, row int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM import_created_names WHERE job_id = ? AND name = ? AND row_number = ?`,
		jobID, name, row,
	)
	return eris.Wrapf(err, "sqlite: release import name %s", jobID)
}

func (s *SQLiteStore) ListImportErrors(ctx context.Context, jobID string) ([]model.ImportRowError, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_number, campaign_name, message FROM import_errors WHERE job_id = ? ORDER BY row_number, id`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list import errors %s", jobID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ImportRowError
	for rows.Next() {
		var e model.ImportRowError
		if err := rows.Scan(&e.RowNumber, &e.CampaignName, &e.Message); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan import error")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list import errors iterate")
}

func (s *SQLiteStore) DeleteImportJob(ctx context.Context, jobID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM import_rows WHERE job_id = ?`,
			`DELETE FROM import_created_names WHERE job_id = ?`,
			`DELETE FROM import_errors WHERE job_id = ?`,
			`DELETE FROM import_jobs WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, jobID); err != nil {
				return eris.Wrapf(err, "sqlite: delete import job %s", jobID)
			}
		}
		return nil
	})
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return nil
}
