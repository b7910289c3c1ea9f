package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sevigo/integrator/internal/core"
)

// JobStore is the registry of connectors, jobs and their schedules.
type JobStore interface {
	CreateConnector(ctx context.Context, c *core.Connector) error
	GetConnector(ctx context.Context, id string) (*core.Connector, error)
	GetConnectorByAdapterCode(ctx context.Context, code string) (*core.Connector, error)
	UpsertConnector(ctx context.Context, c *core.Connector) error
	ListConnectors(ctx context.Context) ([]*core.Connector, error)

	CreateJob(ctx context.Context, j *core.Job) error
	GetJob(ctx context.Context, id string) (*core.Job, error)
	UpdateJob(ctx context.Context, j *core.Job) error
	SoftDeleteJob(ctx context.Context, id string, at time.Time) error

	// ListRunnable returns enabled, non-deleted jobs whose enabled
	// connector advertises the capability. Manual filtering follows the
	// invoice-download rules: ManualOnly keeps jobs that are manual-enabled
	// or whose connector adapter code is "manual"; AutomatedOnly excludes
	// the manual adapter code.
	ListRunnable(ctx context.Context, cap core.Capability, filter ManualFilter) ([]*core.Job, error)

	GetSchedule(ctx context.Context, jobID string) (*core.JobSchedule, error)
	PutSchedule(ctx context.Context, s *core.JobSchedule) error

	// UpsertFileAction writes a connector default (jobID nil) or per-job
	// override post-processing rule.
	UpsertFileAction(ctx context.Context, a *core.FileDiscoveryAction) error
	// ResolveFileAction returns the per-job override when present, else
	// the connector default, else ActionNone.
	ResolveFileAction(ctx context.Context, connectorID string, jobID string, docType core.DocumentType) (core.FileAction, error)

	GetMapping(ctx context.Context, jobID string, entity core.EntityType, text string) (*core.PIQMapping, error)
	PutMapping(ctx context.Context, m *core.PIQMapping) error
}

// ManualFilter narrows ListRunnable by execution mode.
type ManualFilter int

const (
	AllJobs ManualFilter = iota
	ManualOnly
	AutomatedOnly
)

type postgresJobStore struct {
	db *sqlx.DB
}

// NewJobStore creates a Postgres-backed JobStore.
func NewJobStore(db *sqlx.DB) JobStore {
	return &postgresJobStore{db: db}
}

const connectorCols = `id, name, adapter_code, type, capabilities, enabled, custom_props, frequency_days, login_url_editable, created_at, updated_at`

func (s *postgresJobStore) CreateConnector(ctx context.Context, c *core.Connector) error {
	query := `INSERT INTO connectors (` + connectorCols + `)
		VALUES (:id, :name, :adapter_code, :type, :capabilities, :enabled, :custom_props, :frequency_days, :login_url_editable, :created_at, :updated_at)`
	_, err := s.db.NamedExecContext(ctx, query, c)
	return translateErr(err)
}

func (s *postgresJobStore) GetConnector(ctx context.Context, id string) (*core.Connector, error) {
	var c core.Connector
	err := s.db.GetContext(ctx, &c, `SELECT `+connectorCols+` FROM connectors WHERE id = $1`, id)
	if err != nil {
		return nil, translateErr(err)
	}
	return &c, nil
}

func (s *postgresJobStore) GetConnectorByAdapterCode(ctx context.Context, code string) (*core.Connector, error) {
	var c core.Connector
	err := s.db.GetContext(ctx, &c, `SELECT `+connectorCols+` FROM connectors WHERE adapter_code = $1`, code)
	if err != nil {
		return nil, translateErr(err)
	}
	return &c, nil
}

// UpsertConnector reconciles a catalog entry by adapter code, keeping the
// existing row id so jobs stay attached.
func (s *postgresJobStore) UpsertConnector(ctx context.Context, c *core.Connector) error {
	query := `INSERT INTO connectors (` + connectorCols + `)
		VALUES (:id, :name, :adapter_code, :type, :capabilities, :enabled, :custom_props, :frequency_days, :login_url_editable, :created_at, :updated_at)
		ON CONFLICT (adapter_code) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			capabilities = EXCLUDED.capabilities,
			enabled = EXCLUDED.enabled,
			custom_props = EXCLUDED.custom_props,
			frequency_days = EXCLUDED.frequency_days,
			login_url_editable = EXCLUDED.login_url_editable,
			updated_at = EXCLUDED.updated_at`
	_, err := s.db.NamedExecContext(ctx, query, c)
	return translateErr(err)
}

func (s *postgresJobStore) ListConnectors(ctx context.Context) ([]*core.Connector, error) {
	var out []*core.Connector
	err := s.db.SelectContext(ctx, &out, `SELECT `+connectorCols+` FROM connectors ORDER BY name`)
	return out, translateErr(err)
}

const jobCols = `id, connector_id, account_id, location_id, location_group_id, company_ids, username, password, login_url, enabled, manual_enabled, disabled_reason, disabled_text, custom_props, deleted, created_at, updated_at`

func (s *postgresJobStore) CreateJob(ctx context.Context, j *core.Job) error {
	query := `INSERT INTO jobs (` + jobCols + `)
		VALUES (:id, :connector_id, :account_id, :location_id, :location_group_id, :company_ids, :username, :password, :login_url, :enabled, :manual_enabled, :disabled_reason, :disabled_text, :custom_props, :deleted, :created_at, :updated_at)`
	_, err := s.db.NamedExecContext(ctx, query, j)
	return translateErr(err)
}

func (s *postgresJobStore) GetJob(ctx context.Context, id string) (*core.Job, error) {
	var j core.Job
	err := s.db.GetContext(ctx, &j, `SELECT `+jobCols+` FROM jobs WHERE id = $1`, id)
	if err != nil {
		return nil, translateErr(err)
	}
	conn, err := s.GetConnector(ctx, j.ConnectorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load connector for job %s: %w", id, err)
	}
	j.Connector = conn
	return &j, nil
}

func (s *postgresJobStore) UpdateJob(ctx context.Context, j *core.Job) error {
	query := `UPDATE jobs SET
			username = :username,
			password = :password,
			login_url = :login_url,
			enabled = :enabled,
			manual_enabled = :manual_enabled,
			disabled_reason = :disabled_reason,
			disabled_text = :disabled_text,
			custom_props = :custom_props,
			company_ids = :company_ids,
			updated_at = :updated_at
		WHERE id = :id AND NOT deleted`
	res, err := s.db.NamedExecContext(ctx, query, j)
	if err != nil {
		return translateErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// SoftDeleteJob marks the job deleted and rewrites the username with a
// tombstone so engines without partial indexes stay consistent. The
// job's discovered files are tombstoned the same way.
func (s *postgresJobStore) SoftDeleteJob(ctx context.Context, id string, at time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var username string
	if err := tx.GetContext(ctx, &username, `SELECT username FROM jobs WHERE id = $1 AND NOT deleted`, id); err != nil {
		return translateErr(err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET deleted = TRUE, username = $1, updated_at = $2 WHERE id = $3`,
		core.Tombstone(username, at), at, id)
	if err != nil {
		return translateErr(err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE discovered_files
		 SET deleted = TRUE,
		     content_hash = content_hash || '##' || $1 || '##deleted',
		     updated_at = $2
		 WHERE NOT deleted
		   AND run_id IN (SELECT id FROM runs WHERE job_id = $3)`,
		fmt.Sprintf("%d", at.Unix()), at, id)
	if err != nil {
		return translateErr(err)
	}

	return tx.Commit()
}

func (s *postgresJobStore) ListRunnable(ctx context.Context, cap core.Capability, filter ManualFilter) ([]*core.Job, error) {
	// A composite capability is runnable when the connector has any of
	// its leaves; the factory narrows to the supported subset later.
	caps := cap.Expand()
	capJSON := make([]string, 0, len(caps))
	for _, c := range caps {
		capJSON = append(capJSON, string(c))
	}

	query := `
		SELECT j.id
		FROM jobs j
		JOIN connectors c ON c.id = j.connector_id
		WHERE j.enabled AND NOT j.deleted AND c.enabled
		  AND c.adapter_code <> '` + core.AdapterCodeBacklog + `'
		  AND EXISTS (
			SELECT 1 FROM jsonb_array_elements_text(c.capabilities) AS cap(code)
			WHERE cap.code = ANY($1)
		  )`
	switch filter {
	case ManualOnly:
		query += ` AND (j.manual_enabled OR c.adapter_code = '` + core.AdapterCodeManual + `')`
	case AutomatedOnly:
		query += ` AND NOT j.manual_enabled AND c.adapter_code <> '` + core.AdapterCodeManual + `'`
	}
	query += ` ORDER BY j.created_at`

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, pq.Array(capJSON)); err != nil {
		return nil, translateErr(err)
	}

	jobs := make([]*core.Job, 0, len(ids))
	for _, id := range ids {
		j, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (s *postgresJobStore) GetSchedule(ctx context.Context, jobID string) (*core.JobSchedule, error) {
	var sch core.JobSchedule
	err := s.db.GetContext(ctx, &sch,
		`SELECT id, job_id, frequency, weeks_of_month, days_of_week, dates_of_month, created_at, updated_at
		 FROM job_schedules WHERE job_id = $1`, jobID)
	if err != nil {
		return nil, translateErr(err)
	}
	return &sch, nil
}

func (s *postgresJobStore) PutSchedule(ctx context.Context, sch *core.JobSchedule) error {
	if err := sch.Validate(); err != nil {
		return err
	}
	query := `INSERT INTO job_schedules (id, job_id, frequency, weeks_of_month, days_of_week, dates_of_month, created_at, updated_at)
		VALUES (:id, :job_id, :frequency, :weeks_of_month, :days_of_week, :dates_of_month, :created_at, :updated_at)
		ON CONFLICT (job_id) DO UPDATE SET
			frequency = EXCLUDED.frequency,
			weeks_of_month = EXCLUDED.weeks_of_month,
			days_of_week = EXCLUDED.days_of_week,
			dates_of_month = EXCLUDED.dates_of_month,
			updated_at = EXCLUDED.updated_at`
	_, err := s.db.NamedExecContext(ctx, query, sch)
	return translateErr(err)
}

func (s *postgresJobStore) UpsertFileAction(ctx context.Context, a *core.FileDiscoveryAction) error {
	if a.JobID != nil {
		query := `INSERT INTO file_discovery_actions (id, connector_id, job_id, document_type, action, created_at)
			VALUES (:id, :connector_id, :job_id, :document_type, :action, :created_at)
			ON CONFLICT (job_id, document_type) WHERE job_id IS NOT NULL
			DO UPDATE SET action = EXCLUDED.action`
		_, err := s.db.NamedExecContext(ctx, query, a)
		return translateErr(err)
	}
	query := `INSERT INTO file_discovery_actions (id, connector_id, job_id, document_type, action, created_at)
		VALUES (:id, :connector_id, NULL, :document_type, :action, :created_at)
		ON CONFLICT (connector_id, document_type) WHERE job_id IS NULL
		DO UPDATE SET action = EXCLUDED.action`
	_, err := s.db.NamedExecContext(ctx, query, a)
	return translateErr(err)
}

func (s *postgresJobStore) ResolveFileAction(ctx context.Context, connectorID, jobID string, docType core.DocumentType) (core.FileAction, error) {
	var action core.FileAction
	err := s.db.GetContext(ctx, &action,
		`SELECT action FROM file_discovery_actions
		 WHERE document_type = $1 AND (job_id = $2 OR (job_id IS NULL AND connector_id = $3))
		 ORDER BY job_id NULLS LAST
		 LIMIT 1`,
		docType, jobID, connectorID)
	if err != nil {
		if translateErr(err) == core.ErrNotFound {
			return core.ActionNone, nil
		}
		return "", translateErr(err)
	}
	return action, nil
}

func (s *postgresJobStore) GetMapping(ctx context.Context, jobID string, entity core.EntityType, text string) (*core.PIQMapping, error) {
	var m core.PIQMapping
	err := s.db.GetContext(ctx, &m,
		`SELECT id, job_id, entity, mapping_text, internal_id, override, created_at, updated_at
		 FROM piq_mappings WHERE job_id = $1 AND entity = $2 AND mapping_text = lower($3)`,
		jobID, entity, text)
	if err != nil {
		return nil, translateErr(err)
	}
	return &m, nil
}

// PutMapping stores mapping_text lowercased so lookups are case-insensitive.
func (s *postgresJobStore) PutMapping(ctx context.Context, m *core.PIQMapping) error {
	query := `INSERT INTO piq_mappings (id, job_id, entity, mapping_text, internal_id, override, created_at, updated_at)
		VALUES (:id, :job_id, :entity, lower(:mapping_text), :internal_id, :override, :created_at, :updated_at)
		ON CONFLICT (job_id, entity, mapping_text) DO UPDATE SET
			internal_id = EXCLUDED.internal_id,
			override = EXCLUDED.override,
			updated_at = EXCLUDED.updated_at`
	_, err := s.db.NamedExecContext(ctx, query, m)
	return translateErr(err)
}
