package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sevigo/integrator/internal/core"
)

// CheckRunStore persists the payment export ledger.
type CheckRunStore interface {
	CreateCheckRun(ctx context.Context, c *core.CheckRun) error
	GetCheckRun(ctx context.Context, id string) (*core.CheckRun, error)
	UpdateCheckRun(ctx context.Context, c *core.CheckRun) error
	ListByRun(ctx context.Context, runID string) ([]*core.CheckRun, error)
	// LatestForPayment returns the most recent ledger entry for a
	// (connector, payment) pair across all Runs.
	LatestForPayment(ctx context.Context, connectorID, paymentID string) (*core.CheckRun, error)
	// ListExhausted returns the latest entry of each undisabled,
	// unsettled (connector, payment) pair that accumulated at least
	// minAttempts entries since the window start, with the first
	// attempt older than firstBefore.
	ListExhausted(ctx context.Context, since, firstBefore time.Time, minAttempts int) ([]*core.CheckRun, error)
}

type postgresCheckRunStore struct {
	db *sqlx.DB
}

// NewCheckRunStore creates a Postgres-backed CheckRunStore.
func NewCheckRunStore(db *sqlx.DB) CheckRunStore {
	return &postgresCheckRunStore{db: db}
}

const checkRunCols = `id, run_id, connector_id, payment_id, export_success, acknowledged, disabled, manual_exporter, issue_id, created_at, updated_at`

const prefixedCheckRunCols = `c.id, c.run_id, c.connector_id, c.payment_id, c.export_success, c.acknowledged, c.disabled, c.manual_exporter, c.issue_id, c.created_at, c.updated_at`

func (s *postgresCheckRunStore) CreateCheckRun(ctx context.Context, c *core.CheckRun) error {
	query := `INSERT INTO check_runs (` + checkRunCols + `)
		VALUES (:id, :run_id, :connector_id, :payment_id, :export_success, :acknowledged, :disabled, :manual_exporter, :issue_id, :created_at, :updated_at)`
	_, err := s.db.NamedExecContext(ctx, query, c)
	return translateErr(err)
}

func (s *postgresCheckRunStore) GetCheckRun(ctx context.Context, id string) (*core.CheckRun, error) {
	var c core.CheckRun
	err := s.db.GetContext(ctx, &c, `SELECT `+checkRunCols+` FROM check_runs WHERE id = $1`, id)
	if err != nil {
		return nil, translateErr(err)
	}
	return &c, nil
}

func (s *postgresCheckRunStore) UpdateCheckRun(ctx context.Context, c *core.CheckRun) error {
	query := `UPDATE check_runs SET
			export_success = :export_success,
			acknowledged = :acknowledged,
			disabled = :disabled,
			manual_exporter = :manual_exporter,
			issue_id = :issue_id,
			updated_at = :updated_at
		WHERE id = :id`
	res, err := s.db.NamedExecContext(ctx, query, c)
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

func (s *postgresCheckRunStore) ListByRun(ctx context.Context, runID string) ([]*core.CheckRun, error) {
	var out []*core.CheckRun
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+checkRunCols+` FROM check_runs WHERE run_id = $1 ORDER BY created_at`, runID)
	return out, translateErr(err)
}

func (s *postgresCheckRunStore) ListExhausted(ctx context.Context, since, firstBefore time.Time, minAttempts int) ([]*core.CheckRun, error) {
	var out []*core.CheckRun
	err := s.db.SelectContext(ctx, &out,
		`SELECT DISTINCT ON (c.connector_id, c.payment_id) `+prefixedCheckRunCols+`
		 FROM check_runs c
		 JOIN (
			SELECT connector_id, payment_id
			FROM check_runs
			WHERE created_at >= $1
			GROUP BY connector_id, payment_id
			HAVING COUNT(*) >= $3 AND MIN(created_at) < $2
		 ) exhausted
		   ON exhausted.connector_id = c.connector_id
		  AND exhausted.payment_id = c.payment_id
		 WHERE NOT c.disabled
		   AND NOT (c.export_success IS TRUE AND c.acknowledged IS TRUE)
		 ORDER BY c.connector_id, c.payment_id, c.created_at DESC`,
		since, firstBefore, minAttempts)
	return out, translateErr(err)
}

func (s *postgresCheckRunStore) LatestForPayment(ctx context.Context, connectorID, paymentID string) (*core.CheckRun, error) {
	var c core.CheckRun
	err := s.db.GetContext(ctx, &c,
		`SELECT `+checkRunCols+` FROM check_runs
		 WHERE connector_id = $1 AND payment_id = $2
		 ORDER BY created_at DESC LIMIT 1`,
		connectorID, paymentID)
	if err != nil {
		return nil, translateErr(err)
	}
	return &c, nil
}
