package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sevigo/integrator/internal/core"
)

// RunStore persists Runs and their failure Issues. The schedule
// evaluator's history queries live here so every verdict re-reads the
// database and multiple control-loop processes stay safe.
type RunStore interface {
	CreateRun(ctx context.Context, r *core.Run) error
	GetRun(ctx context.Context, id string) (*core.Run, error)
	// SaveRun rewrites mutable Run columns. It rejects terminal rows
	// without an execution_end timestamp.
	SaveRun(ctx context.Context, r *core.Run) error
	SetDispatchID(ctx context.Context, runID, dispatchID string) error

	// LastRun returns the most recent Run by creation time, or
	// core.ErrNotFound when the job never ran the capability.
	LastRun(ctx context.Context, jobID string, cap core.Capability) (*core.Run, error)
	// PreviousRun returns the Run created immediately before r for the
	// same job and capability, or core.ErrNotFound.
	PreviousRun(ctx context.Context, r *core.Run) (*core.Run, error)
	// ListCreatedSince returns Runs created at or after since, newest first.
	ListCreatedSince(ctx context.Context, jobID string, cap core.Capability, since time.Time) ([]*core.Run, error)

	// ListScheduledBefore returns created/scheduled Runs older than cutoff.
	ListScheduledBefore(ctx context.Context, cutoff time.Time) ([]*core.Run, error)
	// ListStartedBefore returns started Runs whose execution began before cutoff.
	ListStartedBefore(ctx context.Context, cutoff time.Time) ([]*core.Run, error)
	// ListNonTerminal returns all in-flight Runs ordered by job,
	// capability and creation time, for duplicate reaping.
	ListNonTerminal(ctx context.Context) ([]*core.Run, error)

	CreateIssue(ctx context.Context, issue *core.Issue) error
	GetIssue(ctx context.Context, id string) (*core.Issue, error)
	// GetIssueRule returns the action-required rule for a code, or
	// core.ErrNotFound when no rule is configured.
	GetIssueRule(ctx context.Context, code core.ErrorCode) (*core.IssueRule, error)
}

type postgresRunStore struct {
	db *sqlx.DB
}

// NewRunStore creates a Postgres-backed RunStore.
func NewRunStore(db *sqlx.DB) RunStore {
	return &postgresRunStore{db: db}
}

const runCols = `id, job_id, capability, created_via, is_manual, dry_run, request_parameters, status, dispatch_id, issue_id, cancel_reason, cancel_actor, cancel_text, execution_start, execution_end, created_at, updated_at`

func (s *postgresRunStore) CreateRun(ctx context.Context, r *core.Run) error {
	if r.Status != core.RunCreated {
		return core.ErrInvalidStatus
	}
	query := `INSERT INTO runs (` + runCols + `)
		VALUES (:id, :job_id, :capability, :created_via, :is_manual, :dry_run, :request_parameters, :status, :dispatch_id, :issue_id, :cancel_reason, :cancel_actor, :cancel_text, :execution_start, :execution_end, :created_at, :updated_at)`
	_, err := s.db.NamedExecContext(ctx, query, r)
	return translateErr(err)
}

func (s *postgresRunStore) GetRun(ctx context.Context, id string) (*core.Run, error) {
	var r core.Run
	err := s.db.GetContext(ctx, &r, `SELECT `+runCols+` FROM runs WHERE id = $1`, id)
	if err != nil {
		return nil, translateErr(err)
	}
	return &r, nil
}

func (s *postgresRunStore) SaveRun(ctx context.Context, r *core.Run) error {
	if r.Status.Terminal() && r.ExecutionEnd == nil {
		return errors.New("terminal run requires execution_end")
	}
	query := `UPDATE runs SET
			status = :status,
			dispatch_id = :dispatch_id,
			issue_id = :issue_id,
			cancel_reason = :cancel_reason,
			cancel_actor = :cancel_actor,
			cancel_text = :cancel_text,
			request_parameters = :request_parameters,
			execution_start = :execution_start,
			execution_end = :execution_end,
			updated_at = :updated_at
		WHERE id = :id`
	res, err := s.db.NamedExecContext(ctx, query, r)
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

func (s *postgresRunStore) SetDispatchID(ctx context.Context, runID, dispatchID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET dispatch_id = $1, updated_at = now() WHERE id = $2`, dispatchID, runID)
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

func (s *postgresRunStore) LastRun(ctx context.Context, jobID string, cap core.Capability) (*core.Run, error) {
	var r core.Run
	err := s.db.GetContext(ctx, &r,
		`SELECT `+runCols+` FROM runs
		 WHERE job_id = $1 AND capability = $2
		 ORDER BY created_at DESC LIMIT 1`,
		jobID, cap)
	if err != nil {
		return nil, translateErr(err)
	}
	return &r, nil
}

func (s *postgresRunStore) PreviousRun(ctx context.Context, r *core.Run) (*core.Run, error) {
	var prev core.Run
	err := s.db.GetContext(ctx, &prev,
		`SELECT `+runCols+` FROM runs
		 WHERE job_id = $1 AND capability = $2 AND created_at < $3 AND id <> $4
		 ORDER BY created_at DESC LIMIT 1`,
		r.JobID, r.Capability, r.CreatedAt, r.ID)
	if err != nil {
		return nil, translateErr(err)
	}
	return &prev, nil
}

func (s *postgresRunStore) ListCreatedSince(ctx context.Context, jobID string, cap core.Capability, since time.Time) ([]*core.Run, error) {
	var out []*core.Run
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+runCols+` FROM runs
		 WHERE job_id = $1 AND capability = $2 AND created_at >= $3
		 ORDER BY created_at DESC`,
		jobID, cap, since)
	return out, translateErr(err)
}

func (s *postgresRunStore) ListScheduledBefore(ctx context.Context, cutoff time.Time) ([]*core.Run, error) {
	var out []*core.Run
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+runCols+` FROM runs
		 WHERE status IN ('created', 'scheduled') AND created_at < $1
		 ORDER BY created_at`,
		cutoff)
	return out, translateErr(err)
}

func (s *postgresRunStore) ListStartedBefore(ctx context.Context, cutoff time.Time) ([]*core.Run, error) {
	var out []*core.Run
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+runCols+` FROM runs
		 WHERE status = 'started' AND execution_start < $1
		 ORDER BY execution_start`,
		cutoff)
	return out, translateErr(err)
}

func (s *postgresRunStore) ListNonTerminal(ctx context.Context) ([]*core.Run, error) {
	var out []*core.Run
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+runCols+` FROM runs
		 WHERE status IN ('created', 'scheduled', 'started')
		 ORDER BY job_id, capability, created_at`)
	return out, translateErr(err)
}

func (s *postgresRunStore) CreateIssue(ctx context.Context, issue *core.Issue) error {
	query := `INSERT INTO issues (id, code, message, detail, created_at)
		VALUES (:id, :code, :message, :detail, :created_at)`
	_, err := s.db.NamedExecContext(ctx, query, issue)
	return translateErr(err)
}

func (s *postgresRunStore) GetIssue(ctx context.Context, id string) (*core.Issue, error) {
	var issue core.Issue
	err := s.db.GetContext(ctx, &issue,
		`SELECT id, code, message, detail, created_at FROM issues WHERE id = $1`, id)
	if err != nil {
		return nil, translateErr(err)
	}
	return &issue, nil
}

func (s *postgresRunStore) GetIssueRule(ctx context.Context, code core.ErrorCode) (*core.IssueRule, error) {
	var rule core.IssueRule
	err := s.db.GetContext(ctx, &rule,
		`SELECT id, code, action_required FROM issue_rules WHERE code = $1`, code)
	if err != nil {
		return nil, translateErr(err)
	}
	return &rule, nil
}
