// Package lifecycle owns the Run state machine. All status transitions
// go through the Manager so the terminal-immutability and end-timestamp
// invariants hold no matter who drives the Run.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sevigo/integrator/internal/core"
	"github.com/sevigo/integrator/internal/storage"
)

// Manager applies Run lifecycle transitions and emits outcome
// notifications.
type Manager struct {
	runs     storage.RunStore
	jobs     storage.JobStore
	notifier core.Notifier
	clock    core.Clock
	logger   *slog.Logger
}

// NewManager creates a Manager.
func NewManager(runs storage.RunStore, jobs storage.JobStore, notifier core.Notifier, clock core.Clock, logger *slog.Logger) *Manager {
	return &Manager{runs: runs, jobs: jobs, notifier: notifier, clock: clock, logger: logger}
}

// Schedule moves a created Run to scheduled.
func (m *Manager) Schedule(ctx context.Context, r *core.Run) error {
	if r.Status != core.RunCreated {
		return fmt.Errorf("cannot schedule run %s in status %s: %w", r.ID, r.Status, core.ErrInvalidStatus)
	}
	r.Status = core.RunScheduled
	return m.save(ctx, r)
}

// Start moves a Run to started and stamps execution_start.
func (m *Manager) Start(ctx context.Context, r *core.Run) error {
	if r.Status != core.RunCreated && r.Status != core.RunScheduled {
		return fmt.Errorf("cannot start run %s in status %s: %w", r.ID, r.Status, core.ErrInvalidStatus)
	}
	now := m.clock.Now()
	r.Status = core.RunStarted
	r.ExecutionStart = &now
	return m.save(ctx, r)
}

// RecordSuccess finalises a Run as succeeded.
func (m *Manager) RecordSuccess(ctx context.Context, r *core.Run) error {
	if err := m.finish(ctx, r, core.RunSucceeded); err != nil {
		return err
	}
	m.notifySuccess(ctx, r)
	return nil
}

// RecordPartialSuccess finalises a Run as partially succeeded.
func (m *Manager) RecordPartialSuccess(ctx context.Context, r *core.Run) error {
	return m.finish(ctx, r, core.RunPartiallySucceeded)
}

// RecordFailure finalises a Run as failed. When cause is a typed domain
// error an Issue is built and attached; untyped causes leave the Run
// without an Issue and the caller decides whether they propagate.
func (m *Manager) RecordFailure(ctx context.Context, r *core.Run, cause error) error {
	if cause != nil {
		issue := core.IssueFromError(core.NewID(core.PrefixIssue), cause, m.clock.Now())
		if issue != nil {
			if err := m.runs.CreateIssue(ctx, issue); err != nil {
				return fmt.Errorf("failed to persist issue for run %s: %w", r.ID, err)
			}
			r.IssueID = &issue.ID
		}
	}
	if err := m.finish(ctx, r, core.RunFailed); err != nil {
		return err
	}
	m.notifyFailure(ctx, r)
	return nil
}

// Cancel is permitted unless the Run is already canceled. The end
// timestamp is stamped when absent so terminal invariants hold.
func (m *Manager) Cancel(ctx context.Context, r *core.Run, reason core.CancelReason, text, actor string) error {
	if r.Status == core.RunCanceled {
		return fmt.Errorf("run %s is already canceled: %w", r.ID, core.ErrInvalidStatus)
	}
	now := m.clock.Now()
	r.Status = core.RunCanceled
	r.CancelReason = &reason
	if text != "" {
		r.CancelText = &text
	}
	if actor != "" {
		r.CancelActor = &actor
	}
	if r.ExecutionEnd == nil {
		r.ExecutionEnd = &now
	}
	return m.save(ctx, r)
}

// Reset is the admin escape hatch: clears timestamps and outcome and
// returns the Run to created.
func (m *Manager) Reset(ctx context.Context, r *core.Run) error {
	r.Status = core.RunCreated
	r.ExecutionStart = nil
	r.ExecutionEnd = nil
	r.IssueID = nil
	r.CancelReason = nil
	r.CancelActor = nil
	r.CancelText = nil
	r.DispatchID = nil
	return m.save(ctx, r)
}

// Duplicate creates a fresh created Run copying job and capability,
// applying the given overrides.
func (m *Manager) Duplicate(ctx context.Context, r *core.Run, overrides func(*core.Run)) (*core.Run, error) {
	now := m.clock.Now()
	dup := &core.Run{
		ID:         core.NewID(core.PrefixRun),
		JobID:      r.JobID,
		Capability: r.Capability,
		CreatedVia: r.CreatedVia,
		IsManual:   r.IsManual,
		DryRun:     r.DryRun,
		Params:     r.Params,
		Status:     core.RunCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if overrides != nil {
		overrides(dup)
	}
	if err := m.runs.CreateRun(ctx, dup); err != nil {
		return nil, err
	}
	return dup, nil
}

func (m *Manager) finish(ctx context.Context, r *core.Run, status core.RunStatus) error {
	if r.Status.Terminal() {
		return fmt.Errorf("run %s is already terminal (%s): %w", r.ID, r.Status, core.ErrInvalidStatus)
	}
	now := m.clock.Now()
	r.Status = status
	r.ExecutionEnd = &now
	return m.save(ctx, r)
}

func (m *Manager) save(ctx context.Context, r *core.Run) error {
	r.UpdatedAt = m.clock.Now()
	return m.runs.SaveRun(ctx, r)
}

// isInitial reports whether the Run was the job's first probe, marked by
// suppress_invoices in its request parameters.
func isInitial(r *core.Run) bool {
	if len(r.Params) == 0 {
		return false
	}
	var p core.InvoiceDownloadParams
	if err := json.Unmarshal(r.Params, &p); err != nil {
		return false
	}
	return p.SuppressInvoices
}

func (m *Manager) notifySuccess(ctx context.Context, r *core.Run) {
	if isInitial(r) {
		m.notify(ctx, core.NotifyInitialSuccess, r)
		return
	}
	prev, err := m.previous(ctx, r)
	if err != nil {
		m.logger.Warn("failed to load previous run for notification", "run_id", r.ID, "error", err)
		return
	}
	// Only a failure-to-success transition is newsworthy.
	if prev != nil && prev.Status == core.RunFailed {
		m.notify(ctx, core.NotifyOperationalSuccess, r)
	}
}

func (m *Manager) notifyFailure(ctx context.Context, r *core.Run) {
	if r.IssueID != nil {
		issue, err := m.runs.GetIssue(ctx, *r.IssueID)
		if err == nil && issue.Code == core.CodeAuthenticationFailedWeb {
			m.flagCredentialIssue(ctx, r)
			m.notify(ctx, core.NotifyCredentialIssue, r)
			return
		}
	}
	prev, err := m.previous(ctx, r)
	if err != nil {
		m.logger.Warn("failed to load previous run for notification", "run_id", r.ID, "error", err)
		return
	}
	switch {
	case prev == nil || isInitial(prev):
		m.notify(ctx, core.NotifyInitialFailure, r)
	case prev.Status == core.RunSucceeded:
		m.notify(ctx, core.NotifyOperationalFailure, r)
	}
}

// flagCredentialIssue records the credential failure on the job so ops
// sees it without digging through runs.
func (m *Manager) flagCredentialIssue(ctx context.Context, r *core.Run) {
	job, err := m.jobs.GetJob(ctx, r.JobID)
	if err != nil {
		m.logger.Warn("failed to load job for credential flag", "run_id", r.ID, "error", err)
		return
	}
	reason := core.DisabledCredentialIssue
	text := fmt.Sprintf("authentication failed during run %s", r.ID)
	job.DisabledReason = &reason
	job.DisabledText = &text
	job.UpdatedAt = m.clock.Now()
	if err := m.jobs.UpdateJob(ctx, job); err != nil {
		m.logger.Warn("failed to update job disabled reason", "job_id", job.ID, "error", err)
	}
}

func (m *Manager) previous(ctx context.Context, r *core.Run) (*core.Run, error) {
	prev, err := m.runs.PreviousRun(ctx, r)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return prev, nil
}

func (m *Manager) notify(ctx context.Context, kind core.NotificationKind, r *core.Run) {
	job, err := m.jobs.GetJob(ctx, r.JobID)
	if err != nil {
		m.logger.Warn("failed to load job for notification", "run_id", r.ID, "error", err)
		return
	}
	// Only vendor portals notify the customer; accounting connectors
	// stay silent.
	if job.Connector == nil || job.Connector.Type != core.ConnectorVendor {
		return
	}
	if err := m.notifier.Notify(ctx, kind, job, r); err != nil {
		m.logger.Warn("notification delivery failed", "kind", kind, "run_id", r.ID, "error", err)
	}
}

// LogNotifier is the default Notifier: it records the notification in
// the log stream. Mail delivery stayed disabled in production, so the
// log line is the surviving artifact.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements core.Notifier.
func (n *LogNotifier) Notify(_ context.Context, kind core.NotificationKind, job *core.Job, r *core.Run) error {
	n.Logger.Info("run notification",
		"kind", kind,
		"job_id", job.ID,
		"run_id", r.ID,
		"capability", r.Capability,
		"status", r.Status,
		"at", time.Now().UTC())
	return nil
}
