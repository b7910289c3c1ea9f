package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/sevigo/integrator/internal/core"
)

// OpenCheckRun opens a ledger entry for one payment export attempt.
// Prior attempts for the same (connector, payment) gate new ones:
// settled payments and disabled payments are refused, and a success
// still waiting for its downstream acknowledgement only retries the
// acknowledgement. The refusals surface as *core.CheckRunConflict.
func (e *Engine) OpenCheckRun(ctx context.Context, r *core.Run, job *core.Job, paymentID string) (*core.CheckRun, error) {
	prior, err := e.deps.Checks.LatestForPayment(ctx, job.ConnectorID, paymentID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up prior attempts for payment %s: %w", paymentID, err)
	}
	if prior != nil {
		switch {
		case prior.Settled():
			return nil, &core.CheckRunConflict{Kind: core.ConflictAcknowledged, Prior: prior}
		case prior.Disabled:
			return nil, &core.CheckRunConflict{Kind: core.ConflictDisabled, Prior: prior}
		case prior.ExportSuccess.IsTrue():
			return nil, &core.CheckRunConflict{Kind: core.ConflictPendingAck, Prior: prior}
		}
	}

	now := e.deps.Clock.Now()
	c := &core.CheckRun{
		ID:            core.NewID(core.PrefixCheckRun),
		RunID:         r.ID,
		ConnectorID:   job.ConnectorID,
		PaymentID:     paymentID,
		ExportSuccess: core.TriUnknown,
		Acknowledged:  core.TriUnknown,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.deps.Checks.CreateCheckRun(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RecordExportSuccess marks the export as entered in the remote system.
// The downstream acknowledgement is a separate step.
func (e *Engine) RecordExportSuccess(ctx context.Context, c *core.CheckRun) error {
	c.ExportSuccess = core.TriTrue
	return e.updateCheckRun(ctx, c)
}

// RecordExportFailure marks the export failed and attaches an Issue
// built from the typed cause. Typed failures are also reported to the
// downstream core so the payment shows up there; report failures only
// log.
func (e *Engine) RecordExportFailure(ctx context.Context, c *core.CheckRun, cause error) error {
	c.ExportSuccess = core.TriFalse
	issue := core.IssueFromError(core.NewID(core.PrefixIssue), cause, e.deps.Clock.Now())
	if issue != nil {
		if err := e.deps.Runs.CreateIssue(ctx, issue); err != nil {
			return fmt.Errorf("failed to persist issue for checkrun %s: %w", c.ID, err)
		}
		c.IssueID = &issue.ID
	}
	if err := e.updateCheckRun(ctx, c); err != nil {
		return err
	}
	if issue != nil {
		if err := e.deps.Core.PostChequeError(ctx, c.RunID, c.PaymentID, issue.Code, issue.Message); err != nil {
			e.deps.Logger.Warn("failed to report cheque error downstream",
				"checkrun_id", c.ID, "payment_id", c.PaymentID, "error", err)
		}
	}
	return nil
}

// NotifyExportSuccess reports the exported payment downstream and
// records the acknowledgement from the response body.
func (e *Engine) NotifyExportSuccess(ctx context.Context, c *core.CheckRun) error {
	acked, err := e.deps.Core.AcknowledgeExport(ctx, c.RunID, []string{c.PaymentID})
	if err != nil {
		return fmt.Errorf("failed to acknowledge payment %s: %w", c.PaymentID, err)
	}
	if acked {
		c.Acknowledged = core.TriTrue
	} else {
		c.Acknowledged = core.TriFalse
	}
	return e.updateCheckRun(ctx, c)
}

// MarkAsManuallyExported records an operator override: the payment was
// entered by hand, so the ledger treats it as exported and runs the
// acknowledgement. No-op when already acknowledged.
func (e *Engine) MarkAsManuallyExported(ctx context.Context, c *core.CheckRun, actor string) error {
	if c.Acknowledged.IsTrue() {
		return nil
	}
	c.ManualExporter = &actor
	c.ExportSuccess = core.TriTrue
	if err := e.updateCheckRun(ctx, c); err != nil {
		return err
	}
	return e.NotifyExportSuccess(ctx, c)
}

// MarkDisabled flags the payment so future runs skip it.
func (e *Engine) MarkDisabled(ctx context.Context, c *core.CheckRun) error {
	c.Disabled = true
	return e.updateCheckRun(ctx, c)
}

// MarkNotDisabled clears the skip flag.
func (e *Engine) MarkNotDisabled(ctx context.Context, c *core.CheckRun) error {
	c.Disabled = false
	return e.updateCheckRun(ctx, c)
}

// AcknowledgeExports runs the acknowledgement step for every
// successfully exported but unacknowledged CheckRun of the Run, plus
// any priors surfaced as pending-ack conflicts while the Run opened
// its own entries. Those priors belong to earlier Runs whose
// acknowledgement never landed; re-driving them here is what moves a
// stuck payment to settled. Failures are aggregated into one error so
// the Run can still be finalised.
func (e *Engine) AcknowledgeExports(ctx context.Context, runID string, priors []*core.CheckRun) error {
	checks, err := e.deps.Checks.ListByRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to list checkruns of run %s: %w", runID, err)
	}
	seen := make(map[string]bool, len(checks))
	for _, c := range checks {
		seen[c.ID] = true
	}
	for _, p := range priors {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		checks = append(checks, p)
	}
	var failed []error
	for _, c := range checks {
		if !c.ExportSuccess.IsTrue() || c.Acknowledged.IsTrue() {
			continue
		}
		if err := e.NotifyExportSuccess(ctx, c); err != nil {
			e.deps.Logger.Warn("export acknowledgement failed",
				"checkrun_id", c.ID, "payment_id", c.PaymentID, "error", err)
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d exports not acknowledged: %w", len(failed), len(checks), errors.Join(failed...))
	}
	return nil
}

func (e *Engine) updateCheckRun(ctx context.Context, c *core.CheckRun) error {
	c.UpdatedAt = e.deps.Clock.Now()
	return e.deps.Checks.UpdateCheckRun(ctx, c)
}
