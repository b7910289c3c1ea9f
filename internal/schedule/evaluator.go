// Package schedule decides whether a new scheduled Run should be created
// for a (job, capability) at a given instant. Every verdict re-reads run
// history from the store so concurrent control loops stay consistent.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sevigo/integrator/internal/core"
)

// RunHistory is the slice of the run store the evaluator reads.
type RunHistory interface {
	LastRun(ctx context.Context, jobID string, cap core.Capability) (*core.Run, error)
	ListCreatedSince(ctx context.Context, jobID string, cap core.Capability, since time.Time) ([]*core.Run, error)
}

// ScheduleSource resolves the optional per-job schedule.
type ScheduleSource interface {
	GetSchedule(ctx context.Context, jobID string) (*core.JobSchedule, error)
}

// Evaluator applies the per-capability frequency-and-dedup policy.
type Evaluator struct {
	runs      RunHistory
	schedules ScheduleSource
	clock     core.Clock
	logger    *slog.Logger
}

// New creates an Evaluator.
func New(runs RunHistory, schedules ScheduleSource, clock core.Clock, logger *slog.Logger) *Evaluator {
	return &Evaluator{runs: runs, schedules: schedules, clock: clock, logger: logger}
}

// ShouldCreate reports whether a new Run is due. Customer and admin
// requests bypass all policy.
func (e *Evaluator) ShouldCreate(ctx context.Context, job *core.Job, cap core.Capability, via core.CreatedVia) (bool, error) {
	if via.Bypass() {
		e.logger.Debug("scheduling policy bypassed", "job_id", job.ID, "capability", cap, "created_via", via)
		return true, nil
	}

	switch {
	case cap == core.CapWebLogin:
		return true, nil
	case cap == core.CapInvoiceDownload && job.IsManual():
		return e.invoiceDownloadManual(ctx, job)
	case cap == core.CapInvoiceDownload:
		return e.invoiceDownloadAutomated(ctx, job)
	case cap == core.CapPaymentExportInfo:
		return e.paymentExport(ctx, job)
	case cap == core.CapAccountingImportAll || cap == core.CapPaymentImportInfo:
		return e.accountingImport(ctx, job, cap)
	default:
		return false, fmt.Errorf("no scheduling policy for capability %q: %w", cap, core.ErrUnsupportedCapability)
	}
}

func (e *Evaluator) invoiceDownloadAutomated(ctx context.Context, job *core.Job) (bool, error) {
	now := e.clock.Now()

	sched, err := e.getSchedule(ctx, job.ID)
	if err != nil {
		return false, err
	}
	if sched != nil {
		if !sched.Match(now) {
			return false, nil
		}
		return e.calendarDayAllows(ctx, job, core.CapInvoiceDownload, now)
	}

	last, err := e.lastRun(ctx, job.ID, core.CapInvoiceDownload)
	if err != nil {
		return false, err
	}
	if last == nil || now.Sub(last.CreatedAt) > 24*time.Hour {
		return true, nil
	}
	if last.Status == core.RunSucceeded {
		return false, nil
	}

	q12, err := e.runs.ListCreatedSince(ctx, job.ID, core.CapInvoiceDownload, now.Add(-12*time.Hour))
	if err != nil {
		return false, err
	}
	var failed, partial int
	for _, r := range q12 {
		switch r.Status {
		case core.RunCreated, core.RunScheduled:
			return false, nil
		case core.RunFailed:
			failed++
		case core.RunPartiallySucceeded:
			partial++
		}
	}
	if failed >= 3 || partial >= 3 {
		return false, nil
	}
	if now.Sub(last.CreatedAt) < 3*time.Hour {
		return false, nil
	}
	return true, nil
}

func (e *Evaluator) invoiceDownloadManual(ctx context.Context, job *core.Job) (bool, error) {
	now := e.clock.Now()

	sched, err := e.getSchedule(ctx, job.ID)
	if err != nil {
		return false, err
	}
	if sched != nil {
		if !sched.Match(now) {
			return false, nil
		}
		return e.calendarDayAllows(ctx, job, core.CapInvoiceDownload, now)
	}

	freqDays := 1
	if job.Connector != nil {
		freqDays = job.Connector.Frequency()
	}
	window, err := e.runs.ListCreatedSince(ctx, job.ID, core.CapInvoiceDownload,
		now.AddDate(0, 0, -freqDays))
	if err != nil {
		return false, err
	}

	var manualInWindow int
	for _, r := range window {
		if r.Status == core.RunSucceeded {
			return false, nil
		}
		if !r.IsManual {
			continue
		}
		manualInWindow++
		if now.Sub(r.CreatedAt) < 3*time.Hour {
			return false, nil
		}
	}
	if manualInWindow >= 3 {
		return false, nil
	}

	q12, err := e.runs.ListCreatedSince(ctx, job.ID, core.CapInvoiceDownload, now.Add(-12*time.Hour))
	if err != nil {
		return false, err
	}
	for _, r := range q12 {
		if r.IsManual && (r.Status == core.RunCreated || r.Status == core.RunScheduled) {
			return false, nil
		}
	}
	return true, nil
}

func (e *Evaluator) paymentExport(ctx context.Context, job *core.Job) (bool, error) {
	now := e.clock.Now()
	q24, err := e.runs.ListCreatedSince(ctx, job.ID, core.CapPaymentExportInfo, now.Add(-24*time.Hour))
	if err != nil {
		return false, err
	}
	var failed int
	for _, r := range q24 {
		if r.Status == core.RunSucceeded {
			return false, nil
		}
		if r.Status == core.RunFailed {
			failed++
		}
		if now.Sub(r.CreatedAt) < 3*time.Hour {
			return false, nil
		}
	}
	if failed >= 3 {
		return false, nil
	}
	return true, nil
}

// accountingImport covers the sync capabilities and payment import, which
// share the long 7-day window.
func (e *Evaluator) accountingImport(ctx context.Context, job *core.Job, cap core.Capability) (bool, error) {
	now := e.clock.Now()
	week, err := e.runs.ListCreatedSince(ctx, job.ID, cap, now.AddDate(0, 0, -7))
	if err != nil {
		return false, err
	}
	var failed int
	for _, r := range week {
		if r.Status == core.RunSucceeded {
			return false, nil
		}
		if r.Status == core.RunFailed {
			failed++
		}
		if now.Sub(r.CreatedAt) < 24*time.Hour {
			return false, nil
		}
	}
	if failed >= 3 {
		return false, nil
	}
	return true, nil
}

// calendarDayAllows applies the JobSchedule day caps: no success today
// and fewer than three manual Runs today.
func (e *Evaluator) calendarDayAllows(ctx context.Context, job *core.Job, cap core.Capability, now time.Time) (bool, error) {
	today, err := e.runs.ListCreatedSince(ctx, job.ID, cap, core.Midnight(now))
	if err != nil {
		return false, err
	}
	var manual int
	for _, r := range today {
		if r.Status == core.RunSucceeded {
			return false, nil
		}
		if r.IsManual {
			manual++
		}
	}
	if manual >= 3 {
		return false, nil
	}
	return true, nil
}

func (e *Evaluator) getSchedule(ctx context.Context, jobID string) (*core.JobSchedule, error) {
	sched, err := e.schedules.GetSchedule(ctx, jobID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sched, nil
}

func (e *Evaluator) lastRun(ctx context.Context, jobID string, cap core.Capability) (*core.Run, error) {
	last, err := e.runs.LastRun(ctx, jobID, cap)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return last, nil
}
