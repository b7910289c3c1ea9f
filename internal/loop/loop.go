// Package loop runs the periodic control cycle: it creates Runs for
// every runnable job and keeps the Run table healthy by resubmitting,
// deduplicating and cancelling stuck work.
package loop

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sevigo/integrator/internal/core"
	"github.com/sevigo/integrator/internal/dispatch"
	"github.com/sevigo/integrator/internal/factory"
	"github.com/sevigo/integrator/internal/lifecycle"
	"github.com/sevigo/integrator/internal/storage"
)

const maintenanceActor = "maintenance"

// Config tunes the loop cadence and the maintenance thresholds.
type Config struct {
	Interval         time.Duration
	ScheduledTimeout time.Duration
	StartedTimeout   time.Duration

	// ManualScheduledTimeout applies to manual Runs, which legitimately
	// wait days for an operator.
	ManualScheduledTimeout time.Duration

	// Created Runs between these ages are resubmitted instead of
	// canceled; younger ones are probably in flight, older ones stale.
	ResubmitMinAge time.Duration
	ResubmitMaxAge time.Duration

	// Exhausted-payment thresholds: payments with at least MinAttempts
	// ledger entries inside AttemptWindow whose first attempt is older
	// than FirstAttemptAge get their ledger disabled.
	AttemptWindow   time.Duration
	MinAttempts     int
	FirstAttemptAge time.Duration

	// WorkDir scratch entries older than TempTTL are removed.
	WorkDir string
	TempTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 3 * time.Hour
	}
	if c.ScheduledTimeout <= 0 {
		c.ScheduledTimeout = 6 * time.Hour
	}
	if c.StartedTimeout <= 0 {
		c.StartedTimeout = 12 * time.Hour
	}
	if c.ManualScheduledTimeout <= 0 {
		c.ManualScheduledTimeout = 72 * time.Hour
	}
	if c.ResubmitMinAge <= 0 {
		c.ResubmitMinAge = time.Hour
	}
	if c.ResubmitMaxAge <= 0 {
		c.ResubmitMaxAge = 72 * time.Hour
	}
	if c.AttemptWindow <= 0 {
		c.AttemptWindow = 60 * 24 * time.Hour
	}
	if c.MinAttempts <= 0 {
		c.MinAttempts = 45
	}
	if c.FirstAttemptAge <= 0 {
		c.FirstAttemptAge = 45 * 24 * time.Hour
	}
	if c.TempTTL <= 0 {
		c.TempTTL = 72 * time.Hour
	}
	return c
}

// capabilityPass is one enumeration step of the creation cycle.
type capabilityPass struct {
	cap    core.Capability
	filter storage.ManualFilter
}

// Creation order: master data first so exports see fresh mappings,
// then payments, then documents.
var creationOrder = []capabilityPass{
	{core.CapAccountingImportAll, storage.AllJobs},
	{core.CapPaymentExportInfo, storage.AllJobs},
	{core.CapInvoiceDownload, storage.AutomatedOnly},
	{core.CapInvoiceDownload, storage.ManualOnly},
	{core.CapPaymentImportInfo, storage.AllJobs},
}

// Loop is the periodic control cycle.
type Loop struct {
	jobs      storage.JobStore
	runs      storage.RunStore
	checks    storage.CheckRunStore
	factory   *factory.Factory
	submitter *dispatch.Submitter
	manager   *lifecycle.Manager
	clock     core.Clock
	logger    *slog.Logger
	cfg       Config
}

// New creates a Loop.
func New(jobs storage.JobStore, runs storage.RunStore, checks storage.CheckRunStore,
	f *factory.Factory, submitter *dispatch.Submitter, manager *lifecycle.Manager,
	clock core.Clock, logger *slog.Logger, cfg Config) *Loop {
	return &Loop{
		jobs:      jobs,
		runs:      runs,
		checks:    checks,
		factory:   f,
		submitter: submitter,
		manager:   manager,
		clock:     clock,
		logger:    logger,
		cfg:       cfg.withDefaults(),
	}
}

// Run ticks until the context is canceled. The first cycle starts
// immediately.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	l.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("control loop stopping")
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick executes one full control cycle.
func (l *Loop) Tick(ctx context.Context) {
	start := l.clock.Now()
	created := l.createRuns(ctx)
	l.maintain(ctx)
	l.logger.Info("control cycle finished",
		"runs_created", created,
		"duration", time.Since(start).String())
}

func (l *Loop) createRuns(ctx context.Context) int {
	created := 0
	for _, pass := range creationOrder {
		jobs, err := l.jobs.ListRunnable(ctx, pass.cap, pass.filter)
		if err != nil {
			l.logger.Error("failed to list runnable jobs",
				"capability", pass.cap, "error", err)
			continue
		}
		for _, job := range jobs {
			run, err := l.factory.CreateRun(ctx, job, pass.cap, core.ViaScheduled, factory.Options{})
			if err != nil {
				l.logger.Warn("run creation failed",
					"job_id", job.ID, "capability", pass.cap, "error", err)
				continue
			}
			if run == nil {
				continue
			}
			if err := l.submitter.ExecuteAsync(ctx, run, job); err != nil {
				l.logger.Error("run submission failed",
					"run_id", run.ID, "job_id", job.ID, "error", err)
				continue
			}
			created++
		}
	}
	return created
}

func (l *Loop) maintain(ctx context.Context) {
	inflight, err := l.runs.ListNonTerminal(ctx)
	if err != nil {
		l.logger.Error("failed to list in-flight runs", "error", err)
		inflight = nil
	}
	l.cancelDuplicates(ctx, inflight)
	l.resubmitStuckCreated(ctx, inflight)
	l.cancelScheduledTimeouts(ctx)
	l.cancelStartedTimeouts(ctx)
	l.disableExhaustedPayments(ctx)
	l.cleanWorkDir()
}

// cancelDuplicates keeps the oldest in-flight Run per (job, capability)
// and cancels the rest.
func (l *Loop) cancelDuplicates(ctx context.Context, inflight []*core.Run) {
	oldest := make(map[string]*core.Run)
	for _, r := range inflight {
		key := r.JobID + "|" + string(r.Capability)
		keep, ok := oldest[key]
		if !ok {
			oldest[key] = r
			continue
		}
		victim := r
		if r.CreatedAt.Before(keep.CreatedAt) {
			oldest[key] = r
			victim = keep
		}
		l.cancel(ctx, victim, core.CancelScheduledMultiple,
			"a concurrent run for the same job and capability exists")
	}
}

// resubmitStuckCreated pushes created Runs that never reached the
// dispatcher back onto it. Fresh ones are left alone, stale ones are
// the timeout passes' problem.
func (l *Loop) resubmitStuckCreated(ctx context.Context, inflight []*core.Run) {
	now := l.clock.Now()
	for _, r := range inflight {
		if r.Status != core.RunCreated {
			continue
		}
		age := now.Sub(r.CreatedAt)
		if age <= l.cfg.ResubmitMinAge || age > l.cfg.ResubmitMaxAge {
			continue
		}
		job, err := l.jobs.GetJob(ctx, r.JobID)
		if err != nil {
			l.logger.Warn("failed to load job for stuck run",
				"run_id", r.ID, "job_id", r.JobID, "error", err)
			continue
		}
		if err := l.submitter.ExecuteAsync(ctx, r, job); err != nil {
			l.logger.Warn("failed to resubmit stuck run", "run_id", r.ID, "error", err)
			continue
		}
		l.logger.Info("resubmitted stuck run", "run_id", r.ID, "age", age.String())
	}
}

func (l *Loop) cancelScheduledTimeouts(ctx context.Context) {
	now := l.clock.Now()
	stuck, err := l.runs.ListScheduledBefore(ctx, now.Add(-l.cfg.ScheduledTimeout))
	if err != nil {
		l.logger.Error("failed to list timed-out scheduled runs", "error", err)
		return
	}
	for _, r := range stuck {
		age := now.Sub(r.CreatedAt)
		if r.IsManual && age <= l.cfg.ManualScheduledTimeout {
			continue
		}
		if r.Status == core.RunCreated && age <= l.cfg.ResubmitMaxAge {
			// Still owned by the resubmit pass.
			continue
		}
		l.cancel(ctx, r, core.CancelScheduledTimedOut,
			"run never started within the scheduling timeout")
	}
}

// cancelStartedTimeouts reaps Runs whose worker died mid-flight, then
// gives each affected job one fresh attempt.
func (l *Loop) cancelStartedTimeouts(ctx context.Context) {
	now := l.clock.Now()
	stuck, err := l.runs.ListStartedBefore(ctx, now.Add(-l.cfg.StartedTimeout))
	if err != nil {
		l.logger.Error("failed to list timed-out started runs", "error", err)
		return
	}
	resubmitted := make(map[string]bool)
	for _, r := range stuck {
		l.cancel(ctx, r, core.CancelStartedTimedOut,
			"run did not finish within the execution timeout")

		key := r.JobID + "|" + string(r.Capability)
		if r.IsManual || resubmitted[key] {
			continue
		}
		job, err := l.jobs.GetJob(ctx, r.JobID)
		if err != nil {
			l.logger.Warn("failed to load job for timed-out run",
				"run_id", r.ID, "job_id", r.JobID, "error", err)
			continue
		}
		dup, err := l.manager.Duplicate(ctx, r, nil)
		if err != nil {
			l.logger.Warn("failed to duplicate timed-out run", "run_id", r.ID, "error", err)
			continue
		}
		if err := l.submitter.ExecuteAsync(ctx, dup, job); err != nil {
			l.logger.Warn("failed to submit replacement run",
				"run_id", dup.ID, "error", err)
			continue
		}
		resubmitted[key] = true
		l.logger.Info("replaced timed-out run", "run_id", r.ID, "replacement_id", dup.ID)
	}
}

// disableExhaustedPayments turns off ledger entries that keep failing:
// the adapter has had dozens of attempts over weeks, another one will
// not succeed without operator input.
func (l *Loop) disableExhaustedPayments(ctx context.Context) {
	now := l.clock.Now()
	exhausted, err := l.checks.ListExhausted(ctx,
		now.Add(-l.cfg.AttemptWindow), now.Add(-l.cfg.FirstAttemptAge), l.cfg.MinAttempts)
	if err != nil {
		l.logger.Error("failed to list exhausted payments", "error", err)
		return
	}
	for _, c := range exhausted {
		c.Disabled = true
		c.UpdatedAt = now
		if err := l.checks.UpdateCheckRun(ctx, c); err != nil {
			l.logger.Warn("failed to disable exhausted payment",
				"checkrun_id", c.ID, "payment_id", c.PaymentID, "error", err)
			continue
		}
		l.logger.Info("disabled exhausted payment",
			"checkrun_id", c.ID, "connector_id", c.ConnectorID, "payment_id", c.PaymentID)
	}
}

// cleanWorkDir removes run scratch directories left behind by crashed
// workers.
func (l *Loop) cleanWorkDir() {
	if l.cfg.WorkDir == "" {
		return
	}
	entries, err := os.ReadDir(l.cfg.WorkDir)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("failed to read work dir", "dir", l.cfg.WorkDir, "error", err)
		}
		return
	}
	cutoff := l.clock.Now().Add(-l.cfg.TempTTL)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(l.cfg.WorkDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			l.logger.Warn("failed to remove stale scratch dir", "path", path, "error", err)
		}
	}
}

func (l *Loop) cancel(ctx context.Context, r *core.Run, reason core.CancelReason, text string) {
	if err := l.manager.Cancel(ctx, r, reason, text, maintenanceActor); err != nil {
		l.logger.Warn("failed to cancel run",
			"run_id", r.ID, "reason", reason, "error", err)
		return
	}
	l.logger.Info("canceled run", "run_id", r.ID, "reason", reason)
}
