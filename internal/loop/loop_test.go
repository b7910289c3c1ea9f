package loop

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/integrator/internal/core"
	"github.com/sevigo/integrator/internal/dispatch"
	"github.com/sevigo/integrator/internal/factory"
	"github.com/sevigo/integrator/internal/lifecycle"
	"github.com/sevigo/integrator/internal/schedule"
	"github.com/sevigo/integrator/internal/storage"
)

var loopInstant = time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC)

type fakeJobStore struct {
	storage.JobStore
	runnable map[core.Capability][]*core.Job
	jobs     map[string]*core.Job
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		runnable: make(map[core.Capability][]*core.Job),
		jobs:     make(map[string]*core.Job),
	}
}

func (f *fakeJobStore) ListRunnable(_ context.Context, cap core.Capability, filter storage.ManualFilter) ([]*core.Job, error) {
	var out []*core.Job
	for _, j := range f.runnable[cap] {
		switch filter {
		case storage.ManualOnly:
			if !j.IsManual() {
				continue
			}
		case storage.AutomatedOnly:
			if j.IsManual() {
				continue
			}
		}
		out = append(out, j)
	}
	return out, nil
}

func (f *fakeJobStore) GetJob(_ context.Context, id string) (*core.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return j, nil
}

func (f *fakeJobStore) GetSchedule(_ context.Context, _ string) (*core.JobSchedule, error) {
	return nil, core.ErrNotFound
}

type fakeRunStore struct {
	storage.RunStore
	mu   sync.Mutex
	runs map[string]*core.Run
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: make(map[string]*core.Run)}
}

func (f *fakeRunStore) put(r *core.Run) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.runs[r.ID] = &cp
}

func (f *fakeRunStore) get(id string) *core.Run {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[id]
}

func (f *fakeRunStore) all() []*core.Run {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*core.Run
	for _, r := range f.runs {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

func (f *fakeRunStore) CreateRun(_ context.Context, r *core.Run) error {
	if r.Status != core.RunCreated {
		return core.ErrInvalidStatus
	}
	f.put(r)
	return nil
}

func (f *fakeRunStore) SaveRun(_ context.Context, r *core.Run) error {
	if r.Status.Terminal() && r.ExecutionEnd == nil {
		return core.ErrInvalidStatus
	}
	f.put(r)
	return nil
}

func (f *fakeRunStore) SetDispatchID(_ context.Context, runID, dispatchID string) error {
	r := f.get(runID)
	if r == nil {
		return core.ErrNotFound
	}
	r.DispatchID = &dispatchID
	f.put(r)
	return nil
}

func (f *fakeRunStore) LastRun(_ context.Context, jobID string, cap core.Capability) (*core.Run, error) {
	var last *core.Run
	for _, r := range f.all() {
		if r.JobID != jobID || r.Capability != cap {
			continue
		}
		if last == nil || r.CreatedAt.After(last.CreatedAt) {
			last = r
		}
	}
	if last == nil {
		return nil, core.ErrNotFound
	}
	return last, nil
}

func (f *fakeRunStore) ListCreatedSince(_ context.Context, jobID string, cap core.Capability, since time.Time) ([]*core.Run, error) {
	var out []*core.Run
	for _, r := range f.all() {
		if r.JobID == jobID && r.Capability == cap && !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRunStore) PreviousRun(_ context.Context, _ *core.Run) (*core.Run, error) {
	return nil, core.ErrNotFound
}

func (f *fakeRunStore) ListNonTerminal(_ context.Context) ([]*core.Run, error) {
	var out []*core.Run
	for _, r := range f.all() {
		if !r.Status.Terminal() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRunStore) ListScheduledBefore(_ context.Context, cutoff time.Time) ([]*core.Run, error) {
	var out []*core.Run
	for _, r := range f.all() {
		if (r.Status == core.RunCreated || r.Status == core.RunScheduled) && r.CreatedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRunStore) ListStartedBefore(_ context.Context, cutoff time.Time) ([]*core.Run, error) {
	var out []*core.Run
	for _, r := range f.all() {
		if r.Status == core.RunStarted && r.ExecutionStart != nil && r.ExecutionStart.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeCheckRunStore struct {
	storage.CheckRunStore
	exhausted []*core.CheckRun
	updated   []*core.CheckRun
}

func (f *fakeCheckRunStore) ListExhausted(_ context.Context, _, _ time.Time, _ int) ([]*core.CheckRun, error) {
	return f.exhausted, nil
}

func (f *fakeCheckRunStore) UpdateCheckRun(_ context.Context, c *core.CheckRun) error {
	cp := *c
	f.updated = append(f.updated, &cp)
	return nil
}

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []string
}

func (d *fakeDispatcher) Dispatch(_ context.Context, r *core.Run, _ core.TimeLimits) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, r.ID)
	return "", nil
}

func (d *fakeDispatcher) Stop() {}

func (d *fakeDispatcher) ids() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dispatched...)
}

type loopHarness struct {
	loop       *Loop
	jobs       *fakeJobStore
	runs       *fakeRunStore
	checks     *fakeCheckRunStore
	dispatcher *fakeDispatcher
}

func newLoopHarness(t *testing.T) *loopHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	clock := &core.FixedClock{Instant: loopInstant}

	jobs := newFakeJobStore()
	runs := newFakeRunStore()
	checks := &fakeCheckRunStore{}
	dispatcher := &fakeDispatcher{}

	manager := lifecycle.NewManager(runs, jobs, &lifecycle.LogNotifier{Logger: logger}, clock, logger)
	evaluator := schedule.New(runs, jobs, clock, logger)
	f := factory.New(runs, evaluator, nil, clock, "2018-01-01", logger)
	submitter := dispatch.NewSubmitter(dispatcher, runs, manager, logger)

	l := New(jobs, runs, checks, f, submitter, manager, clock, logger, Config{
		Interval:         3 * time.Hour,
		ScheduledTimeout: 6 * time.Hour,
		StartedTimeout:   12 * time.Hour,
	})
	return &loopHarness{loop: l, jobs: jobs, runs: runs, checks: checks, dispatcher: dispatcher}
}

func (h *loopHarness) addJob(job *core.Job, caps ...core.Capability) {
	h.jobs.jobs[job.ID] = job
	for _, cap := range caps {
		h.jobs.runnable[cap] = append(h.jobs.runnable[cap], job)
	}
}

func invoiceJob(id string) *core.Job {
	return &core.Job{
		ID:          id,
		ConnectorID: "conn_1",
		AccountID:   "acct_1",
		Username:    "user",
		Enabled:     true,
		Connector: &core.Connector{
			ID:           "conn_1",
			AdapterCode:  "testconn",
			Type:         core.ConnectorVendor,
			Enabled:      true,
			Capabilities: core.CapabilityList{core.CapInvoiceDownload},
		},
	}
}

func seedRun(h *loopHarness, id, jobID string, cap core.Capability, status core.RunStatus, createdAt time.Time) *core.Run {
	r := &core.Run{
		ID:         id,
		JobID:      jobID,
		Capability: cap,
		CreatedVia: core.ViaScheduled,
		Status:     status,
		CreatedAt:  createdAt,
	}
	if status == core.RunStarted {
		start := createdAt
		r.ExecutionStart = &start
	}
	h.runs.put(r)
	return r
}

func TestTickCreatesAndDispatchesRuns(t *testing.T) {
	h := newLoopHarness(t)
	h.addJob(invoiceJob("job_1"), core.CapInvoiceDownload)

	h.loop.Tick(context.Background())

	ids := h.dispatcher.ids()
	require.Len(t, ids, 1)
	r := h.runs.get(ids[0])
	require.NotNil(t, r)
	assert.Equal(t, core.RunScheduled, r.Status)
	assert.Equal(t, core.CapInvoiceDownload, r.Capability)
	assert.Equal(t, core.ViaScheduled, r.CreatedVia)
}

func TestTickIsIdempotentWhileRunIsPending(t *testing.T) {
	h := newLoopHarness(t)
	h.addJob(invoiceJob("job_1"), core.CapInvoiceDownload)

	h.loop.Tick(context.Background())
	h.loop.Tick(context.Background())

	assert.Len(t, h.dispatcher.ids(), 1, "a pending run blocks new creation")
}

func TestManualJobRunIsNotDispatched(t *testing.T) {
	h := newLoopHarness(t)
	job := invoiceJob("job_1")
	job.ManualEnabled = true
	h.addJob(job, core.CapInvoiceDownload)

	h.loop.Tick(context.Background())

	assert.Empty(t, h.dispatcher.ids())
	var manualRuns int
	for _, r := range h.runs.all() {
		if r.IsManual && r.Status == core.RunScheduled {
			manualRuns++
		}
	}
	assert.Equal(t, 1, manualRuns, "manual run is scheduled and waits for an operator")
}

func TestMaintenanceCancelsTimedOutScheduledRuns(t *testing.T) {
	h := newLoopHarness(t)
	h.jobs.jobs["job_1"] = invoiceJob("job_1")

	stale := seedRun(h, "run_stale", "job_1", core.CapInvoiceDownload, core.RunScheduled, loopInstant.Add(-7*time.Hour))
	fresh := seedRun(h, "run_fresh", "job_2", core.CapInvoiceDownload, core.RunScheduled, loopInstant.Add(-time.Hour))

	manualStale := seedRun(h, "run_manual", "job_3", core.CapInvoiceDownload, core.RunScheduled, loopInstant.Add(-24*time.Hour))
	manualStale.IsManual = true
	h.runs.put(manualStale)

	manualAncient := seedRun(h, "run_manual_old", "job_4", core.CapInvoiceDownload, core.RunScheduled, loopInstant.Add(-4*24*time.Hour))
	manualAncient.IsManual = true
	h.runs.put(manualAncient)

	h.loop.Tick(context.Background())

	canceled := h.runs.get(stale.ID)
	assert.Equal(t, core.RunCanceled, canceled.Status)
	require.NotNil(t, canceled.CancelReason)
	assert.Equal(t, core.CancelScheduledTimedOut, *canceled.CancelReason)

	assert.Equal(t, core.RunScheduled, h.runs.get(fresh.ID).Status)
	assert.Equal(t, core.RunScheduled, h.runs.get(manualStale.ID).Status, "manual runs wait longer")
	assert.Equal(t, core.RunCanceled, h.runs.get(manualAncient.ID).Status)
}

func TestMaintenanceReplacesTimedOutStartedRun(t *testing.T) {
	h := newLoopHarness(t)
	h.jobs.jobs["job_1"] = invoiceJob("job_1")

	stuck := seedRun(h, "run_stuck", "job_1", core.CapInvoiceDownload, core.RunStarted, loopInstant.Add(-13*time.Hour))

	h.loop.Tick(context.Background())

	canceled := h.runs.get(stuck.ID)
	assert.Equal(t, core.RunCanceled, canceled.Status)
	require.NotNil(t, canceled.CancelReason)
	assert.Equal(t, core.CancelStartedTimedOut, *canceled.CancelReason)
	require.NotNil(t, canceled.ExecutionEnd, "canceled runs carry an end timestamp")

	ids := h.dispatcher.ids()
	require.Len(t, ids, 1, "exactly one replacement is submitted")
	replacement := h.runs.get(ids[0])
	require.NotNil(t, replacement)
	assert.Equal(t, "job_1", replacement.JobID)
	assert.Equal(t, core.RunScheduled, replacement.Status)
}

func TestMaintenanceKeepsOldestDuplicate(t *testing.T) {
	h := newLoopHarness(t)

	oldest := seedRun(h, "run_old", "job_1", core.CapInvoiceDownload, core.RunScheduled, loopInstant.Add(-2*time.Hour))
	newer := seedRun(h, "run_new", "job_1", core.CapInvoiceDownload, core.RunScheduled, loopInstant.Add(-time.Hour))
	other := seedRun(h, "run_other", "job_2", core.CapInvoiceDownload, core.RunScheduled, loopInstant.Add(-time.Hour))

	h.loop.Tick(context.Background())

	assert.Equal(t, core.RunScheduled, h.runs.get(oldest.ID).Status)
	assert.Equal(t, core.RunScheduled, h.runs.get(other.ID).Status)

	canceled := h.runs.get(newer.ID)
	assert.Equal(t, core.RunCanceled, canceled.Status)
	require.NotNil(t, canceled.CancelReason)
	assert.Equal(t, core.CancelScheduledMultiple, *canceled.CancelReason)
}

func TestMaintenanceResubmitsStuckCreatedRun(t *testing.T) {
	h := newLoopHarness(t)
	h.jobs.jobs["job_1"] = invoiceJob("job_1")

	stuck := seedRun(h, "run_created", "job_1", core.CapInvoiceDownload, core.RunCreated, loopInstant.Add(-2*time.Hour))

	h.loop.Tick(context.Background())

	r := h.runs.get(stuck.ID)
	assert.Equal(t, core.RunScheduled, r.Status)
	assert.Contains(t, h.dispatcher.ids(), stuck.ID)
}

func TestMaintenanceDisablesExhaustedPayments(t *testing.T) {
	h := newLoopHarness(t)
	h.checks.exhausted = []*core.CheckRun{{
		ID:            "chrun_1",
		ConnectorID:   "conn_1",
		PaymentID:     "pay_1",
		ExportSuccess: core.TriFalse,
	}}

	h.loop.Tick(context.Background())

	require.Len(t, h.checks.updated, 1)
	assert.True(t, h.checks.updated[0].Disabled)
}
